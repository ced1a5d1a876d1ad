package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig mirrors warnings and errors into an operator chat.
type TelegramConfig struct {
	Enabled    bool
	ChatID     string
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Field adds one key to an event. Later fields overwrite earlier ones.
type Field func(e *zerolog.Event)

func String(k, v string) Field    { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field   { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err is a no-op for nil errors.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is passed by value. A Logger obtained from a Service picks up every
// Service.Apply; a standalone one keeps the zerolog logger it was built with.
// The zero Logger discards everything.
type Logger struct {
	svc    *Service
	static *zerolog.Logger
	fields []Field
}

var discard = zerolog.Nop()

func Nop() Logger { return Logger{static: &discard} }

// NewConsole logs human-readable lines to stdout. App wiring uses it until
// the configured Service is up.
func NewConsole(level string) Logger {
	setGlobals()
	zl := zerolog.New(newConsoleWriter(Stdout())).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{static: &zl}
}

// NewWriter logs JSON lines to w.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{static: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.static == nil && len(l.fields) == 0 }

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	l.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return l
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) target() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.static != nil:
		return *l.static
	default:
		return discard
	}
}

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.target()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	// emit <- Info/Warn/... <- call site
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, group := range [][]Field{l.fields, fields} {
		for _, f := range group {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
