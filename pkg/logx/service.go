package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kit "feedbackbot/internal/transport"
)

const defaultLogFile = "./feedbackbot.log"

// Service owns the configured outputs. Apply rebuilds them in place, so
// loggers handed out earlier follow the new level and sinks.
type Service struct {
	mu   sync.Mutex
	file *os.File
	chat *chatSink

	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the Service with its root Logger. With a nil
// sender the Telegram sink stays off whatever cfg says.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	if sender != nil {
		s.chat = newChatSink(sender)
	}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return discard
}

// Apply swaps level and outputs. Safe for concurrent use with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(Stderr(), "logx: %v\n", err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled && s.chat != nil {
		s.chat.configure(cfg.Telegram)
		outs = append(outs, s.chat)
	}
	if len(outs) == 0 {
		outs = append(outs, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the Telegram worker and closes the log file. Loggers keep
// working afterwards but the file sink drops writes.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if s.chat != nil {
		s.chat.stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

func setGlobals() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}

func Stdout() io.Writer { return os.Stdout }
func Stderr() io.Writer { return os.Stderr }
