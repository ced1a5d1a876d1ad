package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"feedbackbot/internal/config"
	"feedbackbot/internal/dedup"
	"feedbackbot/internal/digest"
	"feedbackbot/internal/eventbus"
	"feedbackbot/internal/pipeline"
	"feedbackbot/internal/runtime/supervisor"
	"feedbackbot/internal/source/rtdb"
	"feedbackbot/internal/storage"
	"feedbackbot/internal/taskboard"
	"feedbackbot/internal/transport/telegram"
	logx "feedbackbot/pkg/logx"
)

// NoServiceAccount disables database authentication (emulator, public rules).
const NoServiceAccount = "none"

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	to   config.Timeouts

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	chat   *telegram.Sender
	dedup  *dedup.FileLog
	src    *rtdb.Source
	pipe   *pipeline.Pipeline
	digest *digest.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	to, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}
	if err := digest.ParseSchedule(cfg.Digest.Schedule); err != nil {
		return nil, fmt.Errorf("digest.schedule: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	chat, err := telegram.New(mapTelegramConfig(cfg, to), bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), chat)
	appLog := log.With(logx.String("comp", "app"))

	fail := func(err error, closers ...func() error) (*App, error) {
		for _, c := range closers {
			_ = c()
		}
		_ = logSvc.Close()
		return nil, err
	}

	match, err := dedup.ParseMatch(cfg.Dedup.Match)
	if err != nil {
		return fail(err)
	}
	ids, err := dedup.OpenFile(cfg.Dedup.Path, match, log.With(logx.String("comp", "dedup")))
	if err != nil {
		return fail(fmt.Errorf("open dedup log: %w", err))
	}

	credentials := strings.TrimSpace(cfg.Firebase.ServiceAccount)
	if strings.EqualFold(credentials, NoServiceAccount) {
		credentials = ""
	}
	hc, err := rtdb.NewHTTPClient(context.Background(), credentials)
	if err != nil {
		return fail(err, ids.Close)
	}
	src, err := rtdb.New(mapSourceConfig(cfg, to), hc, log.With(logx.String("comp", "rtdb")))
	if err != nil {
		return fail(err, ids.Close)
	}

	cards := taskboard.New(mapTaskboardConfig(cfg, to), nil, log.With(logx.String("comp", "taskboard")))
	bus := eventbus.New()

	var store storage.Store
	st, err := storage.Open(mapStorageConfig(cfg, to), log.With(logx.String("comp", "storage")))
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		return fail(fmt.Errorf("open storage: %w", err), ids.Close)
	default:
		store = st
		appLog.Info("delivery audit enabled", logx.String("driver", cfg.Storage.Driver))
	}

	pipe, err := pipeline.New(mapPipelineConfig(cfg), pipeline.Deps{
		Dedup: ids,
		Cards: cards,
		Chat:  chat,
		Bus:   bus,
	}, log.With(logx.String("comp", "pipeline")))
	if err != nil {
		closers := []func() error{ids.Close}
		if store != nil {
			closers = append(closers, store.Close)
		}
		return fail(err, closers...)
	}

	dig := digest.New(mapDigestConfig(cfg), chat, chatTarget(cfg), log.With(logx.String("comp", "digest")))

	return &App{
		cfgm:   cfgm,
		to:     to,
		log:    appLog,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		chat:   chat,
		dedup:  ids,
		src:    src,
		pipe:   pipe,
		digest: dig,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Reloads are validated as a whole before anything is applied.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := digest.ParseSchedule(cfg.Digest.Schedule); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
		return nil
	})

	if err := a.digest.Start(); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("pipeline.events", func(c context.Context) {
		defer unsub()
		a.consumeEvents(c, events)
	})

	a.sup.GoRestart("rtdb.stream", func(c context.Context) error {
		return a.src.Run(c, a.pipe.HandleChild)
	},
		supervisor.WithRestartBackoff(a.to.ReconnectMin, a.to.ReconnectMax),
		supervisor.WithStopOnCleanExit(false),
	)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdog(c, a.log)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("source", a.src.URL()))
	return nil
}

// consumeEvents feeds pipeline outcomes to the audit store and the digest.
// Buffered events are drained on shutdown.
func (a *App) consumeEvents(ctx context.Context, events <-chan eventbus.Event) {
	handle := func(wctx context.Context, e eventbus.Event) {
		res, ok := e.Data.(pipeline.Result)
		if e.Type != pipeline.EventOutcome || !ok {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			return
		}
		a.digest.Record(res.Outcome)
		if a.store == nil {
			return
		}
		sctx, cancel := context.WithTimeout(wctx, 5*time.Second)
		defer cancel()
		if err := a.store.AppendDelivery(sctx, deliveryFromResult(res)); err != nil {
			a.log.Warn("delivery not audited", logx.String("feedback_id", res.FeedbackID), logx.Err(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return
					}
					handle(drain, e)
				default:
					return
				}
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			handle(ctx, e)
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	if err := a.digest.Apply(mapDigestConfig(newCfg)); err != nil {
		a.log.Warn("digest config not applied", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	// The stream goroutine may be mid-run; it must finish before the log closes.
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("dedup", time.Second, func(context.Context) error { return a.dedup.Close() })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("handled", int(a.pipe.Handled())))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
