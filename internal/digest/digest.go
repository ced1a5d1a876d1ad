// Package digest periodically posts a summary of pipeline outcomes to the chat.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"feedbackbot/internal/pipeline"
	kit "feedbackbot/internal/transport"
	logx "feedbackbot/pkg/logx"
)

const DefaultSchedule = "0 9 * * *"

type Config struct {
	Enabled   bool
	Schedule  string
	Timezone  string
	SendEmpty bool
	Timeout   time.Duration
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a five-field cron expression or descriptor.
func ParseSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultSchedule
	}
	_, err := parser.Parse(spec)
	return err
}

type Service struct {
	sender kit.Sender
	to     kit.ChatTarget
	log    logx.Logger

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	loc    *time.Location
	counts map[pipeline.Outcome]int
	since  time.Time
}

func New(cfg Config, sender kit.Sender, to kit.ChatTarget, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		sender: sender,
		to:     to,
		log:    log,
		counts: map[pipeline.Outcome]int{},
		since:  time.Now(),
	}
}

// Record counts one pipeline outcome. It is cheap and safe to call from any goroutine.
func (s *Service) Record(o pipeline.Outcome) {
	s.mu.Lock()
	s.counts[o]++
	s.mu.Unlock()
}

// Start schedules the digest if enabled. Calling it twice is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	s.loc = s.loadLocationLocked()
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("digest schedule %q: %w", spec, err)
	}
	s.c = c
	c.Start()
	s.log.Info("digest scheduled", logx.String("schedule", spec), logx.String("tz", s.loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the configuration and reschedules when the timing changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	running := s.c != nil
	changed := old.Enabled != cfg.Enabled ||
		strings.TrimSpace(old.Schedule) != strings.TrimSpace(cfg.Schedule) ||
		strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone)
	if !changed {
		return nil
	}
	if running {
		// Job runs take s.mu; do not wait for them while holding it.
		s.c.Stop()
		s.c = nil
	}
	if !cfg.Enabled {
		s.log.Info("digest disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) tick() {
	s.mu.Lock()
	timeout := s.cfg.Timeout
	s.mu.Unlock()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("digest not sent", logx.Err(err))
	}
}

// Flush sends the current window and starts a new one. An empty window is
// skipped unless SendEmpty is set. When sending fails the counts are put back.
func (s *Service) Flush(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	counts, since := s.counts, s.since
	s.counts, s.since = map[pipeline.Outcome]int{}, now
	sendEmpty := s.cfg.SendEmpty
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 && !sendEmpty {
		s.log.Debug("digest skipped, nothing happened")
		return nil
	}

	text := Format(counts, since.In(loc), now.In(loc))
	if _, err := s.sender.SendText(ctx, s.to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		s.restore(counts, since)
		return err
	}
	s.log.Info("digest sent", logx.Int("total", total))
	return nil
}

func (s *Service) restore(counts map[pipeline.Outcome]int, since time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for o, n := range counts {
		s.counts[o] += n
	}
	s.since = since
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

var outcomeLabels = map[pipeline.Outcome]string{
	pipeline.OutcomeForwarded:    "Forwarded",
	pipeline.OutcomeSkipped:      "Already processed",
	pipeline.OutcomeCardFailed:   "Card failed",
	pipeline.OutcomeSendFailed:   "Chat failed",
	pipeline.OutcomeRecordFailed: "Not recorded",
}

// Format renders a plain-text digest. Zero counts are omitted.
func Format(counts map[pipeline.Outcome]int, since, until time.Time) string {
	const layout = "2006-01-02 15:04"
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback digest\n%s - %s\n", since.Format(layout), until.Format(layout))

	total := 0
	for _, o := range pipeline.Outcomes {
		n := counts[o]
		if n == 0 {
			continue
		}
		total += n
		fmt.Fprintf(&b, "\n%s: %d", outcomeLabels[o], n)
	}
	if total == 0 {
		b.WriteString("\nNo feedback received.")
		return b.String()
	}
	fmt.Fprintf(&b, "\n\nTotal: %d", total)
	return b.String()
}
