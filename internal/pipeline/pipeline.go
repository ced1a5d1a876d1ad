// Package pipeline turns one feedback record into a tracking card and a chat
// notification, then marks it processed.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"feedbackbot/internal/dedup"
	"feedbackbot/internal/eventbus"
	"feedbackbot/internal/feedback"
	"feedbackbot/internal/source/rtdb"
	"feedbackbot/internal/taskboard"
	kit "feedbackbot/internal/transport"
	logx "feedbackbot/pkg/logx"
)

// EventOutcome is published on the bus once per run with a Result payload.
const EventOutcome = "feedback.outcome"

type Outcome string

const (
	OutcomeSkipped      Outcome = "skipped"
	OutcomeForwarded    Outcome = "forwarded"
	OutcomeCardFailed   Outcome = "card_failed"
	OutcomeSendFailed   Outcome = "send_failed"
	OutcomeRecordFailed Outcome = "record_failed"
)

// Outcomes lists every outcome in display order.
var Outcomes = []Outcome{OutcomeForwarded, OutcomeSkipped, OutcomeCardFailed, OutcomeSendFailed, OutcomeRecordFailed}

const (
	UserButtonText   = "🙋User in FIREBASE"
	TicketButtonText = "🎫 TRELLO ticket"
)

// Result describes one finished run.
type Result struct {
	At         time.Time
	RunID      string
	FeedbackID string
	Category   string
	Outcome    Outcome
	CardURL    string
	Err        error
	Took       time.Duration
}

// CardCreator files a tracking card.
type CardCreator interface {
	CreateCard(ctx context.Context, name, desc string) (taskboard.Card, error)
}

type Config struct {
	Chat        kit.ChatTarget
	DatabaseURL string
	UsersPath   string
	// ParseMode for the chat message; "Markdown" when empty.
	ParseMode string
	// Escape is applied to user-supplied values in the chat copy only.
	Escape func(string) string
}

type Deps struct {
	Dedup dedup.Log
	Cards CardCreator
	Chat  kit.Sender
	Bus   eventbus.Bus // optional
}

type Pipeline struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	handled atomic.Uint64
}

func New(cfg Config, deps Deps, log logx.Logger) (*Pipeline, error) {
	if deps.Dedup == nil || deps.Cards == nil || deps.Chat == nil {
		return nil, errors.New("pipeline: dedup log, card creator and chat sender are required")
	}
	if cfg.Chat.IsZero() {
		return nil, errors.New("pipeline: chat target is empty")
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: log}, nil
}

// Handled reports how many records reached the pipeline.
func (p *Pipeline) Handled() uint64 { return p.handled.Load() }

// HandleChild adapts Handle to the stream callback. Failures are logged and
// dropped; the stream keeps going.
func (p *Pipeline) HandleChild(ctx context.Context, key string, raw json.RawMessage) {
	_, _ = p.Handle(ctx, feedback.Decode(key, raw))
}

// Handle runs every step for rec, stopping at the first failure. Nothing is
// recorded unless the chat message went out, so a failed record is picked up
// again on the next start.
func (p *Pipeline) Handle(ctx context.Context, rec feedback.Record) (Outcome, error) {
	p.handled.Add(1)
	res := Result{
		At:         time.Now(),
		RunID:      uuid.NewString(),
		FeedbackID: rec.ID,
		Category:   rec.Type,
	}
	log := p.log.With(logx.String("run_id", res.RunID), logx.String("feedback_id", rec.ID))

	res.Outcome, res.CardURL, res.Err = p.run(ctx, log, rec)
	res.Took = time.Since(res.At)

	switch {
	case res.Outcome == OutcomeSkipped:
		log.Debug("feedback already processed")
	case res.Err != nil:
		log.Error("feedback not forwarded", logx.String("outcome", string(res.Outcome)), logx.Err(res.Err), logx.Duration("took", res.Took))
	default:
		log.Info("feedback forwarded", logx.String("category", rec.Type), logx.String("card_url", res.CardURL), logx.Duration("took", res.Took))
	}

	if p.deps.Bus != nil {
		p.deps.Bus.Publish(eventbus.Event{Type: EventOutcome, Time: res.At, Data: res})
	}
	return res.Outcome, res.Err
}

func (p *Pipeline) run(ctx context.Context, log logx.Logger, rec feedback.Record) (Outcome, string, error) {
	if p.deps.Dedup.Contains(rec.ID) {
		return OutcomeSkipped, "", nil
	}

	title := feedback.Label(rec.Type)
	card, err := p.deps.Cards.CreateCard(ctx, title, feedback.Describe(rec))
	if err != nil {
		return OutcomeCardFailed, "", fmt.Errorf("create card: %w", err)
	}
	log.Debug("card created", logx.String("short_url", card.ShortURL))

	var chatBody string
	if p.cfg.Escape != nil {
		chatBody = feedback.Describe(rec, feedback.WithEscaper(p.cfg.Escape))
	} else {
		chatBody = feedback.Describe(rec)
	}
	opt := &kit.SendOptions{
		ParseMode: p.cfg.ParseMode,
		Keyboard:  [][]kit.URLButton{p.Controls(rec, card.ShortURL)},
	}
	if _, err := p.deps.Chat.SendText(ctx, p.cfg.Chat, MessageText(title, chatBody), opt); err != nil {
		return OutcomeSendFailed, card.ShortURL, fmt.Errorf("send chat message: %w", err)
	}

	// The message is out; shutdown must not keep the id from being recorded.
	if err := p.deps.Dedup.Append(context.WithoutCancel(ctx), rec.ID); err != nil {
		return OutcomeRecordFailed, card.ShortURL, fmt.Errorf("record processed id: %w", err)
	}
	return OutcomeForwarded, card.ShortURL, nil
}

// MessageText is the chat message for a record with the given label and body.
func MessageText(label, body string) string {
	return "New Feedback: " + label + "\n" + body
}

// Controls builds the single row of link buttons for rec. The row may be
// empty.
func (p *Pipeline) Controls(rec feedback.Record, cardURL string) []kit.URLButton {
	row := make([]kit.URLButton, 0, 2)
	if rec.UserID != "" {
		row = append(row, kit.URLButton{
			Text: UserButtonText,
			URL:  rtdb.LocationURL(p.cfg.DatabaseURL, p.cfg.UsersPath, rec.UserID),
		})
	}
	if cardURL != "" {
		row = append(row, kit.URLButton{Text: TicketButtonText, URL: cardURL})
	}
	return row
}
