// Package telegram delivers chat messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "feedbackbot/internal/transport"
	logx "feedbackbot/pkg/logx"
)

const DefaultAPIURL = "https://api.telegram.org"

var ErrEmptyText = errors.New("telegram: empty message text")

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot-api servers).
	APIURL     string
	Timeout    time.Duration
	RatePerSec int
}

// Sender is send-only: it never polls for updates.
type Sender struct {
	bot *tele.Bot
	lim *rate.Limiter
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Offline skips the getMe round trip at construction.
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sender{
		bot: b,
		lim: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log: log,
	}, nil
}

// chatRecipient accepts numeric ids and "@username" alike.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// SendText sends text to the target, splitting it when it exceeds the Bot API
// limit. The keyboard is attached to the first chunk only.
func (s *Sender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if strings.TrimSpace(text) == "" {
		return kit.MessageRef{}, ErrEmptyText
	}
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram: chat id is empty")
	}

	chat := chatRecipient(to.ChatID)
	markup := inlineMarkup(opt.Keyboard)

	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit, opt.ParseMode) {
		if err := s.lim.Wait(ctx); err != nil {
			return first, err
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		if i == 0 && markup != nil {
			sendOpt.ReplyMarkup = markup
		}

		msg, err := s.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
			if msg.Chat != nil && msg.Chat.ID != 0 {
				first.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
			}
		}
	}
	return first, nil
}

// inlineMarkup returns nil when there is no button to show.
func inlineMarkup(rows [][]kit.URLButton) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	var out []tele.Row
	for _, row := range rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			if b.URL == "" {
				continue
			}
			btns = append(btns, tele.Btn{Text: b.Text, URL: b.URL})
		}
		if len(btns) > 0 {
			out = append(out, rm.Row(btns...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	rm.Inline(out...)
	return rm
}
