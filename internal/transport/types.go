package transport

import "context"

// ChatTarget addresses a chat. ChatID is either a numeric id ("-100123...")
// or a public username ("@channel").
type ChatTarget struct {
	ChatID   string
	ThreadID int // forum topic thread id (0 if none)
}

func (t ChatTarget) IsZero() bool { return t.ChatID == "" }

type MessageRef struct {
	ChatID    string
	ThreadID  int
	MessageID int
}

// URLButton is an inline button that opens a link.
type URLButton struct {
	Text string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Keyboard is rendered as inline rows under the first message chunk.
	// Empty rows are dropped; an all-empty keyboard attaches nothing.
	Keyboard [][]URLButton
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
