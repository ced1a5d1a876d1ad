package feedback

import "strings"

// MissingValue is rendered for absent fields.
const MissingValue = "undefined"

const unknownLabel = "Unknown"

// Label maps a category code to its display label.
func Label(code string) string {
	switch code {
	case TypeFeedback:
		return "Feedback"
	case TypeIdea:
		return "Idea"
	case TypeBugReport, TypeBug:
		return "Bug report"
	case TypeTranslation:
		return "Translation"
	default:
		return unknownLabel
	}
}

type describeOptions struct {
	escape func(string) string
}

type DescribeOption func(*describeOptions)

// WithEscaper applies esc to user-supplied values (never to the fixed labels).
func WithEscaper(esc func(string) string) DescribeOption {
	return func(o *describeOptions) { o.escape = esc }
}

// Describe renders the multi-line body shared by the card and the chat message.
//
// The email line is present only when Email is set; UserID never shows up here.
func Describe(rec Record, opts ...DescribeOption) string {
	o := describeOptions{escape: func(s string) string { return s }}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	val := func(s string) string {
		if s == "" {
			return MissingValue
		}
		return o.escape(s)
	}

	var b strings.Builder
	if rec.Email != "" {
		// "**" is an empty bold pair in legacy Markdown, so the address is plain text.
		b.WriteString("📧 **Email: ")
		b.WriteString(o.escape(rec.Email))
		b.WriteString("**\n")
	}
	b.WriteString("📋 **Message:**\n")
	b.WriteString(val(rec.Description))
	b.WriteString("\n\n**App version:** ")
	b.WriteString(val(rec.Version))
	b.WriteString("\n**Language:** ")
	b.WriteString(val(rec.Language))
	b.WriteString("\n**System Info:**\n")
	b.WriteString(val(rec.SystemInfo))
	return b.String()
}
