// Package dedup keeps the set of feedback ids that were already forwarded.
//
// The durable form is a plain text file with one id per line. It is only ever
// appended to; on startup the whole file is read back.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Match selects how Contains compares ids against the log.
type Match string

const (
	// MatchSubstring searches the raw log text. An id that is a substring of
	// a stored id (e.g. "1" vs "a1") is reported as present. This is the
	// historical behavior and the default.
	MatchSubstring Match = "substring"
	// MatchExact compares whole lines.
	MatchExact Match = "exact"
)

// ParseMatch maps a config value to a Match. Empty means MatchSubstring.
func ParseMatch(s string) (Match, error) {
	switch Match(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchExact:
		return MatchExact, nil
	default:
		return "", fmt.Errorf("unknown dedup match mode %q (want substring or exact)", s)
	}
}

var ErrClosed = errors.New("dedup log closed")

// Log is the dedup service handed to the pipeline.
type Log interface {
	Contains(id string) bool
	// Append records id as processed. It must be durable when it returns nil.
	Append(ctx context.Context, id string) error
}

// index is the in-memory view shared by the file and memory logs.
type index struct {
	match Match
	raw   strings.Builder
	lines map[string]struct{}
}

func newIndex(match Match) *index {
	return &index{match: match, lines: map[string]struct{}{}}
}

func (x *index) load(text string) {
	x.raw.WriteString(text)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			x.lines[line] = struct{}{}
		}
	}
}

func (x *index) add(id string) {
	x.raw.WriteString(id)
	x.raw.WriteByte('\n')
	x.lines[id] = struct{}{}
}

func (x *index) contains(id string) bool {
	if x.match == MatchExact {
		_, ok := x.lines[id]
		return ok
	}
	return strings.Contains(x.raw.String(), id)
}

func validID(id string) error {
	if id == "" {
		return errors.New("empty feedback id")
	}
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("feedback id %q contains a line break", id)
	}
	return nil
}
