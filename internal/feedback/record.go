// Package feedback holds the feedback record model and its text rendering.
package feedback

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Category codes as written by the client applications.
const (
	TypeFeedback    = "FEEDBACK"
	TypeIdea        = "IDEA"
	TypeBugReport   = "BUG_REPORT"
	TypeBug         = "BUG"
	TypeTranslation = "TRANSLATION"
)

// Record is one user-submitted feedback item. Empty strings mean the field
// was absent or null in the source document.
type Record struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"feedbackType,omitempty"`
	Description string `json:"description,omitempty"`
	Email       string `json:"email,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Version     string `json:"version,omitempty"`
	Language    string `json:"language,omitempty"`
	SystemInfo  string `json:"systemInfo,omitempty"`
}

// Decode builds a Record from a raw child value and stamps key as its ID.
//
// Decoding never fails: scalar values of any JSON type are kept in their
// textual form, nested values as compact JSON, and a value that is not an
// object yields a record carrying only the ID.
func Decode(key string, raw json.RawMessage) Record {
	rec := Record{ID: key}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return rec
	}
	rec.Type = scalar(m["feedbackType"])
	rec.Description = scalar(m["description"])
	rec.Email = scalar(m["email"])
	rec.UserID = scalar(m["userId"])
	rec.Version = scalar(m["version"])
	rec.Language = scalar(m["language"])
	rec.SystemInfo = scalar(m["systemInfo"])
	return rec
}

func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return strconv.FormatBool(b)
		}
	}
	// numbers, objects and arrays keep their JSON text
	return string(raw)
}
