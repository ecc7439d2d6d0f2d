// Package tracer records every outbound call made while relaying a message so
// the caller can see exactly which step of the pipeline failed.
package tracer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// UnreadableBody is recorded when a response body cannot be read at all.
const UnreadableBody = "[Unable to read response body]"

// BodyKind discriminates the shapes a captured body can take.
type BodyKind int

const (
	// BodyNone means nothing was sent or received.
	BodyNone BodyKind = iota
	// BodyStructured holds a decoded JSON value.
	BodyStructured
	// BodyRaw holds text that did not parse as JSON.
	BodyRaw
	// BodyUnreadable marks a body whose bytes could not be read.
	BodyUnreadable
)

func (k BodyKind) String() string {
	switch k {
	case BodyStructured:
		return "structured"
	case BodyRaw:
		return "raw"
	case BodyUnreadable:
		return "unreadable"
	default:
		return "none"
	}
}

// Body is a captured request or response body.
type Body struct {
	kind  BodyKind
	value any
	raw   string
}

// Structured wraps an already decoded value.
func Structured(v any) Body { return Body{kind: BodyStructured, value: v} }

// Raw wraps text that is not JSON.
func Raw(s string) Body { return Body{kind: BodyRaw, raw: s} }

// Unreadable returns the sentinel body.
func Unreadable() Body { return Body{kind: BodyUnreadable} }

// ParseBody tries JSON first and falls back to raw text.
func ParseBody(data []byte) Body {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return Structured(v)
		}
	}
	return Raw(string(data))
}

// Kind reports which variant the body holds.
func (b Body) Kind() BodyKind { return b.kind }

// Value returns the decoded value, the raw text, the sentinel, or nil.
func (b Body) Value() any {
	switch b.kind {
	case BodyStructured:
		return b.value
	case BodyRaw:
		return b.raw
	case BodyUnreadable:
		return UnreadableBody
	default:
		return nil
	}
}

// MarshalJSON emits the body the way the diagnostics UI renders it: the
// decoded value for JSON, a string for text, null when absent.
func (b Body) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Value())
}

// UnmarshalJSON restores a body from a relay envelope.
func (b *Body) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = Body{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s == UnreadableBody {
			*b = Unreadable()
		} else {
			*b = Raw(s)
		}
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*b = Structured(v)
	return nil
}

// Entry is one outbound call. Entries are values; once appended to a Log
// they are never modified.
type Entry struct {
	Step               string            `json:"step"`
	URL                string            `json:"url"`
	Method             string            `json:"method"`
	RequestHeaders     map[string]string `json:"requestHeaders"`
	RequestBody        Body              `json:"requestBody"`
	ResponseStatus     int               `json:"responseStatus"`
	ResponseStatusText string            `json:"responseStatusText"`
	ResponseHeaders    map[string]string `json:"responseHeaders"`
	ResponseBody       Body              `json:"responseBody"`
	DurationMs         int64             `json:"durationMs"`
	Timestamp          time.Time         `json:"timestamp"`
}

// WithStepPrefix returns a copy of the entry with prefix prepended to Step.
func (e Entry) WithStepPrefix(prefix string) Entry {
	e.Step = prefix + e.Step
	return e
}

// Log is an ordered, append-only sequence of entries owned by one relay call.
type Log struct {
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, 3)}
}

// Append records e at the end of the log. Appending to a nil log discards e.
func (l *Log) Append(e Entry) {
	if l == nil {
		return
	}
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the recorded entries in call order.
func (l *Log) Entries() []Entry {
	if l == nil {
		return []Entry{}
	}
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// flattenHeaders joins multi-valued headers the way fetch-style clients
// report them. Response header names are lower-cased, request names are kept
// as the caller wrote them.
func flattenHeaders(h http.Header, lower bool, redact Redactor) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		name := k
		if lower {
			name = strings.ToLower(k)
		}
		value := strings.Join(v, ", ")
		if redact != nil {
			value = redact(name, value)
		}
		out[name] = value
	}
	return out
}
