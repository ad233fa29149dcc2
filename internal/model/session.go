// Package model defines domain types for the costledger usage ledger.
package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// SessionID is a decimal string derived from the session's creation time in
// unix milliseconds. Older documents stored it as a JSON number.
type SessionID string

// UnmarshalJSON accepts both the string and the legacy numeric form.
func (id *SessionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SessionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*id = SessionID(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*id = SessionID(strconv.FormatInt(int64(f), 10))
	return nil
}

// Millis returns the numeric value of the id, or 0 if it is not numeric.
func (id SessionID) Millis() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SessionClass is the strategy a session was run under. Fixed at creation.
type SessionClass string

const (
	ClassRetrieval SessionClass = "retrieval-oriented"
	ClassBaseline  SessionClass = "generation-baseline"
	ClassMixed     SessionClass = "mixed"
)

// ParseClass maps user input and legacy names onto a class. Unknown values
// become ClassMixed.
func ParseClass(s string) SessionClass {
	switch s {
	case string(ClassRetrieval), "retrieval", "scms":
		return ClassRetrieval
	case string(ClassBaseline), "baseline", "generation":
		return ClassBaseline
	default:
		return ClassMixed
	}
}

// Short is the label used in narrow table columns.
func (c SessionClass) Short() string {
	switch c {
	case ClassRetrieval:
		return "retrieval"
	case ClassBaseline:
		return "baseline"
	default:
		return "mixed"
	}
}

// CloseReason records how a session was closed. Empty while open.
type CloseReason string

const (
	CloseManual    CloseReason = "manual"
	CloseRecovered CloseReason = "recovered"
)

// TokenTotals are the four running token counters of a session.
type TokenTotals struct {
	Input    int64 `json:"input"`
	Output   int64 `json:"output"`
	Thinking int64 `json:"thinking"`
	Tool     int64 `json:"tool"`
}

// Total returns the sum of all four counters.
func (t TokenTotals) Total() int64 {
	return t.Input + t.Output + t.Thinking + t.Tool
}

// Add returns the element-wise sum.
func (t TokenTotals) Add(o TokenTotals) TokenTotals {
	return TokenTotals{
		Input:    t.Input + o.Input,
		Output:   t.Output + o.Output,
		Thinking: t.Thinking + o.Thinking,
		Tool:     t.Tool + o.Tool,
	}
}

// Interaction is one logged exchange. Cost is fixed when it is appended.
type Interaction struct {
	OccurredAt     time.Time `json:"occurredAt"`
	Prompt         string    `json:"prompt,omitempty"`
	InputTokens    int64     `json:"inputTokens"`
	ContextTokens  int64     `json:"contextTokens"`
	ResponseTokens int64     `json:"responseTokens"`
	ThinkingTokens int64     `json:"thinkingTokens"`
	ToolTokens     int64     `json:"toolTokens"`
	WasRetrieval   bool      `json:"wasRetrieval"`
	PatternsUsed   []string  `json:"patternsUsed,omitempty"`
	Cost           float64   `json:"cost"`
}

// Tokens folds the interaction's counts into session counters. Context
// tokens bill as input.
func (i Interaction) Tokens() TokenTotals {
	return TokenTotals{
		Input:    i.InputTokens + i.ContextTokens,
		Output:   i.ResponseTokens,
		Thinking: i.ThinkingTokens,
		Tool:     i.ToolTokens,
	}
}

// Checkpoint is the most recent externally observed usage baseline for a
// session. It stands in for the input/output of the first Covered
// interactions; later interactions add on top of it.
type Checkpoint struct {
	SourceID   string    `json:"sourceId,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
	Markers    int       `json:"markers"`
	Delta      int64     `json:"delta"`
	Input      int64     `json:"input"`
	Output     int64     `json:"output"`
	Thinking   int64     `json:"thinking,omitempty"`
	Tool       int64     `json:"tool,omitempty"`
	Covered    int       `json:"covered"`
	Cost       float64   `json:"cost"`
}

// Session is one tracked unit of work.
type Session struct {
	ID             SessionID     `json:"id"`
	Class          SessionClass  `json:"sessionClass"`
	StartedAt      time.Time     `json:"startedAt"`
	EndedAt        *time.Time    `json:"endedAt"`
	Interactions   []Interaction `json:"interactions"`
	TokenTotals    TokenTotals   `json:"tokenTotals"`
	TotalCost      float64       `json:"totalCost"`
	RetrievalRatio float64       `json:"retrievalRatio"`
	PatternsUsed   []string      `json:"patternsUsed"`
	CloseReason    CloseReason   `json:"closeReason,omitempty"`
	CloseNote      string        `json:"closeNote,omitempty"`
	Checkpoint     *Checkpoint   `json:"checkpoint,omitempty"`
}

// IsOpen reports whether the session has not been closed.
func (s *Session) IsOpen() bool {
	return s.EndedAt == nil
}

// RetrievalCount returns how many interactions were retrievals.
func (s *Session) RetrievalCount() int {
	n := 0
	for _, in := range s.Interactions {
		if in.WasRetrieval {
			n++
		}
	}
	return n
}

// Duration is the elapsed time from start to end, or to now while open.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// Marker is the small record mirrored to disk while a session is open.
// ReleasedAt is set when a process exits cleanly with the session still
// open; a marker without it means some process may have died holding it.
type Marker struct {
	ID         SessionID    `json:"id"`
	Class      SessionClass `json:"sessionClass"`
	StartedAt  time.Time    `json:"startedAt"`
	ReleasedAt *time.Time   `json:"releasedAt,omitempty"`
}

// Released reports whether the last holder exited cleanly.
func (m *Marker) Released() bool {
	return m != nil && m.ReleasedAt != nil
}
