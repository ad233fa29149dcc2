package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/costledger/internal/model"
)

// decodeLedger parses a ledger document. Documents without a version are
// treated as one of the older tracker layouts and converted once; the
// second return value reports whether that happened.
func decodeLedger(data []byte) (*model.Ledger, bool, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, false, fmt.Errorf("parsing ledger: %w", err)
	}

	if head.Version >= model.LedgerVersion {
		var l model.Ledger
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, false, fmt.Errorf("parsing ledger: %w", err)
		}
		l.Normalize()
		return &l, false, nil
	}

	l, err := migrateLegacy(data)
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

type legacyDoc struct {
	Sessions []legacySession `json:"sessions"`
	Current  *legacySession  `json:"currentSession"`
	Patterns json.RawMessage `json:"patterns"`
}

type legacyTokens struct {
	Input    int64 `json:"input"`
	Output   int64 `json:"output"`
	Thinking int64 `json:"thinking"`
	Tools    int64 `json:"tools"`
	Tool     int64 `json:"tool"`
}

type legacySession struct {
	ID             model.SessionID     `json:"id"`
	Type           string              `json:"type"`
	SessionClass   string              `json:"sessionClass"`
	StartTime      json.RawMessage     `json:"startTime"`
	StartedAt      json.RawMessage     `json:"startedAt"`
	EndTime        json.RawMessage     `json:"endTime"`
	EndedAt        json.RawMessage     `json:"endedAt"`
	Interactions   []legacyInteraction `json:"interactions"`
	TokenBreakdown *legacyTokens       `json:"tokenBreakdown"`
	TokenTotals    *legacyTokens       `json:"tokenTotals"`
	TotalCost      float64             `json:"totalCost"`
	RetrievalRatio float64             `json:"retrievalRatio"`
	Patterns       []string            `json:"patterns"`
	PatternsUsed   []string            `json:"patternsUsed"`
	CloseReason    string              `json:"closeReason"`
	CloseNote      string              `json:"closeNote"`
}

type legacyInteraction struct {
	Timestamp      json.RawMessage `json:"timestamp"`
	OccurredAt     json.RawMessage `json:"occurredAt"`
	UserPrompt     string          `json:"userPrompt"`
	Prompt         string          `json:"prompt"`
	UserTokens     int64           `json:"userTokens"`
	InputTokens    int64           `json:"inputTokens"`
	ContextTokens  int64           `json:"contextTokens"`
	ResponseTokens int64           `json:"responseTokens"`
	ThinkingTokens int64           `json:"thinkingTokens"`
	ToolTokens     int64           `json:"toolTokens"`
	WasRetrieval   bool            `json:"wasRetrieval"`
	PatternsUsed   []string        `json:"patternsUsed"`
	Cost           float64         `json:"cost"`
}

func migrateLegacy(data []byte) (*model.Ledger, error) {
	var doc legacyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing legacy ledger: %w", err)
	}

	l := model.NewLedger()
	var open []model.Session
	for _, ls := range doc.Sessions {
		s := ls.convert()
		if s.IsOpen() {
			open = append(open, s)
			continue
		}
		l.Sessions = append(l.Sessions, s)
	}
	if doc.Current != nil {
		s := doc.Current.convert()
		if s.IsOpen() {
			open = append(open, s)
		} else {
			l.Sessions = append(l.Sessions, s)
		}
	}

	// Old trackers could leave several sessions without an end time. Keep
	// the newest open and close the rest.
	sort.SliceStable(open, func(i, j int) bool { return open[i].StartedAt.Before(open[j].StartedAt) })
	for i := range open {
		if i == len(open)-1 {
			cur := open[i]
			l.Current = &cur
			break
		}
		s := open[i]
		end := s.StartedAt
		if n := len(s.Interactions); n > 0 {
			end = s.Interactions[n-1].OccurredAt
		}
		s.EndedAt = &end
		s.CloseReason = model.CloseRecovered
		s.CloseNote = "closed while migrating a legacy ledger with several open sessions"
		l.Sessions = append(l.Sessions, s)
	}
	l.SortSessions()

	patterns, err := decodeLegacyPatterns(doc.Patterns)
	if err != nil {
		return nil, err
	}
	l.Patterns = patterns
	l.Normalize()
	return l, nil
}

func (ls legacySession) convert() model.Session {
	s := model.Session{
		ID:             ls.ID,
		Class:          model.ParseClass(firstNonEmpty(ls.SessionClass, ls.Type)),
		RetrievalRatio: ls.RetrievalRatio,
		TotalCost:      ls.TotalCost,
		CloseReason:    model.CloseReason(ls.CloseReason),
		CloseNote:      ls.CloseNote,
		Interactions:   []model.Interaction{},
	}

	if t, ok := parseLegacyTime(firstRaw(ls.StartedAt, ls.StartTime)); ok {
		s.StartedAt = t
	} else if ms := ls.ID.Millis(); ms > 0 {
		s.StartedAt = time.UnixMilli(ms).UTC()
	}
	if t, ok := parseLegacyTime(firstRaw(ls.EndedAt, ls.EndTime)); ok {
		s.EndedAt = &t
		if s.CloseReason == "" {
			s.CloseReason = model.CloseManual
		}
	}
	if s.ID == "" {
		s.ID = model.SessionID(strconv.FormatInt(s.StartedAt.UnixMilli(), 10))
	}

	for _, li := range ls.Interactions {
		in := model.Interaction{
			Prompt:         firstNonEmpty(li.Prompt, li.UserPrompt),
			InputTokens:    nonNegative(li.InputTokens + li.UserTokens),
			ContextTokens:  nonNegative(li.ContextTokens),
			ResponseTokens: nonNegative(li.ResponseTokens),
			ThinkingTokens: nonNegative(li.ThinkingTokens),
			ToolTokens:     nonNegative(li.ToolTokens),
			WasRetrieval:   li.WasRetrieval,
			PatternsUsed:   li.PatternsUsed,
			Cost:           li.Cost,
		}
		if t, ok := parseLegacyTime(firstRaw(li.OccurredAt, li.Timestamp)); ok {
			in.OccurredAt = t
		}
		s.Interactions = append(s.Interactions, in)
	}

	s.PatternsUsed = ls.PatternsUsed
	if len(s.PatternsUsed) == 0 {
		s.PatternsUsed = ls.Patterns
	}
	if s.PatternsUsed == nil {
		s.PatternsUsed = []string{}
	}

	totals := ls.TokenTotals
	if totals == nil {
		totals = ls.TokenBreakdown
	}
	if totals != nil {
		s.TokenTotals = model.TokenTotals{
			Input:    nonNegative(totals.Input),
			Output:   nonNegative(totals.Output),
			Thinking: nonNegative(totals.Thinking),
			Tool:     nonNegative(totals.Tools + totals.Tool),
		}
	}

	if len(s.Interactions) > 0 {
		var sum model.TokenTotals
		var cost float64
		for _, in := range s.Interactions {
			sum = sum.Add(in.Tokens())
			cost += in.Cost
		}
		if totals == nil || sum == s.TokenTotals {
			s.TokenTotals = sum
			s.TotalCost = cost
			return s
		}
	}

	// Checkpoint-fed sessions only carried totals. Keep them as a baseline
	// so later recomputation does not zero them out.
	if s.TokenTotals.Total() > 0 {
		s.Checkpoint = &model.Checkpoint{
			SourceID:   "legacy-import",
			CapturedAt: s.StartedAt,
			Input:      s.TokenTotals.Input,
			Output:     s.TokenTotals.Output,
			Thinking:   s.TokenTotals.Thinking,
			Tool:       s.TokenTotals.Tool,
			Delta:      s.TokenTotals.Input + s.TokenTotals.Output,
			Covered:    len(s.Interactions),
			Cost:       s.TotalCost,
		}
	}
	return s
}

// decodeLegacyPatterns accepts every registry shape older trackers wrote:
// Map entry arrays ([[name, {uses}]]), record arrays ([{name, uses}]),
// and objects keyed by name holding either a count or a record.
func decodeLegacyPatterns(raw json.RawMessage) (map[string]*model.PatternUsage, error) {
	out := map[string]*model.PatternUsage{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	add := func(name string, uses int) {
		name = strings.TrimSpace(name)
		if name == "" || uses < 0 {
			return
		}
		if p, ok := out[name]; ok {
			p.Uses += uses
			return
		}
		out[name] = &model.PatternUsage{Name: name, Uses: uses}
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("parsing legacy patterns: %w", err)
		}
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 {
				continue
			}
			if item[0] == '[' {
				var entry []json.RawMessage
				if err := json.Unmarshal(item, &entry); err != nil || len(entry) < 2 {
					continue
				}
				var name string
				if err := json.Unmarshal(entry[0], &name); err != nil {
					continue
				}
				add(name, usesOf(entry[1]))
				continue
			}
			var rec struct {
				Name string `json:"name"`
				Uses int    `json:"uses"`
			}
			if err := json.Unmarshal(item, &rec); err == nil {
				add(rec.Name, rec.Uses)
			}
		}
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parsing legacy patterns: %w", err)
		}
		for name, v := range m {
			add(name, usesOf(v))
		}
	default:
		return nil, fmt.Errorf("parsing legacy patterns: unexpected %q", raw[:1])
	}
	return out, nil
}

// usesOf reads a use count from either a bare number or a {uses} record.
func usesOf(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var rec struct {
		Uses int `json:"uses"`
	}
	if err := json.Unmarshal(raw, &rec); err == nil {
		return rec.Uses
	}
	return 0
}

// parseLegacyTime reads epoch milliseconds or an ISO-8601 string.
func parseLegacyTime(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		if ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Time{}, false
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		v = bytes.TrimSpace(v)
		if len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			return v
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
