// Package tracker owns the session lifecycle and per-interaction cost
// accounting over a ledger.
package tracker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/model"
)

// DefaultPatternCredit is the fixed savings credited per pattern use.
const DefaultPatternCredit = 0.015

// InteractionInput is what a caller reports for one exchange. Negative
// counts are treated as zero. A nil InputTokens means "estimate from the
// prompt".
type InteractionInput struct {
	Prompt         string
	InputTokens    *int64
	ContextTokens  int64
	ResponseTokens int64
	ThinkingTokens int64
	ToolTokens     int64
	WasRetrieval   bool
	PatternsUsed   []string
}

// Validate reports the negative counts Log would clamp to zero. The error
// wraps model.ErrInvalidInteraction; Log itself never fails.
func (in InteractionInput) Validate() error {
	var bad []string
	check := func(name string, n int64) {
		if n < 0 {
			bad = append(bad, fmt.Sprintf("%s=%d", name, n))
		}
	}
	if in.InputTokens != nil {
		check("input", *in.InputTokens)
	}
	check("context", in.ContextTokens)
	check("response", in.ResponseTokens)
	check("thinking", in.ThinkingTokens)
	check("tool", in.ToolTokens)
	if len(bad) == 0 {
		return nil
	}
	return fmt.Errorf("%w: negative token counts %s", model.ErrInvalidInteraction, strings.Join(bad, ", "))
}

// Tracker mutates a ledger. It is not safe for concurrent use; the engine
// serializes access.
type Tracker struct {
	ledger *model.Ledger
	rates  config.Rates
	credit float64
	now    func() time.Time
}

// New returns a tracker over ledger.
func New(ledger *model.Ledger, rates config.Rates, credit float64, now func() time.Time) *Tracker {
	if credit <= 0 {
		credit = DefaultPatternCredit
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{ledger: ledger, rates: rates, credit: credit, now: now}
}

// Ledger returns the ledger being tracked.
func (t *Tracker) Ledger() *model.Ledger {
	return t.ledger
}

// Rates returns the cost model in use.
func (t *Tracker) Rates() config.Rates {
	return t.rates
}

// Credit returns the per-use pattern credit.
func (t *Tracker) Credit() float64 {
	return t.credit
}

// Current returns the open session, or nil.
func (t *Tracker) Current() *model.Session {
	return t.ledger.Current
}

// Start opens a new session of the given class. An already open session is
// closed first with CloseManual and returned as closed.
func (t *Tracker) Start(class model.SessionClass) (started, closed *model.Session) {
	if t.ledger.Current != nil {
		closed = t.End(model.CloseManual, "")
	}
	started = t.open(class, "")
	return started, closed
}

// StartWithID opens a session reusing a known id, such as one encoded in a
// checkpoint file name. The id must not already exist in the ledger.
func (t *Tracker) StartWithID(class model.SessionClass, id model.SessionID) (started, closed *model.Session) {
	if t.ledger.Current != nil {
		closed = t.End(model.CloseManual, "")
	}
	started = t.open(class, id)
	return started, closed
}

func (t *Tracker) open(class model.SessionClass, id model.SessionID) *model.Session {
	now := t.now()
	if id == "" || t.ledger.Find(id) != nil {
		id = t.nextID(now)
	}
	s := &model.Session{
		ID:           id,
		Class:        model.ParseClass(string(class)),
		StartedAt:    now,
		Interactions: []model.Interaction{},
		PatternsUsed: []string{},
	}
	t.ledger.Current = s
	return s
}

// nextID derives an id from the clock, bumped past the newest existing id
// so ids stay unique and increasing.
func (t *Tracker) nextID(now time.Time) model.SessionID {
	ms := now.UnixMilli()
	if latest := t.ledger.LatestID(); ms <= latest {
		ms = latest + 1
	}
	return model.SessionID(strconv.FormatInt(ms, 10))
}

// Log appends an interaction to the open session, opening a mixed session
// if none is open. The second return value is that implicitly opened
// session, if any.
func (t *Tracker) Log(in InteractionInput) (model.Interaction, *model.Session) {
	var implicit *model.Session
	if t.ledger.Current == nil {
		implicit = t.open(model.ClassMixed, "")
	}
	s := t.ledger.Current

	input := t.rates.EstimateTokens(in.Prompt)
	if in.InputTokens != nil {
		input = clamp(*in.InputTokens)
	}

	rec := model.Interaction{
		OccurredAt:     t.now(),
		Prompt:         in.Prompt,
		InputTokens:    input,
		ContextTokens:  clamp(in.ContextTokens),
		ResponseTokens: clamp(in.ResponseTokens),
		ThinkingTokens: clamp(in.ThinkingTokens),
		ToolTokens:     clamp(in.ToolTokens),
		WasRetrieval:   in.WasRetrieval,
		PatternsUsed:   append([]string(nil), in.PatternsUsed...),
	}
	rec.Cost = t.rates.Cost(rec.InputTokens, rec.ContextTokens, rec.ResponseTokens, rec.ThinkingTokens, rec.ToolTokens)

	s.Interactions = append(s.Interactions, rec)
	s.PatternsUsed = append(s.PatternsUsed, rec.PatternsUsed...)
	t.CountPatterns(rec.PatternsUsed)
	t.Recompute(s)

	return rec, implicit
}

// End closes the open session. It returns nil, and changes nothing, when no
// session is open. The note is kept only for recovered closes.
func (t *Tracker) End(reason model.CloseReason, note string) *model.Session {
	s := t.ledger.Current
	if s == nil {
		return nil
	}
	if reason == "" {
		reason = model.CloseManual
	}

	now := t.now()
	if now.Before(s.StartedAt) {
		now = s.StartedAt
	}
	s.EndedAt = &now
	s.CloseReason = reason
	if reason == model.CloseRecovered {
		s.CloseNote = note
	}
	t.Recompute(s)

	t.ledger.Sessions = append(t.ledger.Sessions, *s)
	t.ledger.Current = nil
	return &t.ledger.Sessions[len(t.ledger.Sessions)-1]
}

// CountPatterns bumps the ledger-wide counter of every referenced pattern
// and refreshes its derived savings.
func (t *Tracker) CountPatterns(names []string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		p, ok := t.ledger.Patterns[name]
		if !ok {
			p = &model.PatternUsage{Name: name}
			t.ledger.Patterns[name] = p
		}
		p.Uses++
		p.TotalSavings = float64(p.Uses) * t.credit
	}
}

// Recompute derives totals, cost, and retrieval ratio from the session's
// interactions and checkpoint baseline.
func (t *Tracker) Recompute(s *model.Session) {
	var totals model.TokenTotals
	var cost float64

	cp := s.Checkpoint
	if cp == nil {
		for _, in := range s.Interactions {
			totals = totals.Add(in.Tokens())
			cost += in.Cost
		}
	} else {
		covered := cp.Covered
		if covered > len(s.Interactions) {
			covered = len(s.Interactions)
		}
		totals = model.TokenTotals{
			Input:    cp.Input,
			Output:   cp.Output,
			Thinking: cp.Thinking,
			Tool:     cp.Tool,
		}
		for i, in := range s.Interactions {
			tok := in.Tokens()
			// Input and output of covered interactions are already inside
			// the checkpoint baseline.
			if i >= covered {
				totals.Input += tok.Input
				totals.Output += tok.Output
			}
			totals.Thinking += tok.Thinking
			totals.Tool += tok.Tool
		}
		cost = t.rates.Cost(totals.Input, 0, totals.Output, totals.Thinking, totals.Tool)
	}

	s.TokenTotals = totals
	s.TotalCost = cost
	s.RetrievalRatio = RetrievalRatio(s)
}

// RetrievalRatio returns 100 × retrievals / interactions, or 0 with no
// interactions.
func RetrievalRatio(s *model.Session) float64 {
	if len(s.Interactions) == 0 {
		return 0
	}
	return 100 * float64(s.RetrievalCount()) / float64(len(s.Interactions))
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
