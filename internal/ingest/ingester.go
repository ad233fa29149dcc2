package ingest

import (
	"time"

	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/tracker"
)

// DefaultInputShare is the fraction of a checkpoint delta billed as input.
const DefaultInputShare = 0.6

// Options configures an Ingester.
type Options struct {
	InputShare      float64
	ExtractPatterns bool
	Dedup           Deduper
	Now             func() time.Time
}

// Result summarizes one ingested checkpoint.
type Result struct {
	SessionID      model.SessionID `json:"sessionId"`
	SourceID       string          `json:"sourceId,omitempty"`
	Markers        int             `json:"markers"`
	Delta          int64           `json:"delta"`
	Input          int64           `json:"input"`
	Output         int64           `json:"output"`
	Cost           float64         `json:"cost"`
	SessionCost    float64         `json:"sessionCost"`
	CreatedSession bool            `json:"createdSession"`
	Patterns       []string        `json:"patterns,omitempty"`
}

// Ingester turns checkpoint text into a session baseline. Like the
// tracker, it relies on the caller to serialize access.
type Ingester struct {
	share   float64
	extract bool
	dedup   Deduper
	now     func() time.Time
}

// New returns an ingester. A nil Dedup gets a one-day in-memory window.
func New(opts Options) *Ingester {
	share := opts.InputShare
	if share <= 0 || share > 1 {
		share = DefaultInputShare
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	dedup := opts.Dedup
	if dedup == nil {
		dedup = NewWindow(24*time.Hour, 4096)
	}
	return &Ingester{share: share, extract: opts.ExtractPatterns, dedup: dedup, now: now}
}

// Ingest folds text into the ledger behind tr. It returns false, changing
// nothing, when the text has no usage marker or this exact source and
// content was already processed.
//
// The target is the session encoded in sourceID if it exists, else the
// open session, else a new session of defaultClass. The checkpoint
// replaces that session's input/output baseline rather than adding to it.
func (g *Ingester) Ingest(tr *tracker.Tracker, text, sourceID string, defaultClass model.SessionClass) (*Result, bool) {
	now := g.now()
	key := Key(sourceID, text)
	if g.dedup.Seen(key, now) {
		return nil, false
	}

	markers := ParseMarkers(text)
	if len(markers) == 0 {
		return nil, false
	}
	delta := Delta(markers)
	input, output := Split(delta, g.share)

	ledger := tr.Ledger()
	encoded := SessionIDFromSource(sourceID)
	s := ledger.Find(encoded)
	created := false
	if s == nil {
		s = ledger.Current
	}
	if s == nil {
		s, _ = tr.StartWithID(defaultClass, encoded)
		created = true
	}

	rates := tr.Rates()
	s.Checkpoint = &model.Checkpoint{
		SourceID:   sourceID,
		CapturedAt: now,
		Markers:    len(markers),
		Delta:      delta,
		Input:      input,
		Output:     output,
		Covered:    len(s.Interactions),
		Cost:       rates.Cost(input, 0, output, 0, 0),
	}
	tr.Recompute(s)

	res := &Result{
		SessionID:      s.ID,
		SourceID:       sourceID,
		Markers:        len(markers),
		Delta:          delta,
		Input:          input,
		Output:         output,
		Cost:           s.Checkpoint.Cost,
		SessionCost:    s.TotalCost,
		CreatedSession: created,
	}
	if g.extract {
		res.Patterns = ExtractPatterns(text)
		tr.CountPatterns(res.Patterns)
	}

	g.dedup.Mark(key, now)
	return res, true
}

// Seed marks key as processed without ingesting anything.
func (g *Ingester) Seed(key string, now time.Time) {
	g.dedup.Mark(key, now)
}
