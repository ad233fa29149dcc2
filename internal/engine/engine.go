// Package engine is the usage accounting engine: one explicitly constructed
// instance owning the ledger, serializing every mutation and save, and
// notifying observers after each change.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/ingest"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"
	"github.com/theirongolddev/costledger/internal/recovery"
	"github.com/theirongolddev/costledger/internal/store"
	"github.com/theirongolddev/costledger/internal/tracker"
)

// Options configures an Engine.
type Options struct {
	DataDir           string
	Rates             config.Rates
	PatternCredit     float64
	InputShare        float64
	ExtractPatterns   bool
	RecoveryThreshold time.Duration
	DedupWindow       time.Duration
	DedupMaxEntries   int
	PersistentDedup   bool
	Now               func() time.Time
	Logger            *slog.Logger
}

// OptionsFromConfig maps the config file onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		DataDir:           config.DataDir(cfg),
		Rates:             config.RatesFrom(cfg.Pricing),
		PatternCredit:     cfg.Tracking.PatternCredit,
		InputShare:        cfg.Ingest.InputShare,
		ExtractPatterns:   cfg.Ingest.ExtractPatterns,
		RecoveryThreshold: cfg.RecoveryThreshold(),
		DedupWindow:       cfg.DedupWindow(),
		DedupMaxEntries:   cfg.Ingest.DedupMaxEntries,
		PersistentDedup:   cfg.Ingest.PersistentDedup,
	}
}

// Engine serializes all ledger access behind one mutex. Saves happen while
// the mutex is held, so explicit and periodic saves never interleave.
// Observers are notified after the mutex is released.
type Engine struct {
	opts    Options
	log     *slog.Logger
	now     func() time.Time
	ledgers *store.LedgerStore
	markers *store.MarkerStore

	mu       sync.Mutex
	opened   bool
	closed   bool
	ledger   *model.Ledger
	tracker  *tracker.Tracker
	ingester *ingest.Ingester
	journal  *store.Journal
	report   recovery.Report

	subMu      sync.Mutex
	subsClosed bool
	seq        int64
	nextSub    int
	callbacks  map[int]func(Event)
	subs       map[int]chan Event
}

// New constructs an engine. Nothing is read from disk until Open or the
// first operation.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rates == (config.Rates{}) {
		opts.Rates = config.DefaultRates
	}
	if opts.RecoveryThreshold <= 0 {
		opts.RecoveryThreshold = recovery.DefaultThreshold
	}
	return &Engine{
		opts:      opts,
		log:       opts.Logger,
		now:       opts.Now,
		ledgers:   store.NewLedgerStore(opts.DataDir, opts.Logger),
		markers:   store.NewMarkerStore(opts.DataDir),
		callbacks: make(map[int]func(Event)),
		subs:      make(map[int]chan Event),
	}
}

// Open loads the ledger and runs recovery once. Calling it again returns
// the first recovery report.
func (e *Engine) Open() recovery.Report {
	e.mu.Lock()
	evs := e.openLocked()
	rep := e.report
	e.mu.Unlock()

	e.publish(evs...)
	return rep
}

func (e *Engine) openLocked() []Event {
	if e.opened {
		return nil
	}
	e.opened = true

	e.ledger = e.ledgers.Load()
	e.tracker = tracker.New(e.ledger, e.opts.Rates, e.opts.PatternCredit, e.now)
	e.ingester = ingest.New(ingest.Options{
		InputShare:      e.opts.InputShare,
		ExtractPatterns: e.opts.ExtractPatterns,
		Dedup:           e.openDedup(),
		Now:             e.now,
	})

	marker, err := e.markers.Read()
	if err != nil {
		e.log.Warn("active-session marker unreadable, discarding", "path", e.markers.Path(), "err", err)
		e.removeMarker()
	}

	e.report = recovery.Recover(e.tracker, marker, e.now(), e.opts.RecoveryThreshold)
	if e.report.RemoveMarker() {
		e.removeMarker()
	}
	// Reclaim a released marker so a crash of this process is detectable.
	if cur := e.ledger.Current; cur != nil && (marker == nil || marker.ID != cur.ID || marker.Released()) {
		e.writeMarker(cur)
	}
	if !e.report.Changed() {
		return nil
	}

	e.persistLocked()
	e.log.Info("recovered abandoned session",
		"session", e.report.SessionID, "action", e.report.Action, "elapsed", e.report.Elapsed.Truncate(time.Second))
	rep := e.report
	return []Event{{
		Type:      EventSessionRecovered,
		At:        e.now(),
		SessionID: rep.SessionID,
		Message:   fmt.Sprintf("session %s auto-closed after improper shutdown", rep.SessionID),
		Recovery:  &rep,
	}}
}

func (e *Engine) openDedup() ingest.Deduper {
	window := ingest.NewWindow(e.opts.DedupWindow, e.opts.DedupMaxEntries)
	if !e.opts.PersistentDedup || e.opts.DataDir == "" {
		return window
	}
	j, err := store.OpenJournal(filepath.Join(e.opts.DataDir, store.JournalFile),
		e.opts.DedupWindow, e.opts.DedupMaxEntries, e.log)
	if err != nil {
		e.log.Warn("ingest journal unavailable, deduplicating in memory", "err", err)
		return window
	}
	e.journal = j
	return j
}

// Recovery returns the report from the startup recovery pass.
func (e *Engine) Recovery() recovery.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return e.report
}

// StartSession opens a new session, closing any open one first.
func (e *Engine) StartSession(class model.SessionClass) model.Session {
	e.mu.Lock()
	evs := e.openLocked()
	now := e.now()

	started, closed := e.tracker.Start(class)
	if closed != nil {
		evs = append(evs, e.endedLocked(closed, now))
	}
	e.writeMarker(started)
	e.persistLocked()
	e.log.Info("session started", "session", started.ID, "class", started.Class)
	evs = append(evs, sessionEvent(EventSessionStarted, now, started,
		fmt.Sprintf("started %s session %s", started.Class.Short(), started.ID)))
	out := *started
	e.mu.Unlock()

	e.publish(evs...)
	return out
}

// LogInteraction appends an interaction to the open session, starting a
// mixed session when none is open, and returns it with its computed cost.
func (e *Engine) LogInteraction(in tracker.InteractionInput) model.Interaction {
	e.mu.Lock()
	evs := e.openLocked()
	now := e.now()

	if err := in.Validate(); err != nil {
		e.log.Warn("clamping interaction counts to zero", "err", err)
	}
	rec, implicit := e.tracker.Log(in)
	s := e.tracker.Current()
	if implicit != nil {
		e.writeMarker(implicit)
		e.log.Info("session started implicitly", "session", implicit.ID)
		evs = append(evs, sessionEvent(EventSessionStarted, now, implicit,
			fmt.Sprintf("started mixed session %s for an unattached interaction", implicit.ID)))
	}
	e.persistLocked()
	e.log.Debug("interaction logged", "session", s.ID, "cost", rec.Cost, "retrieval", rec.WasRetrieval)

	ev := sessionEvent(EventInteractionLogged, now, s, fmt.Sprintf("logged interaction $%.4f", rec.Cost))
	recCopy := rec
	ev.Interaction = &recCopy
	evs = append(evs, ev)
	e.mu.Unlock()

	e.publish(evs...)
	return rec
}

// EndSession closes the open session manually. It returns nil when nothing
// is open.
func (e *Engine) EndSession() *model.Session {
	e.mu.Lock()
	evs := e.openLocked()
	now := e.now()

	closed := e.tracker.End(model.CloseManual, "")
	if closed == nil {
		e.log.Debug("end ignored", "err", model.ErrNoOpenSession)
		e.mu.Unlock()
		e.publish(evs...)
		return nil
	}
	evs = append(evs, e.endedLocked(closed, now))
	e.persistLocked()
	out := *closed
	e.mu.Unlock()

	e.publish(evs...)
	return &out
}

func (e *Engine) endedLocked(closed *model.Session, now time.Time) Event {
	e.removeMarker()
	e.log.Info("session ended", "session", closed.ID, "cost", closed.TotalCost,
		"interactions", len(closed.Interactions))
	return sessionEvent(EventSessionEnded, now, closed,
		fmt.Sprintf("ended session %s at $%.4f", closed.ID, closed.TotalCost))
}

// Ingest folds a checkpoint blob into the ledger. It returns false when the
// blob has no usage marker or was already processed.
func (e *Engine) Ingest(text, sourceID string, defaultClass model.SessionClass) (*ingest.Result, bool) {
	e.mu.Lock()
	evs := e.openLocked()
	now := e.now()

	res, ok := e.ingester.Ingest(e.tracker, text, sourceID, defaultClass)
	if !ok {
		e.mu.Unlock()
		e.publish(evs...)
		return nil, false
	}

	s := e.ledger.Find(res.SessionID)
	if res.CreatedSession && s != nil && s.IsOpen() {
		e.writeMarker(s)
		evs = append(evs, sessionEvent(EventSessionStarted, now, s,
			fmt.Sprintf("started %s session %s from a checkpoint", s.Class.Short(), s.ID)))
	}
	e.persistLocked()
	e.recordIngest(res, now)
	e.log.Info("checkpoint ingested", "session", res.SessionID, "source", sourceID,
		"markers", res.Markers, "delta", res.Delta, "cost", res.Cost)

	ev := Event{
		Type:      EventCheckpointIngested,
		At:        now,
		SessionID: res.SessionID,
		Message:   fmt.Sprintf("checkpoint: %d tokens across %d markers", res.Delta, res.Markers),
	}
	if s != nil {
		sum := model.Summarize(s)
		ev.Session = &sum
	}
	resCopy := *res
	ev.Checkpoint = &resCopy
	evs = append(evs, ev)
	e.mu.Unlock()

	e.publish(evs...)
	return res, true
}

// MarkProcessed records a checkpoint as already seen without ingesting it.
// Used to skip files that predate a watcher.
func (e *Engine) MarkProcessed(text, sourceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()

	now := e.now()
	key := ingest.Key(sourceID, text)
	if e.journal != nil {
		e.journal.Mark(key, now)
		return
	}
	e.ingester.Seed(key, now)
}

func (e *Engine) recordIngest(res *ingest.Result, now time.Time) {
	if e.journal == nil {
		return
	}
	err := e.journal.Record(store.IngestRecord{
		ProcessedAt:    now,
		SourceID:       res.SourceID,
		SessionID:      string(res.SessionID),
		Markers:        res.Markers,
		Delta:          res.Delta,
		Input:          res.Input,
		Output:         res.Output,
		Cost:           res.Cost,
		CreatedSession: res.CreatedSession,
	})
	if err != nil {
		e.log.Warn("recording ingest failed", "err", err)
	}
}

// RecentIngests returns the newest journal entries. It is empty when the
// journal is disabled.
func (e *Engine) RecentIngests(limit int) ([]store.IngestRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.Recent(limit)
}

// Status is a cheap read-only projection of the ledger.
func (e *Engine) Status() model.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return pipeline.Status(e.ledger)
}

// Comparative compares retrieval-oriented and generation-baseline sessions.
func (e *Engine) Comparative() (model.Comparison, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return pipeline.Comparative(e.ledger.Sessions)
}

// PatternROI returns the top patterns by derived savings.
func (e *Engine) PatternROI() []model.PatternUsage {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return pipeline.PatternROI(e.ledger.Patterns, e.tracker.Credit(), pipeline.PatternROILimit)
}

// Sessions returns a copy of every session, closed first, then the open one.
func (e *Engine) Sessions() []model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return e.ledger.All()
}

// Snapshot returns a copy of the ledger safe to read without the lock.
func (e *Engine) Snapshot() *model.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() *model.Ledger {
	l := &model.Ledger{
		Version:  e.ledger.Version,
		Sessions: append([]model.Session(nil), e.ledger.Sessions...),
		Patterns: make(map[string]*model.PatternUsage, len(e.ledger.Patterns)),
	}
	if l.Sessions == nil {
		l.Sessions = []model.Session{}
	}
	if e.ledger.Current != nil {
		cur := *e.ledger.Current
		cur.Interactions = append([]model.Interaction(nil), cur.Interactions...)
		cur.PatternsUsed = append([]string(nil), cur.PatternsUsed...)
		l.Current = &cur
	}
	credit := e.tracker.Credit()
	for name, p := range e.ledger.Patterns {
		cp := *p
		cp.TotalSavings = float64(cp.Uses) * credit
		l.Patterns[name] = &cp
	}
	return l
}

// Rates returns the cost model in use.
func (e *Engine) Rates() config.Rates {
	return e.opts.Rates
}

// LedgerPath returns where the ledger document lives.
func (e *Engine) LedgerPath() string {
	return e.ledgers.Path()
}

// Save writes the current ledger. Failures are logged and returned.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openLocked()
	return e.persistLocked()
}

// RunAutosave saves on a fixed cadence until ctx is done, as a safety net
// for missed explicit saves.
func (e *Engine) RunAutosave(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = e.Save()
		}
	}
}

// Close saves a final time, releases the journal, and closes subscriber
// channels. An open session stays open and its marker is stamped as
// released, so the next start resumes it instead of recovering it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	var err error
	if e.opened {
		err = e.persistLocked()
		if err == nil && e.ledger.Current != nil {
			e.releaseMarker(e.ledger.Current)
		}
		if e.journal != nil {
			if cerr := e.journal.Close(); cerr != nil && err == nil {
				err = cerr
			}
			e.journal = nil
		}
	}
	e.mu.Unlock()

	e.subMu.Lock()
	e.subsClosed = true
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	for id := range e.callbacks {
		delete(e.callbacks, id)
	}
	e.subMu.Unlock()
	return err
}

func (e *Engine) persistLocked() error {
	if err := e.ledgers.Save(e.ledger); err != nil {
		e.log.Warn("saving ledger failed, keeping in-memory state", "path", e.ledgers.Path(), "err", err)
		return err
	}
	return nil
}

func (e *Engine) writeMarker(s *model.Session) {
	err := e.markers.Write(model.Marker{ID: s.ID, Class: s.Class, StartedAt: s.StartedAt})
	if err != nil {
		e.log.Warn("writing active-session marker failed", "err", err)
	}
}

// releaseMarker records a clean exit. It only follows a successful save,
// since a resumed session must find its interactions in the ledger.
func (e *Engine) releaseMarker(s *model.Session) {
	at := e.now()
	err := e.markers.Write(model.Marker{ID: s.ID, Class: s.Class, StartedAt: s.StartedAt, ReleasedAt: &at})
	if err != nil {
		e.log.Warn("releasing active-session marker failed", "err", err)
	}
}

func (e *Engine) removeMarker() {
	if err := e.markers.Remove(); err != nil {
		e.log.Warn("removing active-session marker failed", "err", err)
	}
}
