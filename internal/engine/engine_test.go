package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/recovery"
	"github.com/theirongolddev/costledger/internal/store"
	"github.com/theirongolddev/costledger/internal/tracker"
)

const checkpointText = `
Token usage: 10000/200000; 190000 remaining
Token usage: 20000/200000; 180000 remaining
`

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func newEngine(t *testing.T, dir string, c *clock) *Engine {
	t.Helper()
	e := New(Options{
		DataDir:       dir,
		Rates:         config.DefaultRates,
		PatternCredit: 0.015,
		InputShare:    0.6,
		DedupWindow:   24 * time.Hour,
		Now:           c.Now,
	})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func tokens(n int64) *int64 { return &n }

func nearly(t *testing.T, want, got float64) {
	t.Helper()
	require.True(t, math.Abs(want-got) < 1e-9, "want %v, got %v", want, got)
}

func TestEngine_StartLogEndPersists(t *testing.T) {
	dir := t.TempDir()
	c := newClock()
	e := newEngine(t, dir, c)

	s := e.StartSession(model.ClassRetrieval)
	require.Equal(t, model.ClassRetrieval, s.Class)
	require.FileExists(t, filepath.Join(dir, store.MarkerFile))

	c.Advance(time.Minute)
	rec := e.LogInteraction(tracker.InteractionInput{
		Prompt:         "find the retry helper",
		InputTokens:    tokens(1000),
		ResponseTokens: 2000,
		WasRetrieval:   true,
		PatternsUsed:   []string{"retry-loop"},
	})
	nearly(t, 1000*3.0/1e6+2000*15.0/1e6, rec.Cost)

	st := e.Status()
	require.True(t, st.IsTracking)
	require.Equal(t, 1, st.Current.Interactions)
	nearly(t, rec.Cost, st.TotalCostAllTime)

	closed := e.EndSession()
	require.NotNil(t, closed)
	require.Equal(t, model.CloseManual, closed.CloseReason)
	require.InDelta(t, 100.0, closed.RetrievalRatio, 1e-9)
	require.NoFileExists(t, filepath.Join(dir, store.MarkerFile))
	require.Nil(t, e.EndSession(), "ending twice is a no-op")
	require.NoError(t, e.Close())

	again := newEngine(t, dir, c)
	require.Equal(t, recovery.ActionNone, again.Open().Action)
	sessions := again.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, s.ID, sessions[0].ID)
	nearly(t, rec.Cost, sessions[0].TotalCost)
	require.Equal(t, 1, again.Snapshot().Patterns["retry-loop"].Uses)
}

func TestEngine_StartClosesPreviousSession(t *testing.T) {
	c := newClock()
	e := newEngine(t, t.TempDir(), c)

	first := e.StartSession(model.ClassBaseline)
	c.Advance(time.Second)
	second := e.StartSession(model.ClassRetrieval)
	require.NotEqual(t, first.ID, second.ID)

	sessions := e.Sessions()
	require.Len(t, sessions, 2)
	require.Equal(t, first.ID, sessions[0].ID)
	require.False(t, sessions[0].IsOpen())
	require.True(t, sessions[1].IsOpen())
}

func TestEngine_LogWithoutSessionStartsMixed(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir, newClock())

	e.LogInteraction(tracker.InteractionInput{Prompt: "hello there"})
	st := e.Status()
	require.True(t, st.IsTracking)
	require.Equal(t, model.ClassMixed, st.Current.Class)
	require.FileExists(t, filepath.Join(dir, store.MarkerFile))
}

func TestEngine_IngestDoesNotDoubleCount(t *testing.T) {
	c := newClock()
	e := newEngine(t, t.TempDir(), c)
	e.StartSession(model.ClassRetrieval)

	res, ok := e.Ingest(checkpointText, "/tmp/cp/a.txt", model.ClassMixed)
	require.True(t, ok)
	require.Equal(t, int64(10000), res.Delta)
	require.Equal(t, int64(6000), res.Input)
	require.Equal(t, int64(4000), res.Output)

	_, ok = e.Ingest(checkpointText, "/tmp/cp/a.txt", model.ClassMixed)
	require.False(t, ok, "identical source and content is deduplicated")

	// A newer capture of the same conversation replaces the baseline.
	_, ok = e.Ingest(checkpointText+"Token usage: 30000/200000; 170000 remaining\n", "/tmp/cp/a.txt", model.ClassMixed)
	require.True(t, ok)

	cur := e.Status().Current
	require.Equal(t, int64(12000), cur.Tokens.Input)
	require.Equal(t, int64(8000), cur.Tokens.Output)
	nearly(t, 12000*3.0/1e6+8000*15.0/1e6, cur.TotalCost)
}

func TestEngine_IngestWithoutMarkerChangesNothing(t *testing.T) {
	e := newEngine(t, t.TempDir(), newClock())
	events, cancel := e.Subscribe(4)
	defer cancel()

	_, ok := e.Ingest("plain clipboard text", "", model.ClassMixed)
	require.False(t, ok)
	require.False(t, e.Status().IsTracking)
	require.Len(t, events, 0)
}

func TestEngine_IngestCreatesSessionFromSourceID(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir, newClock())

	res, ok := e.Ingest(checkpointText, "/tmp/checkpoint-1700000000000.txt", model.ClassBaseline)
	require.True(t, ok)
	require.True(t, res.CreatedSession)
	require.Equal(t, model.SessionID("1700000000000"), res.SessionID)

	st := e.Status()
	require.Equal(t, model.ClassBaseline, st.Current.Class)
	require.FileExists(t, filepath.Join(dir, store.MarkerFile))
}

func TestEngine_MarkProcessedSkipsLaterIngest(t *testing.T) {
	e := newEngine(t, t.TempDir(), newClock())
	e.MarkProcessed(checkpointText, "/tmp/old.txt")

	_, ok := e.Ingest(checkpointText, "/tmp/old.txt", model.ClassMixed)
	require.False(t, ok)
	_, ok = e.Ingest(checkpointText, "/tmp/new.txt", model.ClassMixed)
	require.True(t, ok)
}

func TestEngine_PersistentDedupSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	c := newClock()
	opts := Options{DataDir: dir, DedupWindow: time.Hour, PersistentDedup: true, Now: c.Now}

	e := New(opts)
	_, ok := e.Ingest(checkpointText, "/tmp/a.txt", model.ClassMixed)
	require.True(t, ok)
	recent, err := e.RecentIngests(5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, int64(10000), recent[0].Delta)
	require.NoError(t, e.Close())

	again := New(opts)
	defer func() { _ = again.Close() }()
	_, ok = again.Ingest(checkpointText, "/tmp/a.txt", model.ClassMixed)
	require.False(t, ok)

	c.Advance(2 * time.Hour)
	_, ok = again.Ingest(checkpointText, "/tmp/a.txt", model.ClassMixed)
	require.True(t, ok, "keys expire after the window")
}

func TestEngine_RecoversAbandonedSession(t *testing.T) {
	dir := t.TempDir()
	c := newClock()

	first := newEngine(t, dir, c)
	s := first.StartSession(model.ClassRetrieval)
	// Simulate a crash: no EndSession, the marker stays behind.
	require.NoError(t, first.Save())

	c.Advance(3 * time.Hour)
	second := newEngine(t, dir, c)
	var got []Event
	unsub := second.OnLedgerChanged(func(ev Event) { got = append(got, ev) })
	defer unsub()

	rep := second.Open()
	require.Equal(t, recovery.ActionClosed, rep.Action)
	require.Equal(t, s.ID, rep.SessionID)
	require.Len(t, got, 1)
	require.Equal(t, EventSessionRecovered, got[0].Type)

	require.False(t, second.Status().IsTracking)
	sessions := second.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, model.CloseRecovered, sessions[0].CloseReason)
	require.NotEmpty(t, sessions[0].CloseNote)
	require.NoFileExists(t, filepath.Join(dir, store.MarkerFile))

	require.Equal(t, rep, second.Open(), "recovery runs once")
}

func TestEngine_RecentMarkerLeavesSessionOpen(t *testing.T) {
	dir := t.TempDir()
	c := newClock()

	first := newEngine(t, dir, c)
	s := first.StartSession(model.ClassBaseline)
	require.NoError(t, first.Save())

	c.Advance(10 * time.Minute)
	second := newEngine(t, dir, c)
	require.Equal(t, recovery.ActionLeftOpen, second.Open().Action)
	st := second.Status()
	require.True(t, st.IsTracking)
	require.Equal(t, s.ID, st.Current.ID)
}

func TestEngine_CleanExitKeepsSessionOpenAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	c := newClock()

	first := newEngine(t, dir, c)
	first.Open()
	s := first.StartSession(model.ClassRetrieval)
	first.LogInteraction(tracker.InteractionInput{InputTokens: tokens(500)})
	require.NoError(t, first.Close())

	mk, err := store.NewMarkerStore(dir).Read()
	require.NoError(t, err)
	require.True(t, mk.Released())

	c.Advance(2 * time.Hour)
	second := newEngine(t, dir, c)
	require.Equal(t, recovery.ActionResumed, second.Open().Action)
	st := second.Status()
	require.True(t, st.IsTracking)
	require.Equal(t, s.ID, st.Current.ID)
	require.Equal(t, 1, st.Current.Interactions)

	// The live process holds the marker again, so dying now is detected.
	mk, err = store.NewMarkerStore(dir).Read()
	require.NoError(t, err)
	require.False(t, mk.Released())

	c.Advance(2 * time.Hour)
	third := newEngine(t, dir, c)
	require.Equal(t, recovery.ActionClosed, third.Open().Action)
	require.Equal(t, model.CloseRecovered, third.Sessions()[0].CloseReason)
}

func TestEngine_CorruptMarkerIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.MarkerFile), []byte("{not json"), 0o600))

	e := newEngine(t, dir, newClock())
	require.Equal(t, recovery.ActionNone, e.Open().Action)
	require.NoFileExists(t, filepath.Join(dir, store.MarkerFile))
}

func TestEngine_SubscribeReceivesOrderedEvents(t *testing.T) {
	e := newEngine(t, t.TempDir(), newClock())
	events, cancel := e.Subscribe(8)

	e.StartSession(model.ClassRetrieval)
	e.LogInteraction(tracker.InteractionInput{Prompt: "q", WasRetrieval: true})
	e.EndSession()

	var types []EventType
	var seqs []int64
	for i := 0; i < 3; i++ {
		ev := <-events
		types = append(types, ev.Type)
		seqs = append(seqs, ev.Seq)
	}
	require.Equal(t, []EventType{EventSessionStarted, EventInteractionLogged, EventSessionEnded}, types)
	require.Equal(t, []int64{1, 2, 3}, seqs)

	cancel()
	_, open := <-events
	require.False(t, open)
}

func TestEngine_CallbackMayReadEngine(t *testing.T) {
	e := newEngine(t, t.TempDir(), newClock())
	var seen model.Status
	e.OnLedgerChanged(func(Event) { seen = e.Status() })

	e.StartSession(model.ClassMixed)
	require.True(t, seen.IsTracking)
}

func TestEngine_ConcurrentLogging(t *testing.T) {
	e := newEngine(t, t.TempDir(), newClock())
	e.StartSession(model.ClassMixed)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				e.LogInteraction(tracker.InteractionInput{InputTokens: tokens(100)})
			}
		}()
	}
	wg.Wait()

	cur := e.Status().Current
	require.Equal(t, 80, cur.Interactions)
	require.Equal(t, int64(8000), cur.Tokens.Input)
}

func TestEngine_Export(t *testing.T) {
	dir := t.TempDir()
	c := newClock()
	e := newEngine(t, dir, c)
	e.StartSession(model.ClassRetrieval)
	e.LogInteraction(tracker.InteractionInput{InputTokens: tokens(500), PatternsUsed: []string{"p"}})
	e.EndSession()

	out := filepath.Join(dir, "exports")
	path, err := e.Export(out)
	require.NoError(t, err)
	require.Equal(t, "costledger-export-20260504T100000Z.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Export
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NotEmpty(t, doc.ExportID)
	require.Len(t, doc.Ledger.Sessions, 1)
	require.Nil(t, doc.Analysis, "no baseline sessions yet")
	require.Len(t, doc.PatternROI, 1)
	nearly(t, 0.015, doc.PatternROI[0].TotalSavings)
	require.Equal(t, 1, doc.Status.TotalSessions)
}

func TestEngine_LogsSentinelErrors(t *testing.T) {
	var buf bytes.Buffer
	e := New(Options{
		DataDir: t.TempDir(),
		Now:     newClock().Now,
		Logger:  slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	t.Cleanup(func() { _ = e.Close() })

	require.Nil(t, e.EndSession())
	require.Contains(t, buf.String(), model.ErrNoOpenSession.Error())

	rec := e.LogInteraction(tracker.InteractionInput{InputTokens: tokens(-10), ResponseTokens: 4})
	require.Zero(t, rec.InputTokens)
	require.Contains(t, buf.String(), model.ErrInvalidInteraction.Error())
}

func TestEngine_SaveFailureKeepsMemoryState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// The data dir is a regular file, so every save fails.
	e := newEngine(t, blocker, newClock())
	e.StartSession(model.ClassMixed)
	e.LogInteraction(tracker.InteractionInput{InputTokens: tokens(10)})

	require.ErrorIs(t, e.Save(), model.ErrStorageUnavailable)
	require.Equal(t, 1, e.Status().Current.Interactions)
}

func TestEngine_RunAutosaveRewritesLedger(t *testing.T) {
	e := newEngine(t, t.TempDir(), newClock())
	e.Open()
	e.StartSession(model.ClassBaseline)
	require.FileExists(t, e.LedgerPath())
	require.NoError(t, os.Remove(e.LedgerPath()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunAutosave(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(e.LedgerPath())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
