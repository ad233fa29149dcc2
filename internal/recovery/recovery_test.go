package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/tracker"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(l *model.Ledger) *tracker.Tracker {
	return tracker.New(l, config.DefaultRates, 0, func() time.Time { return now })
}

func TestRecover_NoMarkerIsNoop(t *testing.T) {
	tr := newTracker(model.NewLedger())
	rep := Recover(tr, nil, now, time.Hour)
	require.Equal(t, ActionNone, rep.Action)
	require.False(t, rep.Changed())
	require.False(t, rep.RemoveMarker())
}

func TestRecover_RecentMarkerLeavesSessionOpen(t *testing.T) {
	l := model.NewLedger()
	start := now.Add(-10 * time.Minute)
	l.Current = &model.Session{ID: "1", Class: model.ClassMixed, StartedAt: start}
	tr := newTracker(l)

	rep := Recover(tr, &model.Marker{ID: "1", StartedAt: start}, now, time.Hour)
	require.Equal(t, ActionLeftOpen, rep.Action)
	require.False(t, rep.Changed())
	require.NotNil(t, l.Current)
	require.Empty(t, l.Sessions)
}

func TestRecover_ReleasedMarkerResumesSession(t *testing.T) {
	l := model.NewLedger()
	start := now.Add(-3 * time.Hour)
	released := start.Add(time.Minute)
	l.Current = &model.Session{ID: "1", Class: model.ClassRetrieval, StartedAt: start}
	tr := newTracker(l)

	rep := Recover(tr, &model.Marker{ID: "1", StartedAt: start, ReleasedAt: &released}, now, time.Hour)
	require.Equal(t, ActionResumed, rep.Action)
	require.False(t, rep.Changed())
	require.False(t, rep.RemoveMarker())
	require.NotNil(t, l.Current)
	require.Empty(t, l.Sessions)
}

func TestRecover_ReleasedMarkerForClosedSessionIsStale(t *testing.T) {
	l := model.NewLedger()
	start := now.Add(-3 * time.Hour)
	end := start.Add(time.Hour)
	l.Sessions = []model.Session{{ID: "1", StartedAt: start, EndedAt: &end, CloseReason: model.CloseManual}}
	tr := newTracker(l)

	rep := Recover(tr, &model.Marker{ID: "1", StartedAt: start, ReleasedAt: &end}, now, time.Hour)
	require.Equal(t, ActionStale, rep.Action)
	require.True(t, rep.RemoveMarker())
	require.Equal(t, model.CloseManual, l.Sessions[0].CloseReason)
}

func TestRecover_ClosesAbandonedOpenSession(t *testing.T) {
	l := model.NewLedger()
	start := now.Add(-3 * time.Hour)
	l.Current = &model.Session{ID: "1", Class: model.ClassRetrieval, StartedAt: start}
	tr := newTracker(l)

	rep := Recover(tr, &model.Marker{ID: "1", Class: model.ClassRetrieval, StartedAt: start}, now, time.Hour)
	require.Equal(t, ActionClosed, rep.Action)
	require.True(t, rep.RemoveMarker())
	require.Nil(t, l.Current)
	require.Len(t, l.Sessions, 1)

	s := l.Sessions[0]
	require.Equal(t, model.CloseRecovered, s.CloseReason)
	require.NotEmpty(t, s.CloseNote)
	require.True(t, s.EndedAt.Equal(now))
}

func TestRecover_SynthesizesMissingSession(t *testing.T) {
	l := model.NewLedger()
	tr := newTracker(l)
	start := now.Add(-2 * time.Hour)

	rep := Recover(tr, &model.Marker{ID: "99", Class: model.ClassBaseline, StartedAt: start}, now, time.Hour)
	require.Equal(t, ActionSynthesized, rep.Action)
	require.Len(t, l.Sessions, 1)

	s := l.Sessions[0]
	require.Equal(t, model.SessionID("99"), s.ID)
	require.Equal(t, model.ClassBaseline, s.Class)
	require.Equal(t, model.CloseRecovered, s.CloseReason)
	require.Zero(t, s.TotalCost)
	require.Zero(t, s.TokenTotals.Total())
	require.Empty(t, s.Interactions)
}

func TestRecover_StaleMarkerForClosedSession(t *testing.T) {
	l := model.NewLedger()
	start := now.Add(-5 * time.Hour)
	end := start.Add(time.Hour)
	l.Sessions = append(l.Sessions, model.Session{
		ID: "5", StartedAt: start, EndedAt: &end, CloseReason: model.CloseManual,
	})
	tr := newTracker(l)

	rep := Recover(tr, &model.Marker{ID: "5", StartedAt: start}, now, time.Hour)
	require.Equal(t, ActionStale, rep.Action)
	require.False(t, rep.Changed())
	require.True(t, rep.RemoveMarker())
	require.Equal(t, model.CloseManual, l.Sessions[0].CloseReason, "closed sessions are immutable")
	require.True(t, l.Sessions[0].EndedAt.Equal(end))
}
