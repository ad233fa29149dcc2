// Package recovery closes sessions left open by an improper shutdown.
package recovery

import (
	"fmt"
	"time"

	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/tracker"
)

// DefaultThreshold is how old a marker must be before its session is
// treated as abandoned.
const DefaultThreshold = time.Hour

// Action describes what a recovery pass did.
type Action string

const (
	ActionNone        Action = "none"
	ActionLeftOpen    Action = "left-open"
	ActionResumed     Action = "resumed"
	ActionClosed      Action = "closed"
	ActionSynthesized Action = "synthesized"
	ActionStale       Action = "stale-marker"
)

// Report is the outcome of a recovery pass.
type Report struct {
	Action    Action          `json:"action"`
	SessionID model.SessionID `json:"sessionId,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
	Note      string          `json:"note,omitempty"`
}

// Changed reports whether the ledger was modified.
func (r Report) Changed() bool {
	return r.Action == ActionClosed || r.Action == ActionSynthesized
}

// RemoveMarker reports whether the caller should delete the marker file.
func (r Report) RemoveMarker() bool {
	return r.Action == ActionClosed || r.Action == ActionSynthesized || r.Action == ActionStale
}

// Recover inspects the marker against the ledger behind tr. A nil marker,
// a released one, or one younger than threshold changes nothing. Otherwise the matching open
// session is closed as recovered, or a minimal recovered session is
// synthesized when the ledger never saw it.
func Recover(tr *tracker.Tracker, marker *model.Marker, now time.Time, threshold time.Duration) Report {
	if marker == nil {
		return Report{Action: ActionNone}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	elapsed := now.Sub(marker.StartedAt)
	rep := Report{SessionID: marker.ID, Elapsed: elapsed}
	if marker.Released() {
		// A clean exit with the session open is how one-shot commands
		// leave it between invocations.
		if s := tr.Ledger().Find(marker.ID); s != nil && s.IsOpen() {
			rep.Action = ActionResumed
		} else {
			rep.Action = ActionStale
		}
		return rep
	}
	if elapsed <= threshold {
		rep.Action = ActionLeftOpen
		return rep
	}

	rep.Note = fmt.Sprintf("auto-closed on startup: no close recorded %s after start",
		elapsed.Truncate(time.Minute))

	ledger := tr.Ledger()
	if s := ledger.Find(marker.ID); s != nil {
		if !s.IsOpen() {
			rep.Action = ActionStale
			rep.Note = ""
			return rep
		}
		if ledger.Current == s {
			tr.End(model.CloseRecovered, rep.Note)
		} else {
			// Open but outside the current slot, which only a hand-edited
			// document produces. Close it where it lies.
			end := now
			s.EndedAt = &end
			s.CloseReason = model.CloseRecovered
			s.CloseNote = rep.Note
			tr.Recompute(s)
		}
		rep.Action = ActionClosed
		return rep
	}

	end := now
	ledger.Sessions = append(ledger.Sessions, model.Session{
		ID:           marker.ID,
		Class:        model.ParseClass(string(marker.Class)),
		StartedAt:    marker.StartedAt,
		EndedAt:      &end,
		Interactions: []model.Interaction{},
		PatternsUsed: []string{},
		CloseReason:  model.CloseRecovered,
		CloseNote:    rep.Note + "; session entry was never saved",
	})
	ledger.SortSessions()
	rep.Action = ActionSynthesized
	return rep
}
