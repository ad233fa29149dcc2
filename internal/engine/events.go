package engine

import (
	"time"

	"github.com/theirongolddev/costledger/internal/ingest"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/recovery"
)

// EventType names a ledger change.
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventSessionEnded       EventType = "session_ended"
	EventInteractionLogged  EventType = "interaction_logged"
	EventCheckpointIngested EventType = "checkpoint_ingested"
	EventSessionRecovered   EventType = "session_recovered"
)

// Event is published after every ledger mutation.
type Event struct {
	Seq         int64                 `json:"seq"`
	Type        EventType             `json:"type"`
	At          time.Time             `json:"at"`
	SessionID   model.SessionID       `json:"sessionId,omitempty"`
	Message     string                `json:"message"`
	Session     *model.SessionSummary `json:"session,omitempty"`
	Interaction *model.Interaction    `json:"interaction,omitempty"`
	Checkpoint  *ingest.Result        `json:"checkpoint,omitempty"`
	Recovery    *recovery.Report      `json:"recovery,omitempty"`
}

func sessionEvent(typ EventType, at time.Time, s *model.Session, msg string) Event {
	sum := model.Summarize(s)
	return Event{Type: typ, At: at, SessionID: s.ID, Message: msg, Session: &sum}
}
