package daemon

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/source"
)

const checkpoint = "Token usage: 4000/200000; 196000 remaining\nToken usage: 9000/200000; 191000 remaining\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, cfg Config) (*Service, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Options{DataDir: t.TempDir(), Logger: quietLogger()})
	t.Cleanup(func() { _ = eng.Close() })
	cfg.Logger = quietLogger()
	return New(eng, cfg), eng
}

func TestPublishEventRingBuffer(t *testing.T) {
	s, _ := newService(t, Config{EventsBuffer: 2})

	s.publishEvent(engine.Event{Seq: 1})
	s.publishEvent(engine.Event{Seq: 2})
	s.publishEvent(engine.Event{Seq: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].Seq != 2 || s.events[1].Seq != 3 {
		t.Fatalf("events ring contains seqs [%d, %d], want [2, 3]", s.events[0].Seq, s.events[1].Seq)
	}
}

func TestHandleCheckpointCountsOutcomes(t *testing.T) {
	s, eng := newService(t, Config{})

	ev := source.Event{Text: checkpoint, SourceID: "/tmp/cp/checkpoint-1.txt", Origin: source.OriginFile}
	s.handleCheckpoint(ev)
	s.handleCheckpoint(ev)
	s.handleCheckpoint(source.Event{Text: "no markers here", Origin: source.OriginClipboard})

	st := s.snapshotStatus()
	if st.Received != 3 {
		t.Fatalf("Received = %d, want 3", st.Received)
	}
	if st.Processed != 1 {
		t.Fatalf("Processed = %d, want 1", st.Processed)
	}
	if st.Skipped != 2 {
		t.Fatalf("Skipped = %d, want 2", st.Skipped)
	}
	if !eng.Status().IsTracking {
		t.Fatal("checkpoint did not open a session")
	}
	if got := st.Ledger.Current.Tokens.Total(); got != 5000 {
		t.Fatalf("session tokens = %d, want 5000", got)
	}
}

func TestSeedSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "checkpoint-7.txt"), []byte(checkpoint), 0o600); err != nil {
		t.Fatal(err)
	}
	s, eng := newService(t, Config{CheckpointsDir: dir, SeedExisting: true})

	s.seed()
	if s.seeded != 1 {
		t.Fatalf("seeded = %d, want 1", s.seeded)
	}

	ev, err := source.ReadCheckpoint(filepath.Join(dir, "checkpoint-7.txt"))
	if err != nil {
		t.Fatal(err)
	}
	s.handleCheckpoint(ev)
	if s.snapshotStatus().Processed != 0 {
		t.Fatal("seeded checkpoint was ingested again")
	}
	if eng.Status().IsTracking {
		t.Fatal("seeding opened a session")
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, eng := newService(t, Config{})
	eng.StartSession(model.ClassRetrieval)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Ledger.IsTracking || st.Ledger.Current.Class != model.ClassRetrieval {
		t.Fatalf("ledger status = %+v, want an open retrieval session", st.Ledger)
	}
}

func TestEventsEndpointReturnsRing(t *testing.T) {
	s, _ := newService(t, Config{})
	s.publishEvent(engine.Event{Seq: 4, Type: engine.EventSessionStarted, At: time.Now()})

	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

	var events []engine.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Type != engine.EventSessionStarted {
		t.Fatalf("events = %+v, want one session_started", events)
	}
}
