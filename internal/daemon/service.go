// Package daemon provides the long-running checkpoint monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"
	"github.com/theirongolddev/costledger/internal/source"
)

// Config controls the daemon runtime behavior.
type Config struct {
	CheckpointsDir string
	SettleDelay    time.Duration
	SeedExisting   bool
	Clipboard      bool
	ClipboardPoll  time.Duration
	DefaultClass   model.SessionClass
	Autosave       time.Duration
	Addr           string
	EventsBuffer   int
	Logger         *slog.Logger
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time    `json:"started_at"`
	LastIngestAt    time.Time    `json:"last_ingest_at,omitzero"`
	CheckpointsDir  string       `json:"checkpoints_dir,omitempty"`
	Clipboard       bool         `json:"clipboard"`
	Received        int64        `json:"received"`
	Processed       int64        `json:"processed"`
	Skipped         int64        `json:"skipped"`
	Seeded          int          `json:"seeded"`
	Ledger          model.Status `json:"ledger"`
	LastError       string       `json:"last_error,omitempty"`
	EventCount      int          `json:"event_count"`
	SubscriberCount int          `json:"subscriber_count"`
}

// Service runs checkpoint sources into an engine and serves its state over
// HTTP.
type Service struct {
	cfg Config
	eng *engine.Engine
	log *slog.Logger

	mu           sync.RWMutex
	startedAt    time.Time
	lastIngestAt time.Time
	received     int64
	processed    int64
	skipped      int64
	seeded       int
	lastError    string
	clipboardOn  bool
	events       []engine.Event

	nextSubID int
	subs      map[int]chan engine.Event
}

// New returns a daemon service feeding eng.
func New(eng *engine.Engine, cfg Config) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.Autosave <= 0 {
		cfg.Autosave = 30 * time.Second
	}
	if cfg.DefaultClass == "" {
		cfg.DefaultClass = model.ClassMixed
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		eng:       eng,
		log:       cfg.Logger,
		startedAt: time.Now(),
		subs:      make(map[int]chan engine.Event),
	}
}

// Run starts the HTTP endpoints, the checkpoint sources, and periodic
// saves, and ingests until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 4)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("daemon http server: %w", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineEvents, unsubscribe := s.eng.Subscribe(64)
	defer unsubscribe()
	go func() {
		for ev := range engineEvents {
			s.publishEvent(ev)
		}
	}()

	s.eng.Open()
	if s.cfg.SeedExisting && s.cfg.CheckpointsDir != "" {
		s.seed()
	}

	in := make(chan source.Event, 16)
	var wg sync.WaitGroup
	for _, src := range s.sources() {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			if err := src.Run(runCtx, in); err != nil {
				errCh <- err
			}
		}(src)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.eng.RunAutosave(runCtx, s.cfg.Autosave)
	}()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-in:
			s.handleCheckpoint(ev)
		case err := <-errCh:
			runErr = err
			break loop
		}
	}

	cancel()
	wg.Wait()
	s.logSummary()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Service) sources() []source.Source {
	var out []source.Source
	if s.cfg.CheckpointsDir != "" {
		w, err := source.NewDirWatcher(s.cfg.CheckpointsDir, s.cfg.SettleDelay, s.log)
		if err != nil {
			s.setError(err)
			s.log.Warn("directory watcher disabled", "dir", s.cfg.CheckpointsDir, "err", err)
		} else {
			out = append(out, w)
			s.log.Info("watching for checkpoints", "dir", w.Dir())
		}
	}
	if s.cfg.Clipboard {
		if !source.Supported() {
			s.log.Warn("clipboard monitoring unsupported on this system")
		} else {
			out = append(out, source.NewClipboardPoller(s.cfg.ClipboardPoll, s.cfg.CheckpointsDir, s.log))
			s.mu.Lock()
			s.clipboardOn = true
			s.mu.Unlock()
			s.log.Info("monitoring clipboard for checkpoints")
		}
	}
	return out
}

// seed marks checkpoint files already on disk as processed so starting
// the daemon does not re-bill old captures.
func (s *Service) seed() {
	res, err := pipeline.LoadCheckpoints(s.cfg.CheckpointsDir, nil)
	if err != nil {
		s.log.Warn("seeding existing checkpoints failed", "err", err)
		return
	}
	for _, ev := range res.Events {
		s.eng.MarkProcessed(ev.Text, ev.SourceID)
	}
	s.mu.Lock()
	s.seeded = len(res.Events)
	s.mu.Unlock()
	if len(res.Events) > 0 {
		s.log.Info("skipping existing checkpoints", "count", len(res.Events))
	}
}

func (s *Service) handleCheckpoint(ev source.Event) {
	res, ok := s.eng.Ingest(ev.Text, ev.SourceID, s.cfg.DefaultClass)

	s.mu.Lock()
	s.received++
	if ok {
		s.processed++
		s.lastIngestAt = time.Now()
	} else {
		s.skipped++
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("checkpoint skipped", "source", ev.SourceID, "origin", ev.Origin)
		return
	}
	s.log.Info("checkpoint processed", "origin", ev.Origin, "session", res.SessionID,
		"tokens", res.Delta, "cost", res.Cost, "session_cost", res.SessionCost)
}

func (s *Service) logSummary() {
	s.mu.RLock()
	processed, received := s.processed, s.received
	s.mu.RUnlock()

	s.log.Info("checkpoint monitor stopped", "processed", processed, "received", received)
	if processed == 0 {
		s.log.Warn("no checkpoints were processed; check the checkpoints dir or clipboard setup",
			"dir", s.cfg.CheckpointsDir)
	}
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) publishEvent(ev engine.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	ledger := s.eng.Status()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastIngestAt:    s.lastIngestAt,
		CheckpointsDir:  s.cfg.CheckpointsDir,
		Clipboard:       s.clipboardOn,
		Received:        s.received,
		Processed:       s.processed,
		Skipped:         s.skipped,
		Seeded:          s.seeded,
		Ledger:          ledger,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]engine.Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan engine.Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Current ledger status first so clients render immediately.
	writeSSE(w, "status", s.snapshotStatus().Ledger)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan engine.Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
