// Package store persists the usage ledger, the active-session marker, and
// the checkpoint ingest journal.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/theirongolddev/costledger/internal/model"
)

// LedgerFile is the ledger document's file name inside the data dir.
const LedgerFile = "ledger.json"

// LedgerStore loads and saves the ledger document. Saves are serialized.
type LedgerStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewLedgerStore returns a store for <dataDir>/ledger.json.
func NewLedgerStore(dataDir string, log *slog.Logger) *LedgerStore {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerStore{
		path: filepath.Join(dataDir, LedgerFile),
		log:  log,
	}
}

// Path returns the ledger document path.
func (s *LedgerStore) Path() string {
	return s.path
}

// Load reads the ledger. An absent, empty, or unreadable document yields an
// empty ledger; an invalid one is moved aside first. Failures are logged,
// never returned.
func (s *LedgerStore) Load() *model.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("ledger unreadable, starting empty",
				"path", s.path, "err", fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err))
		}
		return model.NewLedger()
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.NewLedger()
	}

	ledger, migrated, err := decodeLedger(data)
	if err != nil {
		aside, qerr := s.quarantine()
		if qerr != nil {
			s.log.Error("ledger corrupt and could not be moved aside",
				"path", s.path, "err", err, "move_err", qerr)
		} else {
			s.log.Warn("ledger corrupt, moved aside and starting empty",
				"path", s.path, "saved_as", aside, "err", fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err))
		}
		return model.NewLedger()
	}
	if migrated {
		s.log.Info("migrated legacy ledger document",
			"path", s.path, "sessions", len(ledger.Sessions), "patterns", len(ledger.Patterns))
	}
	return ledger
}

// quarantine renames an undecodable ledger to ledger.json.corrupt-<unix>
// so the next Save cannot overwrite the only copy of the history.
func (s *LedgerStore) quarantine() (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if _, err := os.Stat(aside); err == nil {
		aside = fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().UnixNano())
	}
	if err := os.Rename(s.path, aside); err != nil {
		return "", err
	}
	return aside, nil
}

// Save writes the ledger atomically. Callers log the error and carry on
// with the in-memory copy.
func (s *LedgerStore) Save(l *model.Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err)
	}
	return nil
}
