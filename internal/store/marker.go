package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theirongolddev/costledger/internal/model"
)

// MarkerFile is the active-session marker's file name inside the data dir.
const MarkerFile = "active-session.json"

// MarkerStore mirrors the open session to a small file so an improper
// shutdown can be detected without parsing the ledger.
type MarkerStore struct {
	path string
}

// NewMarkerStore returns a marker store under dataDir.
func NewMarkerStore(dataDir string) *MarkerStore {
	return &MarkerStore{path: filepath.Join(dataDir, MarkerFile)}
}

// Path returns the marker file path.
func (m *MarkerStore) Path() string {
	return m.path
}

// Read returns the marker, or nil if none is recorded.
func (m *MarkerStore) Read() (*model.Marker, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading marker: %w", err)
	}

	var mk model.Marker
	if err := json.Unmarshal(data, &mk); err != nil {
		return nil, fmt.Errorf("parsing marker: %w", err)
	}
	if mk.ID == "" {
		return nil, nil
	}
	return &mk, nil
}

// Write records the marker for a newly opened session.
func (m *MarkerStore) Write(mk model.Marker) error {
	data, err := json.Marshal(mk)
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}
	return WriteFileAtomic(m.path, data, 0o600)
}

// Remove deletes the marker. Removing an absent marker is not an error.
func (m *MarkerStore) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing marker: %w", err)
	}
	return nil
}
