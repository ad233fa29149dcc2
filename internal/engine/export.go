package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/pipeline"
	"github.com/theirongolddev/costledger/internal/store"
)

// Export is the document written by Engine.Export.
type Export struct {
	ExportID   string               `json:"exportId"`
	ExportedAt time.Time            `json:"exportedAt"`
	Ledger     *model.Ledger        `json:"ledger"`
	Analysis   *model.Comparison    `json:"analysis"`
	PatternROI []model.PatternUsage `json:"patternROI"`
	Status     model.Status         `json:"status"`
}

// Export writes a snapshot of the ledger plus its analyses to dir and
// returns the file path.
func (e *Engine) Export(dir string) (string, error) {
	e.mu.Lock()
	e.openLocked()
	now := e.now().UTC()
	doc := Export{
		ExportID:   uuid.NewString(),
		ExportedAt: now,
		Ledger:     e.snapshotLocked(),
		PatternROI: pipeline.PatternROI(e.ledger.Patterns, e.tracker.Credit(), pipeline.PatternROILimit),
		Status:     pipeline.Status(e.ledger),
	}
	if cmp, ok := pipeline.Comparative(e.ledger.Sessions); ok {
		doc.Analysis = &cmp
	}
	e.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	name := fmt.Sprintf("costledger-export-%s.json", now.Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if err := store.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	e.log.Info("ledger exported", "path", path, "id", doc.ExportID)
	return path, nil
}
