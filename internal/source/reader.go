package source

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// MaxCheckpointBytes caps how much of a checkpoint file is read.
const MaxCheckpointBytes = 8 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCheckpoint loads a checkpoint file as an event. The source id is the
// cleaned absolute path so every reader of the same file agrees on it.
func ReadCheckpoint(path string) (Event, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a scan or watch of the checkpoints dir
	if err != nil {
		return Event{}, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxCheckpointBytes+1))
	if err != nil {
		return Event{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > MaxCheckpointBytes {
		return Event{}, fmt.Errorf("reading %s: larger than %d bytes", path, MaxCheckpointBytes)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	return Event{
		Text:     string(data),
		SourceID: SourceID(path),
		Origin:   OriginFile,
		At:       time.Now(),
	}, nil
}

// SourceID normalizes a file path into a stable source identifier.
func SourceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(path)
}
