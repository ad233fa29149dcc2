// Package source produces raw checkpoint text from the places a user
// captures it: a watched directory, the clipboard, or a one-off scan.
package source

import (
	"context"
	"time"
)

// Origin names where an event came from.
type Origin string

const (
	OriginFile      Origin = "file"
	OriginClipboard Origin = "clipboard"
	OriginScan      Origin = "scan"
)

// Event is one complete checkpoint blob.
type Event struct {
	Text     string
	SourceID string
	Origin   Origin
	At       time.Time
}

// Source emits events until ctx is done.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// CheckpointFile is a checkpoint blob found on disk.
type CheckpointFile struct {
	Path      string
	Name      string
	SessionID string // encoded in the file name, if any
	ModTime   time.Time
	Size      int64
}
