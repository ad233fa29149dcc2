package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/time/rate"

	"github.com/theirongolddev/costledger/internal/ingest"
)

// MinClipboardChars is the shortest clipboard blob treated as a checkpoint.
const MinClipboardChars = 100

// ClipboardPoller emits the clipboard contents whenever they change to a
// blob that carries a usage marker. Captured blobs are also written to the
// save dir so later scans and the directory watcher see them.
type ClipboardPoller struct {
	interval time.Duration
	saveDir  string
	log      *slog.Logger
	read     func() (string, error)
	write    func(path string, data []byte) error
	now      func() time.Time
	errLog   rate.Sometimes

	last string
}

// NewClipboardPoller returns a poller reading the system clipboard. An empty
// saveDir disables writing captures to disk.
func NewClipboardPoller(interval time.Duration, saveDir string, log *slog.Logger) *ClipboardPoller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ClipboardPoller{
		interval: interval,
		saveDir:  saveDir,
		log:      log,
		read:     clipboard.ReadAll,
		write:    saveCapture,
		now:      time.Now,
		errLog:   rate.Sometimes{First: 1, Interval: 5 * time.Minute},
	}
}

// Supported reports whether a clipboard utility is available.
func Supported() bool {
	return !clipboard.Unsupported
}

// Run polls until ctx is done.
func (p *ClipboardPoller) Run(ctx context.Context, out chan<- Event) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ev, ok := p.Poll()
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Poll reads the clipboard once and reports a new checkpoint, if any.
func (p *ClipboardPoller) Poll() (Event, bool) {
	text, err := p.read()
	if err != nil {
		p.errLog.Do(func() { p.log.Warn("clipboard read failed", "err", err) })
		return Event{}, false
	}
	if text == p.last {
		return Event{}, false
	}
	p.last = text

	if len(strings.TrimSpace(text)) <= MinClipboardChars || !ingest.HasMarker(text) {
		return Event{}, false
	}

	now := p.now()
	ev := Event{Text: text, Origin: OriginClipboard, At: now}
	if p.saveDir != "" {
		path := filepath.Join(p.saveDir, fmt.Sprintf("clipboard-%d.txt", now.UnixMilli()))
		if err := p.write(path, []byte(text)); err != nil {
			p.log.Warn("saving clipboard checkpoint failed", "path", path, "err", err)
		} else {
			ev.SourceID = SourceID(path)
		}
	}
	return ev, true
}

func saveCapture(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
