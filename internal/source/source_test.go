package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const checkpointText = "Token usage: 1000/200000; 199000 remaining\n"

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if !mod.IsZero() {
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestScanDir_OrdersByModTimeAndSkipsNoise(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	writeFile(t, dir, "checkpoint-200.txt", checkpointText, base.Add(time.Minute))
	writeFile(t, dir, "checkpoint-100.txt", checkpointText, base)
	writeFile(t, dir, "notes.md", "x", base)
	writeFile(t, dir, ".ledger.json.tmp-1.txt", "x", base)

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].SessionID != "100" || files[1].SessionID != "200" {
		t.Errorf("order = %s,%s, want 100,200", files[0].SessionID, files[1].SessionID)
	}
}

func TestScanDir_MissingDir(t *testing.T) {
	files, err := ScanDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if files != nil {
		t.Errorf("files = %v, want nil", files)
	}
}

func TestReadCheckpoint_NormalizesText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "checkpoint-1.txt", "\xEF\xBB\xBFline one\r\nline two\r\n", time.Time{})

	ev, err := ReadCheckpoint(path)
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if ev.Text != "line one\nline two\n" {
		t.Errorf("Text = %q", ev.Text)
	}
	if !filepath.IsAbs(ev.SourceID) {
		t.Errorf("SourceID = %q, want absolute path", ev.SourceID)
	}
	if ev.Origin != OriginFile {
		t.Errorf("Origin = %q, want %q", ev.Origin, OriginFile)
	}
}

func TestClipboardPoller_EmitsOnlyChangedMarkerBlobs(t *testing.T) {
	dir := t.TempDir()
	p := NewClipboardPoller(time.Second, dir, quiet())
	long := strings.Repeat("context ", 20) + checkpointText

	var clip string
	var readErr error
	p.read = func() (string, error) { return clip, readErr }
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	clip = "short " + checkpointText
	if _, ok := p.Poll(); ok {
		t.Fatal("short blob should be ignored")
	}

	clip = strings.Repeat("no marker here ", 20)
	if _, ok := p.Poll(); ok {
		t.Fatal("blob without a marker should be ignored")
	}

	clip = long
	ev, ok := p.Poll()
	if !ok {
		t.Fatal("expected an event for a long marker blob")
	}
	if ev.Origin != OriginClipboard {
		t.Errorf("Origin = %q", ev.Origin)
	}
	want := SourceID(filepath.Join(dir, "clipboard-1700000000000.txt"))
	if ev.SourceID != want {
		t.Errorf("SourceID = %q, want %q", ev.SourceID, want)
	}
	if data, err := os.ReadFile(want); err != nil || string(data) != long {
		t.Errorf("saved capture = %q, %v", data, err)
	}

	if _, ok := p.Poll(); ok {
		t.Fatal("unchanged clipboard should not emit again")
	}

	readErr = errors.New("no clipboard")
	if _, ok := p.Poll(); ok {
		t.Fatal("read error should not emit")
	}
}

func TestDirWatcher_EmitsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWatcher(dir, 50*time.Millisecond, quiet())
	if err != nil {
		t.Fatalf("NewDirWatcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	writeFile(t, dir, "ignored.log", checkpointText, time.Time{})
	path := writeFile(t, dir, "checkpoint-7.txt", checkpointText, time.Time{})

	select {
	case ev := <-out:
		if ev.SourceID != SourceID(path) {
			t.Errorf("SourceID = %q, want %q", ev.SourceID, SourceID(path))
		}
		if ev.Text != checkpointText {
			t.Errorf("Text = %q", ev.Text)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for checkpoint event")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
