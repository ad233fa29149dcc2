package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestPIDFileClaimAndClear(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "run", "daemon.pid")}

	release, err := p.Claim(RuntimeState{Addr: "127.0.0.1:9876", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	pid, err := p.Live()
	if err != nil {
		t.Fatalf("Live: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
	st, err := p.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Addr != "127.0.0.1:9876" || st.PID != os.Getpid() {
		t.Fatalf("state = %+v", st)
	}

	if err := p.EnsureFree(); err == nil {
		t.Fatal("EnsureFree should fail while this process holds the file")
	}

	release()
	if _, err := p.Live(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Live after release = %v, want ErrNotRunning", err)
	}
}

func TestPIDFileStaleIsCleared(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "daemon.pid")}
	// Max pid on Linux is well below this.
	if err := os.WriteFile(p.Path, []byte("999999999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Live(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Live = %v, want ErrNotRunning", err)
	}
	if err := p.EnsureFree(); err != nil {
		t.Fatalf("EnsureFree: %v", err)
	}
	if _, err := os.Stat(p.Path); !os.IsNotExist(err) {
		t.Fatalf("stale pid file not removed: %v", err)
	}
}

func TestPIDFileRejectsGarbage(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "daemon.pid")}
	if err := os.WriteFile(p.Path, []byte("not-a-pid"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := p.Live()
	if err == nil || errors.Is(err, ErrNotRunning) {
		t.Fatalf("Live = %v, want a parse error", err)
	}
}

func TestPIDFileOtherLive(t *testing.T) {
	p := DefaultPIDFile(t.TempDir())
	if _, ok := p.OtherLive(); ok {
		t.Fatal("OtherLive with no pid file")
	}

	if err := os.WriteFile(p.Path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.OtherLive(); ok {
		t.Fatal("OtherLive reported this process")
	}

	// The test binary's parent is alive for the duration of the test.
	parent := os.Getppid()
	if err := os.WriteFile(p.Path, []byte(strconv.Itoa(parent)), 0o600); err != nil {
		t.Fatal(err)
	}
	pid, ok := p.OtherLive()
	if !ok || pid != parent {
		t.Fatalf("OtherLive = %d, %v, want %d, true", pid, ok, parent)
	}
}
