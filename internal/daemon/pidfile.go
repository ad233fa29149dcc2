package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/theirongolddev/costledger/internal/store"
)

// ErrNotRunning is returned when no live daemon owns the pid file.
var ErrNotRunning = errors.New("daemon is not running")

// RuntimeState is written beside the pid file so `daemon status` can find
// the API of a running daemon.
type RuntimeState struct {
	PID            int       `json:"pid"`
	Addr           string    `json:"addr"`
	StartedAt      time.Time `json:"started_at"`
	DataDir        string    `json:"data_dir"`
	CheckpointsDir string    `json:"checkpoints_dir"`
}

// PIDFileName is the default pid file name inside the data dir.
const PIDFileName = "daemon.pid"

// DefaultPIDFile returns the pid file the daemon uses for dataDir when no
// --pid-file is given.
func DefaultPIDFile(dataDir string) PIDFile {
	return PIDFile{Path: filepath.Join(dataDir, PIDFileName)}
}

// PIDFile tracks the daemon process through a pid file and a JSON
// runtime-state sidecar at Path + ".json".
type PIDFile struct {
	Path string
}

func (p PIDFile) statePath() string { return p.Path + ".json" }

// Live returns the pid recorded in the file when that process is alive.
func (p PIDFile) Live() (int, error) {
	pid, err := p.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !ProcessAlive(pid) {
		return pid, fmt.Errorf("stale pid file (pid %d): %w", pid, ErrNotRunning)
	}
	return pid, nil
}

// OtherLive returns the pid of a live daemon other than this process. Its
// in-memory ledger is saved on a cadence and will overwrite changes made
// here, so callers that mutate the ledger warn about it.
func (p PIDFile) OtherLive() (int, bool) {
	pid, err := p.Live()
	if err != nil || pid == os.Getpid() {
		return 0, false
	}
	return pid, true
}

// EnsureFree fails when another daemon holds the file and clears stale files.
func (p PIDFile) EnsureFree() error {
	pid, err := p.Live()
	switch {
	case err == nil:
		return fmt.Errorf("daemon already running (pid %d)", pid)
	case errors.Is(err, ErrNotRunning):
		p.Clear()
		return nil
	default:
		return err
	}
}

// Claim records the current process as the daemon. The returned func
// removes both files.
func (p PIDFile) Claim(st RuntimeState) (func(), error) {
	if err := p.EnsureFree(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create daemon directory: %w", err)
	}
	if st.PID == 0 {
		st.PID = os.Getpid()
	}
	if err := store.WriteFileAtomic(p.Path, []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err == nil {
		err = store.WriteFileAtomic(p.statePath(), append(data, '\n'), 0o600)
	}
	if err != nil {
		p.Clear()
		return nil, fmt.Errorf("write daemon state: %w", err)
	}
	return p.Clear, nil
}

// State reads the runtime-state sidecar.
func (p PIDFile) State() (RuntimeState, error) {
	var st RuntimeState
	data, err := os.ReadFile(p.statePath())
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

// Clear removes the pid file and its sidecar.
func (p PIDFile) Clear() {
	_ = os.Remove(p.Path)
	_ = os.Remove(p.statePath())
}

// Stop sends SIGTERM to the live daemon and waits up to timeout for it
// to exit.
func (p PIDFile) Stop(timeout time.Duration) (int, error) {
	pid, err := p.Live()
	if err != nil {
		return pid, err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal daemon process: %w", err)
	}
	for deadline := time.Now().Add(timeout); time.Now().Before(deadline); {
		if !ProcessAlive(pid) {
			p.Clear()
			return pid, nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return pid, fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}

func (p PIDFile) read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", p.Path)
	}
	return pid, nil
}

// ProcessAlive checks pid with signal 0.
func ProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
