package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/theirongolddev/costledger/internal/cli"
	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/daemon"
	"github.com/theirongolddev/costledger/internal/engine"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/source"

	"github.com/spf13/cobra"
)

var (
	flagDaemonAddr         string
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
	flagDaemonDir          string
	flagDaemonClass        string
	flagDaemonClipboard    bool
	flagDaemonSeed         bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch for usage checkpoints and serve ledger state over HTTP/SSE",
	Long: "Watches the checkpoints directory (and optionally the clipboard) for captured usage text, " +
		"ingests each new checkpoint into the ledger, and serves status and events over HTTP.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", "", "PID file path (default <data-dir>/daemon.pid)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", "", "Log file for detached mode (default <data-dir>/daemon.log)")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	daemonCmd.Flags().StringVar(&flagDaemonDir, "dir", "", "Checkpoints directory to watch (default from config)")
	daemonCmd.Flags().StringVar(&flagDaemonClass, "class", "", "Class for sessions created by ingestion (retrieval, baseline, mixed)")
	daemonCmd.Flags().BoolVar(&flagDaemonClipboard, "clipboard", false, "Also capture checkpoints copied to the clipboard")
	daemonCmd.Flags().BoolVar(&flagDaemonSeed, "seed-existing", true, "Treat checkpoints already on disk as processed")
	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// resolveDaemonFlags fills unset daemon flags from the config file.
func resolveDaemonFlags(cfg config.Config) {
	dataDir := config.DataDir(cfg)
	if flagDaemonPIDFile == "" {
		flagDaemonPIDFile = daemon.DefaultPIDFile(dataDir).Path
	}
	if flagDaemonLogFile == "" {
		flagDaemonLogFile = filepath.Join(dataDir, "daemon.log")
	}
	if flagDaemonAddr == "" {
		flagDaemonAddr = cfg.Daemon.Addr
	}
	if flagDaemonEventsBuffer <= 0 {
		flagDaemonEventsBuffer = cfg.Daemon.EventsBuffer
	}
	if flagDaemonDir == "" {
		flagDaemonDir = config.CheckpointsDir(cfg)
	}
	if flagDaemonClass == "" {
		flagDaemonClass = cfg.Ingest.DefaultClass
	}
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	cfg := loadConfig()
	resolveDaemonFlags(cfg)
	pf := daemon.PIDFile{Path: flagDaemonPIDFile}

	if flagDaemonDetach {
		return spawnDetached(pf)
	}
	return runDaemonForeground(cfg, pf)
}

// spawnDetached re-executes this binary without --detach, with output
// appended to the daemon log.
func spawnDetached(pf daemon.PIDFile) error {
	if err := pf.EnsureFree(); err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	//nolint:gosec // log path comes from local flags/config
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer func() { _ = logf.Close() }()

	child := exec.Command(exe, append(withoutDetach(os.Args[1:]), "--child")...) //nolint:gosec // re-exec of self
	child.Stdout, child.Stderr = logf, logf
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Println(cli.RenderKV("Daemon started", []cli.KV{
		{Key: "PID", Value: fmt.Sprint(child.Process.Pid)},
		{Key: "PID file", Value: pf.Path},
		{Key: "API", Value: "http://" + flagDaemonAddr + "/v1/status"},
		{Key: "Log", Value: flagDaemonLogFile},
	}))
	return nil
}

func runDaemonForeground(cfg config.Config, pf daemon.PIDFile) error {
	release, err := pf.Claim(daemon.RuntimeState{
		Addr:           flagDaemonAddr,
		StartedAt:      time.Now(),
		DataDir:        config.DataDir(cfg),
		CheckpointsDir: flagDaemonDir,
	})
	if err != nil {
		return err
	}
	defer release()

	// The daemon's log is its record of what was ingested.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(slog.LevelInfo)}))
	slog.SetDefault(logger)

	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = logger
	eng := engine.New(opts)
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("final save failed", "err", err)
		}
	}()

	clipboard := flagDaemonClipboard
	if clipboard && !source.Supported() {
		logger.Warn("clipboard capture unavailable on this system")
		clipboard = false
	}

	svc := daemon.New(eng, daemon.Config{
		CheckpointsDir: flagDaemonDir,
		SettleDelay:    cfg.SettleDelay(),
		SeedExisting:   flagDaemonSeed,
		Clipboard:      clipboard,
		ClipboardPoll:  cfg.ClipboardPoll(),
		DefaultClass:   model.ParseClass(flagDaemonClass),
		Autosave:       cfg.AutosaveInterval(),
		Addr:           flagDaemonAddr,
		EventsBuffer:   flagDaemonEventsBuffer,
		Logger:         logger,
	})

	pairs := []cli.KV{
		{Key: "Listening", Value: "http://" + flagDaemonAddr},
		{Key: "Watching", Value: flagDaemonDir},
	}
	if clipboard {
		pairs = append(pairs, cli.KV{Key: "Clipboard", Value: "every " + cfg.ClipboardPoll().String()})
	}
	pairs = append(pairs, cli.KV{Key: "Stop with", Value: "costledger daemon stop --pid-file " + pf.Path})
	fmt.Println(cli.RenderKV("costledger daemon", pairs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	resolveDaemonFlags(loadConfig())
	pf := daemon.PIDFile{Path: flagDaemonPIDFile}

	pid, err := pf.Live()
	if err != nil {
		fmt.Printf("  Daemon: %v\n", err)
		return nil
	}
	addr := flagDaemonAddr
	if st, err := pf.State(); err == nil && st.Addr != "" {
		addr = st.Addr
	}

	pairs := []cli.KV{
		{Key: "PID", Value: fmt.Sprint(pid)},
		{Key: "Address", Value: "http://" + addr},
	}
	st, err := fetchDaemonStatus(addr)
	if err != nil {
		pairs = append(pairs, cli.KV{Key: "API", Value: cli.Warn(err.Error())})
		fmt.Println(cli.RenderKV("Daemon", pairs))
		return nil
	}

	tracking := "idle"
	if cur := st.Ledger.Current; cur != nil {
		tracking = fmt.Sprintf("%s (%s) %s", cur.ID, cur.Class.Short(), cli.FormatCost(cur.TotalCost))
	}
	pairs = append(pairs,
		cli.KV{Key: "Watching", Value: fmt.Sprintf("%s (clipboard %v)", st.CheckpointsDir, st.Clipboard)},
		cli.KV{Key: "Up since", Value: cli.FormatTime(st.StartedAt)},
		cli.KV{Key: "Last ingest", Value: cli.FormatAgo(st.LastIngestAt)},
		cli.KV{Key: "Checkpoints", Value: fmt.Sprintf("%d received, %d processed, %d skipped, %d seeded",
			st.Received, st.Processed, st.Skipped, st.Seeded)},
		cli.KV{Key: "Tracking", Value: tracking},
		cli.KV{Key: "Ledger", Value: fmt.Sprintf("%d sessions, %s all time",
			st.Ledger.TotalSessions, cli.FormatCost(st.Ledger.TotalCostAllTime))},
	)
	if st.LastError != "" {
		pairs = append(pairs, cli.KV{Key: "Last error", Value: cli.Warn(st.LastError)})
	}
	fmt.Println(cli.RenderKV("Daemon", pairs))
	return nil
}

func fetchDaemonStatus(addr string) (daemon.Status, error) {
	var st daemon.Status
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status request
	if err != nil {
		return st, fmt.Errorf("unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed response: %w", err)
	}
	return st, nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	resolveDaemonFlags(loadConfig())
	pid, err := daemon.PIDFile{Path: flagDaemonPIDFile}.Stop(8 * time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("  Stopped daemon (pid %d)\n", pid)
	return nil
}

func withoutDetach(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a != "--detach" && !strings.HasPrefix(a, "--detach=") {
			out = append(out, a)
		}
	}
	return out
}
