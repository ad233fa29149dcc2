package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all costledger configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Pricing    PricingConfig    `toml:"pricing"`
	Ingest     IngestConfig     `toml:"ingest"`
	Tracking   TrackingConfig   `toml:"tracking"`
	Daemon     DaemonConfig     `toml:"daemon"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// GeneralConfig holds file locations.
type GeneralConfig struct {
	DataDir   string `toml:"data_dir,omitempty"`
	ExportDir string `toml:"export_dir,omitempty"`
}

// PricingConfig holds per-million-token rates and the token estimation ratio.
type PricingConfig struct {
	InputPerMTok    float64 `toml:"input_per_mtok"`
	OutputPerMTok   float64 `toml:"output_per_mtok"`
	ThinkingPerMTok float64 `toml:"thinking_per_mtok"`
	CharsPerToken   int     `toml:"chars_per_token"`
}

// IngestConfig controls checkpoint ingestion and the checkpoint sources.
type IngestConfig struct {
	InputShare       float64 `toml:"input_share"`
	DefaultClass     string  `toml:"default_class"`
	CheckpointsDir   string  `toml:"checkpoints_dir,omitempty"`
	SettleDelayMS    int     `toml:"settle_delay_ms"`
	DedupWindowHours int     `toml:"dedup_window_hours"`
	DedupMaxEntries  int     `toml:"dedup_max_entries"`
	ClipboardPollSec int     `toml:"clipboard_poll_sec"`
	ExtractPatterns  bool    `toml:"extract_patterns"`
	PersistentDedup  bool    `toml:"persistent_dedup"`
}

// TrackingConfig holds session lifecycle settings.
type TrackingConfig struct {
	AutosaveSec          int     `toml:"autosave_sec"`
	RecoveryThresholdMin int     `toml:"recovery_threshold_min"`
	PatternCredit        float64 `toml:"pattern_credit"`
}

// DaemonConfig holds the background monitor's status endpoint settings.
type DaemonConfig struct {
	Addr         string `toml:"addr"`
	EventsBuffer int    `toml:"events_buffer"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Pricing: PricingConfig{
			InputPerMTok:    3.00,
			OutputPerMTok:   15.00,
			ThinkingPerMTok: 15.00,
			CharsPerToken:   4,
		},
		Ingest: IngestConfig{
			InputShare:       0.6,
			DefaultClass:     "mixed",
			SettleDelayMS:    250,
			DedupWindowHours: 24,
			DedupMaxEntries:  4096,
			ClipboardPollSec: 3,
			ExtractPatterns:  true,
			PersistentDedup:  true,
		},
		Tracking: TrackingConfig{
			AutosaveSec:          30,
			RecoveryThresholdMin: 60,
			PatternCredit:        0.015,
		},
		Daemon: DaemonConfig{
			Addr:         "127.0.0.1:8787",
			EventsBuffer: 200,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "costledger")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "costledger")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir resolves where the ledger lives: COSTLEDGER_DATA_DIR, then the
// config value, then $XDG_DATA_HOME/costledger.
func DataDir(cfg Config) string {
	if dir := os.Getenv("COSTLEDGER_DATA_DIR"); dir != "" {
		return dir
	}
	if cfg.General.DataDir != "" {
		return cfg.General.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "costledger")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "costledger")
}

// CheckpointsDir is where captured checkpoint blobs are written and watched.
func CheckpointsDir(cfg Config) string {
	if cfg.Ingest.CheckpointsDir != "" {
		return cfg.Ingest.CheckpointsDir
	}
	return filepath.Join(DataDir(cfg), "checkpoints")
}

// ExportDir is where export artifacts are written.
func ExportDir(cfg Config) string {
	if cfg.General.ExportDir != "" {
		return cfg.General.ExportDir
	}
	return filepath.Join(DataDir(cfg), "exports")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// AutosaveInterval is the periodic safety-net save cadence.
func (c Config) AutosaveInterval() time.Duration {
	return secondsOr(c.Tracking.AutosaveSec, 30)
}

// RecoveryThreshold is how long a marker may age before its session is
// considered abandoned.
func (c Config) RecoveryThreshold() time.Duration {
	if c.Tracking.RecoveryThresholdMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.Tracking.RecoveryThresholdMin) * time.Minute
}

// SettleDelay is the wait between a source change and reading it.
func (c Config) SettleDelay() time.Duration {
	if c.Ingest.SettleDelayMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.Ingest.SettleDelayMS) * time.Millisecond
}

// DedupWindow is how long a processed checkpoint key is remembered.
func (c Config) DedupWindow() time.Duration {
	if c.Ingest.DedupWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Ingest.DedupWindowHours) * time.Hour
}

// ClipboardPoll is the clipboard polling interval.
func (c Config) ClipboardPoll() time.Duration {
	return secondsOr(c.Ingest.ClipboardPollSec, 3)
}

func secondsOr(sec, fallback int) time.Duration {
	if sec <= 0 {
		sec = fallback
	}
	return time.Duration(sec) * time.Second
}
