package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestRatesCost_BillsToolAtOutputRate(t *testing.T) {
	r := DefaultRates

	got := r.Cost(1_000_000, 0, 0, 0, 1_000_000)
	if !almostEqual(got, 18.0) {
		t.Fatalf("Cost(1M input, 1M tool) = %.6f, want 18.0", got)
	}

	got = r.Cost(500, 500, 200, 100, 0)
	want := 1000*3.0/1_000_000 + 200*15.0/1_000_000 + 100*15.0/1_000_000
	if !almostEqual(got, want) {
		t.Fatalf("Cost(mixed) = %.9f, want %.9f", got, want)
	}
}

func TestRatesFrom_FillsDefaults(t *testing.T) {
	r := RatesFrom(PricingConfig{InputPerMTok: 1.5})
	if r.InputPerMTok != 1.5 {
		t.Fatalf("InputPerMTok = %.2f, want 1.5", r.InputPerMTok)
	}
	if r.OutputPerMTok != 15 || r.ThinkingPerMTok != 15 || r.CharsPerToken != 4 {
		t.Fatalf("defaults not applied: %+v", r)
	}
}

func TestEstimateTokens_RoundsUp(t *testing.T) {
	r := DefaultRates
	cases := map[string]int64{
		"":      0,
		"a":     1,
		"abcd":  1,
		"abcde": 2,
	}
	for text, want := range cases {
		if got := r.EstimateTokens(text); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.InputShare != 0.6 {
		t.Fatalf("InputShare = %.2f, want 0.6", cfg.Ingest.InputShare)
	}
	if cfg.RecoveryThreshold() != time.Hour {
		t.Fatalf("RecoveryThreshold = %s, want 1h", cfg.RecoveryThreshold())
	}
}

func TestSaveLoad_PreservesOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Tracking.PatternCredit = 0.02
	cfg.Ingest.SettleDelayMS = 500
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists() {
		t.Fatal("Exists() = false after Save")
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Tracking.PatternCredit != 0.02 {
		t.Fatalf("PatternCredit = %.3f, want 0.02", got.Tracking.PatternCredit)
	}
	if got.SettleDelay() != 500*time.Millisecond {
		t.Fatalf("SettleDelay = %s, want 500ms", got.SettleDelay())
	}
}

func TestDataDir_EnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	t.Setenv("COSTLEDGER_DATA_DIR", dir)

	if got := DataDir(DefaultConfig()); got != dir {
		t.Fatalf("DataDir = %q, want %q", got, dir)
	}
	if got := CheckpointsDir(DefaultConfig()); got != filepath.Join(dir, "checkpoints") {
		t.Fatalf("CheckpointsDir = %q", got)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("DataDir must not create the directory, stat err = %v", err)
	}
}
