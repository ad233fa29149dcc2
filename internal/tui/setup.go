package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/model"
	"github.com/theirongolddev/costledger/internal/tui/theme"

	"github.com/charmbracelet/huh"
)

// SetupValues backs the setup form fields.
type SetupValues struct {
	DataDir         string
	CheckpointsDir  string
	DefaultClass    string
	InputRate       string
	OutputRate      string
	ThinkingRate    string
	PersistentDedup bool
	Theme           string
}

// SetupValuesFrom seeds the form from an existing config.
func SetupValuesFrom(cfg config.Config) SetupValues {
	return SetupValues{
		DataDir:         config.DataDir(cfg),
		CheckpointsDir:  config.CheckpointsDir(cfg),
		DefaultClass:    string(model.ParseClass(cfg.Ingest.DefaultClass)),
		InputRate:       formatRate(cfg.Pricing.InputPerMTok),
		OutputRate:      formatRate(cfg.Pricing.OutputPerMTok),
		ThinkingRate:    formatRate(cfg.Pricing.ThinkingPerMTok),
		PersistentDedup: cfg.Ingest.PersistentDedup,
		Theme:           theme.ByName(cfg.Appearance.Theme).Name,
	}
}

// Apply writes the form values onto cfg.
func (v SetupValues) Apply(cfg config.Config) (config.Config, error) {
	rates := []struct {
		name string
		in   string
		out  *float64
	}{
		{"input", v.InputRate, &cfg.Pricing.InputPerMTok},
		{"output", v.OutputRate, &cfg.Pricing.OutputPerMTok},
		{"thinking", v.ThinkingRate, &cfg.Pricing.ThinkingPerMTok},
	}
	for _, r := range rates {
		f, err := parseRate(r.in)
		if err != nil {
			return cfg, fmt.Errorf("%s rate: %w", r.name, err)
		}
		*r.out = f
	}

	cfg.General.DataDir = strings.TrimSpace(v.DataDir)
	cfg.Ingest.CheckpointsDir = strings.TrimSpace(v.CheckpointsDir)
	cfg.Ingest.DefaultClass = string(model.ParseClass(v.DefaultClass))
	cfg.Ingest.PersistentDedup = v.PersistentDedup
	cfg.Appearance.Theme = theme.ByName(v.Theme).Name
	return cfg, nil
}

// NewSetupForm builds the configuration form bound to vals.
func NewSetupForm(vals *SetupValues) *huh.Form {
	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themeOpts = append(themeOpts, huh.NewOption(name, name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("costledger setup").
				Description("Where the ledger lives and where checkpoints are picked up from."),
			huh.NewInput().
				Title("Data directory").
				Value(&vals.DataDir).
				Validate(notBlank),
			huh.NewInput().
				Title("Checkpoints directory").
				Description("Watched by `costledger daemon`.").
				Value(&vals.CheckpointsDir).
				Validate(notBlank),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Class for new sessions").
				Options(
					huh.NewOption("Mixed", string(model.ClassMixed)),
					huh.NewOption("Retrieval-oriented", string(model.ClassRetrieval)),
					huh.NewOption("Generation baseline", string(model.ClassBaseline)),
				).
				Value(&vals.DefaultClass),
			huh.NewConfirm().
				Title("Remember processed checkpoints across restarts?").
				Value(&vals.PersistentDedup),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Input price (USD per million tokens)").
				Value(&vals.InputRate).
				Validate(validateRate),
			huh.NewInput().
				Title("Output price (USD per million tokens)").
				Value(&vals.OutputRate).
				Validate(validateRate),
			huh.NewInput().
				Title("Thinking price (USD per million tokens)").
				Value(&vals.ThinkingRate).
				Validate(validateRate),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&vals.Theme),
		),
	).WithShowHelp(true)
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func validateRate(s string) error {
	_, err := parseRate(s)
	return err
}

func parseRate(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return f, nil
}

func formatRate(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
