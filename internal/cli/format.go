// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/theirongolddev/costledger/internal/model"

	"github.com/dustin/go-humanize"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatCost formats a USD cost. Sub-dollar amounts keep four decimals
// since single interactions usually cost fractions of a cent.
func FormatCost(cost float64) string {
	if cost < 0 {
		return "-" + FormatCost(-cost)
	}
	switch {
	case cost >= 1000:
		return "$" + FormatNumber(int64(math.Round(cost)))
	case cost >= 10:
		return fmt.Sprintf("$%.2f", cost)
	case cost >= 1:
		return fmt.Sprintf("$%.3f", cost)
	default:
		return fmt.Sprintf("$%.4f", cost)
	}
}

// FormatDuration formats a duration as "1h 2m", "2m", or "45s".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0s"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// FormatPercent formats a value already on a 0-100 scale.
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatSavings renders a comparison's savings with a sign, e.g.
// "+$0.0421 (38.2%)". Negative savings mean retrieval sessions cost more.
func FormatSavings(c model.Comparison) string {
	sign := "+"
	if c.AbsoluteSavings < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s (%s)", sign, FormatCost(math.Abs(c.AbsoluteSavings)), FormatPercent(c.PercentSavings))
}

// FormatTime renders a timestamp in local time, or "-" when unset.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatAgo renders a past timestamp relative to now, e.g. "3 minutes ago".
func FormatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
