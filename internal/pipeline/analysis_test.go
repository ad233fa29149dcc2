package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theirongolddev/costledger/internal/config"
	"github.com/theirongolddev/costledger/internal/model"
)

func closedSession(id string, class model.SessionClass, cost float64, start time.Time) model.Session {
	end := start.Add(30 * time.Minute)
	return model.Session{
		ID:          model.SessionID(id),
		Class:       class,
		StartedAt:   start,
		EndedAt:     &end,
		TotalCost:   cost,
		CloseReason: model.CloseManual,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComparative_Unavailable(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := []model.Session{
		closedSession("1", model.ClassRetrieval, 0.02, start),
		closedSession("2", model.ClassMixed, 0.50, start),
	}
	if _, ok := Comparative(sessions); ok {
		t.Fatal("Comparative ok = true with no baseline sessions, want false")
	}
	if _, ok := Comparative(nil); ok {
		t.Fatal("Comparative ok = true for empty ledger, want false")
	}

	// Open sessions do not count toward either group.
	open := model.Session{ID: "3", Class: model.ClassBaseline, StartedAt: start, TotalCost: 1}
	if _, ok := Comparative(append(sessions, open)); ok {
		t.Fatal("open baseline session made the comparison available")
	}
}

func TestComparative_Averages(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := []model.Session{
		closedSession("1", model.ClassRetrieval, 0.02, start),
		closedSession("2", model.ClassRetrieval, 0.04, start),
		closedSession("3", model.ClassBaseline, 0.10, start),
		closedSession("4", model.ClassBaseline, 0.10, start),
	}
	c, ok := Comparative(sessions)
	if !ok {
		t.Fatal("Comparative ok = false, want true")
	}
	if !near(c.AvgCostA, 0.03) {
		t.Errorf("AvgCostA = %.4f, want 0.03", c.AvgCostA)
	}
	if !near(c.AvgCostB, 0.10) {
		t.Errorf("AvgCostB = %.4f, want 0.10", c.AvgCostB)
	}
	if !near(c.AbsoluteSavings, 0.07) {
		t.Errorf("AbsoluteSavings = %.4f, want 0.07", c.AbsoluteSavings)
	}
	if !near(c.PercentSavings, 70) {
		t.Errorf("PercentSavings = %.4f, want 70", c.PercentSavings)
	}
	if c.CountA != 2 || c.CountB != 2 {
		t.Errorf("counts = %d/%d, want 2/2", c.CountA, c.CountB)
	}
}

func TestPatternROI_OrderAndSavings(t *testing.T) {
	patterns := map[string]*model.PatternUsage{
		"schema-template": {Name: "schema-template", Uses: 1},
		"cache-lookup":    {Name: "cache-lookup", Uses: 4},
		"alpha":           {Name: "alpha", Uses: 1},
	}
	rows := PatternROI(patterns, 0.015, 0)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].Name != "cache-lookup" || !near(rows[0].TotalSavings, 0.06) {
		t.Errorf("rows[0] = %+v, want cache-lookup with 0.06", rows[0])
	}
	if rows[1].Name != "alpha" || rows[2].Name != "schema-template" {
		t.Errorf("tie order = %s,%s, want alpha,schema-template", rows[1].Name, rows[2].Name)
	}
	if !near(rows[2].TotalSavings, 0.015) {
		t.Errorf("schema-template savings = %.4f, want 0.015", rows[2].TotalSavings)
	}
}

func TestPatternROI_TopTen(t *testing.T) {
	patterns := make(map[string]*model.PatternUsage)
	for i := 0; i < 15; i++ {
		name := string(rune('a' + i))
		patterns[name] = &model.PatternUsage{Name: name, Uses: i + 1}
	}
	rows := PatternROI(patterns, 0.015, 0)
	if len(rows) != PatternROILimit {
		t.Fatalf("len(rows) = %d, want %d", len(rows), PatternROILimit)
	}
	if rows[0].Uses != 15 {
		t.Errorf("top uses = %d, want 15", rows[0].Uses)
	}
}

func TestStatus_CountsOpenSession(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := model.NewLedger()
	l.Sessions = append(l.Sessions, closedSession("1", model.ClassBaseline, 0.25, start))
	l.Current = &model.Session{ID: "2", Class: model.ClassMixed, StartedAt: start, TotalCost: 0.5}

	st := Status(l)
	if !st.IsTracking {
		t.Error("IsTracking = false, want true")
	}
	if st.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", st.TotalSessions)
	}
	if !near(st.TotalCostAllTime, 0.75) {
		t.Errorf("TotalCostAllTime = %.2f, want 0.75", st.TotalCostAllTime)
	}
	if st.Current == nil || st.Current.ID != "2" {
		t.Errorf("Current = %+v, want session 2", st.Current)
	}
}

func TestAggregate_ByClassAndDays(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 2)
	sessions := []model.Session{
		closedSession("1", model.ClassRetrieval, 0.02, day1),
		closedSession("2", model.ClassRetrieval, 0.04, day1),
		closedSession("3", model.ClassBaseline, 0.10, day2),
	}
	sessions[2].CloseReason = model.CloseRecovered

	stats := Aggregate(sessions, time.Time{}, time.Time{})
	if stats.TotalSessions != 3 || stats.ActiveDays != 2 || stats.RecoveredSessions != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if cs := stats.ByClass[model.ClassRetrieval]; cs == nil || !near(cs.AvgCost, 0.03) {
		t.Errorf("retrieval class = %+v, want avg 0.03", cs)
	}
	if stats.TotalDurationSecs != 3*30*60 {
		t.Errorf("TotalDurationSecs = %d, want %d", stats.TotalDurationSecs, 3*30*60)
	}

	days := AggregateDays(sessions, day1, day2)
	if len(days) != 3 {
		t.Fatalf("len(days) = %d, want 3 (gap day filled)", len(days))
	}
	if days[1].Sessions != 0 {
		t.Errorf("gap day sessions = %d, want 0", days[1].Sessions)
	}
	if days[2].Sessions != 2 {
		t.Errorf("first day sessions = %d, want 2", days[2].Sessions)
	}
}

func TestAggregateCostBreakdown(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := closedSession("1", model.ClassMixed, 0, start)
	s.TokenTotals = model.TokenTotals{Input: 1_000_000, Output: 1_000_000, Thinking: 1_000_000, Tool: 1_000_000}

	totals, rows := AggregateCostBreakdown([]model.Session{s}, config.DefaultRates, time.Time{}, time.Time{})
	if !near(totals.InputCost, 3) || !near(totals.ToolCost, 15) || !near(totals.TotalCost, 48) {
		t.Errorf("totals = %+v", totals)
	}
	if len(rows) != 1 || rows[0].Class != model.ClassMixed {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLoadCheckpoints_PreservesCaptureOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"c.txt", "a.txt", "b.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0o600); err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	var calls atomic.Int32
	res, err := LoadCheckpoints(dir, func(_, _ int) { calls.Add(1) })
	if err != nil {
		t.Fatalf("LoadCheckpoints: %v", err)
	}
	if res.TotalFiles != 3 || len(res.Events) != 3 {
		t.Fatalf("res = %+v", res)
	}
	if res.Events[0].Text != "c.txt" || res.Events[2].Text != "b.txt" {
		t.Errorf("order = %q,%q,%q", res.Events[0].Text, res.Events[1].Text, res.Events[2].Text)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("progress calls = %d, want 3", n)
	}
}
