package pipeline

import (
	"sort"

	"github.com/theirongolddev/costledger/internal/model"
)

// PatternROILimit is how many patterns the ROI ranking keeps.
const PatternROILimit = 10

// Comparative compares the average cost of closed retrieval-oriented
// sessions (A) against closed generation-baseline sessions (B). It reports
// false when either group is empty.
func Comparative(sessions []model.Session) (model.Comparison, bool) {
	var sumA, sumB float64
	var countA, countB int
	for _, s := range sessions {
		if s.IsOpen() {
			continue
		}
		switch s.Class {
		case model.ClassRetrieval:
			sumA += s.TotalCost
			countA++
		case model.ClassBaseline:
			sumB += s.TotalCost
			countB++
		}
	}
	if countA == 0 || countB == 0 {
		return model.Comparison{}, false
	}

	c := model.Comparison{
		AvgCostA: sumA / float64(countA),
		AvgCostB: sumB / float64(countB),
		CountA:   countA,
		CountB:   countB,
	}
	c.AbsoluteSavings = c.AvgCostB - c.AvgCostA
	if c.AvgCostB != 0 {
		c.PercentSavings = c.AbsoluteSavings / c.AvgCostB * 100
	}
	return c, true
}

// PatternROI ranks patterns by derived savings (uses × credit), highest
// first, ties by name, keeping at most limit entries. A limit of zero or
// less uses PatternROILimit.
func PatternROI(patterns map[string]*model.PatternUsage, credit float64, limit int) []model.PatternUsage {
	if limit <= 0 {
		limit = PatternROILimit
	}
	out := make([]model.PatternUsage, 0, len(patterns))
	for name, p := range patterns {
		if p == nil {
			continue
		}
		row := model.PatternUsage{Name: p.Name, Uses: p.Uses}
		if row.Name == "" {
			row.Name = name
		}
		row.TotalSavings = float64(row.Uses) * credit
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSavings != out[j].TotalSavings {
			return out[i].TotalSavings > out[j].TotalSavings
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Status projects the ledger for presentation layers.
func Status(l *model.Ledger) model.Status {
	st := model.Status{IsTracking: l.Current != nil}
	for i := range l.Sessions {
		st.TotalSessions++
		st.TotalCostAllTime += l.Sessions[i].TotalCost
	}
	if l.Current != nil {
		sum := model.Summarize(l.Current)
		st.Current = &sum
		st.TotalSessions++
		st.TotalCostAllTime += l.Current.TotalCost
	}
	return st
}
