// Package pipeline derives read-side statistics from the ledger.
package pipeline

import (
	"sort"
	"time"

	"github.com/theirongolddev/costledger/internal/model"
)

// Aggregate computes summary statistics from sessions whose start time
// falls within [since, until). Zero bounds mean unbounded.
func Aggregate(sessions []model.Session, since, until time.Time) model.SummaryStats {
	filtered := FilterByTime(sessions, since, until)

	stats := model.SummaryStats{ByClass: make(map[model.SessionClass]*model.ClassStats)}
	activeDays := make(map[string]struct{})
	var retrievalSum float64

	for i := range filtered {
		s := &filtered[i]
		stats.TotalSessions++
		if !s.IsOpen() {
			stats.ClosedSessions++
			stats.TotalDurationSecs += int64(s.Duration(s.StartedAt).Seconds())
		}
		if s.CloseReason == model.CloseRecovered {
			stats.RecoveredSessions++
		}
		stats.TotalInteractions += len(s.Interactions)
		stats.Tokens = stats.Tokens.Add(s.TokenTotals)
		stats.TotalCost += s.TotalCost
		retrievalSum += s.RetrievalRatio

		cs, ok := stats.ByClass[s.Class]
		if !ok {
			cs = &model.ClassStats{Class: s.Class}
			stats.ByClass[s.Class] = cs
		}
		cs.Sessions++
		cs.Interactions += len(s.Interactions)
		cs.Tokens = cs.Tokens.Add(s.TokenTotals)
		cs.TotalCost += s.TotalCost
		cs.RetrievalRatio += s.RetrievalRatio

		if !s.StartedAt.IsZero() {
			day := s.StartedAt.Local().Format("2006-01-02")
			activeDays[day] = struct{}{}
		}
	}

	for _, cs := range stats.ByClass {
		cs.AvgCost = cs.TotalCost / float64(cs.Sessions)
		cs.RetrievalRatio /= float64(cs.Sessions)
	}

	stats.ActiveDays = len(activeDays)
	if stats.TotalSessions > 0 {
		stats.CostPerSession = stats.TotalCost / float64(stats.TotalSessions)
		stats.AvgRetrievalPct = retrievalSum / float64(stats.TotalSessions)
	}
	if stats.ActiveDays > 0 {
		stats.CostPerDay = stats.TotalCost / float64(stats.ActiveDays)
	}

	return stats
}

// AggregateDays computes per-day statistics from sessions, filling every
// day in the range so gaps show as zeros. Most recent first.
func AggregateDays(sessions []model.Session, since, until time.Time) []model.DailyStats {
	filtered := FilterByTime(sessions, since, until)

	dayMap := make(map[string]*model.DailyStats)

	for _, s := range filtered {
		if s.StartedAt.IsZero() {
			continue
		}
		dayKey := s.StartedAt.Local().Format("2006-01-02")
		ds, ok := dayMap[dayKey]
		if !ok {
			t, _ := time.ParseInLocation("2006-01-02", dayKey, time.Local)
			ds = &model.DailyStats{Date: t}
			dayMap[dayKey] = ds
		}

		ds.Sessions++
		ds.Interactions += len(s.Interactions)
		ds.Tokens += s.TokenTotals.Total()
		ds.Cost += s.TotalCost
	}

	if !since.IsZero() && !until.IsZero() {
		day := startOfDay(since)
		end := startOfDay(until)
		for !day.After(end) {
			dayKey := day.Format("2006-01-02")
			if _, ok := dayMap[dayKey]; !ok {
				dayMap[dayKey] = &model.DailyStats{Date: day}
			}
			day = day.AddDate(0, 0, 1)
		}
	}

	days := make([]model.DailyStats, 0, len(dayMap))
	for _, ds := range dayMap {
		days = append(days, *ds)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})

	return days
}

// FilterByTime returns sessions whose start time falls within [since, until).
func FilterByTime(sessions []model.Session, since, until time.Time) []model.Session {
	if since.IsZero() && until.IsZero() {
		return sessions
	}

	var result []model.Session
	for _, s := range sessions {
		if s.StartedAt.IsZero() {
			continue
		}
		if !since.IsZero() && s.StartedAt.Before(since) {
			continue
		}
		if !until.IsZero() && !s.StartedAt.Before(until) {
			continue
		}
		result = append(result, s)
	}
	return result
}

// FilterByClass returns sessions of the given class. An empty class keeps
// everything.
func FilterByClass(sessions []model.Session, class model.SessionClass) []model.Session {
	if class == "" {
		return sessions
	}
	var result []model.Session
	for _, s := range sessions {
		if s.Class == class {
			result = append(result, s)
		}
	}
	return result
}

// Closed drops the open session, if present.
func Closed(sessions []model.Session) []model.Session {
	result := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.IsOpen() {
			result = append(result, s)
		}
	}
	return result
}

// Recent returns up to n sessions, newest start first.
func Recent(sessions []model.Session, n int) []model.Session {
	out := make([]model.Session, len(sessions))
	copy(out, sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	l := t.Local()
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.Local)
}
