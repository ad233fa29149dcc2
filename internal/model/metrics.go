package model

import "time"

// ClassStats holds aggregates for one session class.
type ClassStats struct {
	Class          SessionClass
	Sessions       int
	Interactions   int
	Tokens         TokenTotals
	TotalCost      float64
	AvgCost        float64
	RetrievalRatio float64
}

// SummaryStats holds the top-level aggregate across sessions.
type SummaryStats struct {
	TotalSessions     int
	ClosedSessions    int
	RecoveredSessions int
	TotalInteractions int
	TotalDurationSecs int64
	ActiveDays        int

	Tokens    TokenTotals
	TotalCost float64

	CostPerSession  float64
	CostPerDay      float64
	AvgRetrievalPct float64

	ByClass map[SessionClass]*ClassStats
}

// DailyStats holds metrics for a single calendar day.
type DailyStats struct {
	Date         time.Time
	Sessions     int
	Interactions int
	Tokens       int64
	Cost         float64
}

// Comparison is the cost comparison between retrieval-oriented (A) and
// generation-baseline (B) sessions.
type Comparison struct {
	AvgCostA        float64 `json:"avgCostA"`
	AvgCostB        float64 `json:"avgCostB"`
	AbsoluteSavings float64 `json:"absoluteSavings"`
	PercentSavings  float64 `json:"percentSavings"`
	CountA          int     `json:"countA"`
	CountB          int     `json:"countB"`
}

// SessionSummary is a cheap projection of one session.
type SessionSummary struct {
	ID             SessionID    `json:"id"`
	Class          SessionClass `json:"sessionClass"`
	StartedAt      time.Time    `json:"startedAt"`
	Interactions   int          `json:"interactions"`
	Tokens         TokenTotals  `json:"tokenTotals"`
	TotalCost      float64      `json:"totalCost"`
	RetrievalRatio float64      `json:"retrievalRatio"`
}

// Status is the read-only projection shown by presentation layers.
type Status struct {
	IsTracking       bool            `json:"isTracking"`
	Current          *SessionSummary `json:"currentSession"`
	TotalSessions    int             `json:"totalSessions"`
	TotalCostAllTime float64         `json:"totalCostAllTime"`
}

// Summarize projects a session.
func Summarize(s *Session) SessionSummary {
	return SessionSummary{
		ID:             s.ID,
		Class:          s.Class,
		StartedAt:      s.StartedAt,
		Interactions:   len(s.Interactions),
		Tokens:         s.TokenTotals,
		TotalCost:      s.TotalCost,
		RetrievalRatio: s.RetrievalRatio,
	}
}
