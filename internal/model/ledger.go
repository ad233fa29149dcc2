package model

import "sort"

// LedgerVersion is the schema version written by this build.
const LedgerVersion = 1

// PatternUsage is the ledger-wide counter for one pattern name.
// TotalSavings is derived from Uses and the per-use credit on every read.
type PatternUsage struct {
	Name         string  `json:"name"`
	Uses         int     `json:"uses"`
	TotalSavings float64 `json:"totalSavings"`
}

// Ledger is the full persisted state.
type Ledger struct {
	Version  int                      `json:"version"`
	Sessions []Session                `json:"sessions"`
	Current  *Session                 `json:"currentSession"`
	Patterns map[string]*PatternUsage `json:"patterns"`
}

// NewLedger returns an empty, valid ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Version:  LedgerVersion,
		Sessions: []Session{},
		Patterns: map[string]*PatternUsage{},
	}
}

// Normalize fills nil collections so a partially-shaped document behaves
// like an empty one.
func (l *Ledger) Normalize() {
	if l.Version == 0 {
		l.Version = LedgerVersion
	}
	if l.Sessions == nil {
		l.Sessions = []Session{}
	}
	if l.Patterns == nil {
		l.Patterns = map[string]*PatternUsage{}
	}
	for name, p := range l.Patterns {
		if p == nil {
			delete(l.Patterns, name)
			continue
		}
		if p.Name == "" {
			p.Name = name
		}
	}
	if l.Current != nil && !l.Current.IsOpen() {
		l.Sessions = append(l.Sessions, *l.Current)
		l.Current = nil
	}
}

// Find returns the session with the given id, open or closed.
func (l *Ledger) Find(id SessionID) *Session {
	if id == "" {
		return nil
	}
	if l.Current != nil && l.Current.ID == id {
		return l.Current
	}
	for i := range l.Sessions {
		if l.Sessions[i].ID == id {
			return &l.Sessions[i]
		}
	}
	return nil
}

// All returns closed sessions followed by the open one, if any.
func (l *Ledger) All() []Session {
	out := make([]Session, 0, len(l.Sessions)+1)
	out = append(out, l.Sessions...)
	if l.Current != nil {
		out = append(out, *l.Current)
	}
	return out
}

// LatestID returns the numerically largest session id in the ledger.
func (l *Ledger) LatestID() int64 {
	var maxID int64
	for i := range l.Sessions {
		if n := l.Sessions[i].ID.Millis(); n > maxID {
			maxID = n
		}
	}
	if l.Current != nil {
		if n := l.Current.ID.Millis(); n > maxID {
			maxID = n
		}
	}
	return maxID
}

// SortSessions orders closed sessions by start time, oldest first.
func (l *Ledger) SortSessions() {
	sort.SliceStable(l.Sessions, func(i, j int) bool {
		return l.Sessions[i].StartedAt.Before(l.Sessions[j].StartedAt)
	})
}
