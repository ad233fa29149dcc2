package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/costledger/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_DegradesToEmptyLedger(t *testing.T) {
	cases := map[string]*string{
		"absent":  nil,
		"empty":   strPtr(""),
		"blank":   strPtr("  \n"),
		"invalid": strPtr("{not json"),
		"array":   strPtr("[1,2,3]"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if content != nil {
				require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFile), []byte(*content), 0o600))
			}

			l := NewLedgerStore(dir, quietLogger()).Load()
			require.NotNil(t, l)
			require.Empty(t, l.Sessions)
			require.Nil(t, l.Current)
			require.NotNil(t, l.Patterns)
			require.Equal(t, model.LedgerVersion, l.Version)
		})
	}
}

func TestLoad_CorruptLedgerSurvivesNextSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LedgerFile)
	corrupt := []byte(`{"version":1,"sessions":[{"id":"1","totalCost":12.5}],"patterns":{}`)
	require.NoError(t, os.WriteFile(path, corrupt, 0o600))

	st := NewLedgerStore(dir, quietLogger())
	l := st.Load()
	require.Empty(t, l.Sessions)
	require.NoError(t, st.Save(l))

	aside, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, aside, 1)
	got, err := os.ReadFile(aside[0])
	require.NoError(t, err)
	require.Equal(t, corrupt, got)
	require.FileExists(t, path)
}

func TestSaveLoad_RoundTripsCurrentAndPatterns(t *testing.T) {
	dir := t.TempDir()
	s := NewLedgerStore(dir, quietLogger())

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	l := model.NewLedger()
	l.Sessions = append(l.Sessions, model.Session{
		ID: "1000", Class: model.ClassBaseline, StartedAt: start, EndedAt: &end,
		CloseReason: model.CloseManual, TotalCost: 0.1,
	})
	l.Current = &model.Session{ID: "2000", Class: model.ClassRetrieval, StartedAt: end}
	l.Patterns["cache-lookup"] = &model.PatternUsage{Name: "cache-lookup", Uses: 4}

	require.NoError(t, s.Save(l))

	got := s.Load()
	require.Len(t, got.Sessions, 1)
	require.Equal(t, model.SessionID("1000"), got.Sessions[0].ID)
	require.NotNil(t, got.Current)
	require.True(t, got.Current.IsOpen())
	require.Equal(t, 4, got.Patterns["cache-lookup"].Uses)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp-", "temp file left behind")
	}
}

func TestLoad_MigratesLegacyCheckpointDocument(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
	  "sessions": [
	    {"id": 1700000000000, "type": "scms", "startTime": 1700000000000, "endTime": 1700000600000,
	     "interactions": [], "patterns": ["cache-lookup"], "totalCost": 0.0123,
	     "tokenBreakdown": {"input": 3000, "output": 200, "thinking": 0, "tools": 0}},
	    {"id": 1700000900000, "type": "baseline", "startTime": "2023-11-14T22:35:00.000Z",
	     "interactions": [{"timestamp": "2023-11-14T22:36:00.000Z", "userPrompt": "hi",
	       "userTokens": 1, "contextTokens": 10, "responseTokens": 5, "cost": 0.0001}],
	     "tokenBreakdown": {"input": 11, "output": 5, "thinking": 0, "tools": 0}, "totalCost": 0.0001}
	  ],
	  "patterns": {"cache-lookup": 3, "schema-template": {"uses": 1}}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFile), []byte(legacy), 0o600))

	l := NewLedgerStore(dir, quietLogger()).Load()

	require.Len(t, l.Sessions, 1)
	closed := l.Sessions[0]
	require.Equal(t, model.SessionID("1700000000000"), closed.ID)
	require.Equal(t, model.ClassRetrieval, closed.Class)
	require.Equal(t, model.CloseManual, closed.CloseReason)
	require.Equal(t, int64(3000), closed.TokenTotals.Input)
	require.NotNil(t, closed.Checkpoint, "totals-only session keeps a baseline")

	require.NotNil(t, l.Current)
	require.Equal(t, model.ClassBaseline, l.Current.Class)
	require.Len(t, l.Current.Interactions, 1)
	require.Equal(t, int64(1), l.Current.Interactions[0].InputTokens)
	require.Equal(t, int64(11), l.Current.TokenTotals.Input)

	require.Equal(t, 3, l.Patterns["cache-lookup"].Uses)
	require.Equal(t, 1, l.Patterns["schema-template"].Uses)
}

func TestDecodeLegacyPatterns_AllShapes(t *testing.T) {
	shapes := map[string]string{
		"map entries": `[["cache-lookup", {"name": "cache-lookup", "uses": 4, "totalSavings": 0.06}], ["schema-template", {"uses": 1}]]`,
		"records":     `[{"name": "cache-lookup", "uses": 4}, {"name": "schema-template", "uses": 1}]`,
		"counts":      `{"cache-lookup": 4, "schema-template": 1}`,
		"objects":     `{"cache-lookup": {"uses": 4}, "schema-template": {"uses": 1}}`,
	}
	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := decodeLegacyPatterns([]byte(raw))
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, 4, got["cache-lookup"].Uses)
			require.Equal(t, 1, got["schema-template"].Uses)
		})
	}
}

func TestMigrateLegacy_KeepsOnlyNewestOpenSession(t *testing.T) {
	legacy := `{"sessions": [
	  {"id": 1, "type": "mixed", "startTime": 1000},
	  {"id": 2, "type": "scms", "startTime": 5000}
	]}`
	l, migrated, err := decodeLedger([]byte(legacy))
	require.NoError(t, err)
	require.True(t, migrated)
	require.NotNil(t, l.Current)
	require.Equal(t, model.SessionID("2"), l.Current.ID)
	require.Len(t, l.Sessions, 1)
	require.Equal(t, model.CloseRecovered, l.Sessions[0].CloseReason)
}

func TestMarkerStore_Lifecycle(t *testing.T) {
	m := NewMarkerStore(t.TempDir())

	got, err := m.Read()
	require.NoError(t, err)
	require.Nil(t, got)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.Write(model.Marker{ID: "42", Class: model.ClassMixed, StartedAt: start}))

	got, err = m.Read()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.SessionID("42"), got.ID)
	require.True(t, got.StartedAt.Equal(start))

	require.NoError(t, m.Remove())
	require.NoError(t, m.Remove(), "removing twice is fine")
	got, err = m.Read()
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestJournal_WindowAndCap(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), JournalFile), time.Hour, 2, quietLogger())
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.False(t, j.Seen("a", now))

	j.Mark("a", now)
	require.True(t, j.Seen("a", now.Add(30*time.Minute)))
	require.False(t, j.Seen("a", now.Add(2*time.Hour)), "entries expire after the window")

	j.Mark("b", now.Add(time.Minute))
	j.Mark("c", now.Add(2*time.Minute))
	count, err := j.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.False(t, j.Seen("a", now.Add(3*time.Minute)), "oldest entry evicted by the cap")
	require.True(t, j.Seen("c", now.Add(3*time.Minute)))
}

func TestJournal_RecordRecent(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), JournalFile), time.Hour, 10, quietLogger())
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(IngestRecord{ProcessedAt: now, SourceID: "a.txt", SessionID: "1", Markers: 2, Delta: 100}))
	require.NoError(t, j.Record(IngestRecord{ProcessedAt: now.Add(time.Minute), SessionID: "1", Markers: 1, Delta: 50, CreatedSession: true}))

	recent, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, int64(50), recent[0].Delta)
	require.True(t, recent[0].CreatedSession)
	require.Equal(t, "a.txt", recent[1].SourceID)
}

func TestJournal_IngestLogIsCapped(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), JournalFile), time.Hour, 2, quietLogger())
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, j.Record(IngestRecord{ProcessedAt: now.Add(time.Duration(i) * time.Minute), SessionID: "1", Delta: int64(i)}))
	}
	_, err = j.Prune(now.Add(10 * time.Minute))
	require.NoError(t, err)

	recent, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, int64(5), recent[0].Delta)
	require.Equal(t, int64(4), recent[1].Delta)
}

func strPtr(s string) *string { return &s }
