package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

// JournalFile is the ingest journal's file name inside the data dir.
const JournalFile = "ingest.db"

// Journal is a SQLite-backed record of processed checkpoints. It remembers
// dedup keys for a bounded window so re-ingesting a source after a restart
// stays a no-op, and keeps a log of ingest results for display.
type Journal struct {
	db         *sql.DB
	log        *slog.Logger
	ttl        time.Duration
	maxEntries int
}

// IngestRecord is one row of the ingest log.
type IngestRecord struct {
	ProcessedAt    time.Time
	SourceID       string
	SessionID      string
	Markers        int
	Delta          int64
	Input          int64
	Output         int64
	Cost           float64
	CreatedSession bool
}

// OpenJournal opens or creates the journal database at the given path.
func OpenJournal(dbPath string, ttl time.Duration, maxEntries int, log *slog.Logger) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Journal{db: db, log: log, ttl: ttl, maxEntries: maxEntries}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Seen reports whether key was processed within the window ending at now.
func (j *Journal) Seen(key string, now time.Time) bool {
	var at int64
	err := j.db.QueryRow("SELECT processed_at_ms FROM processed_checkpoints WHERE dedup_key = ?", key).Scan(&at)
	if err != nil {
		if err != sql.ErrNoRows {
			j.log.Warn("journal lookup failed", "err", err)
		}
		return false
	}
	if j.ttl <= 0 {
		return true
	}
	return now.Sub(time.UnixMilli(at)) <= j.ttl
}

// Mark records key as processed at now and trims the table to its bounds.
func (j *Journal) Mark(key string, now time.Time) {
	_, err := j.db.Exec(`INSERT OR REPLACE INTO processed_checkpoints (dedup_key, processed_at_ms)
		VALUES (?, ?)`, key, now.UnixMilli())
	if err != nil {
		j.log.Warn("journal mark failed", "err", err)
		return
	}
	if _, err := j.Prune(now); err != nil {
		j.log.Warn("journal prune failed", "err", err)
	}
}

// trimLogSQL keeps only the newest maxEntries ingest log rows.
const trimLogSQL = `DELETE FROM ingest_log WHERE id IN (
	SELECT id FROM ingest_log ORDER BY id DESC LIMIT -1 OFFSET ?)`

// Prune drops keys older than the window, then the oldest keys beyond the
// entry cap, and trims the ingest log to the same cap. It returns the
// number of rows removed.
func (j *Journal) Prune(now time.Time) (int64, error) {
	tx, err := j.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var removed int64
	if j.ttl > 0 {
		res, err := tx.Exec("DELETE FROM processed_checkpoints WHERE processed_at_ms < ?",
			now.Add(-j.ttl).UnixMilli())
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	res, err := tx.Exec(`DELETE FROM processed_checkpoints WHERE dedup_key IN (
		SELECT dedup_key FROM processed_checkpoints
		ORDER BY processed_at_ms DESC LIMIT -1 OFFSET ?)`, j.maxEntries)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	removed += n

	res, err = tx.Exec(trimLogSQL, j.maxEntries)
	if err != nil {
		return 0, err
	}
	n, _ = res.RowsAffected()
	removed += n

	return removed, tx.Commit()
}

// Count returns the number of remembered keys.
func (j *Journal) Count() (int, error) {
	var count int
	err := j.db.QueryRow("SELECT COUNT(*) FROM processed_checkpoints").Scan(&count)
	return count, err
}

// Record appends an ingest result to the log.
func (j *Journal) Record(r IngestRecord) error {
	created := 0
	if r.CreatedSession {
		created = 1
	}
	_, err := j.db.Exec(`INSERT INTO ingest_log
		(processed_at, source_id, session_id, markers, delta_tokens,
		 input_tokens, output_tokens, estimated_cost, created_session)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ProcessedAt.UTC().Format(time.RFC3339), r.SourceID, r.SessionID, r.Markers, r.Delta,
		r.Input, r.Output, r.Cost, created,
	)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(trimLogSQL, j.maxEntries)
	return err
}

// Recent returns the newest ingest log rows, newest first.
func (j *Journal) Recent(limit int) ([]IngestRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`SELECT
		processed_at, source_id, session_id, markers, delta_tokens,
		input_tokens, output_tokens, estimated_cost, created_session
		FROM ingest_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []IngestRecord
	for rows.Next() {
		var r IngestRecord
		var at string
		var source sql.NullString
		var created int
		if err := rows.Scan(&at, &source, &r.SessionID, &r.Markers, &r.Delta,
			&r.Input, &r.Output, &r.Cost, &created); err != nil {
			return nil, err
		}
		r.ProcessedAt, _ = time.Parse(time.RFC3339, at)
		if source.Valid {
			r.SourceID = source.String
		}
		r.CreatedSession = created != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
