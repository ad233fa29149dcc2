package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS processed_checkpoints (
    dedup_key            TEXT PRIMARY KEY,
    processed_at_ms      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_log (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    processed_at         TEXT NOT NULL,
    source_id            TEXT,
    session_id           TEXT NOT NULL,
    markers              INTEGER NOT NULL,
    delta_tokens         INTEGER NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    estimated_cost       REAL NOT NULL,
    created_session      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_checkpoints(processed_at_ms);
CREATE INDEX IF NOT EXISTS idx_ingest_log_session ON ingest_log(session_id);
`
