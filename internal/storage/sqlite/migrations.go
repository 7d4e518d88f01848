package sqlite

const schema = `
-- One row per measurement cycle, in append order
CREATE TABLE IF NOT EXISTS speed_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id TEXT,
    timestamp REAL NOT NULL,
    timestamp_iso TEXT NOT NULL,

    -- Server details
    server_id_requested TEXT,
    server_id_resolved TEXT,
    server_sponsor TEXT,
    server_name TEXT,
    server_host TEXT,

    -- Measurements, NULL when not measured
    latency REAL,
    download_speed_mbps REAL,
    upload_speed_mbps REAL,
    ping REAL,

    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_speed_records_timestamp ON speed_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_speed_records_server ON speed_records(server_id_resolved);
`

// runMigrations executes the database schema
func runMigrations(db *DB) error {
	if _, err := db.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
