// Package sqlite implements storage.Store on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"speedlog/internal/paths"
	"speedlog/internal/storage"
	"speedlog/internal/storage/models"
	pkgerrors "speedlog/pkg/errors"
)

// Driver is the storage driver name for this package.
const Driver = "sqlite"

// DB implements storage.Store using SQLite
type DB struct {
	db   *sql.DB
	path string

	mu     sync.RWMutex
	closed bool
}

var _ storage.Store = (*DB)(nil)

// New creates a new SQLite storage instance
func New(dbPath string) (*DB, error) {
	if err := paths.EnsureParent(dbPath); err != nil {
		return nil, &pkgerrors.StoreError{Driver: Driver, Path: dbPath, Err: err}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are rare and sequential.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &DB{db: db, path: dbPath}
	if err := runMigrations(store); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	paths.ChownToRealUser(dbPath)
	return store, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

func (d *DB) Append(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return &pkgerrors.StoreError{Driver: Driver, Path: d.path, Err: pkgerrors.ErrInvalidRecord}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return &pkgerrors.StoreError{Driver: Driver, Path: d.path, Err: pkgerrors.ErrStoreClosed}
	}

	query := `
		INSERT INTO speed_records (
			cycle_id, timestamp, timestamp_iso,
			server_id_requested, server_id_resolved, server_sponsor, server_name, server_host,
			latency, download_speed_mbps, upload_speed_mbps, ping, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, query,
		rec.CycleID, rec.Timestamp, rec.TimestampISO,
		rec.ServerIDRequested, rec.ServerIDResolved, rec.ServerSponsor, rec.ServerName, rec.ServerHost,
		rec.Latency, rec.DownloadSpeedMbps, rec.UploadSpeedMbps, rec.Ping, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

func (d *DB) List(ctx context.Context, limit int) ([]*models.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, &pkgerrors.StoreError{Driver: Driver, Path: d.path, Err: pkgerrors.ErrStoreClosed}
	}

	query := `
		SELECT cycle_id, timestamp, timestamp_iso,
			server_id_requested, server_id_resolved, server_sponsor, server_name, server_host,
			latency, download_speed_mbps, upload_speed_mbps, ping, error
		FROM speed_records
		ORDER BY id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		rec := &models.Record{}
		var cycleID sql.NullString
		err := rows.Scan(
			&cycleID, &rec.Timestamp, &rec.TimestampISO,
			&rec.ServerIDRequested, &rec.ServerIDResolved, &rec.ServerSponsor, &rec.ServerName, &rec.ServerHost,
			&rec.Latency, &rec.DownloadSpeedMbps, &rec.UploadSpeedMbps, &rec.Ping, &rec.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.CycleID = cycleID.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	// Rows come newest first so LIMIT keeps the tail.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}
