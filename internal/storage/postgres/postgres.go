// Package postgres implements storage.Store on PostgreSQL using bun.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"speedlog/internal/storage"
	"speedlog/internal/storage/models"
	pkgerrors "speedlog/pkg/errors"
)

// Driver is the storage driver name for this package.
const Driver = "postgres"

type speedRecord struct {
	bun.BaseModel `bun:"table:speed_records,alias:sr"`

	ID           int64   `bun:",pk,autoincrement"`
	CycleID      string  `bun:",notnull,default:''"`
	Timestamp    float64 `bun:",notnull"`
	TimestampISO string  `bun:",notnull"`

	ServerIDRequested *string
	ServerIDResolved  *string
	ServerSponsor     *string
	ServerName        *string
	ServerHost        *string

	Latency           *float64
	DownloadSpeedMbps *float64
	UploadSpeedMbps   *float64
	Ping              *float64

	Error string `bun:",notnull,default:''"`
}

func fromRecord(rec *models.Record) *speedRecord {
	return &speedRecord{
		CycleID:           rec.CycleID,
		Timestamp:         rec.Timestamp,
		TimestampISO:      rec.TimestampISO,
		ServerIDRequested: rec.ServerIDRequested,
		ServerIDResolved:  rec.ServerIDResolved,
		ServerSponsor:     rec.ServerSponsor,
		ServerName:        rec.ServerName,
		ServerHost:        rec.ServerHost,
		Latency:           rec.Latency,
		DownloadSpeedMbps: rec.DownloadSpeedMbps,
		UploadSpeedMbps:   rec.UploadSpeedMbps,
		Ping:              rec.Ping,
		Error:             rec.Error,
	}
}

func (r *speedRecord) toRecord() *models.Record {
	return &models.Record{
		CycleID:           r.CycleID,
		Timestamp:         r.Timestamp,
		TimestampISO:      r.TimestampISO,
		ServerIDRequested: r.ServerIDRequested,
		ServerIDResolved:  r.ServerIDResolved,
		ServerSponsor:     r.ServerSponsor,
		ServerName:        r.ServerName,
		ServerHost:        r.ServerHost,
		Latency:           r.Latency,
		DownloadSpeedMbps: r.DownloadSpeedMbps,
		UploadSpeedMbps:   r.UploadSpeedMbps,
		Ping:              r.Ping,
		Error:             r.Error,
	}
}

// DB implements storage.Store on a PostgreSQL database.
type DB struct {
	*bun.DB
}

var _ storage.Store = (*DB)(nil)

// Open connects to the database at dsn and creates the records table if
// it does not exist.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, &pkgerrors.StoreError{Driver: Driver, Err: pkgerrors.ErrMissingDSN}
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := &DB{bun.NewDB(sqldb, pgdialect.New())}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*speedRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (db *DB) Append(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return &pkgerrors.StoreError{Driver: Driver, Err: pkgerrors.ErrInvalidRecord}
	}
	if _, err := db.NewInsert().Model(fromRecord(rec)).Exec(ctx); err != nil {
		return fmt.Errorf("error appending record: %w", err)
	}
	return nil
}

func (db *DB) List(ctx context.Context, limit int) ([]*models.Record, error) {
	var rows []speedRecord
	q := db.NewSelect().Model(&rows).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	recs := make([]*models.Record, len(rows))
	for i := range rows {
		recs[len(rows)-1-i] = rows[i].toRecord()
	}
	return recs, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
