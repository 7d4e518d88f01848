package storage

import (
	"context"

	"speedlog/internal/storage/models"
)

// Store is an append-only log of measurement records.
type Store interface {
	// Append persists one record at the end of the log.
	Append(ctx context.Context, rec *models.Record) error

	// List returns the records in the order they were appended. If limit
	// is positive only the most recent limit records are returned, still
	// oldest first. Reading has no side effects.
	List(ctx context.Context, limit int) ([]*models.Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Tail returns the last n records of recs, or all of them if n is not
// positive.
func Tail(recs []*models.Record, n int) []*models.Record {
	if n <= 0 || len(recs) <= n {
		return recs
	}
	return recs[len(recs)-n:]
}
