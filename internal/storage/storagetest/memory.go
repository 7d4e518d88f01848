// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"sync"

	"speedlog/internal/storage"
	"speedlog/internal/storage/models"
	pkgerrors "speedlog/pkg/errors"
)

// Memory is a storage.Store that keeps records in memory.
type Memory struct {
	// AppendErr, if set, is returned by every Append.
	AppendErr error

	mu      sync.Mutex
	records []*models.Record
	closed  bool
}

var _ storage.Store = (*Memory)(nil)

func (m *Memory) Append(ctx context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return pkgerrors.ErrStoreClosed
	}
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, pkgerrors.ErrStoreClosed
	}
	return storage.Tail(append([]*models.Record(nil), m.records...), limit), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Records returns everything appended so far.
func (m *Memory) Records() []*models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Record(nil), m.records...)
}
