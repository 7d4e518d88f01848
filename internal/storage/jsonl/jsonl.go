// Package jsonl implements storage.Store as a file of JSON records, one per
// line. The file is opened, appended to and closed on every write, so the
// log stays consistent if the process is killed between cycles.
package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/multierr"

	"speedlog/internal/paths"
	"speedlog/internal/storage"
	"speedlog/internal/storage/models"
	pkgerrors "speedlog/pkg/errors"
)

// Driver is the storage driver name for this package.
const Driver = "file"

// Store is a JSON-lines log file.
type Store struct {
	path string

	mu     sync.Mutex
	closed bool
}

var _ storage.Store = (*Store)(nil)

// Open returns a store writing to path, creating the parent directories if
// needed. The file itself is created on first append.
func Open(path string) (*Store, error) {
	if err := paths.EnsureParent(path); err != nil {
		return nil, &pkgerrors.StoreError{Driver: Driver, Path: path, Err: err}
	}
	return &Store{path: path}, nil
}

// Path returns the path of the log file.
func (s *Store) Path() string {
	return s.path
}

// Append implements storage.Store.
func (s *Store) Append(ctx context.Context, rec *models.Record) (err error) {
	if rec == nil {
		return &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: pkgerrors.ErrInvalidRecord}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: fmt.Errorf("failed to encode record: %w", err)}
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: pkgerrors.ErrStoreClosed}
	}

	_, statErr := os.Stat(s.path)
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: err}
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		paths.ChownToRealUser(s.path)
	}
	defer func() {
		if err != nil {
			err = &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: err}
		}
	}()
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	if err = dropTornTail(f); err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// dropTornTail truncates f after its last newline, removing the remains of
// a write that was cut short.
func dropTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	end := info.Size()
	if end == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, end-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	buf := make([]byte, 4096)
	for off := end; off > 0; {
		n := int64(len(buf))
		if off < n {
			n = off
		}
		off -= n
		if _, err := f.ReadAt(buf[:n], off); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return f.Truncate(off + int64(i) + 1)
		}
	}
	return f.Truncate(0)
}

// List implements storage.Store. A log that has never been written reads
// as empty. A partially written final line is ignored; the next Append
// removes it.
func (s *Store) List(ctx context.Context, limit int) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: pkgerrors.ErrStoreClosed}
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &pkgerrors.StoreError{Driver: Driver, Path: s.path, Err: err}
	}
	defer f.Close()

	var recs []*models.Record
	dec := json.NewDecoder(f)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec models.Record
		err := dec.Decode(&rec)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, &pkgerrors.StoreError{
				Driver: Driver,
				Path:   s.path,
				Err:    fmt.Errorf("record %d: %w: %v", len(recs)+1, pkgerrors.ErrInvalidRecord, err),
			}
		}
		recs = append(recs, &rec)
	}
	return storage.Tail(recs, limit), nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
