package errors_test

import (
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"

	pkgerrors "speedlog/pkg/errors"
)

func TestProviderError(t *testing.T) {
	c := qt.New(t)
	base := errors.New("connection refused")
	err := pkgerrors.NewProviderError("download", "1234", base)
	c.Assert(err, qt.ErrorMatches, `download \(server 1234\): connection refused`)
	c.Assert(errors.Is(err, base), qt.IsTrue)
	c.Assert(pkgerrors.IsProvider(err), qt.IsTrue)

	wrapped := fmt.Errorf("cycle failed: %w", err)
	c.Assert(pkgerrors.IsProvider(wrapped), qt.IsTrue)

	c.Assert(pkgerrors.IsProvider(base), qt.IsFalse)
	c.Assert(pkgerrors.NewProviderError("upload", "", nil), qt.IsNil)
	c.Assert(pkgerrors.NewProviderError("closest servers", "", base), qt.ErrorMatches, `closest servers: connection refused`)
}

func TestStoreError(t *testing.T) {
	c := qt.New(t)
	err := &pkgerrors.StoreError{Driver: "file", Path: "Logs/x", Err: pkgerrors.ErrStoreClosed}
	c.Assert(err, qt.ErrorMatches, `file store 'Logs/x': store is closed`)
	c.Assert(errors.Is(err, pkgerrors.ErrStoreClosed), qt.IsTrue)
}
