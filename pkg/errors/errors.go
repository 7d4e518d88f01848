package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Provider errors
	ErrNoServer       = errors.New("no server ID currently available")
	ErrNoCandidates   = errors.New("no candidate servers available")
	ErrUnknownServer  = errors.New("server not found")
	ErrNoLatency      = errors.New("no latency data available")
	ErrNoActiveServer = errors.New("no server selected")
	ErrNoTransfer     = errors.New("no data transferred")

	// Storage errors
	ErrStoreClosed   = errors.New("store is closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrMissingDSN    = errors.New("storage driver requires a DSN")
	ErrInvalidRecord = errors.New("invalid record")

	// Scheduler errors
	ErrSchedulerRunning = errors.New("scheduler is already running")
	ErrSchedulerStopped = errors.New("scheduler is not running")
)

// ProviderError represents a failure raised by the measurement provider.
// It is the only error class the selector and runner recover from locally.
type ProviderError struct {
	Op       string
	ServerID string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.ServerID != "" {
		return fmt.Sprintf("%s (server %s): %v", e.Op, e.ServerID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a provider-level failure. It returns nil if
// err is nil.
func NewProviderError(op, serverID string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Op: op, ServerID: serverID, Err: err}
}

// IsProvider reports whether any error in err's chain is a provider-level failure.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// StoreError represents a storage-related error
type StoreError struct {
	Driver string
	Path   string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s store '%s': %v", e.Driver, e.Path, e.Err)
	}
	return fmt.Sprintf("%s store: %v", e.Driver, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
