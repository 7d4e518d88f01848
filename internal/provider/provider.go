// Package provider defines the measurement provider used to discover
// speed-test servers and run latency and throughput measurements.
//
// Every logical operation opens its own Session and closes it when done;
// no provider state is shared between operations.
package provider

import (
	"context"
)

// Server describes a remote measurement server.
type Server struct {
	ID      string
	Sponsor string
	Name    string
	Host    string
	// Distance holds the distance from the client in kilometres, if known.
	Distance float64
	// Latency holds the measured round trip in milliseconds. It is nil
	// until the server has been pinged.
	Latency *float64
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Threads limits the number of concurrent connections used for
	// download and upload measurements. Zero uses the provider default.
	Threads int
}

// Provider opens measurement sessions.
type Provider interface {
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is a scoped handle onto the measurement provider. All errors
// returned by a Session are provider-level failures (*errors.ProviderError).
type Session interface {
	// ClosestServers returns up to limit candidate servers, closest first.
	ClosestServers(ctx context.Context, limit int) ([]Server, error)
	// UseServers constrains the active candidate set to the given IDs.
	UseServers(ctx context.Context, ids ...string) error
	// BestServer pings every server in the active set and returns the one
	// with the lowest latency. Subsequent measurements run against it.
	BestServer(ctx context.Context) (Server, error)
	// Download measures download throughput in bits per second.
	Download(ctx context.Context) (float64, error)
	// Upload measures upload throughput in bits per second.
	Upload(ctx context.Context) (float64, error)
	// LastPing returns the most recent round trip measured by the session
	// in milliseconds.
	LastPing() (float64, bool)
	Close() error
}
