// Package providertest implements an in-memory provider.Provider that
// can be scripted to return given latencies and throughputs, and to fail
// on chosen operations.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"speedlog/internal/provider"
	pkgerrors "speedlog/pkg/errors"
)

// Operation names passed to Fake.Fail and recorded in Fake.Calls.
const (
	OpOpen     = "open"
	OpClosest  = "closest"
	OpUse      = "use"
	OpBest     = "best"
	OpDownload = "download"
	OpUpload   = "upload"
)

// Fake is a scriptable provider. The zero value has no servers.
// Fields must not be changed while sessions are in use.
type Fake struct {
	// Servers holds the candidate servers in order of distance.
	Servers []provider.Server
	// Latency holds the latency reported by BestServer, by server ID.
	// Servers without an entry report no latency.
	Latency map[string]float64
	// Download and Upload hold throughputs in bits per second, by server ID.
	Download map[string]float64
	Upload   map[string]float64
	// Ping holds the value reported by Session.LastPing once a server has
	// been selected. A zero Ping reports no value.
	Ping float64
	// ResolvedID, if non-nil, overrides the ID reported by BestServer.
	ResolvedID *string
	// Fail is called before every operation with the operation name and the
	// server ID involved (empty when none). A non-nil error is returned as a
	// provider-level failure unless Raw is set.
	Fail func(op, id string) error
	// Raw causes errors from Fail to be returned unwrapped, simulating a
	// failure that is not a provider-level one.
	Raw bool
	// Panic, if non-empty, names an operation that panics.
	Panic string

	mu       sync.Mutex
	calls    []string
	sessions int
	closed   int
}

// Open implements provider.Provider.
func (f *Fake) Open(ctx context.Context, opts provider.SessionOptions) (provider.Session, error) {
	if err := f.check(OpOpen, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()
	return &session{fake: f, threads: opts.Threads}, nil
}

// Calls returns the operations performed so far, formatted as "op:id".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsOf returns the server IDs passed to the given operation, in order.
func (f *Fake) CallsOf(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	prefix := op + ":"
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			ids = append(ids, c[len(prefix):])
		}
	}
	return ids
}

// Sessions returns the number of sessions opened and closed.
func (f *Fake) Sessions() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.closed
}

func (f *Fake) check(op, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+id)
	f.mu.Unlock()
	if f.Panic == op {
		panic(fmt.Sprintf("fake provider: %s %s", op, id))
	}
	if f.Fail == nil {
		return nil
	}
	err := f.Fail(op, id)
	if err == nil || f.Raw {
		return err
	}
	return pkgerrors.NewProviderError(op, id, err)
}

func (f *Fake) server(id string) (provider.Server, bool) {
	for _, s := range f.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return provider.Server{}, false
}

type session struct {
	fake    *Fake
	threads int
	active  []provider.Server
	best    *provider.Server
}

func (s *session) ClosestServers(ctx context.Context, limit int) ([]provider.Server, error) {
	if err := s.fake.check(OpClosest, ""); err != nil {
		return nil, err
	}
	servers := s.fake.Servers
	if limit > 0 && len(servers) > limit {
		servers = servers[:limit]
	}
	return append([]provider.Server(nil), servers...), nil
}

func (s *session) UseServers(ctx context.Context, ids ...string) error {
	var active []provider.Server
	for _, id := range ids {
		if err := s.fake.check(OpUse, id); err != nil {
			return err
		}
		srv, ok := s.fake.server(id)
		if !ok {
			return pkgerrors.NewProviderError(OpUse, id, pkgerrors.ErrUnknownServer)
		}
		active = append(active, srv)
	}
	s.active = active
	s.best = nil
	return nil
}

func (s *session) BestServer(ctx context.Context) (provider.Server, error) {
	var best *provider.Server
	for i := range s.active {
		srv := s.active[i]
		if err := s.fake.check(OpBest, srv.ID); err != nil {
			return provider.Server{}, err
		}
		if lat, ok := s.fake.Latency[srv.ID]; ok {
			srv.Latency = &lat
		}
		if best == nil || (srv.Latency != nil && (best.Latency == nil || *srv.Latency < *best.Latency)) {
			best = &srv
		}
	}
	if best == nil {
		return provider.Server{}, pkgerrors.NewProviderError(OpBest, "", pkgerrors.ErrNoCandidates)
	}
	s.best = best
	out := *best
	if s.fake.ResolvedID != nil {
		out.ID = *s.fake.ResolvedID
	}
	return out, nil
}

func (s *session) Download(ctx context.Context) (float64, error) {
	return s.transfer(ctx, OpDownload, s.fake.Download)
}

func (s *session) Upload(ctx context.Context) (float64, error) {
	return s.transfer(ctx, OpUpload, s.fake.Upload)
}

func (s *session) transfer(ctx context.Context, op string, rates map[string]float64) (float64, error) {
	if s.best == nil {
		return 0, pkgerrors.NewProviderError(op, "", pkgerrors.ErrNoActiveServer)
	}
	if err := s.fake.check(op, s.best.ID); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, pkgerrors.NewProviderError(op, s.best.ID, err)
	}
	return rates[s.best.ID], nil
}

func (s *session) LastPing() (float64, bool) {
	if s.best == nil || s.fake.Ping == 0 {
		return 0, false
	}
	return s.fake.Ping, true
}

func (s *session) Close() error {
	s.fake.mu.Lock()
	s.fake.closed++
	s.fake.mu.Unlock()
	return nil
}

// Threads returns the thread count requested for the session, for tests
// that need to check single-threaded probing.
func Threads(sess provider.Session) int {
	if s, ok := sess.(*session); ok {
		return s.threads
	}
	return -1
}
