// Package selector picks the measurement server to use for a cycle.
//
// Selection runs in two phases. Up to Candidates of the closest servers
// are ranked by latency, then the Probes fastest of those are measured with
// one single-threaded download and upload each. The server with the highest
// probe download wins.
package selector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"speedlog/internal/provider"
	pkgerrors "speedlog/pkg/errors"
)

const (
	DefaultCandidates = 20
	DefaultProbes     = 3
)

// Params holds the parameters for New.
type Params struct {
	// Provider is used to discover and measure servers.
	Provider provider.Provider

	// Candidates holds the number of closest servers to rank.
	// If zero, DefaultCandidates is used.
	Candidates int

	// Probes holds the number of lowest-latency servers to probe.
	// If zero, DefaultProbes is used.
	Probes int

	// Workers bounds the number of candidates ranked concurrently.
	// Values below 2 rank sequentially on a single session.
	Workers int64

	// Logger receives debug output about skipped servers.
	// If nil, nothing is logged.
	Logger *zap.Logger
}

// Ranked is a candidate that answered the latency check.
type Ranked struct {
	Server  provider.Server
	Latency float64
}

// Probe is a candidate whose throughput probe completed.
type Probe struct {
	Server   provider.Server
	Download float64
	Upload   float64
}

// Result holds everything learned during one selection.
type Result struct {
	// Ranked holds the responsive candidates, lowest latency first.
	Ranked []Ranked
	// Probed holds the successful probes in probe order.
	Probed []Probe
	// Best points into Probed, or is nil when no probe succeeded.
	Best *Probe
	// Skipped combines the failures of every excluded candidate.
	Skipped error
	// Err is set when the candidate list could not be obtained at all.
	Err error
}

// ID returns the selected server ID, if any.
func (r *Result) ID() (string, bool) {
	if r.Best == nil {
		return "", false
	}
	return r.Best.Server.ID, true
}

// Selector chooses servers. It is safe to call concurrently.
type Selector struct {
	p Params
}

// New returns a Selector using the given parameters.
func New(p Params) *Selector {
	if p.Candidates <= 0 {
		p.Candidates = DefaultCandidates
	}
	if p.Probes <= 0 {
		p.Probes = DefaultProbes
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Selector{p: p}
}

// Select returns the ID of the server with the best probe download, or
// false when no server could be probed. It never returns an error: every
// failure is treated as an excluded candidate.
func (s *Selector) Select(ctx context.Context) (string, bool) {
	return s.Rank(ctx).ID()
}

// Rank runs both selection phases and returns the full outcome.
func (s *Selector) Rank(ctx context.Context) (result *Result) {
	result = &Result{}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("selection panicked: %v", r)
			result.Best = nil
		}
		if result.Skipped != nil {
			s.p.Logger.Debug("skipped candidates", zap.Error(result.Skipped))
		}
	}()

	sess, err := s.p.Provider.Open(ctx, provider.SessionOptions{Threads: 1})
	if err != nil {
		result.Err = err
		return result
	}
	defer sess.Close()

	candidates, err := sess.ClosestServers(ctx, s.p.Candidates)
	if err != nil {
		result.Err = err
		return result
	}
	if len(candidates) > s.p.Candidates {
		candidates = candidates[:s.p.Candidates]
	}

	var ranked []*Ranked
	if s.p.Workers > 1 {
		ranked = s.rankConcurrent(ctx, candidates, result)
	} else {
		ranked = make([]*Ranked, len(candidates))
		for i, cand := range candidates {
			if ctx.Err() != nil {
				break
			}
			r, err := rankOne(ctx, sess, cand)
			if err != nil {
				result.Skipped = multierr.Append(result.Skipped, err)
				continue
			}
			ranked[i] = r
		}
	}
	for _, r := range ranked {
		if r != nil {
			result.Ranked = append(result.Ranked, *r)
		}
	}
	sort.SliceStable(result.Ranked, func(i, j int) bool {
		return result.Ranked[i].Latency < result.Ranked[j].Latency
	})

	top := result.Ranked
	if len(top) > s.p.Probes {
		top = top[:s.p.Probes]
	}
	for _, r := range top {
		if ctx.Err() != nil {
			break
		}
		probe, err := probeOne(ctx, sess, r.Server.ID)
		if err != nil {
			result.Skipped = multierr.Append(result.Skipped, err)
			continue
		}
		probe.Server = r.Server
		result.Probed = append(result.Probed, *probe)
	}

	for i := range result.Probed {
		if result.Best == nil || result.Probed[i].Download > result.Best.Download {
			result.Best = &result.Probed[i]
		}
	}
	if err := ctx.Err(); err != nil && result.Best == nil {
		result.Err = err
	}
	s.p.Logger.Debug("selection finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("ranked", len(result.Ranked)),
		zap.Int("probed", len(result.Probed)),
	)
	return result
}

// rankConcurrent ranks candidates with a semaphore-bounded worker pool.
// Each worker opens its own session. The returned slice is indexed like
// candidates, with nil for excluded servers.
func (s *Selector) rankConcurrent(ctx context.Context, candidates []provider.Server, result *Result) []*Ranked {
	ranked := make([]*Ranked, len(candidates))
	var mu sync.Mutex
	sem := semaphore.NewWeighted(s.p.Workers)
	var wg sync.WaitGroup

	skip := func(err error) {
		mu.Lock()
		result.Skipped = multierr.Append(result.Skipped, err)
		mu.Unlock()
	}

	for i, cand := range candidates {
		wg.Add(1)
		go func(idx int, cand provider.Server) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					skip(fmt.Errorf("server %s: panic: %v", cand.ID, r))
				}
			}()

			sess, err := s.p.Provider.Open(ctx, provider.SessionOptions{Threads: 1})
			if err != nil {
				skip(err)
				return
			}
			defer sess.Close()

			r, err := rankOne(ctx, sess, cand)
			if err != nil {
				skip(err)
				return
			}
			ranked[idx] = r
		}(i, cand)
	}

	wg.Wait()
	return ranked
}

func rankOne(ctx context.Context, sess provider.Session, cand provider.Server) (*Ranked, error) {
	if err := sess.UseServers(ctx, cand.ID); err != nil {
		return nil, err
	}
	chosen, err := sess.BestServer(ctx)
	if err != nil {
		return nil, err
	}
	if chosen.Latency == nil {
		return nil, pkgerrors.NewProviderError("best server", cand.ID, pkgerrors.ErrNoLatency)
	}
	if chosen.ID == "" {
		chosen.ID = cand.ID
	}
	return &Ranked{Server: chosen, Latency: *chosen.Latency}, nil
}

func probeOne(ctx context.Context, sess provider.Session, id string) (*Probe, error) {
	if err := sess.UseServers(ctx, id); err != nil {
		return nil, err
	}
	if _, err := sess.BestServer(ctx); err != nil {
		return nil, err
	}
	down, err := sess.Download(ctx)
	if err != nil {
		return nil, err
	}
	up, err := sess.Upload(ctx)
	if err != nil {
		return nil, err
	}
	return &Probe{Download: down, Upload: up}, nil
}
