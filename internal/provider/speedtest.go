package provider

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
	"go.uber.org/multierr"

	pkgerrors "speedlog/pkg/errors"
)

// DefaultTimeout is the HTTP timeout applied to every provider session.
const DefaultTimeout = 20 * time.Second

// Speedtest is a Provider backed by the Ookla speed-test server network.
type Speedtest struct {
	timeout time.Duration
}

// NewSpeedtest creates a Speedtest provider. A non-positive timeout
// selects DefaultTimeout.
func NewSpeedtest(timeout time.Duration) *Speedtest {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Speedtest{timeout: timeout}
}

// Open creates a fresh speedtest client for a single logical operation.
func (p *Speedtest) Open(ctx context.Context, opts SessionOptions) (Session, error) {
	doer := &http.Client{Timeout: p.timeout}
	// WithUserConfig must follow WithDoer: it installs the client's
	// transport on doer. Zero MaxConnections keeps the library default.
	client := speedtest.New(
		speedtest.WithDoer(doer),
		speedtest.WithUserConfig(&speedtest.UserConfig{MaxConnections: opts.Threads}),
	)
	return &speedtestSession{
		client: client,
		doer:   doer,
		known:  make(map[string]*speedtest.Server),
	}, nil
}

type speedtestSession struct {
	client *speedtest.Speedtest
	doer   *http.Client

	// known caches servers already fetched during this session by ID.
	known  map[string]*speedtest.Server
	active speedtest.Servers
	best   *speedtest.Server
}

func (s *speedtestSession) ClosestServers(ctx context.Context, limit int) ([]Server, error) {
	list, err := s.client.FetchServerListContext(ctx)
	if err != nil {
		return nil, pkgerrors.NewProviderError("fetch servers", "", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Distance < list[j].Distance
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	servers := make([]Server, 0, len(list))
	for _, srv := range list {
		s.known[srv.ID] = srv
		servers = append(servers, fromSpeedtest(srv))
	}
	return servers, nil
}

func (s *speedtestSession) UseServers(ctx context.Context, ids ...string) error {
	active := make(speedtest.Servers, 0, len(ids))
	for _, id := range ids {
		srv, ok := s.known[id]
		if !ok {
			fetched, err := s.client.FetchServerByIDContext(ctx, id)
			if err != nil {
				return pkgerrors.NewProviderError("fetch server", id, err)
			}
			srv = fetched
			s.known[id] = srv
		}
		active = append(active, srv)
	}
	if len(active) == 0 {
		return pkgerrors.NewProviderError("use servers", "", pkgerrors.ErrNoCandidates)
	}
	s.active = active
	s.best = nil
	return nil
}

func (s *speedtestSession) BestServer(ctx context.Context) (Server, error) {
	var best *speedtest.Server
	var errs error
	for _, srv := range s.active {
		if err := srv.PingTestContext(ctx, nil); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if best == nil || srv.Latency < best.Latency {
			best = srv
		}
	}
	if best == nil {
		if errs == nil {
			errs = pkgerrors.ErrNoCandidates
		}
		return Server{}, pkgerrors.NewProviderError("best server", "", errs)
	}
	s.best = best
	return fromSpeedtest(best), nil
}

func (s *speedtestSession) Download(ctx context.Context) (float64, error) {
	if s.best == nil {
		return 0, pkgerrors.NewProviderError("download", "", pkgerrors.ErrNoActiveServer)
	}
	if err := s.best.DownloadTestContext(ctx); err != nil {
		return 0, pkgerrors.NewProviderError("download", s.best.ID, err)
	}
	return bitRate("download", s.best.ID, s.best.DLSpeed)
}

func (s *speedtestSession) Upload(ctx context.Context) (float64, error) {
	if s.best == nil {
		return 0, pkgerrors.NewProviderError("upload", "", pkgerrors.ErrNoActiveServer)
	}
	if err := s.best.UploadTestContext(ctx); err != nil {
		return 0, pkgerrors.NewProviderError("upload", s.best.ID, err)
	}
	return bitRate("upload", s.best.ID, s.best.ULSpeed)
}

// bitRate converts a measured byte rate to bits per second. speedtest-go
// reports a negative rate when the transfer moved no data.
func bitRate(op, id string, rate speedtest.ByteRate) (float64, error) {
	if rate < 0 {
		return 0, pkgerrors.NewProviderError(op, id, pkgerrors.ErrNoTransfer)
	}
	return float64(rate) * 8, nil
}

func (s *speedtestSession) LastPing() (float64, bool) {
	if s.best == nil || s.best.Latency <= 0 {
		return 0, false
	}
	return durationMS(s.best.Latency), true
}

func (s *speedtestSession) Close() error {
	s.doer.CloseIdleConnections()
	s.active = nil
	s.best = nil
	return nil
}

func fromSpeedtest(srv *speedtest.Server) Server {
	out := Server{
		ID:       srv.ID,
		Sponsor:  srv.Sponsor,
		Name:     srv.Name,
		Host:     srv.Host,
		Distance: srv.Distance,
	}
	if srv.Latency > 0 {
		ms := durationMS(srv.Latency)
		out.Latency = &ms
	}
	return out
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
