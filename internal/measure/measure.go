// Package measure runs a full speed test against one server and appends
// the result to the record log.
package measure

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"speedlog/internal/provider"
	"speedlog/internal/storage"
	"speedlog/internal/storage/models"
	pkgerrors "speedlog/pkg/errors"
)

// Observer is notified of every record the Runner persists.
type Observer interface {
	Observe(rec *models.Record)
}

// Params holds the parameters for New.
type Params struct {
	// Provider runs the measurements.
	Provider provider.Provider

	// Store receives every record.
	Store storage.Store

	// Out receives human-readable progress lines.
	// If nil, os.Stdout is used.
	Out io.Writer

	// Logger receives structured diagnostics.
	// If nil, nothing is logged.
	Logger *zap.Logger

	// Now returns the current time.
	// If nil, time.Now is used.
	Now func() time.Time

	// NewID returns the identifier stamped on each record.
	// If nil, uuid.NewString is used.
	NewID func() string

	// Observer, if set, is called with each persisted record.
	Observer Observer

	// Threads limits connections used by the full test.
	// Zero uses the provider default.
	Threads int
}

// Outcome is the result of one Run.
type Outcome struct {
	// Record is the record built for the run. It is never nil.
	Record *models.Record

	// Err holds the reason the measurement failed, if it did.
	Err error

	// StoreErr holds any error from appending the record.
	StoreErr error

	// Discarded reports that the run was interrupted by context
	// cancellation and the record was not persisted.
	Discarded bool
}

// Runner executes measurement runs.
type Runner struct {
	p Params
}

// New returns a Runner using the given parameters.
func New(p Params) *Runner {
	if p.Out == nil {
		p.Out = os.Stdout
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.NewID == nil {
		p.NewID = uuid.NewString
	}
	return &Runner{p: p}
}

// Mbps converts bits per second to megabits per second rounded to two
// decimal places. Negative rates are reported as zero.
func Mbps(bps float64) float64 {
	if bps <= 0 || math.IsNaN(bps) {
		return 0
	}
	return math.Round(bps/1e4) / 100
}

// Run measures serverID and appends exactly one record, successful or
// not, to the store. An empty serverID fails immediately with
// errors.ErrNoServer. The only case in which nothing is appended is a
// run cut short by ctx being cancelled.
func (r *Runner) Run(ctx context.Context, serverID string) *Outcome {
	started := r.p.Now()
	cycleID := r.p.NewID()
	r.printf("Finding best server for %s...\n", displayID(serverID))

	rec, err := r.measure(ctx, serverID, started)
	out := &Outcome{Err: err}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		out.Record = models.FailureRecord(started, serverID, err)
		out.Record.CycleID = cycleID
		out.Discarded = true
		r.p.Logger.Info("measurement interrupted, record discarded",
			zap.String("server", serverID), zap.Error(err))
		return out
	case pkgerrors.IsProvider(err):
		r.printf("An error occurred during the speed test: %v\n", err)
		r.p.Logger.Warn("measurement failed", zap.String("server", serverID), zap.Error(err))
	default:
		r.printf("An unexpected error occurred: %v\n", err)
		r.p.Logger.Error("unexpected measurement failure", zap.String("server", serverID), zap.Error(err))
	}
	if err != nil {
		rec = models.FailureRecord(started, serverID, err)
	}
	rec.CycleID = cycleID
	out.Record = rec

	if err := r.p.Store.Append(ctx, rec); err != nil {
		out.StoreErr = err
		r.printf("An unexpected error occurred: %v\n", err)
		r.p.Logger.Error("failed to persist record", zap.Error(err))
		return out
	}
	if r.p.Observer != nil {
		r.p.Observer.Observe(rec)
	}
	return out
}

func (r *Runner) measure(ctx context.Context, serverID string, started time.Time) (rec *models.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = nil
			err = fmt.Errorf("measurement panicked: %v", p)
		}
	}()
	if serverID == "" {
		return nil, pkgerrors.NewProviderError("find server", "", pkgerrors.ErrNoServer)
	}

	sess, err := r.p.Provider.Open(ctx, provider.SessionOptions{Threads: r.p.Threads})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.UseServers(ctx, serverID); err != nil {
		return nil, err
	}
	best, err := sess.BestServer(ctx)
	if err != nil {
		return nil, err
	}
	r.printf("Server %s: %s (%s)\n", serverID, best.Sponsor, best.Name)

	rec = models.NewRecord(started)
	rec.ServerIDRequested = models.OptString(serverID)
	rec.ServerIDResolved = models.OptString(best.ID)
	if rec.ServerIDResolved == nil {
		rec.ServerIDResolved = models.OptString(serverID)
	}
	rec.ServerSponsor = models.OptString(best.Sponsor)
	rec.ServerName = models.OptString(best.Name)
	rec.ServerHost = models.OptString(best.Host)

	r.printf("Testing latency...\n")
	rec.Latency = best.Latency
	if rec.Latency == nil {
		if ping, ok := sess.LastPing(); ok {
			rec.Latency = models.OptFloat(ping)
		}
	}
	r.printf("Latency: %s ms\n", displayFloat(rec.Latency))

	r.printf("Testing download speed...\n")
	down, err := sess.Download(ctx)
	if err != nil {
		return nil, err
	}
	rec.DownloadSpeedMbps = models.OptFloat(Mbps(down))
	r.printf("Download Speed: %.2f Mbps\n", *rec.DownloadSpeedMbps)

	r.printf("Testing upload speed...\n")
	up, err := sess.Upload(ctx)
	if err != nil {
		return nil, err
	}
	rec.UploadSpeedMbps = models.OptFloat(Mbps(up))
	r.printf("Upload Speed: %.2f Mbps\n", *rec.UploadSpeedMbps)

	r.printf("Testing ping...\n")
	if ping, ok := sess.LastPing(); ok {
		rec.Ping = models.OptFloat(ping)
	}
	r.printf("Ping: %s ms\n", displayFloat(rec.Ping))

	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewProviderError("measure", serverID, err)
	}
	r.p.Logger.Info("measurement complete",
		zap.String("server", serverID),
		zap.Float64("download_mbps", *rec.DownloadSpeedMbps),
		zap.Float64("upload_mbps", *rec.UploadSpeedMbps),
	)
	return rec, nil
}

func (r *Runner) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.p.Out, format, args...)
}

func displayID(id string) string {
	if id == "" {
		return "None"
	}
	return id
}

func displayFloat(f *float64) string {
	if f == nil {
		return "None"
	}
	return fmt.Sprintf("%.2f", *f)
}
