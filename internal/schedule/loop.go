// Package schedule drives measurement cycles at a fixed interval and runs
// periodic background jobs.
package schedule

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"speedlog/internal/measure"
)

const (
	DefaultInterval   = 30 * time.Minute
	DefaultAttempts   = 3
	DefaultRetryDelay = 10 * time.Second
)

// Selector chooses the server for a cycle.
type Selector interface {
	Select(ctx context.Context) (string, bool)
}

// Runner measures one server and persists the outcome.
type Runner interface {
	Run(ctx context.Context, serverID string) *measure.Outcome
}

// State is the state of a Loop.
type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Params holds the parameters for NewLoop.
type Params struct {
	Selector Selector
	Runner   Runner

	// Clock is used for all time measurement and waiting.
	// If nil, the real clock is used.
	Clock clockwork.Clock

	// Interval holds the time between cycle starts.
	// If zero, DefaultInterval is used.
	Interval time.Duration

	// Attempts holds the maximum number of selections per cycle.
	// If zero, DefaultAttempts is used.
	Attempts int

	// RetryDelay holds the wait between selection attempts.
	// If zero, DefaultRetryDelay is used.
	RetryDelay time.Duration

	// MaxCycles stops the loop after that many cycles.
	// If zero, the loop runs until its context is cancelled.
	MaxCycles int

	// Out receives progress lines. If nil, os.Stdout is used.
	Out io.Writer

	// Logger receives structured diagnostics.
	Logger *zap.Logger
}

// Loop runs measurement cycles one after another, keeping cycle starts
// Interval apart. A cycle that overruns the interval is followed
// immediately by the next one.
type Loop struct {
	p Params

	mu     sync.Mutex
	state  State
	next   time.Time
	cycles int
}

// NewLoop returns a stopped Loop.
func NewLoop(p Params) *Loop {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Interval == 0 {
		p.Interval = DefaultInterval
	}
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Loop{p: p}
}

// Run runs cycles until ctx is cancelled or MaxCycles cycles have
// completed. Cancellation is the normal way to stop the loop and is not
// reported as an error.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateRunning {
		l.mu.Unlock()
		return fmt.Errorf("loop is already running")
	}
	l.state = StateRunning
	l.mu.Unlock()
	defer l.setState(StateStopped)

	for n := 1; l.p.MaxCycles == 0 || n <= l.p.MaxCycles; n++ {
		start := l.p.Clock.Now()
		l.setNext(start.Add(l.p.Interval))

		fmt.Fprintln(l.p.Out, "current time: ", start.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintln(l.p.Out, "Finding server with best latency...")
		id := l.selectServer(ctx)
		if ctx.Err() != nil {
			return nil
		}

		out := l.p.Runner.Run(ctx, id)
		l.finishCycle(n, id, out)
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(l.p.Out, "Speed test completed.")

		if l.p.MaxCycles != 0 && n == l.p.MaxCycles {
			break
		}
		if !l.sleep(ctx, l.Next().Sub(l.p.Clock.Now())) {
			return nil
		}
	}
	return nil
}

// selectServer makes up to Attempts selections, waiting RetryDelay after
// each absent result except the last. It returns "" if every attempt
// came up empty.
func (l *Loop) selectServer(ctx context.Context) string {
	for attempt := 1; attempt <= l.p.Attempts; attempt++ {
		if id, ok := l.p.Selector.Select(ctx); ok {
			return id
		}
		l.p.Logger.Info("no server selected", zap.Int("attempt", attempt), zap.Int("attempts", l.p.Attempts))
		if attempt == l.p.Attempts {
			break
		}
		if !l.sleep(ctx, l.p.RetryDelay) {
			break
		}
	}
	return ""
}

func (l *Loop) finishCycle(n int, id string, out *measure.Outcome) {
	l.mu.Lock()
	l.cycles++
	l.mu.Unlock()

	fields := []zap.Field{zap.Int("cycle", n), zap.String("server", id)}
	switch {
	case out == nil:
	case out.Discarded:
		fields = append(fields, zap.Bool("discarded", true))
	case out.StoreErr != nil:
		l.p.Logger.Error("cycle record not persisted", append(fields, zap.Error(out.StoreErr))...)
		return
	case out.Err != nil:
		fields = append(fields, zap.NamedError("failure", out.Err))
	}
	l.p.Logger.Debug("cycle finished", fields...)
}

// sleep waits for d, returning false if ctx is cancelled first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-l.p.Clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Next returns the scheduled start of the next cycle. It is the zero time
// before the first cycle has started.
func (l *Loop) Next() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) setNext(t time.Time) {
	l.mu.Lock()
	l.next = t
	l.mu.Unlock()
}
