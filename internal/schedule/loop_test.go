package schedule_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jonboulle/clockwork"

	"speedlog/internal/measure"
	"speedlog/internal/provider/providertest"
	"speedlog/internal/schedule"
	"speedlog/internal/selector"
	"speedlog/internal/storage/models"
	"speedlog/internal/storage/storagetest"
)

var epoch = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

type scriptedSelector struct {
	mu      sync.Mutex
	results []string
	calls   int
}

// Select returns the next scripted result; "" means absence. Once the
// script runs out the last entry repeats.
func (s *scriptedSelector) Select(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	id := s.results[i]
	return id, id != ""
}

func (s *scriptedSelector) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type run struct {
	At time.Time
	ID string
}

// fakeRunner advances the clock by took to simulate a measurement.
type fakeRunner struct {
	clock *clockwork.FakeClock
	took  time.Duration

	mu   sync.Mutex
	runs []run
}

func (r *fakeRunner) Run(ctx context.Context, id string) *measure.Outcome {
	r.mu.Lock()
	r.runs = append(r.runs, run{At: r.clock.Now(), ID: id})
	r.mu.Unlock()
	r.clock.Advance(r.took)
	return &measure.Outcome{Record: models.NewRecord(r.clock.Now())}
}

func (r *fakeRunner) Runs() []run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]run(nil), r.runs...)
}

func newLoop(sel schedule.Selector, runner *fakeRunner, maxCycles int) *schedule.Loop {
	return schedule.NewLoop(schedule.Params{
		Selector:  sel,
		Runner:    runner,
		Clock:     runner.clock,
		MaxCycles: maxCycles,
		Out:       io.Discard,
	})
}

func start(ctx context.Context, loop *schedule.Loop) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()
	return done
}

func waitForSleepers(c *qt.C, clock *clockwork.FakeClock, n int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Assert(clock.BlockUntilContext(ctx, n), qt.IsNil)
}

func TestLoopKeepsFixedInterval(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock, took: 5 * time.Minute}
	loop := newLoop(&scriptedSelector{results: []string{"a"}}, runner, 3)
	done := start(context.Background(), loop)

	for i := 1; i <= 2; i++ {
		waitForSleepers(c, clock, 1)
		c.Assert(loop.State(), qt.Equals, schedule.StateRunning)
		c.Assert(loop.Next(), qt.DeepEquals, epoch.Add(time.Duration(i)*30*time.Minute))
		clock.Advance(25 * time.Minute)
	}
	c.Assert(<-done, qt.IsNil)
	c.Assert(loop.State(), qt.Equals, schedule.StateStopped)
	c.Assert(loop.Cycles(), qt.Equals, 3)
	c.Assert(runner.Runs(), qt.DeepEquals, []run{
		{At: epoch, ID: "a"},
		{At: epoch.Add(30 * time.Minute), ID: "a"},
		{At: epoch.Add(60 * time.Minute), ID: "a"},
	})
}

func TestLoopOverrunStartsImmediately(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock, took: 40 * time.Minute}
	loop := newLoop(&scriptedSelector{results: []string{"a"}}, runner, 2)

	c.Assert(loop.Run(context.Background()), qt.IsNil)
	c.Assert(runner.Runs(), qt.DeepEquals, []run{
		{At: epoch, ID: "a"},
		{At: epoch.Add(40 * time.Minute), ID: "a"},
	})
}

func TestLoopRetriesSelection(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock}
	sel := &scriptedSelector{results: []string{"", "", "b"}}
	done := start(context.Background(), newLoop(sel, runner, 1))

	for i := 0; i < 2; i++ {
		waitForSleepers(c, clock, 1)
		clock.Advance(10 * time.Second)
	}
	c.Assert(<-done, qt.IsNil)
	c.Assert(sel.Calls(), qt.Equals, 3)
	c.Assert(runner.Runs(), qt.DeepEquals, []run{{At: epoch.Add(20 * time.Second), ID: "b"}})
}

func TestLoopStopsRetryingOnSuccess(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock}
	sel := &scriptedSelector{results: []string{"", "c"}}
	done := start(context.Background(), newLoop(sel, runner, 1))

	waitForSleepers(c, clock, 1)
	clock.Advance(10 * time.Second)
	c.Assert(<-done, qt.IsNil)
	c.Assert(sel.Calls(), qt.Equals, 2)
	c.Assert(runner.Runs(), qt.DeepEquals, []run{{At: epoch.Add(10 * time.Second), ID: "c"}})
}

func TestLoopRunsWithoutServerAfterAllAttempts(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock}
	sel := &scriptedSelector{results: []string{""}}
	done := start(context.Background(), newLoop(sel, runner, 1))

	// Two waits: none after the final attempt.
	for i := 0; i < 2; i++ {
		waitForSleepers(c, clock, 1)
		clock.Advance(10 * time.Second)
	}
	c.Assert(<-done, qt.IsNil)
	c.Assert(sel.Calls(), qt.Equals, 3)
	c.Assert(runner.Runs(), qt.DeepEquals, []run{{At: epoch.Add(20 * time.Second), ID: ""}})
}

func TestLoopRecordsCycleWithoutServer(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	fake := &providertest.Fake{
		Fail: func(op, id string) error {
			if op == providertest.OpClosest {
				return errors.New("config unreachable")
			}
			return nil
		},
	}
	store := &storagetest.Memory{}
	loop := schedule.NewLoop(schedule.Params{
		Selector: selector.New(selector.Params{Provider: fake}),
		Runner: measure.New(measure.Params{
			Provider: fake,
			Store:    store,
			Out:      io.Discard,
			Now:      clock.Now,
			NewID:    func() string { return "cycle" },
		}),
		Clock:     clock,
		MaxCycles: 1,
		Out:       io.Discard,
	})
	done := start(context.Background(), loop)

	for i := 0; i < 2; i++ {
		waitForSleepers(c, clock, 1)
		clock.Advance(10 * time.Second)
	}
	c.Assert(<-done, qt.IsNil)
	c.Assert(fake.CallsOf(providertest.OpClosest), qt.HasLen, 3)
	c.Assert(fake.CallsOf(providertest.OpDownload), qt.HasLen, 0)

	want := models.FailureRecord(epoch.Add(20*time.Second), "", nil)
	want.CycleID = "cycle"
	recs := store.Records()
	c.Assert(recs, qt.HasLen, 1)
	c.Assert(recs[0].Error, qt.Matches, `.*no server ID currently available`)
	recs[0].Error = ""
	c.Assert(recs[0], qt.DeepEquals, want)
	c.Assert(recs[0].ServerIDResolved, qt.IsNil)
}

func TestLoopInterrupt(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock, took: time.Minute}
	loop := newLoop(&scriptedSelector{results: []string{"a"}}, runner, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, loop)

	waitForSleepers(c, clock, 1)
	cancel()
	c.Assert(<-done, qt.IsNil)
	c.Assert(loop.State(), qt.Equals, schedule.StateStopped)
	c.Assert(runner.Runs(), qt.HasLen, 1)
}

func TestLoopInterruptDuringRetryWait(t *testing.T) {
	c := qt.New(t)
	clock := clockwork.NewFakeClockAt(epoch)
	runner := &fakeRunner{clock: clock}
	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, newLoop(&scriptedSelector{results: []string{""}}, runner, 0))

	waitForSleepers(c, clock, 1)
	cancel()
	c.Assert(<-done, qt.IsNil)
	c.Assert(runner.Runs(), qt.HasLen, 0)
}

func TestStateString(t *testing.T) {
	c := qt.New(t)
	c.Assert(schedule.StateRunning.String(), qt.Equals, "running")
	c.Assert(schedule.StateStopped.String(), qt.Equals, "stopped")
}
