package schedule_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"speedlog/internal/schedule"
	pkgerrors "speedlog/pkg/errors"
)

func TestSchedulerStartStop(t *testing.T) {
	c := qt.New(t)
	s, err := schedule.NewScheduler(nil, nil)
	c.Assert(err, qt.IsNil)

	c.Assert(s.Stop(), qt.ErrorIs, pkgerrors.ErrSchedulerStopped)
	c.Assert(s.Start(), qt.IsNil)
	c.Assert(s.IsRunning(), qt.IsTrue)
	c.Assert(s.Start(), qt.ErrorIs, pkgerrors.ErrSchedulerRunning)
	c.Assert(s.Stop(), qt.IsNil)
	c.Assert(s.IsRunning(), qt.IsFalse)
}

func TestSchedulerRunsImmediateJob(t *testing.T) {
	c := qt.New(t)
	s, err := schedule.NewScheduler(nil, nil)
	c.Assert(err, qt.IsNil)

	ran := make(chan struct{}, 1)
	err = s.Every("summary", time.Hour, true, func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	c.Assert(err, qt.IsNil)
	c.Assert(s.Jobs(), qt.Equals, 1)

	c.Assert(s.Start(), qt.IsNil)
	defer s.Stop()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		c.Fatal("job did not run")
	}
}

func TestSchedulerRejectsBadInterval(t *testing.T) {
	c := qt.New(t)
	s, err := schedule.NewScheduler(nil, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Every("never", 0, false, func() {}), qt.ErrorMatches, `invalid interval 0s for job "never"`)
}
