package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/showwin/speedtest-go/speedtest"

	pkgerrors "speedlog/pkg/errors"
)

func TestOpenConfiguresTransport(t *testing.T) {
	for _, threads := range []int{0, 1, 4} {
		c := qt.New(t)
		p := NewSpeedtest(0)
		sess, err := p.Open(context.Background(), SessionOptions{Threads: threads})
		c.Assert(err, qt.IsNil)
		st := sess.(*speedtestSession)
		c.Check(st.doer.Timeout, qt.Equals, DefaultTimeout, qt.Commentf("threads %d", threads))
		c.Check(st.doer.Transport, qt.FitsTypeOf, &speedtest.Speedtest{}, qt.Commentf("threads %d", threads))
		c.Assert(sess.Close(), qt.IsNil)
	}
}

func TestNewSpeedtestTimeout(t *testing.T) {
	c := qt.New(t)
	c.Assert(NewSpeedtest(-time.Second).timeout, qt.Equals, DefaultTimeout)
	c.Assert(NewSpeedtest(5*time.Second).timeout, qt.Equals, 5*time.Second)
}

func TestFromSpeedtest(t *testing.T) {
	c := qt.New(t)
	srv := &speedtest.Server{
		ID:       "1234",
		Sponsor:  "Example ISP",
		Name:     "Springfield",
		Host:     "speed.example.com:8080",
		Distance: 12.5,
	}
	got := fromSpeedtest(srv)
	c.Assert(got.Latency, qt.IsNil)
	c.Assert(got.ID, qt.Equals, "1234")
	c.Assert(got.Sponsor, qt.Equals, "Example ISP")
	c.Assert(got.Name, qt.Equals, "Springfield")
	c.Assert(got.Host, qt.Equals, "speed.example.com:8080")
	c.Assert(got.Distance, qt.Equals, 12.5)

	srv.Latency = 15500 * time.Microsecond
	got = fromSpeedtest(srv)
	c.Assert(got.Latency, qt.Not(qt.IsNil))
	c.Assert(*got.Latency, qt.Equals, 15.5)
}

func TestBitRate(t *testing.T) {
	c := qt.New(t)
	bps, err := bitRate("download", "1234", speedtest.ByteRate(1.25e6))
	c.Assert(err, qt.IsNil)
	c.Assert(bps, qt.Equals, 1e7)

	bps, err = bitRate("download", "1234", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(bps, qt.Equals, 0.0)

	// speedtest-go reports -1 when nothing was transferred.
	_, err = bitRate("upload", "1234", speedtest.ByteRate(-1))
	c.Assert(err, qt.ErrorIs, pkgerrors.ErrNoTransfer)
	var perr *pkgerrors.ProviderError
	c.Assert(errors.As(err, &perr), qt.IsTrue)
	c.Assert(perr.Op, qt.Equals, "upload")
	c.Assert(perr.ServerID, qt.Equals, "1234")
}

func TestSessionWithoutServer(t *testing.T) {
	c := qt.New(t)
	sess, err := NewSpeedtest(0).Open(context.Background(), SessionOptions{})
	c.Assert(err, qt.IsNil)
	defer sess.Close()

	_, err = sess.Download(context.Background())
	c.Assert(err, qt.ErrorIs, pkgerrors.ErrNoActiveServer)
	_, err = sess.Upload(context.Background())
	c.Assert(err, qt.ErrorIs, pkgerrors.ErrNoActiveServer)
	_, ok := sess.LastPing()
	c.Assert(ok, qt.IsFalse)

	err = sess.UseServers(context.Background())
	c.Assert(err, qt.ErrorIs, pkgerrors.ErrNoCandidates)
	c.Assert(pkgerrors.IsProvider(err), qt.IsTrue)
}
