package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"speedlog/internal/storage/models"
	"speedlog/internal/storage/sqlite"
	pkgerrors "speedlog/pkg/errors"
)

var epoch = time.Date(2024, time.March, 1, 12, 30, 0, int(250*time.Millisecond), time.UTC)

func testRecords() []*models.Record {
	var recs []*models.Record
	for i, id := range []string{"10", "20", "30"} {
		rec := models.NewRecord(epoch.Add(time.Duration(i) * 30 * time.Minute))
		rec.CycleID = "cycle-" + id
		rec.ServerIDRequested = models.OptString(id)
		rec.ServerIDResolved = models.OptString(id)
		rec.ServerSponsor = models.OptString("Sponsor " + id)
		rec.ServerName = models.OptString("Town")
		rec.ServerHost = models.OptString("host" + id + ".example.com:8080")
		rec.Latency = models.OptFloat(float64(i) + 7.5)
		rec.DownloadSpeedMbps = models.OptFloat(100.25)
		rec.UploadSpeedMbps = models.OptFloat(20.5)
		rec.Ping = models.OptFloat(8)
		recs = append(recs, rec)
	}
	recs = append(recs, models.FailureRecord(epoch.Add(2*time.Hour), "40", errors.New("timeout")))
	return recs
}

func TestAppendAndList(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	path := filepath.Join(c.Mkdir(), "data", "speedlog.db")
	db, err := sqlite.New(path)
	c.Assert(err, qt.IsNil)
	defer db.Close()

	recs := testRecords()
	for _, rec := range recs {
		c.Assert(db.Append(ctx, rec), qt.IsNil)
	}

	got, err := db.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, recs)

	again, err := db.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.DeepEquals, got)

	tail, err := db.List(ctx, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(tail, qt.DeepEquals, recs[2:])

	// Check that we can reopen the database and it still works.
	c.Assert(db.Close(), qt.IsNil)
	db, err = sqlite.New(path)
	c.Assert(err, qt.IsNil)
	got, err = db.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, recs)
}

func TestFailureRecordKeepsNulls(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db, err := sqlite.New(filepath.Join(c.Mkdir(), "speedlog.db"))
	c.Assert(err, qt.IsNil)
	defer db.Close()

	rec := models.FailureRecord(epoch, "", pkgerrors.ErrNoServer)
	c.Assert(db.Append(ctx, rec), qt.IsNil)
	got, err := db.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 1)
	c.Assert(got[0].ServerIDRequested, qt.IsNil)
	c.Assert(got[0].ServerIDResolved, qt.IsNil)
	c.Assert(got[0].DownloadSpeedMbps, qt.IsNil)
	c.Assert(got[0].Error, qt.Equals, pkgerrors.ErrNoServer.Error())
	c.Assert(got[0].Success(), qt.IsFalse)
}

func TestClosed(t *testing.T) {
	c := qt.New(t)
	db, err := sqlite.New(filepath.Join(c.Mkdir(), "speedlog.db"))
	c.Assert(err, qt.IsNil)
	c.Assert(db.Close(), qt.IsNil)
	_, err = db.List(context.Background(), 0)
	c.Assert(errors.Is(err, pkgerrors.ErrStoreClosed), qt.IsTrue)
}
