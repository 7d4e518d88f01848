package jsonl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"speedlog/internal/storage/jsonl"
	"speedlog/internal/storage/models"
	pkgerrors "speedlog/pkg/errors"
)

var epoch = time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)

func testRecords() []*models.Record {
	ok := models.NewRecord(epoch)
	ok.CycleID = "cycle-1"
	ok.ServerIDRequested = models.OptString("1234")
	ok.ServerIDResolved = models.OptString("1234")
	ok.ServerSponsor = models.OptString("Example ISP")
	ok.ServerName = models.OptString("Springfield")
	ok.ServerHost = models.OptString("speed.example.com:8080")
	ok.Latency = models.OptFloat(12.5)
	ok.DownloadSpeedMbps = models.OptFloat(93.21)
	ok.UploadSpeedMbps = models.OptFloat(11.02)
	ok.Ping = models.OptFloat(12.5)

	failed := models.FailureRecord(epoch.Add(30*time.Minute), "", pkgerrors.ErrNoServer)
	failed.CycleID = "cycle-2"
	return []*models.Record{ok, failed}
}

func TestAppendAndList(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	path := filepath.Join(c.Mkdir(), "Logs", "internet_speed_results")
	store, err := jsonl.Open(path)
	c.Assert(err, qt.IsNil)
	defer store.Close()

	recs := testRecords()
	for _, rec := range recs {
		c.Assert(store.Append(ctx, rec), qt.IsNil)
	}

	got, err := store.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, recs)

	// Reading has no side effects.
	again, err := store.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.DeepEquals, got)

	last, err := store.List(ctx, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(last, qt.DeepEquals, recs[1:])

	// Check that the log survives reopening.
	c.Assert(store.Close(), qt.IsNil)
	store, err = jsonl.Open(path)
	c.Assert(err, qt.IsNil)
	got, err = store.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, recs)
}

func TestFailureRecordEncoding(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.Mkdir(), "log")
	store, err := jsonl.Open(path)
	c.Assert(err, qt.IsNil)

	rec := models.FailureRecord(epoch, "42", errors.New("boom"))
	c.Assert(store.Append(context.Background(), rec), qt.IsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	line := string(data)
	c.Assert(strings.Count(line, "\n"), qt.Equals, 1)
	for _, want := range []string{
		`"server_id_requested":"42"`,
		`"server_id_resolved":null`,
		`"latency":null`,
		`"download_speed_mbps":null`,
		`"upload_speed_mbps":null`,
		`"ping":null`,
		`"error":"boom"`,
	} {
		c.Check(line, qt.Contains, want)
	}
}

func TestListMissingFile(t *testing.T) {
	c := qt.New(t)
	store, err := jsonl.Open(filepath.Join(c.Mkdir(), "nothing"))
	c.Assert(err, qt.IsNil)
	got, err := store.List(context.Background(), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 0)
}

func TestListIgnoresTruncatedTail(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.Mkdir(), "log")
	store, err := jsonl.Open(path)
	c.Assert(err, qt.IsNil)
	rec := testRecords()[0]
	c.Assert(store.Append(context.Background(), rec), qt.IsNil)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	c.Assert(err, qt.IsNil)
	_, err = f.WriteString(`{"timestamp":17`)
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)

	got, err := store.List(context.Background(), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []*models.Record{rec})
}

func TestAppendAfterTornWrite(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	path := filepath.Join(c.Mkdir(), "log")
	store, err := jsonl.Open(path)
	c.Assert(err, qt.IsNil)
	recs := testRecords()
	c.Assert(store.Append(ctx, recs[0]), qt.IsNil)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	c.Assert(err, qt.IsNil)
	_, err = f.WriteString(`{"timestamp":17`)
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)

	c.Assert(store.Append(ctx, recs[1]), qt.IsNil)
	got, err := store.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, recs)

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Count(string(data), "\n"), qt.Equals, 2)
	c.Assert(string(data), qt.Not(qt.Contains), `"timestamp":17`)
}

func TestAppendAfterTornFirstWrite(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	path := filepath.Join(c.Mkdir(), "log")
	c.Assert(os.WriteFile(path, []byte(`{"cycle_id":"x","timest`), 0o644), qt.IsNil)
	store, err := jsonl.Open(path)
	c.Assert(err, qt.IsNil)

	rec := testRecords()[0]
	c.Assert(store.Append(ctx, rec), qt.IsNil)
	got, err := store.List(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []*models.Record{rec})
}

func TestListCorrupt(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.Mkdir(), "log")
	c.Assert(os.WriteFile(path, []byte("not json\n"), 0o644), qt.IsNil)
	store, err := jsonl.Open(path)
	c.Assert(err, qt.IsNil)
	_, err = store.List(context.Background(), 0)
	c.Assert(errors.Is(err, pkgerrors.ErrInvalidRecord), qt.IsTrue)
}

func TestClosed(t *testing.T) {
	c := qt.New(t)
	store, err := jsonl.Open(filepath.Join(c.Mkdir(), "log"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Close(), qt.IsNil)
	err = store.Append(context.Background(), testRecords()[0])
	c.Assert(errors.Is(err, pkgerrors.ErrStoreClosed), qt.IsTrue)
}
