package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"speedlog/internal/metrics"
	"speedlog/internal/storage/models"
	"speedlog/internal/storage/storagetest"
)

var epoch = time.Date(2024, time.August, 2, 10, 0, 0, 0, time.UTC)

func successRecord(at time.Time) *models.Record {
	rec := models.NewRecord(at)
	rec.ServerIDRequested = models.OptString("7")
	rec.ServerIDResolved = models.OptString("7")
	rec.DownloadSpeedMbps = models.OptFloat(88.5)
	rec.UploadSpeedMbps = models.OptFloat(9.25)
	rec.Latency = models.OptFloat(11)
	rec.Ping = models.OptFloat(12)
	return rec
}

func TestObserve(t *testing.T) {
	c := qt.New(t)
	m := metrics.New()
	m.Observe(successRecord(epoch))
	m.Observe(models.FailureRecord(epoch.Add(time.Hour), "7", errors.New("timeout")))

	body := scrape(c, m)
	c.Assert(body, qt.Contains, `speedlog_cycles_total{result="success"} 1`)
	c.Assert(body, qt.Contains, `speedlog_cycles_total{result="failure"} 1`)
	c.Assert(body, qt.Contains, "speedlog_download_mbps 88.5")
	c.Assert(body, qt.Contains, "speedlog_upload_mbps 9.25")
	c.Assert(body, qt.Contains, "speedlog_ping_ms 12")
}

func TestObserveGauges(t *testing.T) {
	c := qt.New(t)
	m := metrics.New()
	rec := successRecord(epoch)
	m.Observe(rec)
	n, err := testutil.GatherAndCount(m.Registry(), "speedlog_latency_ms", "speedlog_last_cycle_timestamp_seconds")
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
}

func scrape(c *qt.C, m *metrics.Metrics) string {
	srv := httptest.NewServer(metrics.NewHandler(m, &storagetest.Memory{}, nil))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	data, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	return string(data)
}

func TestRecordsEndpoint(t *testing.T) {
	c := qt.New(t)
	store := &storagetest.Memory{}
	for i := 0; i < 3; i++ {
		c.Assert(store.Append(context.Background(), successRecord(epoch.Add(time.Duration(i)*time.Hour))), qt.IsNil)
	}
	srv := httptest.NewServer(metrics.NewHandler(metrics.New(), store, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/records?limit=2")
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "application/json")

	var got []*models.Record
	c.Assert(json.NewDecoder(resp.Body).Decode(&got), qt.IsNil)
	all := store.Records()
	c.Assert(got, qt.DeepEquals, all[1:])
}

func TestRecordsEndpointEmptyAndInvalid(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(metrics.NewHandler(metrics.New(), &storagetest.Memory{}, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/records")
	c.Assert(err, qt.IsNil)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "[]\n")

	resp, err = http.Get(srv.URL + "/api/records?limit=lots")
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)
}

func TestHealthz(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(metrics.NewHandler(metrics.New(), &storagetest.Memory{}, nil))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
}

func TestServeStopsOnCancel(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- metrics.Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	}()
	cancel()
	select {
	case err := <-done:
		c.Assert(err, qt.IsNil)
	case <-time.After(10 * time.Second):
		c.Fatal("Serve did not return")
	}
}
