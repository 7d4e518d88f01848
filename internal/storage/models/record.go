package models

import (
	"math"
	"time"
)

// TimeFormat is the layout of Record.TimestampISO (local time, no zone).
const TimeFormat = "2006-01-02T15:04:05"

// Record is one measurement cycle's outcome. Pointer fields are nil when the
// value could not be measured.
type Record struct {
	CycleID      string  `json:"cycle_id,omitempty"`
	Timestamp    float64 `json:"timestamp"`
	TimestampISO string  `json:"timestamp_iso"`

	ServerIDRequested *string `json:"server_id_requested"`
	ServerIDResolved  *string `json:"server_id_resolved"`
	ServerSponsor     *string `json:"server_sponsor"`
	ServerName        *string `json:"server_name"`
	ServerHost        *string `json:"server_host"`

	Latency           *float64 `json:"latency"`
	DownloadSpeedMbps *float64 `json:"download_speed_mbps"`
	UploadSpeedMbps   *float64 `json:"upload_speed_mbps"`
	Ping              *float64 `json:"ping"`

	Error string `json:"error,omitempty"`
}

// NewRecord returns an empty record stamped with t.
func NewRecord(t time.Time) *Record {
	return &Record{
		Timestamp:    float64(t.UnixNano()) / float64(time.Second),
		TimestampISO: t.Local().Format(TimeFormat),
	}
}

// Time returns the record timestamp as a time.Time.
func (r *Record) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Success reports whether the record holds a completed measurement.
func (r *Record) Success() bool {
	return r.Error == "" && r.DownloadSpeedMbps != nil && r.UploadSpeedMbps != nil
}

// FailureRecord returns a record for a failed cycle: only the requested
// server ID is kept and every measurement field is nil.
func FailureRecord(t time.Time, requested string, err error) *Record {
	r := NewRecord(t)
	r.ServerIDRequested = OptString(requested)
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// OptString returns a pointer to s, or nil if s is empty.
func OptString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// OptFloat returns a pointer to f.
func OptFloat(f float64) *float64 {
	return &f
}
