// Package summary computes aggregate statistics over measurement records.
package summary

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"time"

	"speedlog/internal/storage/models"
)

// Stats describes one measured quantity over a set of records.
// Only records where the quantity was measured contribute.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

func (s *Stats) add(v *float64) {
	if v == nil {
		return
	}
	if s.Count == 0 || *v < s.Min {
		s.Min = *v
	}
	if s.Count == 0 || *v > s.Max {
		s.Max = *v
	}
	s.Count++
	s.Mean += (*v - s.Mean) / float64(s.Count)
}

// ServerCount counts successful cycles against one server.
type ServerCount struct {
	ID      string
	Sponsor string
	Count   int
}

// Summary aggregates a set of records.
type Summary struct {
	Records   int
	Succeeded int
	Failed    int
	First     time.Time
	Last      time.Time

	Download Stats
	Upload   Stats
	Latency  Stats
	Ping     Stats

	// Servers lists the servers used, most used first.
	Servers []ServerCount
}

// Compute summarizes recs.
func Compute(recs []*models.Record) Summary {
	var s Summary
	servers := make(map[string]*ServerCount)
	for _, rec := range recs {
		s.Records++
		t := rec.Time()
		if s.First.IsZero() || t.Before(s.First) {
			s.First = t
		}
		if t.After(s.Last) {
			s.Last = t
		}
		if !rec.Success() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Download.add(rec.DownloadSpeedMbps)
		s.Upload.add(rec.UploadSpeedMbps)
		s.Latency.add(rec.Latency)
		s.Ping.add(rec.Ping)
		if rec.ServerIDResolved != nil {
			id := *rec.ServerIDResolved
			sc := servers[id]
			if sc == nil {
				sc = &ServerCount{ID: id}
				if rec.ServerSponsor != nil {
					sc.Sponsor = *rec.ServerSponsor
				}
				servers[id] = sc
			}
			sc.Count++
		}
	}
	for _, sc := range servers {
		s.Servers = append(s.Servers, *sc)
	}
	sort.Slice(s.Servers, func(i, j int) bool {
		if s.Servers[i].Count != s.Servers[j].Count {
			return s.Servers[i].Count > s.Servers[j].Count
		}
		return s.Servers[i].ID < s.Servers[j].ID
	})
	return s
}

// Since returns the records timestamped at or after t.
func Since(recs []*models.Record, t time.Time) []*models.Record {
	var out []*models.Record
	for _, rec := range recs {
		if !rec.Time().Before(t) {
			out = append(out, rec)
		}
	}
	return out
}

// SuccessRate returns the fraction of successful records, or 0 if there
// are none.
func (s Summary) SuccessRate() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Records)
}

// Write prints s as a table.
func (s Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Records:\t%d (%d ok, %d failed, %.0f%% success)\n",
		s.Records, s.Succeeded, s.Failed, math.Round(s.SuccessRate()*100))
	if s.Records > 0 {
		fmt.Fprintf(tw, "Period:\t%s to %s\n",
			s.First.Local().Format(models.TimeFormat), s.Last.Local().Format(models.TimeFormat))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "METRIC\tMIN\tMEAN\tMAX\tSAMPLES")
	for _, row := range []struct {
		name string
		st   Stats
	}{
		{"Download (Mbps)", s.Download},
		{"Upload (Mbps)", s.Upload},
		{"Latency (ms)", s.Latency},
		{"Ping (ms)", s.Ping},
	} {
		if row.st.Count == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t0\n", row.name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\n", row.name, row.st.Min, row.st.Mean, row.st.Max, row.st.Count)
	}
	if len(s.Servers) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SERVER\tSPONSOR\tCYCLES")
		for _, sc := range s.Servers {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", sc.ID, sc.Sponsor, sc.Count)
		}
	}
	return tw.Flush()
}
