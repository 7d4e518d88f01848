package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"speedlog/internal/measure"
	"speedlog/internal/storage"
)

// MeasureFunc runs one measurement cycle and persists its record.
type MeasureFunc func(ctx context.Context) *measure.Outcome

// loadRecords fetches the most recent records.
func loadRecords(store storage.Store, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		recs, err := store.List(ctx, limit)
		return recordsLoadedMsg{records: recs, err: err}
	}
}

// runMeasure runs a measurement cycle in the background.
func runMeasure(ctx context.Context, fn MeasureFunc) tea.Cmd {
	return func() tea.Msg {
		return measureDoneMsg{outcome: fn(ctx)}
	}
}

// clearNotification returns a command that fires after a delay.
func clearNotification(d time.Duration, version int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearNotificationMsg{version: version}
	})
}
