package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speedlog/internal/storage/models"
)

type historyModel struct {
	table   table.Model
	records []*models.Record
	width   int
	height  int
}

var historyColumns = []table.Column{
	{Title: "Time", Width: 19},
	{Title: "Server", Width: 8},
	{Title: "Sponsor", Width: 22},
	{Title: "Latency", Width: 9},
	{Title: "Down", Width: 10},
	{Title: "Up", Width: 10},
	{Title: "Ping", Width: 9},
	{Title: "Status", Width: 8},
}

func newHistoryModel() historyModel {
	t := table.New(
		table.WithColumns(historyColumns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(colorPurple)
	s.Selected = s.Selected.
		Foreground(colorFg).
		Background(lipgloss.AdaptiveColor{Light: "#E8E0F0", Dark: "#2A1A3E"}).
		Bold(true)
	t.SetStyles(s)

	return historyModel{table: t}
}

func (hm *historyModel) setSize(w, h int) {
	hm.width = w
	hm.height = h
	th := h - 1
	if th < 1 {
		th = 1
	}
	hm.table.SetHeight(th)

	// Give the sponsor column whatever is left.
	if w > 100 {
		cols := append([]table.Column(nil), historyColumns...)
		cols[2].Width = w - 100 + historyColumns[2].Width
		hm.table.SetColumns(cols)
	}
}

// setRecords shows recs newest first.
func (hm *historyModel) setRecords(recs []*models.Record) {
	hm.records = recs
	rows := make([]table.Row, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		rows = append(rows, recordRow(recs[i]))
	}
	hm.table.SetRows(rows)
	hm.table.GotoTop()
}

func recordRow(rec *models.Record) table.Row {
	status := "ok"
	if !rec.Success() {
		status = "failed"
	}
	server := deref(rec.ServerIDResolved)
	if server == "-" {
		server = deref(rec.ServerIDRequested)
	}
	return table.Row{
		rec.TimestampISO,
		server,
		truncate(deref(rec.ServerSponsor), 30),
		formatFloat(rec.Latency, "ms"),
		formatFloat(rec.DownloadSpeedMbps, ""),
		formatFloat(rec.UploadSpeedMbps, ""),
		formatFloat(rec.Ping, "ms"),
		status,
	}
}

// selectedRecord returns the record under the cursor.
func (hm *historyModel) selectedRecord() *models.Record {
	idx := hm.table.Cursor()
	if idx < 0 || idx >= len(hm.records) {
		return nil
	}
	return hm.records[len(hm.records)-1-idx]
}

func (hm *historyModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	hm.table, cmd = hm.table.Update(msg)
	return cmd
}

func (hm *historyModel) View(s spinner.Model, measuring bool) string {
	var b strings.Builder
	switch {
	case measuring:
		b.WriteString(s.View() + " Measuring...")
	case len(hm.records) == 0:
		b.WriteString(dimStyle.Render("No records yet"))
	default:
		if rec := hm.selectedRecord(); rec != nil && rec.Error != "" {
			b.WriteString(dimStyle.Render(truncate(rec.Error, max(hm.width-2, 10))))
		} else {
			b.WriteString(dimStyle.Render(fmt.Sprintf("%d records", len(hm.records))))
		}
	}
	b.WriteString("\n")
	b.WriteString(hm.table.View())
	return forceHeight(b.String(), hm.width, hm.height)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatFloat(f *float64, unit string) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%s", *f, unit)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "~"
}
