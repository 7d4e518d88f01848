package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"speedlog/internal/storage/models"
	"speedlog/internal/summary"
)

type summaryModel struct {
	width   int
	height  int
	summary summary.Summary
}

func (sm *summaryModel) setSize(w, h int) {
	sm.width = w
	sm.height = h
}

func (sm *summaryModel) setRecords(recs []*models.Record) {
	sm.summary = summary.Compute(recs)
}

func (sm *summaryModel) View() string {
	s := sm.summary
	w := sm.width - 6
	if w < 30 {
		w = 30
	}
	if s.Records == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			cardTitleStyle.Render("Summary"),
			dimStyle.Render("No records yet"),
		)
		return forceHeight(cardStyle.Width(w).Render(content), sm.width, sm.height)
	}

	overview := lipgloss.JoinVertical(lipgloss.Left,
		cardTitleStyle.Render("Cycles"),
		sm.row("Records", fmt.Sprintf("%d", s.Records)),
		sm.row("Succeeded", successStyle.Render(fmt.Sprintf("%d", s.Succeeded))),
		sm.row("Failed", fmt.Sprintf("%d", s.Failed)),
		sm.row("Success rate", fmt.Sprintf("%.0f%%", s.SuccessRate()*100)),
		sm.row("First", s.First.Local().Format(models.TimeFormat)),
		sm.row("Last", s.Last.Local().Format(models.TimeFormat)),
	)

	speeds := lipgloss.JoinVertical(lipgloss.Left,
		cardTitleStyle.Render("Measurements"),
		sm.row("Download", statsText(s.Download, "Mbps")),
		sm.row("Upload", statsText(s.Upload, "Mbps")),
		sm.row("Latency", latencyText(s.Latency)),
		sm.row("Ping", statsText(s.Ping, "ms")),
	)

	var out string
	if sm.width > 100 {
		halfW := (w - 4) / 2
		out = lipgloss.JoinHorizontal(lipgloss.Top,
			cardStyle.Width(halfW).Render(overview), "  ", cardStyle.Width(halfW).Render(speeds))
	} else {
		out = lipgloss.JoinVertical(lipgloss.Left,
			cardStyle.Width(w).Render(overview), cardStyle.Width(w).Render(speeds))
	}
	return forceHeight(out, sm.width, sm.height)
}

func (sm *summaryModel) row(label, value string) string {
	return cardLabelStyle.Render(label+":") + " " + cardValueStyle.Render(value)
}

func statsText(st summary.Stats, unit string) string {
	if st.Count == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f / %.2f / %.2f %s", st.Min, st.Mean, st.Max, unit)
}

func latencyText(st summary.Stats) string {
	if st.Count == 0 {
		return "-"
	}
	return latencyStyle(st.Mean).Render(statsText(st, "ms"))
}
