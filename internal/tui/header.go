package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

var tabNames = []string{"History", "Summary"}

func renderHeader(activeTab int, measuring bool, lastFailed bool, width int) string {
	logo := logoStyle.Render("SPEEDLOG")

	var pill string
	switch {
	case measuring:
		pill = measuringPillStyle.Render(" MEASURING ")
	case lastFailed:
		pill = failedPillStyle.Render(" LAST CYCLE FAILED ")
	default:
		pill = idlePillStyle.Render(" IDLE ")
	}

	var tabs []string
	for i, name := range tabNames {
		if i == activeTab {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	// First row: logo + pill right-aligned.
	gap := width - lipgloss.Width(logo) - lipgloss.Width(pill)
	if gap < 1 {
		gap = 1
	}
	topRow := logo + strings.Repeat(" ", gap) + pill

	sep := lipgloss.NewStyle().
		Foreground(colorBorder).
		Render(strings.Repeat("─", max(width, 0)))

	return lipgloss.JoinVertical(lipgloss.Left, topRow, tabBar, sep)
}

func renderFooter(helpText string, width int) string {
	sep := lipgloss.NewStyle().
		Foreground(colorBorder).
		Render(strings.Repeat("─", max(width, 0)))
	return lipgloss.JoinVertical(lipgloss.Left, sep, helpBarStyle.Render(helpText))
}

func renderHelpBar(showFull bool, canMeasure bool) string {
	visible := func(b key.Binding) bool {
		if !canMeasure && b.Help().Key == keys.Measure.Help().Key {
			return false
		}
		return b.Enabled()
	}
	if showFull {
		return renderFullHelp(visible)
	}
	return renderShortHelp(visible)
}

func renderShortHelp(visible func(key.Binding) bool) string {
	var parts []string
	for _, b := range keys.ShortHelp() {
		if !visible(b) {
			continue
		}
		parts = append(parts, helpKeyStyle.Render(b.Help().Key)+" "+helpDescStyle.Render(b.Help().Desc))
	}
	return strings.Join(parts, helpSepStyle.Render(" | "))
}

func renderFullHelp(visible func(key.Binding) bool) string {
	var lines []string
	for _, group := range keys.FullHelp() {
		var parts []string
		for _, b := range group {
			if !visible(b) {
				continue
			}
			parts = append(parts, helpKeyStyle.Render(b.Help().Key)+" "+helpDescStyle.Render(b.Help().Desc))
		}
		lines = append(lines, strings.Join(parts, helpSepStyle.Render("  ")))
	}
	return strings.Join(lines, "\n")
}
