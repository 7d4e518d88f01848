// Package tui implements an interactive viewer for the record log.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speedlog/internal/storage"
)

// Tab indices.
const (
	tabHistory = 0
	tabSummary = 1
	tabCount   = 2
)

// DefaultLimit is the number of records loaded when Deps.Limit is zero.
const DefaultLimit = 500

// Model is the root BubbleTea model.
type Model struct {
	// Dependencies.
	ctx     context.Context
	store   storage.Store
	measure MeasureFunc
	limit   int

	// Dimensions.
	width  int
	height int

	// Navigation.
	activeTab int
	showHelp  bool

	// Measurement state.
	measuring  bool
	lastFailed bool

	// Tab models.
	historyTab historyModel
	summaryTab summaryModel

	// Notification.
	notification    string
	notificationErr bool
	notifVersion    int

	// Spinner for async operations.
	spinner spinner.Model
}

// Deps holds all dependencies injected into the TUI.
type Deps struct {
	Store storage.Store
	// Measure, if set, lets the user run a cycle from the viewer.
	Measure MeasureFunc
	// Limit bounds the number of records loaded.
	Limit int
}

// NewModel creates a new root Model. Measurements started from the
// viewer are cancelled when ctx is done.
func NewModel(ctx context.Context, deps Deps) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	limit := deps.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Model{
		ctx:        ctx,
		store:      deps.Store,
		measure:    deps.Measure,
		limit:      limit,
		activeTab:  tabHistory,
		spinner:    s,
		historyTab: newHistoryModel(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		loadRecords(m.store, m.limit),
		m.spinner.Tick,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	prevNotifVersion := m.notifVersion

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		ch := m.contentHeight()
		m.historyTab.setSize(msg.Width, ch)
		m.summaryTab.setSize(msg.Width, ch)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}

	case recordsLoadedMsg:
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Load failed: %v", msg.err), true)
		} else {
			m.historyTab.setRecords(msg.records)
			m.summaryTab.setRecords(msg.records)
			if n := len(msg.records); n > 0 {
				m.lastFailed = !msg.records[n-1].Success()
			}
		}

	case measureDoneMsg:
		m.measuring = false
		out := msg.outcome
		switch {
		case out == nil:
		case out.Discarded:
			m.setNotification("Measurement cancelled", true)
		case out.StoreErr != nil:
			m.setNotification(fmt.Sprintf("Record not saved: %v", out.StoreErr), true)
		case out.Err != nil:
			m.setNotification(fmt.Sprintf("Measurement failed: %v", out.Err), true)
		default:
			m.setNotification(fmt.Sprintf("Measured %s: %.2f down, %.2f up",
				deref(out.Record.ServerIDResolved),
				*out.Record.DownloadSpeedMbps, *out.Record.UploadSpeedMbps), false)
		}
		cmds = append(cmds, loadRecords(m.store, m.limit))

	case clearNotificationMsg:
		if msg.version == m.notifVersion {
			m.notification = ""
			m.notificationErr = false
		}
	}

	if m.measuring {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Schedule notification auto-clear when a new notification was set.
	if m.notifVersion > prevNotifVersion && m.notification != "" {
		cmds = append(cmds, clearNotification(4*time.Second, m.notifVersion))
	}

	if m.activeTab == tabHistory {
		cmds = append(cmds, m.historyTab.Update(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := renderHeader(m.activeTab, m.measuring, m.lastFailed, m.width)

	var content string
	switch m.activeTab {
	case tabHistory:
		content = m.historyTab.View(m.spinner, m.measuring)
	case tabSummary:
		content = m.summaryTab.View()
	}

	var notif string
	if m.notification != "" {
		if m.notificationErr {
			notif = notifErrorStyle.Render("! " + m.notification)
		} else {
			notif = notifSuccessStyle.Render("* " + m.notification)
		}
	}

	footer := renderFooter(renderHelpBar(m.showHelp, m.measure != nil), m.width)

	parts := []string{header}
	if notif != "" {
		parts = append(parts, notif)
	}
	parts = append(parts, content, footer)
	output := lipgloss.JoinVertical(lipgloss.Left, parts...)

	// Force exactly m.height lines to prevent BubbleTea rendering drift.
	return forceHeight(output, m.width, m.height)
}

// forceHeight ensures the string has exactly `height` lines, each padded to `width`.
// This prevents BubbleTea from leaving ghost lines when switching tabs.
func forceHeight(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	blank := strings.Repeat(" ", width)
	for len(lines) < height {
		lines = append(lines, blank)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) contentHeight() int {
	overhead := 5
	if m.showHelp {
		overhead += 3
	}
	h := m.height - overhead
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit, true

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		ch := m.contentHeight()
		m.historyTab.setSize(m.width, ch)
		m.summaryTab.setSize(m.width, ch)
		return nil, true

	case key.Matches(msg, keys.TabNext):
		m.activeTab = (m.activeTab + 1) % tabCount
		return nil, true

	case key.Matches(msg, keys.TabPrev):
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return nil, true

	case key.Matches(msg, keys.Measure):
		if m.measure == nil || m.measuring {
			return nil, true
		}
		m.measuring = true
		return tea.Batch(runMeasure(m.ctx, m.measure), m.spinner.Tick), true

	case key.Matches(msg, keys.Refresh):
		return loadRecords(m.store, m.limit), true
	}
	return nil, false
}

func (m *Model) setNotification(text string, isErr bool) {
	m.notification = text
	m.notificationErr = isErr
	m.notifVersion++
}

// NewProgram creates a bubbletea program with alt screen.
func NewProgram(ctx context.Context, deps Deps) *tea.Program {
	return tea.NewProgram(NewModel(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
}
