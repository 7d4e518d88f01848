package tui

import (
	"speedlog/internal/measure"
	"speedlog/internal/storage/models"
)

// Data loading messages.

type recordsLoadedMsg struct {
	records []*models.Record
	err     error
}

// Measurement messages.

type measureDoneMsg struct {
	outcome *measure.Outcome
}

// Notification message.

type clearNotificationMsg struct {
	version int
}
