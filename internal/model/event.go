package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventStatus is the processing state of a completion event.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventDone    EventStatus = "done"
	EventFailed  EventStatus = "failed"
	// EventRejected marks a malformed event; it is never redriven.
	EventRejected EventStatus = "rejected"
)

// CompletionEvent is the durable record of a "recurring task completed"
// trigger. Rows are written together with the completion and processed at
// least once.
type CompletionEvent struct {
	ID        string         `gorm:"primaryKey;size:36"`
	TaskID    string         `gorm:"index;size:36"`
	GroupID   string         `gorm:"index;size:36"`
	Payload   datatypes.JSON `gorm:"not null"`
	Status    EventStatus    `gorm:"index;size:16"`
	Runs      int
	Outcome   string
	NewTaskID *string `gorm:"size:36"`
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
