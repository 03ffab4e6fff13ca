package model

import (
	"time"

	"gorm.io/datatypes"
)

// DateFlexibility tells how strictly a due date should be honored.
type DateFlexibility string

const (
	FlexibilityExact    DateFlexibility = "exact"
	FlexibilityFlexible DateFlexibility = "flexible"
)

// Task is a single item on a board. Tasks form a flat collection; a subtask
// points at its parent through ParentTaskID.
type Task struct {
	ID           string  `gorm:"primaryKey;size:36"`
	BoardID      string  `gorm:"index;size:36"`
	ParentTaskID *string `gorm:"index;size:36"`
	// SourceTaskID is the task this one was generated or cloned from.
	SourceTaskID *string `gorm:"index;size:36"`

	Title           string
	Description     datatypes.JSON
	Status          string
	Section         *string
	DueDate         *string `gorm:"size:10"` // YYYY-MM-DD
	DateFlexibility DateFlexibility
	Position        int

	RecurringConfig  datatypes.JSON
	RecurringGroupID *string `gorm:"index;size:36"`

	IsCompleted bool `gorm:"default:false"`
	CompletedAt *time.Time
	CompletedBy *string `gorm:"size:36"`
	CreatedBy   *string `gorm:"size:36"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsRecurring reports whether the task belongs to a recurring series.
func (t *Task) IsRecurring() bool {
	return t.RecurringGroupID != nil && *t.RecurringGroupID != "" && len(t.RecurringConfig) > 0
}

// TaskAssignee links a task to a user.
type TaskAssignee struct {
	TaskID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

// TaskWithAssignees is a task together with its assignee ids.
type TaskWithAssignees struct {
	Task
	AssigneeIDs []string
}
