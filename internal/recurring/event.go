package recurring

import (
	"encoding/json"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/recurrence"
)

// Event is emitted once per completed occurrence of a recurring task.
type Event struct {
	TaskID            string                `json:"taskId"`
	BoardID           string                `json:"boardId"`
	RecurringGroupID  string                `json:"recurringGroupId"`
	RecurringConfig   recurrence.Rule       `json:"recurringConfig"`
	CompletedDueDate  string                `json:"completedDueDate,omitempty"`
	Title             string                `json:"title"`
	Description       json.RawMessage       `json:"description,omitempty"`
	Section           *string               `json:"section,omitempty"`
	DateFlexibility   model.DateFlexibility `json:"dateFlexibility"`
	AssigneeIDs       []string              `json:"assigneeIds"`
	CompletedByUserID string                `json:"completedByUserId"`
	// CompletedAt is when the task was marked done. Every run of the event
	// evaluates the rule as of this instant.
	CompletedAt       time.Time             `json:"completedAt"`
}

// Validate checks the fields the engine cannot do without.
func (e Event) Validate() error {
	required := []struct{ field, value string }{
		{"taskId", e.TaskID},
		{"boardId", e.BoardID},
		{"recurringGroupId", e.RecurringGroupID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &recurrence.ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	if _, _, err := e.dueDate(); err != nil {
		return &recurrence.ValidationError{Field: "completedDueDate", Reason: err.Error()}
	}
	return e.RecurringConfig.Validate()
}

// dueDate parses CompletedDueDate; ok is false when the field is empty.
func (e Event) dueDate() (time.Time, bool, error) {
	if strings.TrimSpace(e.CompletedDueDate) == "" {
		return time.Time{}, false, nil
	}
	d, err := recurrence.ParseDate(e.CompletedDueDate)
	if err != nil {
		return time.Time{}, false, err
	}
	return d, true, nil
}

// EventFromTask builds the completion event of a finished recurring task.
func EventFromTask(task model.Task, assigneeIDs []string, completedBy string, completedAt time.Time) (Event, error) {
	var rule recurrence.Rule
	if err := json.Unmarshal(task.RecurringConfig, &rule); err != nil {
		return Event{}, &recurrence.ValidationError{Field: "recurringConfig", Reason: err.Error()}
	}
	ev := Event{
		TaskID:            task.ID,
		BoardID:           task.BoardID,
		RecurringConfig:   rule,
		Title:             task.Title,
		Section:           task.Section,
		DateFlexibility:   task.DateFlexibility,
		AssigneeIDs:       append([]string(nil), assigneeIDs...),
		CompletedByUserID: completedBy,
		CompletedAt:       completedAt.UTC(),
	}
	if task.RecurringGroupID != nil {
		ev.RecurringGroupID = *task.RecurringGroupID
	}
	if task.DueDate != nil {
		ev.CompletedDueDate = *task.DueDate
	}
	if len(task.Description) > 0 {
		ev.Description = json.RawMessage(task.Description)
	}
	return ev, nil
}
