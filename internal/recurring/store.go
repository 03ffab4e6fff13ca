// Package recurring turns "recurring task completed" events into the next
// occurrence of the series.
//
// The Orchestrator drives a fixed sequence of steps (count, limit, evaluate,
// resolve defaults, create, attach, clone) through a StepRunner supplied by
// the host runtime. Each step is safe to repeat, so an event may be delivered
// and retried any number of times and still yields one new instance per
// (recurring group, due date).
package recurring

import (
	"context"
	"errors"

	"taskboard/internal/model"
)

// ErrInstanceExists is returned by Store.InsertTask when an equivalent row
// (same group and due date, or same parent and clone source) is already stored.
var ErrInstanceExists = errors.New("instance already exists")

// Store is the persistence surface the engine needs.
type Store interface {
	InsertTask(ctx context.Context, task *model.Task) error
	// InsertTaskAssignees is idempotent: existing links are kept.
	InsertTaskAssignees(ctx context.Context, taskID string, userIDs []string) error
	// BoardStatusOptions returns the board's statuses ordered by position.
	BoardStatusOptions(ctx context.Context, boardID string) ([]model.StatusOption, error)
	// MaxPosition returns the highest task position on the board, 0 if empty.
	MaxPosition(ctx context.Context, boardID string) (int, error)
	// SubtasksWithAssignees returns direct children ordered by position.
	SubtasksWithAssignees(ctx context.Context, parentTaskID string) ([]model.TaskWithAssignees, error)
	// CountOccurrences counts top-level tasks of the group, leaving out any
	// instance generated from completedTaskID.
	CountOccurrences(ctx context.Context, groupID, completedTaskID string) (int, error)
	// FindExistingInstance looks up the top-level task of the group due on dueDate.
	FindExistingInstance(ctx context.Context, groupID, dueDate string) (string, bool, error)
}

// StepRunner executes one named step, applying the host's retry policy.
type StepRunner interface {
	Run(ctx context.Context, step string, fn func(context.Context) error) error
}

// DirectRunner runs each step once.
type DirectRunner struct{}

func (DirectRunner) Run(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
