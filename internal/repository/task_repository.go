package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskboard/internal/model"
	"taskboard/internal/recurring"
)

// TaskRepository handles CRUD for tasks and their assignees.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// InsertTask stores a generated task. A row that collides with an existing
// instance yields recurring.ErrInstanceExists.
func (r *TaskRepository) InsertTask(ctx context.Context, task *model.Task) error {
	err := r.db.WithContext(ctx).Create(task).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return recurring.ErrInstanceExists
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// ListOpenByBoard returns the board's unfinished top-level tasks.
func (r *TaskRepository) ListOpenByBoard(ctx context.Context, boardID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("board_id = ? AND parent_task_id IS NULL AND is_completed = ?", boardID, false).
		Order("due_date IS NULL, due_date, position").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	return tasks, nil
}

// MarkCompleted flags the task as done. It reports false when the task was
// already completed.
func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task, userID string, completedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"is_completed": true,
		"completed_at": completedAt,
		"completed_by": nullable(userID),
	}
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND is_completed = ?", task.ID, false).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("complete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	task.IsCompleted = true
	task.CompletedAt = &completedAt
	task.CompletedBy = nullable(userID)
	return true, nil
}

// InsertTaskAssignees links users to a task, keeping existing links.
func (r *TaskRepository) InsertTaskAssignees(ctx context.Context, taskID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]model.TaskAssignee, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, model.TaskAssignee{TaskID: taskID, UserID: id})
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert assignees: %w", err)
	}
	return nil
}

func (r *TaskRepository) AssigneeIDs(ctx context.Context, taskID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.TaskAssignee{}).
		Where("task_id = ?", taskID).
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load assignees: %w", err)
	}
	return ids, nil
}

func (r *TaskRepository) MaxPosition(ctx context.Context, boardID string) (int, error) {
	var top int
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("board_id = ?", boardID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&top).Error; err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return top, nil
}

func (r *TaskRepository) SubtasksWithAssignees(ctx context.Context, parentTaskID string) ([]model.TaskWithAssignees, error) {
	db := r.db.WithContext(ctx)
	var tasks []model.Task
	if err := db.Where("parent_task_id = ?", parentTaskID).Order("position, created_at, id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	var links []model.TaskAssignee
	if err := db.Where("task_id IN ?", ids).Order("user_id").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("query subtask assignees: %w", err)
	}
	byTask := make(map[string][]string, len(tasks))
	for _, l := range links {
		byTask[l.TaskID] = append(byTask[l.TaskID], l.UserID)
	}

	out := make([]model.TaskWithAssignees, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, model.TaskWithAssignees{Task: t, AssigneeIDs: byTask[t.ID]})
	}
	return out, nil
}

func (r *TaskRepository) CountOccurrences(ctx context.Context, groupID, completedTaskID string) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("recurring_group_id = ? AND parent_task_id IS NULL", groupID).
		Where("(source_task_id IS NULL OR source_task_id <> ?)", completedTaskID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count occurrences: %w", err)
	}
	return int(n), nil
}

func (r *TaskRepository) FindExistingInstance(ctx context.Context, groupID, dueDate string) (string, bool, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("recurring_group_id = ? AND due_date = ? AND parent_task_id IS NULL", groupID, dueDate).
		Order("created_at").
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return "", false, fmt.Errorf("find instance: %w", err)
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
