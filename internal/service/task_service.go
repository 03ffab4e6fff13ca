package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"taskboard/internal/logx"
	"taskboard/internal/model"
	"taskboard/internal/recurrence"
	"taskboard/internal/recurring"
	"taskboard/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	BoardID         string
	Title           string
	Description     json.RawMessage
	Section         string
	DueDate         string
	DateFlexibility model.DateFlexibility
	Status          string
	Recurrence      *recurrence.Rule
	AssigneeIDs     []string
	CreatedBy       string
}

// TaskService wraps task-related business logic.
type TaskService struct {
	db         *gorm.DB
	taskRepo   *repository.TaskRepository
	eventRepo  *repository.EventRepository
	dispatcher *Dispatcher
	log        logx.Logger
}

func NewTaskService(db *gorm.DB, taskRepo *repository.TaskRepository, eventRepo *repository.EventRepository, dispatcher *Dispatcher, log logx.Logger) *TaskService {
	return &TaskService{db: db, taskRepo: taskRepo, eventRepo: eventRepo, dispatcher: dispatcher, log: log}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.BoardID == "" {
		return nil, fmt.Errorf("board is required")
	}

	task := model.Task{
		ID:              uuid.NewString(),
		BoardID:         input.BoardID,
		Title:           strings.TrimSpace(input.Title),
		Status:          input.Status,
		DateFlexibility: input.DateFlexibility,
		CreatedBy:       optional(input.CreatedBy),
		Section:         optional(input.Section),
	}
	if task.DateFlexibility == "" {
		task.DateFlexibility = model.FlexibilityExact
	}
	if len(input.Description) > 0 {
		task.Description = datatypes.JSON(input.Description)
	}
	if input.DueDate != "" {
		d, err := recurrence.ParseDate(input.DueDate)
		if err != nil {
			return nil, err
		}
		due := recurrence.FormatDate(d)
		task.DueDate = &due
	}
	if input.Recurrence != nil {
		if err := input.Recurrence.Validate(); err != nil {
			return nil, err
		}
		cfg, err := json.Marshal(input.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("encode recurrence: %w", err)
		}
		task.RecurringConfig = datatypes.JSON(cfg)
		task.RecurringGroupID = optional(uuid.NewString())
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := s.taskRepo.WithTx(tx)
		if task.Status == "" {
			opts, err := repository.NewBoardRepository(tx).StatusOptions(ctx, task.BoardID)
			if err != nil {
				return err
			}
			task.Status = recurring.DefaultStatus
			if len(opts) > 0 {
				task.Status = opts[0].ID
			}
		}
		top, err := tasks.MaxPosition(ctx, task.BoardID)
		if err != nil {
			return err
		}
		task.Position = top + 1
		if err := tasks.Create(ctx, &task); err != nil {
			return err
		}
		return tasks.InsertTaskAssignees(ctx, task.ID, input.AssigneeIDs)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ListOpen(ctx context.Context, boardID string) ([]model.Task, error) {
	return s.taskRepo.ListOpenByBoard(ctx, boardID)
}

func (s *TaskService) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, taskID)
}

// CompleteTask marks a task as done. For a recurring task it records a
// completion event in the same transaction and hands it to the dispatcher,
// which materializes the next occurrence. Completing an already completed
// task is a no-op.
func (s *TaskService) CompleteTask(ctx context.Context, taskID, userID string, completedAt time.Time) (*model.Task, error) {
	var (
		task  *model.Task
		event *model.CompletionEvent
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := s.taskRepo.WithTx(tx)
		var err error
		if task, err = tasks.FindByID(ctx, taskID); err != nil {
			return err
		}
		changed, err := tasks.MarkCompleted(ctx, task, userID, completedAt)
		if err != nil || !changed || !task.IsRecurring() {
			return err
		}

		assignees, err := tasks.AssigneeIDs(ctx, task.ID)
		if err != nil {
			return err
		}
		ev, err := recurring.EventFromTask(*task, assignees, userID, completedAt)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode completion event: %w", err)
		}
		event = &model.CompletionEvent{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			GroupID:   ev.RecurringGroupID,
			Payload:   datatypes.JSON(payload),
			CreatedAt: completedAt.UTC(),
		}
		return s.eventRepo.WithTx(tx).Create(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		s.log.Info("recurring task completed", logx.String("task_id", task.ID), logx.String("event_id", event.ID))
		// The stored event is redriven if handing it off fails.
		if err := s.dispatcher.Dispatch(ctx, *event); err != nil {
			s.log.Warn("dispatch completion event", logx.String("event_id", event.ID), logx.Err(err))
		}
	}
	return task, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
