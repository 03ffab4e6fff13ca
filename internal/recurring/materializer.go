package recurring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"taskboard/internal/logx"
	"taskboard/internal/model"
	"taskboard/internal/recurrence"
)

// DefaultStatus is used when the board has no status options.
const DefaultStatus = "todo"

// Source is the snapshot of the completed occurrence being cloned.
type Source struct {
	TaskID          string
	Title           string
	Description     json.RawMessage
	Section         *string
	DateFlexibility model.DateFlexibility
	// DueDate is the completed occurrence's due date, nil when it had none.
	DueDate *time.Time
}

// Request describes the instance to materialize.
type Request struct {
	BoardID          string
	RecurringGroupID string
	Rule             recurrence.Rule
	NextDueDate      time.Time
	Source           Source
	AssigneeIDs      []string
	CreatedBy        string
}

// Defaults are the board-derived values of a new instance.
type Defaults struct {
	Status   string
	Position int
}

// Clone links a source subtask to its copy under the new instance.
type Clone struct {
	SourceID    string
	TaskID      string
	DueDate     *string
	AssigneeIDs []string
}

// Materializer creates a new occurrence and its cloned subtasks. Each method
// is one step of the sequence and can be repeated safely.
type Materializer struct {
	store Store
	newID func() string
	log   logx.Logger
}

func NewMaterializer(store Store, newID func() string, log logx.Logger) *Materializer {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Materializer{store: store, newID: newID, log: log}
}

// ResolveBoardDefaults picks the board's first status and the next free position.
func (m *Materializer) ResolveBoardDefaults(ctx context.Context, boardID string) (Defaults, error) {
	opts, err := m.store.BoardStatusOptions(ctx, boardID)
	if err != nil {
		return Defaults{}, fmt.Errorf("load status options: %w", err)
	}
	d := Defaults{Status: DefaultStatus}
	if len(opts) > 0 {
		d.Status = opts[0].ID
	}
	maxPos, err := m.store.MaxPosition(ctx, boardID)
	if err != nil {
		return Defaults{}, fmt.Errorf("load max position: %w", err)
	}
	d.Position = maxPos + 1
	return d, nil
}

// FindExisting returns the instance already stored for the request's due date.
func (m *Materializer) FindExisting(ctx context.Context, req Request) (string, bool, error) {
	id, ok, err := m.store.FindExistingInstance(ctx, req.RecurringGroupID, recurrence.FormatDate(req.NextDueDate))
	if err != nil {
		return "", false, fmt.Errorf("find existing instance: %w", err)
	}
	return id, ok, nil
}

// CreateTask inserts the new instance. When a concurrent run stored it first,
// the existing id is returned with existed=true.
func (m *Materializer) CreateTask(ctx context.Context, req Request, d Defaults) (id string, existed bool, err error) {
	cfg, err := json.Marshal(req.Rule)
	if err != nil {
		return "", false, fmt.Errorf("encode recurrence rule: %w", err)
	}
	due := recurrence.FormatDate(req.NextDueDate)
	task := model.Task{
		ID:               m.newID(),
		BoardID:          req.BoardID,
		SourceTaskID:     optional(req.Source.TaskID),
		Title:            req.Source.Title,
		Description:      datatypes.JSON(req.Source.Description),
		Status:           d.Status,
		Section:          req.Source.Section,
		DueDate:          &due,
		DateFlexibility:  req.Source.DateFlexibility,
		Position:         d.Position,
		RecurringConfig:  datatypes.JSON(cfg),
		RecurringGroupID: optional(req.RecurringGroupID),
		CreatedBy:        optional(req.CreatedBy),
	}
	err = m.store.InsertTask(ctx, &task)
	if errors.Is(err, ErrInstanceExists) {
		existing, ok, ferr := m.FindExisting(ctx, req)
		if ferr != nil {
			return "", false, ferr
		}
		if ok {
			m.log.Debug("instance insert lost race", logx.String("instance_id", existing), logx.String("due_date", due))
			return existing, true, nil
		}
	}
	if err != nil {
		return "", false, fmt.Errorf("insert task: %w", err)
	}
	return task.ID, false, nil
}

// AttachAssignees links the instance to the source occurrence's assignees.
func (m *Materializer) AttachAssignees(ctx context.Context, taskID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	if err := m.store.InsertTaskAssignees(ctx, taskID, userIDs); err != nil {
		return fmt.Errorf("attach assignees to %s: %w", taskID, err)
	}
	return nil
}

// QuerySubtasks loads the source occurrence's subtasks with their assignees.
func (m *Materializer) QuerySubtasks(ctx context.Context, sourceTaskID string) ([]model.TaskWithAssignees, error) {
	subs, err := m.store.SubtasksWithAssignees(ctx, sourceTaskID)
	if err != nil {
		return nil, fmt.Errorf("query subtasks of %s: %w", sourceTaskID, err)
	}
	return subs, nil
}

// CloneSubtasks copies every source subtask under parentID, keeping each
// one's day offset from the parent's due date. Subtasks cloned by an earlier
// attempt are reused.
func (m *Materializer) CloneSubtasks(ctx context.Context, req Request, parentID string, d Defaults, subtasks []model.TaskWithAssignees) ([]Clone, error) {
	existing, err := m.existingClones(ctx, parentID)
	if err != nil {
		return nil, err
	}

	clones := make([]Clone, 0, len(subtasks))
	for _, sub := range subtasks {
		c := Clone{
			SourceID:    sub.ID,
			DueDate:     ShiftDueDate(sub.DueDate, req.Source.DueDate, req.NextDueDate),
			AssigneeIDs: sub.AssigneeIDs,
		}
		if id, ok := existing[sub.ID]; ok {
			c.TaskID = id
			clones = append(clones, c)
			continue
		}

		sourceID := sub.ID
		task := model.Task{
			ID:               m.newID(),
			BoardID:          req.BoardID,
			ParentTaskID:     &parentID,
			SourceTaskID:     &sourceID,
			Title:            sub.Title,
			Description:      sub.Description,
			Status:           d.Status,
			Section:          sub.Section,
			DueDate:          c.DueDate,
			DateFlexibility:  sub.DateFlexibility,
			Position:         sub.Position,
			RecurringConfig:  sub.RecurringConfig,
			RecurringGroupID: sub.RecurringGroupID,
			CreatedBy:        optional(req.CreatedBy),
		}
		err := m.store.InsertTask(ctx, &task)
		switch {
		case err == nil:
			c.TaskID = task.ID
		case errors.Is(err, ErrInstanceExists):
			if existing, err = m.existingClones(ctx, parentID); err != nil {
				return nil, err
			}
			id, ok := existing[sub.ID]
			if !ok {
				return nil, fmt.Errorf("clone subtask %s: %w", sub.ID, ErrInstanceExists)
			}
			c.TaskID = id
		default:
			return nil, fmt.Errorf("clone subtask %s: %w", sub.ID, err)
		}
		clones = append(clones, c)
	}
	return clones, nil
}

// AttachSubtaskAssignees gives each clone its own source subtask's assignees.
func (m *Materializer) AttachSubtaskAssignees(ctx context.Context, clones []Clone) error {
	for _, c := range clones {
		if err := m.AttachAssignees(ctx, c.TaskID, c.AssigneeIDs); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) existingClones(ctx context.Context, parentID string) (map[string]string, error) {
	children, err := m.store.SubtasksWithAssignees(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("query clones of %s: %w", parentID, err)
	}
	out := make(map[string]string, len(children))
	for _, c := range children {
		if c.SourceTaskID != nil {
			out[*c.SourceTaskID] = c.ID
		}
	}
	return out, nil
}

// ShiftDueDate moves a subtask due date so that its distance from the parent
// is the same relative to next as it was relative to parentDue. A missing
// date on either side, or an unreadable one, yields nil.
func ShiftDueDate(subtaskDue *string, parentDue *time.Time, next time.Time) *string {
	if subtaskDue == nil || parentDue == nil {
		return nil
	}
	due, err := recurrence.ParseDate(*subtaskDue)
	if err != nil {
		return nil
	}
	shifted := recurrence.FormatDate(recurrence.AddDays(next, recurrence.DaysBetween(*parentDue, due)))
	return &shifted
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
