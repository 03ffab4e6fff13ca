package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/model"
)

// EventRepository stores completion events, the outbox between a task being
// completed and its next occurrence being materialized.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

func (r *EventRepository) Create(ctx context.Context, ev *model.CompletionEvent) error {
	if ev.Status == "" {
		ev.Status = model.EventPending
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *EventRepository) FindByID(ctx context.Context, id string) (*model.CompletionEvent, error) {
	var ev model.CompletionEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &ev, nil
}

// MarkDone records a terminal outcome.
func (r *EventRepository) MarkDone(ctx context.Context, id, outcome string, newTaskID *string) error {
	updates := map[string]interface{}{
		"status":      model.EventDone,
		"outcome":     outcome,
		"new_task_id": newTaskID,
		"last_error":  "",
		"runs":        gorm.Expr("runs + 1"),
	}
	if err := r.db.WithContext(ctx).Model(&model.CompletionEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark event done: %w", err)
	}
	return nil
}

// MarkFailed records a failed run so redrive can pick the event up again.
func (r *EventRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	updates := map[string]interface{}{
		"status":     model.EventFailed,
		"last_error": msg,
		"runs":       gorm.Expr("runs + 1"),
	}
	if err := r.db.WithContext(ctx).Model(&model.CompletionEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// MarkRejected parks an event that can never succeed.
func (r *EventRepository) MarkRejected(ctx context.Context, id string, cause error) error {
	updates := map[string]interface{}{
		"status":     model.EventRejected,
		"last_error": cause.Error(),
		"runs":       gorm.Expr("runs + 1"),
	}
	if err := r.db.WithContext(ctx).Model(&model.CompletionEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark event rejected: %w", err)
	}
	return nil
}

// ListRedrivable returns pending or failed events created before olderThan
// that have run fewer than maxRuns times, oldest first.
func (r *EventRepository) ListRedrivable(ctx context.Context, olderThan time.Time, maxRuns, limit int) ([]model.CompletionEvent, error) {
	var events []model.CompletionEvent
	q := r.db.WithContext(ctx).
		Where("status IN ?", []model.EventStatus{model.EventPending, model.EventFailed}).
		Where("created_at < ?", olderThan)
	if maxRuns > 0 {
		q = q.Where("runs < ?", maxRuns)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("created_at").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list redrivable events: %w", err)
	}
	return events, nil
}
