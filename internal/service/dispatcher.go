package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"taskboard/internal/config"
	"taskboard/internal/engine"
	"taskboard/internal/logx"
	"taskboard/internal/model"
	"taskboard/internal/recurrence"
	"taskboard/internal/recurring"
	"taskboard/internal/repository"
)

// Handler processes one completion event.
type Handler interface {
	Handle(ctx context.Context, ev recurring.Event) (recurring.Outcome, error)
}

// Dispatcher feeds stored completion events to the recurring engine and
// records how each run ended.
type Dispatcher struct {
	events  *repository.EventRepository
	handler Handler
	pool    *engine.Pool
	limiter *rate.Limiter
	cfg     config.RedriveConfig
	now     func() time.Time
	log     logx.Logger
}

// NewDispatcher builds a dispatcher. With a nil pool events are processed
// inline by the caller.
func NewDispatcher(events *repository.EventRepository, handler Handler, pool *engine.Pool, cfg config.RedriveConfig, log logx.Logger) *Dispatcher {
	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Dispatcher{
		events:  events,
		handler: handler,
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		cfg:     cfg,
		now:     time.Now,
		log:     log.With(logx.String("component", "dispatcher")),
	}
}

// Dispatch queues the event without blocking.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.CompletionEvent) error {
	if d.pool == nil {
		_, err := d.Process(ctx, ev.ID)
		return err
	}
	return d.pool.Enqueue(d.job(ev))
}

func (d *Dispatcher) job(ev model.CompletionEvent) engine.Job {
	id := ev.ID
	return engine.Job{
		ID:  id,
		Key: ev.GroupID,
		Run: func(ctx context.Context) error {
			_, err := d.Process(ctx, id)
			return err
		},
	}
}

// Process runs the engine for a stored event and records the outcome.
// Events that already finished are returned as they are.
func (d *Dispatcher) Process(ctx context.Context, eventID string) (recurring.Outcome, error) {
	stored, err := d.events.FindByID(ctx, eventID)
	if err != nil {
		return recurring.Outcome{}, err
	}
	log := d.log.With(logx.String("event_id", stored.ID), logx.Int("runs", stored.Runs))
	switch stored.Status {
	case model.EventDone:
		out := recurring.Outcome{State: recurring.State(stored.Outcome)}
		if stored.NewTaskID != nil {
			out.TaskID = *stored.NewTaskID
		}
		return out, nil
	case model.EventRejected:
		return recurring.Outcome{}, fmt.Errorf("event %s was rejected: %s", stored.ID, stored.LastError)
	}

	var ev recurring.Event
	if err := json.Unmarshal(stored.Payload, &ev); err != nil {
		cause := &recurrence.ValidationError{Field: "payload", Reason: err.Error()}
		recordErr(log, d.events.MarkRejected(ctx, stored.ID, cause))
		return recurring.Outcome{}, cause
	}
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = stored.CreatedAt
	}

	out, err := d.handler.Handle(ctx, ev)
	var verr *recurrence.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Error("completion event rejected", logx.Err(err))
		recordErr(log, d.events.MarkRejected(ctx, stored.ID, err))
		return out, err
	case err != nil:
		log.Warn("completion event failed", logx.Err(err))
		recordErr(log, d.events.MarkFailed(ctx, stored.ID, err))
		return out, err
	}

	var newTaskID *string
	if out.TaskID != "" {
		newTaskID = &out.TaskID
	}
	recordErr(log, d.events.MarkDone(ctx, stored.ID, string(out.State), newTaskID))
	return out, nil
}

func recordErr(log logx.Logger, err error) {
	if err != nil {
		log.Error("record event outcome", logx.Err(err))
	}
}

// Redrive resubmits pending and failed events that are older than the
// configured minimum age, pacing submissions with a rate limiter. It returns
// the number of events submitted.
func (d *Dispatcher) Redrive(ctx context.Context) (int, error) {
	cutoff := d.now().UTC().Add(-d.cfg.MinAge)
	events, err := d.events.ListRedrivable(ctx, cutoff, d.cfg.MaxRuns, d.cfg.Batch)
	if err != nil {
		return 0, err
	}
	submitted := 0
	for _, ev := range events {
		if err := d.limiter.Wait(ctx); err != nil {
			return submitted, err
		}
		if d.pool == nil {
			// Failures are recorded on the event itself.
			_, _ = d.Process(ctx, ev.ID)
		} else if err := d.pool.Submit(ctx, d.job(ev)); err != nil {
			return submitted, fmt.Errorf("submit event %s: %w", ev.ID, err)
		}
		submitted++
	}
	if submitted > 0 {
		d.log.Info("redrive submitted events", logx.Int("count", submitted))
	}
	return submitted, nil
}
