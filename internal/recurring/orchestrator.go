package recurring

import (
	"context"
	"fmt"
	"time"

	"taskboard/internal/engine"
	"taskboard/internal/logx"
	"taskboard/internal/model"
	"taskboard/internal/recurrence"
)

// Step names, as reported to the StepRunner.
const (
	StepCountOccurrences       = "CountOccurrences"
	StepCheckLimit             = "CheckLimit"
	StepEvaluate               = "Evaluate"
	StepResolveBoardDefaults   = "ResolveBoardDefaults"
	StepFindExisting           = "FindExisting"
	StepCreateTask             = "CreateTask"
	StepAttachAssignees        = "AttachAssignees"
	StepQuerySubtasks          = "QuerySubtasks"
	StepCloneSubtasks          = "CloneSubtasks"
	StepAttachSubtaskAssignees = "AttachSubtaskAssignees"
)

// State is the terminal state of a handled event.
type State string

const (
	StateMaterialized     State = "materialized"
	StateSeriesEnded      State = "series_ended"
	StateNoNextOccurrence State = "no_next_occurrence"
)

// Outcome describes how an event ended.
type Outcome struct {
	State State
	// TaskID is the new (or resumed) instance, set when State is StateMaterialized.
	TaskID      string
	NextDueDate string
	Occurrences int
	Resumed     bool
	Subtasks    int
}

type Options struct {
	// Runner applies the retry policy to each step. Defaults to DirectRunner.
	Runner    StepRunner
	Evaluator recurrence.Evaluator
	Now       func() time.Time
	NewID     func() string
	Log       logx.Logger
}

// Orchestrator handles completion events.
type Orchestrator struct {
	store  Store
	runner StepRunner
	eval   recurrence.Evaluator
	now    func() time.Time
	mat    *Materializer
	log    logx.Logger
}

func NewOrchestrator(store Store, opt Options) *Orchestrator {
	if opt.Runner == nil {
		opt.Runner = DirectRunner{}
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Orchestrator{
		store:  store,
		runner: opt.Runner,
		eval:   opt.Evaluator,
		now:    opt.Now,
		mat:    NewMaterializer(store, opt.NewID, opt.Log),
		log:    opt.Log,
	}
}

// Handle runs the completion sequence for ev. SeriesEnded and
// NoNextOccurrence are successful outcomes. A malformed event fails at once
// with a *recurrence.ValidationError.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) (Outcome, error) {
	log := o.log.With(logx.String("task_id", ev.TaskID), logx.String("group_id", ev.RecurringGroupID))
	if err := ev.Validate(); err != nil {
		log.Warn("completion event rejected", logx.Err(err))
		return Outcome{}, err
	}

	now := ev.CompletedAt
	if now.IsZero() {
		now = o.now()
	}
	rule := ev.RecurringConfig
	completedDue, hasDue, _ := ev.dueDate()
	var out Outcome

	if err := o.runner.Run(ctx, StepCountOccurrences, func(ctx context.Context) error {
		n, err := o.store.CountOccurrences(ctx, ev.RecurringGroupID, ev.TaskID)
		if err != nil {
			return fmt.Errorf("count occurrences: %w", err)
		}
		out.Occurrences = n
		return nil
	}); err != nil {
		return out, err
	}

	cont := true
	if err := o.runner.Run(ctx, StepCheckLimit, func(context.Context) error {
		cont = recurrence.ShouldContinue(rule, out.Occurrences)
		return nil
	}); err != nil {
		return out, err
	}
	if !cont {
		out.State = StateSeriesEnded
		log.Info("series ended", logx.Int("occurrences", out.Occurrences), logx.Int("limit", rule.EndAfterOccurrences))
		return out, nil
	}

	from := completedDue
	if !hasDue {
		from = recurrence.Today(now, o.eval.Location)
	}
	var next time.Time
	var ok bool
	if err := o.runner.Run(ctx, StepEvaluate, func(context.Context) error {
		var err error
		next, ok, err = o.eval.Next(rule, from, now)
		return engine.NoRetry(err)
	}); err != nil {
		return out, err
	}
	if !ok {
		out.State = StateNoNextOccurrence
		log.Info("no next occurrence", logx.String("end_date", rule.EndDate))
		return out, nil
	}
	out.NextDueDate = recurrence.FormatDate(next)

	req := Request{
		BoardID:          ev.BoardID,
		RecurringGroupID: ev.RecurringGroupID,
		Rule:             rule,
		NextDueDate:      next,
		Source: Source{
			TaskID:          ev.TaskID,
			Title:           ev.Title,
			Description:     ev.Description,
			Section:         ev.Section,
			DateFlexibility: ev.DateFlexibility,
		},
		AssigneeIDs: ev.AssigneeIDs,
		CreatedBy:   ev.CompletedByUserID,
	}
	if hasDue {
		req.Source.DueDate = &completedDue
	}

	var defaults Defaults
	if err := o.runner.Run(ctx, StepResolveBoardDefaults, func(ctx context.Context) error {
		var err error
		defaults, err = o.mat.ResolveBoardDefaults(ctx, ev.BoardID)
		return err
	}); err != nil {
		return out, err
	}

	if err := o.runner.Run(ctx, StepFindExisting, func(ctx context.Context) error {
		var err error
		out.TaskID, out.Resumed, err = o.mat.FindExisting(ctx, req)
		return err
	}); err != nil {
		return out, err
	}
	if !out.Resumed {
		if err := o.runner.Run(ctx, StepCreateTask, func(ctx context.Context) error {
			var err error
			out.TaskID, out.Resumed, err = o.mat.CreateTask(ctx, req, defaults)
			return err
		}); err != nil {
			return out, err
		}
	}
	if out.Resumed {
		log.Info("resuming existing instance", logx.String("instance_id", out.TaskID), logx.String("due_date", out.NextDueDate))
	}

	if err := o.runner.Run(ctx, StepAttachAssignees, func(ctx context.Context) error {
		return o.mat.AttachAssignees(ctx, out.TaskID, req.AssigneeIDs)
	}); err != nil {
		return out, err
	}

	var subs []model.TaskWithAssignees
	if err := o.runner.Run(ctx, StepQuerySubtasks, func(ctx context.Context) error {
		var err error
		subs, err = o.mat.QuerySubtasks(ctx, ev.TaskID)
		return err
	}); err != nil {
		return out, err
	}

	var clones []Clone
	if err := o.runner.Run(ctx, StepCloneSubtasks, func(ctx context.Context) error {
		var err error
		clones, err = o.mat.CloneSubtasks(ctx, req, out.TaskID, defaults, subs)
		return err
	}); err != nil {
		return out, err
	}
	out.Subtasks = len(clones)

	if err := o.runner.Run(ctx, StepAttachSubtaskAssignees, func(ctx context.Context) error {
		return o.mat.AttachSubtaskAssignees(ctx, clones)
	}); err != nil {
		return out, err
	}

	out.State = StateMaterialized
	log.Info("occurrence materialized",
		logx.String("instance_id", out.TaskID),
		logx.String("due_date", out.NextDueDate),
		logx.Int("subtasks", out.Subtasks),
		logx.Bool("resumed", out.Resumed),
	)
	return out, nil
}
