package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"taskboard/internal/logx"
)

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron *cron.Cron
	log  logx.Logger
}

func NewSchedulerService(loc *time.Location, log logx.Logger) *SchedulerService {
	if loc == nil {
		loc = time.UTC
	}
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:  log,
	}
}

// Schedule registers job under a cron spec with a seconds field
// ("0 */5 * * * *") or a descriptor such as "@every 1m".
func (s *SchedulerService) Schedule(name, spec string, job func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.log.Info("job scheduled", logx.String("job", name), logx.String("spec", spec))
	return id, nil
}

// ScheduleRedrive runs the dispatcher's redrive on spec. Each run is bounded
// by timeout.
func (s *SchedulerService) ScheduleRedrive(spec string, timeout time.Duration, d *Dispatcher) (cron.EntryID, error) {
	return s.Schedule("redrive", spec, func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if _, err := d.Redrive(ctx); err != nil {
			s.log.Warn("redrive failed", logx.Err(err))
		}
	})
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
