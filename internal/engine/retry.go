package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"taskboard/internal/logx"
)

// RetryOptions bounds how a step is retried.
type RetryOptions struct {
	// MaxAttempts counts the first try. Defaults to 3.
	MaxAttempts int
	Base        time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.2 = 20%
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Base <= 0 {
		o.Base = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 15 * time.Second
	}
	if o.Jitter <= 0 {
		o.Jitter = 0.2
	}
	return o
}

// Retrier runs named steps, retrying transient failures with exponential
// backoff. Errors wrapped with NoRetry end the step at once.
type Retrier struct {
	opt RetryOptions
	log logx.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(opt RetryOptions, log logx.Logger) *Retrier {
	return &Retrier{
		opt:   opt.withDefaults(),
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepCtx,
	}
}

// Run executes fn until it succeeds or the attempts run out. NoRetry errors
// and ctx cancellation stop it early. Failures come back as *StepError.
func (r *Retrier) Run(ctx context.Context, step string, fn func(context.Context) error) error {
	var err error
	attempts := 0
	for attempt := 1; attempt <= r.opt.MaxAttempts; attempt++ {
		attempts = attempt
		err = r.call(ctx, step, fn)
		if err == nil {
			if attempt > 1 {
				r.log.Info("step recovered", logx.String("step", step), logx.Int("attempts", attempt))
			}
			return nil
		}
		if IsNoRetry(err) || attempt == r.opt.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}

		delay := r.backoff(attempt)
		r.log.Debug("step retry scheduled", logx.String("step", step), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		if serr := r.sleep(ctx, delay); serr != nil {
			err = serr
			break
		}
	}
	var nr noRetryError
	if errors.As(err, &nr) {
		err = nr.err
	}
	return &StepError{Step: step, Attempts: attempts, Err: err}
}

func (r *Retrier) call(ctx context.Context, step string, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.log.Error("step.panic", logx.String("step", step), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	return fn(ctx)
}

func (r *Retrier) backoff(retry int) time.Duration {
	d := r.opt.Base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > r.opt.MaxDelay {
			d = r.opt.MaxDelay
			break
		}
	}
	if r.opt.Jitter > 0 {
		r.mu.Lock()
		f := r.rng.Float64()
		r.mu.Unlock()
		d = time.Duration(float64(d) * (1 + (f*2-1)*r.opt.Jitter))
	}
	if d < 0 {
		d = 0
	}
	if d > r.opt.MaxDelay {
		d = r.opt.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
