package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"taskboard/internal/logx"
)

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// Job is a unit of work run by the pool. Jobs with the same Key never run
// concurrently; jobs with different keys share nothing.
type Job struct {
	ID  string
	Key string
	Run func(ctx context.Context) error
}

// Pool runs jobs on a fixed set of workers fed by a bounded queue.
type Pool struct {
	cfg PoolConfig
	log logx.Logger

	mu     sync.Mutex
	q      chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	keys keyLocks
}

func NewPool(cfg PoolConfig, log logx.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Pool{cfg: cfg, log: log, keys: keyLocks{m: make(map[string]*keyLock)}}
}

// Start launches the workers. It is idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.q = make(chan Job, p.cfg.QueueSize)
	p.stopCh = make(chan struct{})
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, p.stopCh, p.q)
	}
	p.log.Info("engine started", logx.Int("workers", p.cfg.Workers), logx.Int("queue", p.cfg.QueueSize))
}

// Stop asks workers to finish their current job and waits until they do or
// ctx ends. Queued jobs that did not start are dropped; the caller's durable
// record is what brings them back.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	stopCh := p.stopCh
	if stopCh == nil {
		p.mu.Unlock()
		return
	}
	close(stopCh)
	p.stopCh = nil
	p.q = nil
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("engine stopped")
	case <-ctx.Done():
		p.log.Warn("engine stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue adds a job without blocking.
func (p *Pool) Enqueue(job Job) error {
	q, stopCh, err := p.queue(job)
	if err != nil {
		return err
	}
	select {
	case <-stopCh:
		return ErrStopped
	case q <- job:
		return nil
	default:
		p.log.Warn("job dropped: queue full", logx.String("job", job.ID), logx.Int("queue_cap", cap(q)))
		return ErrQueueFull
	}
}

// Submit adds a job, blocking until there is room, ctx ends or the pool stops.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	q, stopCh, err := p.queue(job)
	if err != nil {
		return err
	}
	select {
	case q <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		return ErrStopped
	}
}

func (p *Pool) queue(job Job) (chan Job, chan struct{}, error) {
	if job.Run == nil {
		return nil, nil, fmt.Errorf("job Run is nil")
	}
	p.mu.Lock()
	q, stopCh := p.q, p.stopCh
	p.mu.Unlock()
	if q == nil || stopCh == nil {
		return nil, nil, ErrStopped
	}
	return q, stopCh, nil
}

func (p *Pool) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan Job) {
	defer p.wg.Done()
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case job := <-queue:
			p.exec(ctx, job)
		}
	}
}

func (p *Pool) exec(ctx context.Context, job Job) {
	key := strings.TrimSpace(job.Key)
	if key != "" {
		unlock := p.keys.lock(key)
		defer unlock()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				p.log.Error("job.panic", logx.String("job", job.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		return job.Run(ctx)
	}()
	dur := time.Since(start)
	if err != nil {
		p.log.Warn("job.failed", logx.String("job", job.ID), logx.String("key", key), logx.Duration("dur", dur), logx.Err(err))
		return
	}
	p.log.Debug("job.completed", logx.String("job", job.ID), logx.String("key", key), logx.Duration("dur", dur))
}

// keyLocks hands out one mutex per key and forgets keys nobody holds.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	kl := k.m[key]
	if kl == nil {
		kl = &keyLock{}
		k.m[key] = kl
	}
	kl.refs++
	k.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		k.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
