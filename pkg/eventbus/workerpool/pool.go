// Package workerpool provides an elastic pool of goroutines with an
// unbounded FIFO queue.
//
// Workers start on demand up to the pool size and retire after sitting
// idle for the idle timeout, so an unused pool holds no goroutines.
// Submit never blocks and never rejects work while the pool is open.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("worker pool closed")

// DefaultIdleTimeout is how long an idle worker waits before retiring.
const DefaultIdleTimeout = 10 * time.Second

// Task is a unit of work run on a pool worker.
type Task func(ctx context.Context)

// PanicHandler receives a value recovered from a task and its stack.
type PanicHandler func(recovered any, stack []byte)

// DefaultSize returns twice the CPU count, clamped to [4, 16].
func DefaultSize() int {
	return min(max(2*runtime.NumCPU(), 4), 16)
}

// Option configures a Pool.
type Option func(*Pool)

// WithSize sets the maximum number of workers. Values below 1 are ignored.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithIdleTimeout sets how long an idle worker lives. Values below 1 are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.idle = d
		}
	}
}

// WithPanicHandler replaces the default panic handler, which logs at error.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.onPanic = h
	}
}

// WithLogger sets the logger used by the default panic handler.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Size      int
	Workers   int
	Peak      int
	Queued    int
	Submitted uint64
	Completed uint64
	Panicked  uint64
	Retired   uint64
}

// Pool runs tasks on a bounded, elastic set of goroutines.
type Pool struct {
	size    int
	idle    time.Duration
	logger  *slog.Logger
	onPanic PanicHandler

	slots  *semaphore.Weighted
	notify chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	queue   []Task
	closing bool

	workers   atomic.Int32
	peak      atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	retired   atomic.Uint64
}

// New creates a pool. No goroutines run until the first Submit.
func New(opts ...Option) *Pool {
	p := &Pool{
		size:   DefaultSize(),
		idle:   DefaultIdleTimeout,
		logger: slog.Default(),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onPanic == nil {
		p.onPanic = p.logPanic
	}
	p.slots = semaphore.NewWeighted(int64(p.size))
	p.notify = make(chan struct{}, p.size)
	return p
}

// Size returns the maximum number of workers.
func (p *Pool) Size() int { return p.size }

// Submit queues task. A new worker starts if fewer than Size are running;
// otherwise an idle worker picks the task up, or the next worker to finish.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.submitted.Add(1)
	started := p.slots.TryAcquire(1)
	if started {
		p.spawn()
	}
	p.mu.Unlock()

	if !started {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close stops accepting tasks, lets workers drain the queue, and waits
// for them to exit or for ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closing {
		p.closing = true
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close worker pool: %w", ctx.Err())
	}
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return Stats{
		Size:      p.size,
		Workers:   int(p.workers.Load()),
		Peak:      int(p.peak.Load()),
		Queued:    queued,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Retired:   p.retired.Load(),
	}
}

// spawn starts a worker holding an already acquired slot. Callers hold
// p.mu or are themselves a running worker, so wg.Add never races Close.
func (p *Pool) spawn() {
	p.wg.Add(1)
	n := p.workers.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	go p.work()
}

func (p *Pool) take() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

func (p *Pool) hasWork() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0
}

func (p *Pool) work() {
	defer p.wg.Done()

	ctx := context.Background()
	timer := time.NewTimer(p.idle)
	timer.Stop()
	defer timer.Stop()

	for {
		if task, ok := p.take(); ok {
			p.run(ctx, task)
			continue
		}

		timer.Reset(p.idle)
		select {
		case <-p.notify:
			timer.Stop()
			continue
		case <-p.quit:
			timer.Stop()
			if p.hasWork() {
				continue
			}
		case <-timer.C:
		}

		p.workers.Add(-1)
		p.slots.Release(1)

		// A task queued while this worker was deciding to leave may have
		// found no free slot. Pick it up rather than strand it.
		if p.hasWork() && p.slots.TryAcquire(1) {
			p.workers.Add(1)
			continue
		}
		p.retired.Add(1)
		return
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.onPanic(r, debug.Stack())
		}
		p.completed.Add(1)
	}()
	task(ctx)
}

func (p *Pool) logPanic(recovered any, stack []byte) {
	if p.logger == nil {
		return
	}
	p.logger.Error("worker task panicked",
		slog.String("panic", fmt.Sprint(recovered)),
		slog.String("stack", string(stack)),
	)
}
