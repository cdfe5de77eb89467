// Package loop provides a single-goroutine execution context with an
// ordered job queue and delayed posts.
//
// Jobs posted to a Loop run one at a time on its goroutine, ordered by due
// time and, for equal due times, by posting order. Each job receives a
// context carrying the loop, so handlers can find "the loop I am on" with
// FromContext.
package loop

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// ErrClosed is returned when posting to a closed loop.
var ErrClosed = errors.New("loop closed")

// Job is a unit of work run on a loop.
type Job func(ctx context.Context)

// PanicHandler receives a value recovered from a job and its stack.
type PanicHandler func(name string, recovered any, stack []byte)

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for job panics and dropped work.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithPanicHandler replaces the default panic handler, which logs at error.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		l.onPanic = h
	}
}

// Loop runs jobs sequentially on one goroutine.
type Loop struct {
	name    string
	logger  *slog.Logger
	onPanic PanicHandler

	mu      sync.Mutex
	queue   queue
	seq     uint64
	closing bool

	wake chan struct{}
	done chan struct{}
}

// New starts a loop. name appears in logs.
func New(name string, opts ...Option) *Loop {
	l := &Loop{
		name:   name,
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.onPanic == nil {
		l.onPanic = func(name string, recovered any, stack []byte) {
			if l.logger == nil {
				return
			}
			l.logger.Error("loop job panicked",
				slog.String("loop", name),
				slog.String("panic", fmt.Sprint(recovered)),
				slog.String("stack", string(stack)),
			)
		}
	}
	go l.run()
	return l
}

// Name returns the loop's name.
func (l *Loop) Name() string { return l.name }

// String implements fmt.Stringer.
func (l *Loop) String() string { return "loop(" + l.name + ")" }

// Post queues job to run as soon as the jobs ahead of it finish.
// It never blocks.
func (l *Loop) Post(job Job) error {
	return l.PostDelayed(job, 0)
}

// PostDelayed queues job to run no earlier than delay from now. Negative
// delays are treated as zero. It never blocks.
func (l *Loop) PostDelayed(job Job, delay time.Duration) error {
	if job == nil {
		return errors.New("nil job")
	}
	if delay < 0 {
		delay = 0
	}
	due := time.Now().Add(delay)

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return ErrClosed
	}
	l.seq++
	heap.Push(&l.queue, entry{due: due, seq: l.seq, job: job})
	l.mu.Unlock()

	l.signal()
	return nil
}

// Pending returns the number of queued jobs, delayed ones included.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close stops accepting jobs, runs the jobs already due, drops delayed
// jobs that are not, and waits for the loop goroutine to exit or ctx to
// end. Calling Close again waits the same way.
func (l *Loop) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.signal()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close loop %s: %w", l.name, ctx.Err())
	}
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)

	ctx := WithLoop(context.Background(), l)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		job, wait, ok := l.next(time.Now())
		if !ok {
			return
		}
		if job != nil {
			l.runJob(ctx, job)
			continue
		}

		if wait < 0 {
			<-l.wake
			continue
		}
		timer.Reset(wait)
		select {
		case <-l.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// next pops the head job if it is due. Otherwise it returns how long to
// wait for the head, or a negative wait for an empty queue. ok is false
// once the loop is closing and nothing due remains.
func (l *Loop) next(now time.Time) (job Job, wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 && !l.queue[0].due.After(now) {
		return heap.Pop(&l.queue).(entry).job, 0, true
	}
	if l.closing {
		dropped := len(l.queue)
		l.queue = nil
		observability.LogDropped(l.logger, l.name, dropped)
		return nil, 0, false
	}
	if len(l.queue) == 0 {
		return nil, -1, true
	}
	return nil, l.queue[0].due.Sub(now), true
}

func (l *Loop) runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			l.onPanic(l.name, r, debug.Stack())
		}
	}()
	job(ctx)
}
