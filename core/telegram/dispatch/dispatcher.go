// Package dispatch runs inbound update work on a fixed pool of workers.
// Jobs sharing a key always land on the same worker, so they run one at a
// time and in arrival order while different keys proceed in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("dispatch: queue closed")
	// ErrQueueFull means the owning shard is saturated; the job was dropped.
	ErrQueueFull = errors.New("dispatch: queue full")
)

// Options configures NewDispatcher. Zero values select defaults.
type Options struct {
	// Workers is the number of shards; each shard is served by one goroutine.
	Workers int
	// QueueSize bounds pending jobs per shard.
	QueueSize int
	// MaxDuration bounds a single job.
	MaxDuration time.Duration
	// OnDone observes every finished job, e.g. for metrics.
	OnDone func(action string, elapsed time.Duration, err error)
}

type job struct {
	ctx      context.Context
	key      int64
	action   string
	run      func(ctx context.Context) error
	enqueued time.Time
}

// Dispatcher executes jobs asynchronously, serialized per key.
type Dispatcher struct {
	opts   Options
	shards []chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once

	errs atomic.Uint64
}

// NewDispatcher starts a dispatcher with defaults for zeroed options.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}

	d := &Dispatcher{
		opts:   opts,
		shards: make([]chan job, opts.Workers),
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
		d.wg.Add(1)
		go d.worker(d.shards[i])
	}
	return d
}

// Enqueue schedules run on the shard owning key. It never blocks.
// ctx only carries logging metadata; its cancellation does not stop the job.
func (d *Dispatcher) Enqueue(ctx context.Context, key int64, action string, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("dispatch: nil run function")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	j := job{
		ctx:      logger.Detach(ctx),
		key:      key,
		action:   action,
		run:      run,
		enqueued: time.Now(),
	}
	select {
	case d.shards[d.shardFor(key)] <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount is the number of jobs that returned an error or panicked.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) shardFor(key int64) int {
	return int(uint64(key) % uint64(len(d.shards)))
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.exec(j)
	}
}

func (d *Dispatcher) exec(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	err := guarded(ctx, j.run)
	elapsed := time.Since(start)

	if done := d.opts.OnDone; done != nil {
		done(j.action, elapsed, err)
	}
	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.Duration("duration", logger.RoundMS(elapsed)),
		slog.Duration("wait", logger.RoundMS(start.Sub(j.enqueued))),
	}
	if err != nil {
		d.errs.Add(1)
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(netutil.RedactError(err), 256)),
			slog.String("err_code", netutil.ClassifyError(err)),
		)
		logger.Error(ctx, "tg", "dispatch.fail", attrs...)
		return
	}
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "tg", "dispatch.done", append(attrs, slog.String("status", "ok"))...)
	}
}

func guarded(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("dispatch: panic: %v", r)
		logger.Error(ctx, "tg", "dispatch.panic",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("stack", string(debug.Stack())),
		)
	}()
	return run(ctx)
}
