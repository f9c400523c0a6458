package graph

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph/metrics"
)

// ErrQueueFull is returned when the dispatch queue cannot accept more work.
var ErrQueueFull = errors.New("dispatcher: queue full")

// ErrDispatcherStopped is returned for enqueues after Stop.
var ErrDispatcherStopped = errors.New("dispatcher: stopped")

// ProcessFunc runs the extraction pipeline for one entry. It must record its
// own outcome on the entry; the dispatcher only schedules.
type ProcessFunc func(ctx context.Context, entryID string)

// Dispatcher fans entry IDs out to a fixed worker pool over a bounded queue.
// At most one extraction per entry ID is in flight at a time: a second
// trigger while one runs marks the entry for a single rerun after the current
// attempt finishes, so later triggers supersede rather than race.
type Dispatcher struct {
	process ProcessFunc
	queue   chan string
	workers int
	log     *logrus.Entry

	mu       sync.Mutex
	inflight map[string]bool // entry id -> rerun requested
	stopped  bool

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher with the given pool size and queue bound.
func NewDispatcher(workers, queueSize int, process ProcessFunc, logger *logrus.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		process:  process,
		queue:    make(chan string, queueSize),
		workers:  workers,
		inflight: map[string]bool{},
		log:      logger.WithField("component", "dispatcher"),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or the
// queue is closed by Stop, whichever comes first.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.worker(ctx)
	}
}

// Enqueue schedules an extraction for the entry. Returns ErrQueueFull when
// the queue is at capacity and ErrDispatcherStopped after Stop. Enqueueing an
// entry that is already running succeeds immediately and marks it for rerun.
//
// The send happens under the mutex: Stop closes the queue only after taking
// the same mutex with stopped set, so a send can never race the close. The
// send is non-blocking, holding the lock across it is safe.
func (d *Dispatcher) Enqueue(entryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	if _, running := d.inflight[entryID]; running {
		d.inflight[entryID] = true
		d.log.WithField("entry_id", entryID).Debug("extraction in flight, marked for rerun")
		return nil
	}

	select {
	case d.queue <- entryID:
		d.inflight[entryID] = false
		metrics.DispatcherQueueLength.Set(float64(len(d.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work, drains the queue, and waits for workers to finish
// their current entries. Closing under the mutex excludes every sender, all
// of which check stopped while holding it.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case entryID, ok := <-d.queue:
			if !ok {
				return
			}
			metrics.DispatcherQueueLength.Set(float64(len(d.queue)))
			d.run(ctx, entryID)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, entryID string) {
	d.process(ctx, entryID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inflight[entryID] || d.stopped {
		delete(d.inflight, entryID)
		return
	}

	// Rerun requested while this run was active. Requeue under the mutex,
	// keeping the in-flight slot so no concurrent attempt sneaks in between
	// finishing and requeueing.
	select {
	case d.queue <- entryID:
		d.inflight[entryID] = false
		metrics.DispatcherQueueLength.Set(float64(len(d.queue)))
	default:
		delete(d.inflight, entryID)
		d.log.WithField("entry_id", entryID).Warn("dropping rerun, queue full")
	}
}
