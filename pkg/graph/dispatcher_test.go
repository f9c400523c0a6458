package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDispatcherProcessesQueuedEntries(t *testing.T) {
	var (
		mu        sync.Mutex
		processed []string
	)
	done := make(chan struct{}, 2)
	d := NewDispatcher(2, 8, func(_ context.Context, entryID string) {
		mu.Lock()
		processed = append(processed, entryID)
		mu.Unlock()
		done <- struct{}{}
	}, quietLogger())
	d.Start(context.Background())
	defer d.Stop()

	if err := d.Enqueue("a"); err != nil {
		t.Fatalf("Enqueue(a): %v", err)
	}
	if err := d.Enqueue("b"); err != nil {
		t.Fatalf("Enqueue(b): %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for processing")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 2 {
		t.Fatalf("processed = %v, want both entries", processed)
	}
}

func TestDispatcherSupersedesDuplicateTriggers(t *testing.T) {
	gate := make(chan struct{})
	var (
		mu    sync.Mutex
		count int
	)
	d := NewDispatcher(1, 8, func(_ context.Context, _ string) {
		<-gate
		mu.Lock()
		count++
		mu.Unlock()
	}, quietLogger())
	d.Start(context.Background())

	if err := d.Enqueue("x"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// Wait until the worker picked the entry up and is blocked in process.
	deadline := time.After(2 * time.Second)
	for {
		d.mu.Lock()
		queued := len(d.queue)
		d.mu.Unlock()
		if queued == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never picked up the entry")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Both triggers while in flight collapse into a single rerun.
	if err := d.Enqueue("x"); err != nil {
		t.Fatalf("Enqueue while running: %v", err)
	}
	if err := d.Enqueue("x"); err != nil {
		t.Fatalf("Enqueue while running: %v", err)
	}

	gate <- struct{}{} // finish first run
	gate <- struct{}{} // finish the rerun
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("process count = %d, want 2 (one run plus one rerun)", count)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	// No Start: nothing drains the queue.
	d := NewDispatcher(1, 2, func(context.Context, string) {}, quietLogger())

	if err := d.Enqueue("a"); err != nil {
		t.Fatalf("Enqueue(a): %v", err)
	}
	if err := d.Enqueue("b"); err != nil {
		t.Fatalf("Enqueue(b): %v", err)
	}
	err := d.Enqueue("c")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	// The rejected entry must not be stuck in the in-flight set.
	d.mu.Lock()
	_, held := d.inflight["c"]
	d.mu.Unlock()
	if held {
		t.Error("rejected entry left in in-flight set")
	}
}

func TestDispatcherStopConcurrentWithEnqueue(t *testing.T) {
	// Enqueues racing Stop must resolve to either a successful enqueue or
	// ErrDispatcherStopped; a send on the closed queue would panic here.
	for i := 0; i < 50; i++ {
		d := NewDispatcher(2, 4, func(context.Context, string) {}, quietLogger())
		d.Start(context.Background())

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := d.Enqueue("entry")
				if err != nil && !errors.Is(err, ErrDispatcherStopped) && !errors.Is(err, ErrQueueFull) {
					t.Errorf("Enqueue: %v", err)
					return
				}
				if errors.Is(err, ErrDispatcherStopped) {
					return
				}
			}
		}()
		d.Stop()
		wg.Wait()
	}
}

func TestDispatcherStopRefusesNewWork(t *testing.T) {
	d := NewDispatcher(1, 4, func(context.Context, string) {}, quietLogger())
	d.Start(context.Background())
	d.Stop()

	if err := d.Enqueue("a"); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("err = %v, want ErrDispatcherStopped", err)
	}
}
