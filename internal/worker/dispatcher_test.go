package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 2, MaxWorkers: 4, QueueSize: 8})
	defer d.Stop()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := d.Submit(func() {
			atomic.AddInt64(&ran, 1)
			wg.Done()
		})
		if err != nil {
			wg.Done()
			t.Fatalf("Submit error: %v", err)
		}
	}
	wg.Wait()
	if got := atomic.LoadInt64(&ran); got != 20 {
		t.Fatalf("expected 20 jobs to run, got %d", got)
	}
}

func TestDispatcherBusy(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	defer d.Stop()

	block := make(chan struct{})
	release := func() { close(block) }
	defer release()

	// Occupy the single worker, then fill the queue.
	if err := d.Submit(func() { <-block }); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	// Give the worker time to pick the first job up.
	time.Sleep(20 * time.Millisecond)
	if err := d.Submit(func() {}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if err := d.Submit(func() {}); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
}

func TestDispatcherDoHonorsContext(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := d.Do(ctx, func() error {
		<-block
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDispatcherDoReturnsJobError(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	defer d.Stop()

	sentinel := errors.New("upstream failed")
	if err := d.Do(context.Background(), func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if err := d.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
