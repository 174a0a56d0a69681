package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Job is a unit of work executed on the pool.
type Job func()

// DispatcherConfig bounds the pool. Zero values fall back to sane defaults.
type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// ErrDispatcherBusy is returned when the queue is full and the pool is at its
// maximum size.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

const defaultWorkerIdle = 30 * time.Second

// Dispatcher caps the number of concurrently executing jobs. The chat service
// routes every AI completion through it so a burst of users cannot open an
// unbounded number of upstream requests.
type Dispatcher struct {
	jobs chan Job
	stop chan struct{}

	mu      sync.Mutex
	running int
	min     int
	max     int
	idle    time.Duration
}

// NewDispatcher builds the pool and warms up MinWorkers workers.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	min := cfg.MinWorkers
	if min <= 0 {
		min = 1
	}
	max := cfg.MaxWorkers
	if max < min {
		max = min
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 16
	}
	idle := cfg.WorkerIdleTimeout
	if idle <= 0 {
		idle = defaultWorkerIdle
	}

	d := &Dispatcher{
		jobs: make(chan Job, queue),
		stop: make(chan struct{}),
		min:  min,
		max:  max,
		idle: idle,
	}
	for i := 0; i < min; i++ {
		d.spawnWorker(true)
	}
	return d
}

// Submit enqueues a job. When the queue is full the pool grows up to
// MaxWorkers before reporting ErrDispatcherBusy.
func (d *Dispatcher) Submit(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	select {
	case d.jobs <- job:
		return nil
	default:
	}
	if d.spawnWorker(false) {
		select {
		case d.jobs <- job:
			return nil
		default:
		}
	}
	return ErrDispatcherBusy
}

// Do runs fn on the pool and waits for it, honoring ctx while waiting.
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	err := d.Submit(func() {
		done <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the pool down. Pending queued jobs are dropped.
func (d *Dispatcher) Stop() {
	close(d.stop)
}

// Running reports the current worker count.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// spawnWorker starts one worker goroutine. Core workers never retire; extra
// workers exit after sitting idle for the configured timeout.
func (d *Dispatcher) spawnWorker(core bool) bool {
	d.mu.Lock()
	if d.running >= d.max {
		d.mu.Unlock()
		return false
	}
	d.running++
	d.mu.Unlock()

	go func() {
		idle := time.NewTimer(d.idle)
		defer idle.Stop()
		for {
			if !core {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(d.idle)
			}
			select {
			case job := <-d.jobs:
				job()
			case <-d.stop:
				d.retire()
				return
			case <-idleChan(core, idle):
				d.retire()
				return
			}
		}
	}()
	return true
}

func (d *Dispatcher) retire() {
	d.mu.Lock()
	d.running--
	d.mu.Unlock()
}

// idleChan returns a nil channel for core workers so the idle case never fires.
func idleChan(core bool, t *time.Timer) <-chan time.Time {
	if core {
		return nil
	}
	return t.C
}
