// Package enforcement delivers QoS marking notifications to enforcement
// collaborators without blocking the decision path.
package enforcement

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/metrics"
	"SentinelQoS/internal/model"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Stats are the dispatcher's delivery counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Applied   int64 `json:"applied"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Dispatcher fans marking events out to a set of markers from a bounded queue
// served by a fixed worker pool.
type Dispatcher struct {
	markers      []model.Marker
	applyTimeout time.Duration

	// Worker pool for concurrent marking delivery
	queue      chan model.MarkingEvent
	numWorkers int
	workerWg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	applied   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher. Call Start before submitting.
func NewDispatcher(markers []model.Marker, queueSize, numWorkers int, applyTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if applyTimeout <= 0 {
		applyTimeout = 5 * time.Second
	}
	return &Dispatcher{
		markers:      markers,
		applyTimeout: applyTimeout,
		queue:        make(chan model.MarkingEvent, queueSize),
		numWorkers:   numWorkers,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.workerWg.Add(d.numWorkers)
	for i := 0; i < d.numWorkers; i++ {
		go d.worker()
	}
	names := make([]string, 0, len(d.markers))
	for _, m := range d.markers {
		names = append(names, m.Name())
	}
	logger.Log().Infof("Enforcement dispatcher started with %d workers, markers: %v", d.numWorkers, names)
}

// Submit enqueues an event without blocking. It returns false when the queue
// is full or the dispatcher is stopped; the event is then dropped.
func (d *Dispatcher) Submit(e model.MarkingEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(e, "dispatcher stopped")
		return false
	}
	select {
	case d.queue <- e:
		d.submitted.Add(1)
		return true
	default:
		d.drop(e, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(e model.MarkingEvent, reason string) {
	d.dropped.Add(1)
	metrics.IncMarking("dropped")
	logger.Log().Warnf("Dropping marking for flow %s: %s", e.FlowID, reason)
}

// Stop stops accepting events and waits for the queued ones to be delivered.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	logger.Log().Infof("Waiting for enforcement workers to finish...")
	d.workerWg.Wait()
	logger.Log().Infof("Enforcement dispatcher stopped.")
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Applied:   d.applied.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) worker() {
	defer d.workerWg.Done()
	for e := range d.queue {
		for _, m := range d.markers {
			d.apply(m, e)
		}
	}
}

func (d *Dispatcher) apply(m model.Marker, e model.MarkingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.applyTimeout)
	defer cancel()

	if err := m.Apply(ctx, e); err != nil {
		d.failed.Add(1)
		metrics.IncMarking("failed")
		logger.Log().Errorf("Marker %s failed for flow %s: %v", m.Name(), e.FlowID, err)
		return
	}
	d.applied.Add(1)
	metrics.IncMarking("applied")
}
