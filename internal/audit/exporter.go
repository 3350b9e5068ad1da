package audit

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Source yields investigations appended after an offset, plus the new offset.
type Source interface {
	InvestigationsSince(offset int) ([]model.Investigation, int)
}

// Exporter periodically ships new investigations to a set of writers.
// The cursor only advances once every writer accepted the batch, so a
// failed export is retried on the next tick.
type Exporter struct {
	source   Source
	writers  []model.InvestigationWriter
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	offset int

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewExporter creates an exporter. It does nothing until Start is called.
func NewExporter(source Source, writers []model.InvestigationWriter, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Exporter{
		source:   source,
		writers:  writers,
		interval: interval,
		timeout:  10 * time.Second,
		done:     make(chan struct{}),
	}
}

// Start launches the export loop.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go e.run()
	logger.WithFields(logrus.Fields{"writers": len(e.writers), "interval": e.interval}).Info("Investigation exporter started")
}

// Stop ends the loop after a final flush.
func (e *Exporter) Stop() {
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
		logger.Log().Info("Investigation exporter stopped")
	})
}

func (e *Exporter) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.done:
			logger.Log().Info("Performing final investigation export before shutdown...")
			e.flush()
			return
		}
	}
}

// Flush exports pending investigations immediately and returns how many were written.
func (e *Exporter) Flush() int {
	return e.flush()
}

func (e *Exporter) flush() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, next := e.source.InvestigationsSince(e.offset)
	if len(batch) == 0 {
		e.offset = next
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	for _, w := range e.writers {
		if err := w.WriteInvestigations(ctx, batch); err != nil {
			logger.WithFields(logrus.Fields{"count": len(batch), "error": err}).
				Warn("Investigation export failed, will retry")
			return 0
		}
	}
	e.offset = next
	return len(batch)
}
