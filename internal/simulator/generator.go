// Package simulator produces demo traffic: a background generator that feeds
// synthetic flows through the full decision path, and a what-if sweep that
// runs synthetic samples through Sentry only.
package simulator

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/orchestrator"
	"SentinelQoS/internal/pkg/xrand"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DemoPorts are the destination ports synthetic flows are drawn from.
var DemoPorts = []int{80, 443, 3478, 5000, 8080, 9000}

// Decider runs a decision for a flow.
type Decider interface {
	DecideFlow(ctx context.Context, flowID string, f model.FlowFeatures) (*orchestrator.Decision, error)
}

// ActivityLog receives human-readable generator messages.
type ActivityLog interface {
	Logf(format string, args ...interface{})
}

// Generator emits a synthetic flow every [min, max] interval while enabled.
type Generator struct {
	decider  Decider
	activity ActivityLog
	rng      *xrand.Rand
	min, max time.Duration

	enabled atomic.Bool
	counter atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewGenerator creates a generator. activity may be nil.
func NewGenerator(decider Decider, activity ActivityLog, rng *xrand.Rand, min, max time.Duration, enabled bool) *Generator {
	if rng == nil {
		rng = xrand.New()
	}
	g := &Generator{
		decider:  decider,
		activity: activity,
		rng:      rng,
		min:      min,
		max:      max,
		done:     make(chan struct{}),
	}
	g.enabled.Store(enabled)
	return g
}

// SetEnabled toggles flow generation without stopping the loop.
func (g *Generator) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
	logger.Log().Infof("Traffic simulation enabled=%t", enabled)
}

// Enabled reports whether flows are being generated.
func (g *Generator) Enabled() bool {
	return g.enabled.Load()
}

// Generated returns the number of flows emitted so far.
func (g *Generator) Generated() int64 {
	return g.counter.Load()
}

// Start runs the generator loop on its own goroutine.
func (g *Generator) Start(ctx context.Context) {
	g.wg.Add(1)
	go g.run(ctx)
	logger.Log().Infof("Traffic generator started, interval %s-%s", g.min, g.max)
}

// Stop ends the loop and waits for the in-progress decision.
func (g *Generator) Stop() {
	close(g.done)
	g.wg.Wait()
	logger.Log().Infof("Traffic generator stopped.")
}

func (g *Generator) run(ctx context.Context) {
	defer g.wg.Done()
	for {
		timer := time.NewTimer(g.rng.Duration(g.min, g.max))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-g.done:
			timer.Stop()
			return
		case <-timer.C:
		}
		if !g.enabled.Load() {
			continue
		}
		g.emit(ctx)
	}
}

func (g *Generator) emit(ctx context.Context) {
	n := g.counter.Add(1)
	flowID := fmt.Sprintf("flow_%d", n)
	f := g.RandomFlow()
	if g.activity != nil {
		g.activity.Logf("New flow detected: %s -> %s", f.SourceIP, f.DestIP)
	}
	if _, err := g.decider.DecideFlow(ctx, flowID, f); err != nil {
		logger.Log().Warnf("Simulated flow %s not decided: %v", flowID, err)
	}
}

// RandomFlow draws a synthetic flow from the demo address ranges.
func (g *Generator) RandomFlow() model.FlowFeatures {
	return RandomFlow(g.rng)
}

// RandomFlow draws a synthetic flow from rng.
func RandomFlow(rng *xrand.Rand) model.FlowFeatures {
	packets := int64(10 + rng.IntN(2990))
	avg := rng.Uniform(60, 1400)
	return model.FlowFeatures{
		SourceIP:        fmt.Sprintf("192.168.1.%d", 100+rng.IntN(101)),
		DestIP:          fmt.Sprintf("10.0.0.%d", 1+rng.IntN(254)),
		DestPort:        DemoPorts[rng.IntN(len(DemoPorts))],
		PacketCount:     packets,
		AvgPktLen:       avg,
		DurationSeconds: rng.Uniform(1, 120),
		BytesTotal:      int64(float64(packets) * avg),
	}
}
