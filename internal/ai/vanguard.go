// Package ai implements the second-stage reasoning classifier.
package ai

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/pkg/xrand"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SimulationMode selects the answer Vanguard gives when no reasoner responds.
type SimulationMode string

const (
	// SimulateUnknown answers Unknown at 0.5.
	SimulateUnknown SimulationMode = "unknown"
	// SimulateRandom answers a uniformly chosen traffic type at [0.85, 0.99].
	SimulateRandom SimulationMode = "random"
)

// ParseSimulationMode maps a config string to a SimulationMode. Empty means unknown.
func ParseSimulationMode(s string) (SimulationMode, error) {
	switch SimulationMode(s) {
	case "", SimulateUnknown:
		return SimulateUnknown, nil
	case SimulateRandom:
		return SimulateRandom, nil
	}
	return "", fmt.Errorf("unknown simulation mode %q", s)
}

// Settings are the admin-adjustable Vanguard options.
type Settings struct {
	Enabled bool   `json:"llm_enabled"`
	Model   string `json:"llm_model"`
}

// Options configures a Vanguard.
type Options struct {
	Models         []string
	Timeout        time.Duration
	SimulationMode SimulationMode
	Enabled        bool
	Rand           *xrand.Rand
}

// Vanguard escalates flows to a reasoning service. Escalate never fails; when
// the service is absent, disabled or unreachable it returns a simulated result.
type Vanguard struct {
	reasoner model.Reasoner
	timeout  time.Duration
	mode     SimulationMode
	rng      *xrand.Rand

	mu        sync.RWMutex
	enabled   bool
	preferred string
	models    []string
}

// NewVanguard creates a Vanguard. reasoner may be nil.
func NewVanguard(reasoner model.Reasoner, opts Options) *Vanguard {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Rand == nil {
		opts.Rand = xrand.New()
	}
	v := &Vanguard{
		reasoner: reasoner,
		timeout:  opts.Timeout,
		mode:     opts.SimulationMode,
		rng:      opts.Rand,
		enabled:  opts.Enabled,
		models:   append([]string(nil), opts.Models...),
	}
	if len(v.models) > 0 {
		v.preferred = v.models[0]
	}
	return v
}

// Settings returns the current admin settings.
func (v *Vanguard) Settings() Settings {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Settings{Enabled: v.enabled, Model: v.preferred}
}

// UpdateSettings applies new admin settings. An empty model keeps the current one.
func (v *Vanguard) UpdateSettings(s Settings) Settings {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled = s.Enabled
	if m := strings.TrimSpace(s.Model); m != "" {
		v.preferred = m
	}
	logger.Log().Infof("Vanguard settings updated: enabled=%t model=%s", v.enabled, v.preferred)
	return Settings{Enabled: v.enabled, Model: v.preferred}
}

// Enabled reports whether escalations reach the reasoning service.
func (v *Vanguard) Enabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.enabled && v.reasoner != nil
}

// Candidates returns the models tried in order: the preferred model first,
// then the configured list without duplicates.
func (v *Vanguard) Candidates() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, 0, len(v.models)+1)
	seen := make(map[string]bool, len(v.models)+1)
	for _, m := range append([]string{v.preferred}, v.models...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Escalate classifies f with the first candidate model that answers.
func (v *Vanguard) Escalate(ctx context.Context, f model.FlowFeatures) model.ClassificationResult {
	if !v.Enabled() {
		return v.simulate(f)
	}

	prompt := BuildPrompt(f)
	for _, name := range v.Candidates() {
		if ctx.Err() != nil {
			break
		}
		text, err := v.complete(ctx, name, prompt)
		if err != nil {
			logger.Log().Infof("Vanguard model %s unavailable: %v", name, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			logger.Log().Infof("Vanguard model %s returned an empty answer", name)
			continue
		}
		r := ParseResponse(text)
		logger.Log().Debugf("Vanguard model %s classified flow as %s (%.2f)", name, r.Category, r.Confidence)
		return r
	}

	logger.Log().Infof("No Vanguard model answered, using simulated analysis")
	return v.simulate(f)
}

func (v *Vanguard) complete(ctx context.Context, name, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.reasoner.Complete(callCtx, name, prompt)
}

func (v *Vanguard) simulate(f model.FlowFeatures) model.ClassificationResult {
	r := model.ClassificationResult{Engine: model.EngineVanguard, Simulated: true}
	if v.mode == SimulateRandom {
		r.Category = model.TrafficTypes[v.rng.IntN(len(model.TrafficTypes))]
		r.Confidence = v.rng.Uniform(0.85, 0.99)
	} else {
		r.Category = model.CategoryUnknown
		r.Confidence = 0.5
	}
	r.Explanation = fmt.Sprintf(
		"LLM-simulated analysis: observed average packet length %.1f bytes and %d packets over %.2fs, likely %s.",
		f.AvgPktLen, f.PacketCount, f.DurationSeconds, r.Category,
	)
	return r
}
