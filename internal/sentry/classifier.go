// Package sentry implements the fast first-stage flow classifier.
package sentry

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/pkg/xrand"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

// FallbackMode selects what the classifier answers when neither the model
// nor a heuristic applies.
type FallbackMode string

const (
	// FallbackUnknown answers Unknown at 0.5.
	FallbackUnknown FallbackMode = "unknown"
	// FallbackRandom answers a uniformly chosen traffic type at [0.60, 0.93].
	FallbackRandom FallbackMode = "random"
)

// ParseFallbackMode maps a config string to a FallbackMode. Empty means unknown.
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch FallbackMode(s) {
	case "", FallbackUnknown:
		return FallbackUnknown, nil
	case FallbackRandom:
		return FallbackRandom, nil
	}
	return "", fmt.Errorf("unknown fallback mode %q", s)
}

// Classifier is the first-stage classifier. Classify is total and safe for
// concurrent use; the model can be swapped at any time through Reload.
type Classifier struct {
	modelPath string
	mode      FallbackMode
	rng       *xrand.Rand
	model     atomic.Pointer[Model]
}

// New creates a classifier and loads the model artifact once. A missing or
// broken artifact leaves the classifier on heuristics.
func New(modelPath string, mode FallbackMode, rng *xrand.Rand) *Classifier {
	if rng == nil {
		rng = xrand.New()
	}
	c := &Classifier{modelPath: modelPath, mode: mode, rng: rng}
	if modelPath != "" {
		if err := c.Reload(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Log().Debugf("Sentry model %s not present, using heuristics", modelPath)
			} else {
				logger.Log().Warnf("Sentry model unavailable, using heuristics: %v", err)
			}
		}
	}
	return c
}

// Reload re-reads the model artifact. On failure the current model is kept.
func (c *Classifier) Reload() error {
	if c.modelPath == "" {
		return fmt.Errorf("no model path configured")
	}
	m, err := LoadModel(c.modelPath)
	if err != nil {
		return err
	}
	c.model.Store(m)
	logger.Log().Infof("Sentry model loaded from %s (%d classes, %d features)", c.modelPath, len(m.Classes), len(m.FeatureColumns))
	return nil
}

// SetModel replaces the model; nil returns the classifier to heuristics.
func (c *Classifier) SetModel(m *Model) {
	c.model.Store(m)
}

// Model returns the current model, or nil.
func (c *Classifier) Model() *Model {
	return c.model.Load()
}

// ModelPath returns the artifact path this classifier reloads from.
func (c *Classifier) ModelPath() string {
	return c.modelPath
}

// Classify never fails. Model output wins when usable, then heuristics, then
// the fallback branch.
func (c *Classifier) Classify(f model.FlowFeatures) model.ClassificationResult {
	if m := c.model.Load(); m != nil {
		category, p, _, err := m.Predict(f)
		if err == nil {
			return model.ClassificationResult{
				Category:    category,
				Confidence:  model.ClampConfidence(p),
				Explanation: fmt.Sprintf("Sentry model predicted %s (p=%.4f)", category, p),
				Engine:      model.EngineSentry,
			}
		}
		logger.Log().Debugf("Sentry model prediction failed, falling back to heuristics: %v", err)
	}

	if r, ok := heuristic(f); ok {
		return r
	}
	return c.fallback()
}

func heuristic(f model.FlowFeatures) (model.ClassificationResult, bool) {
	r := model.ClassificationResult{Engine: model.EngineSentry}
	switch {
	case f.AvgPktLen > 900 && f.PacketCount > 50:
		r.Category, r.Confidence = model.CategoryVideo, 0.98
		r.Explanation = "large packets with sustained volume"
	case f.PacketCount > 2000 || f.BytesTotal > 10_000_000:
		r.Category, r.Confidence = model.CategoryDownload, 0.995
		r.Explanation = "bulk transfer volume"
	case f.DestPort == 3478 || f.DestPort == 5004 || f.DestPort == 5005:
		r.Category, r.Confidence = model.CategoryCall, 0.96
		r.Explanation = fmt.Sprintf("real-time media port %d", f.DestPort)
	default:
		return r, false
	}
	return r, true
}

func (c *Classifier) fallback() model.ClassificationResult {
	r := model.ClassificationResult{Engine: model.EngineSentry, Simulated: true}
	if c.mode == FallbackRandom {
		r.Category = model.TrafficTypes[c.rng.IntN(len(model.TrafficTypes))]
		r.Confidence = c.rng.Uniform(0.60, 0.93)
		r.Explanation = "no rule matched; simulated guess"
		return r
	}
	r.Category = model.CategoryUnknown
	r.Confidence = 0.5
	r.Explanation = "no rule matched"
	return r
}
