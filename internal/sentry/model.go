package sentry

import (
	"SentinelQoS/internal/model"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrModelMismatch is returned when a model artifact is internally inconsistent
// or produces output that cannot be used.
var ErrModelMismatch = errors.New("model mismatch")

// Model is a linear softmax classifier loaded from a JSON artifact.
//
//	{
//	  "classes": ["Video Streaming", ...],
//	  "feature_columns": ["packet_count", ...],
//	  "weights": [[...], ...],   // one row per class
//	  "bias": [...],
//	  "means": [...], "scales": [...]   // optional standardisation
//	}
type Model struct {
	Classes        []model.Category `json:"classes"`
	FeatureColumns []string         `json:"feature_columns"`
	Weights        [][]float64      `json:"weights"`
	Bias           []float64        `json:"bias"`
	Means          []float64        `json:"means,omitempty"`
	Scales         []float64        `json:"scales,omitempty"`
}

// LoadModel reads and validates a model artifact. A missing file returns an
// error satisfying errors.Is(err, os.ErrNotExist).
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if len(m.FeatureColumns) == 0 {
		m.FeatureColumns = append([]string(nil), model.DefaultFeatureColumns...)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &m, nil
}

func (m *Model) validate() error {
	n := len(m.FeatureColumns)
	if len(m.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrModelMismatch)
	}
	if len(m.Weights) != len(m.Classes) || len(m.Bias) != len(m.Classes) {
		return fmt.Errorf("%w: %d classes, %d weight rows, %d biases", ErrModelMismatch, len(m.Classes), len(m.Weights), len(m.Bias))
	}
	for i, row := range m.Weights {
		if len(row) != n {
			return fmt.Errorf("%w: weight row %d has %d columns, want %d", ErrModelMismatch, i, len(row), n)
		}
	}
	if m.Means != nil && len(m.Means) != n {
		return fmt.Errorf("%w: %d means for %d columns", ErrModelMismatch, len(m.Means), n)
	}
	if m.Scales != nil && len(m.Scales) != n {
		return fmt.Errorf("%w: %d scales for %d columns", ErrModelMismatch, len(m.Scales), n)
	}
	return nil
}

// Vector returns the standardised feature vector in column order.
func (m *Model) Vector(f model.FlowFeatures) ([]float64, error) {
	x := make([]float64, len(m.FeatureColumns))
	for i, name := range m.FeatureColumns {
		v, ok := f.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown feature column %q", ErrModelMismatch, name)
		}
		if m.Means != nil {
			v -= m.Means[i]
		}
		if m.Scales != nil && m.Scales[i] != 0 {
			v /= m.Scales[i]
		}
		x[i] = v
	}
	return x, nil
}

// Predict returns the most probable class, its probability and its index.
func (m *Model) Predict(f model.FlowFeatures) (model.Category, float64, int, error) {
	x, err := m.Vector(f)
	if err != nil {
		return "", 0, -1, err
	}

	logits := make([]float64, len(m.Classes))
	best := 0
	for c, row := range m.Weights {
		z := m.Bias[c]
		for i, w := range row {
			z += w * x[i]
		}
		logits[c] = z
		if z > logits[best] {
			best = c
		}
	}

	var sum float64
	for _, z := range logits {
		sum += math.Exp(z - logits[best])
	}
	p := 1 / sum
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return "", 0, -1, fmt.Errorf("%w: non-finite probability", ErrModelMismatch)
	}

	category := m.Classes[best]
	if !category.IsKnown() {
		return "", 0, -1, fmt.Errorf("%w: unknown class label %q", ErrModelMismatch, category)
	}
	return category, p, best, nil
}

// Contributions returns w[c][i]*x[i] for class index c, keyed by feature column.
func (m *Model) Contributions(f model.FlowFeatures, c int) (map[string]float64, error) {
	if c < 0 || c >= len(m.Weights) {
		return nil, fmt.Errorf("%w: class index %d", ErrModelMismatch, c)
	}
	x, err := m.Vector(f)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(x))
	for i, name := range m.FeatureColumns {
		out[name] = m.Weights[c][i] * x[i]
	}
	return out, nil
}
