// Package explain produces per-feature importance maps for a classification.
// Values lie in [-1, 1]; the largest magnitude is 1 unless every value is 0.
package explain

import (
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/profile"
	"SentinelQoS/internal/sentry"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ModelSource supplies the current classifier model, which may be nil.
type ModelSource interface {
	Model() *sentry.Model
}

// Explainer computes importances from the model when one is available and
// falls back to deterministic synthetic values otherwise.
type Explainer struct {
	source ModelSource
}

// New creates an explainer. source may be nil.
func New(source ModelSource) *Explainer {
	return &Explainer{source: source}
}

// Explain returns the importance map and whether it is synthetic.
func (e *Explainer) Explain(f model.FlowFeatures) (map[string]float64, bool) {
	if e.source != nil {
		if m := e.source.Model(); m != nil {
			if _, _, class, err := m.Predict(f); err == nil {
				if contrib, err := m.Contributions(f, class); err == nil {
					return normalise(contrib), false
				}
			}
		}
	}
	return Synthetic(f), true
}

// Synthetic derives stable pseudo-importances from the raw feature values,
// with signs chosen by hash parity seeded from the flow profile.
func Synthetic(f model.FlowFeatures) map[string]float64 {
	seed := strconv.FormatUint(profile.Hash(f)%1000, 10)
	raw := map[string]float64{
		"packet_count":     float64(f.PacketCount) * 1e-3,
		"avg_pkt_len":      f.AvgPktLen * 1e-3,
		"duration_seconds": f.DurationSeconds * 0.1,
		"bytes_total":      float64(f.BytesTotal) * 1e-6,
		"dest_port":        float64(f.DestPort%1000) * 1e-3,
	}
	for name, v := range raw {
		if xxhash.Sum64String(name+":"+seed)%2 == 1 {
			raw[name] = -v
		}
	}
	return normalise(raw)
}

func normalise(in map[string]float64) map[string]float64 {
	var maxAbs float64
	for _, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	if maxAbs == 0 {
		maxAbs = 1
	}
	out := make(map[string]float64, len(in))
	for name, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[name] = math.Round(v/maxAbs*1e6) / 1e6
	}
	return out
}
