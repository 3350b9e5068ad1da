package explain

import (
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/sentry"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ m *sentry.Model }

func (s staticSource) Model() *sentry.Model { return s.m }

func features() model.FlowFeatures {
	return model.FlowFeatures{
		SourceIP:        "192.168.1.101",
		DestIP:          "10.0.0.9",
		DestPort:        9000,
		PacketCount:     400,
		AvgPktLen:       600,
		DurationSeconds: 20,
		BytesTotal:      240000,
	}
}

func assertBounded(t *testing.T, m map[string]float64) {
	t.Helper()
	var maxAbs float64
	for name, v := range m {
		assert.GreaterOrEqual(t, v, -1.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	assert.InDelta(t, 1.0, maxAbs, 1e-9)
}

func TestExplain_SyntheticWithoutModel(t *testing.T) {
	e := New(nil)
	got, synthetic := e.Explain(features())
	assert.True(t, synthetic)
	require.Len(t, got, len(model.DefaultFeatureColumns))
	for _, name := range model.DefaultFeatureColumns {
		assert.Contains(t, got, name)
	}
	assertBounded(t, got)

	again, _ := New(staticSource{}).Explain(features())
	assert.Equal(t, got, again)
}

func TestSynthetic_MagnitudesFollowScaledValues(t *testing.T) {
	got := Synthetic(features())
	// duration 20*0.1 = 2 is the largest scaled value.
	assert.InDelta(t, 1.0, math.Abs(got["duration_seconds"]), 1e-9)
	assert.InDelta(t, 0.2, math.Abs(got["packet_count"]), 1e-9)
	assert.InDelta(t, 0.3, math.Abs(got["avg_pkt_len"]), 1e-9)
	assert.InDelta(t, 0.12, math.Abs(got["bytes_total"]), 1e-9)
	assert.InDelta(t, 0.0, got["dest_port"], 1e-9)
}

func TestSynthetic_AllZero(t *testing.T) {
	got := Synthetic(model.FlowFeatures{SourceIP: "192.168.1.1", DestIP: "10.0.0.1"})
	for _, v := range got {
		assert.Equal(t, 0.0, math.Abs(v))
	}
}

func TestExplain_FromModel(t *testing.T) {
	m := &sentry.Model{
		Classes:        []model.Category{model.CategoryBrowsing, model.CategoryGaming},
		FeatureColumns: []string{"packet_count", "avg_pkt_len"},
		Weights:        [][]float64{{0.01, -0.02}, {0, 0}},
		Bias:           []float64{10, 0},
	}
	got, synthetic := New(staticSource{m: m}).Explain(features())
	assert.False(t, synthetic)
	// 0.01*400 = 4, -0.02*600 = -12
	assert.Equal(t, map[string]float64{"packet_count": 0.333333, "avg_pkt_len": -1}, got)
}

func TestExplain_BrokenModelIsSynthetic(t *testing.T) {
	m := &sentry.Model{
		Classes:        []model.Category{"Carrier Pigeon"},
		FeatureColumns: []string{"packet_count"},
		Weights:        [][]float64{{1}},
		Bias:           []float64{0},
	}
	_, synthetic := New(staticSource{m: m}).Explain(features())
	assert.True(t, synthetic)
}
