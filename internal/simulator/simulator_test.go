package simulator

import (
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/orchestrator"
	"SentinelQoS/internal/pkg/xrand"
	"SentinelQoS/internal/sentry"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDecider struct {
	mu    sync.Mutex
	flows map[string]model.FlowFeatures
}

func (d *recordingDecider) DecideFlow(ctx context.Context, flowID string, f model.FlowFeatures) (*orchestrator.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flows == nil {
		d.flows = make(map[string]model.FlowFeatures)
	}
	d.flows[flowID] = f
	return &orchestrator.Decision{FlowID: flowID}, nil
}

func (d *recordingDecider) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.flows)
}

func TestRandomFlow_InDemoRanges(t *testing.T) {
	g := NewGenerator(&recordingDecider{}, nil, xrand.NewSeeded(11), time.Second, time.Second, true)
	_, src, _ := net.ParseCIDR("192.168.1.0/24")
	_, dst, _ := net.ParseCIDR("10.0.0.0/24")
	for i := 0; i < 500; i++ {
		f := g.RandomFlow()
		require.NoError(t, f.Validate())
		assert.True(t, src.Contains(net.ParseIP(f.SourceIP)))
		assert.True(t, dst.Contains(net.ParseIP(f.DestIP)))
		assert.Contains(t, DemoPorts, f.DestPort)
	}
}

func TestGenerator_EmitsWhileEnabled(t *testing.T) {
	d := &recordingDecider{}
	g := NewGenerator(d, nil, xrand.NewSeeded(1), 5*time.Millisecond, 10*time.Millisecond, true)
	g.Start(context.Background())

	require.Eventually(t, func() bool { return d.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	g.SetEnabled(false)
	assert.False(t, g.Enabled())
	time.Sleep(30 * time.Millisecond)
	paused := d.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, paused, d.count())

	g.Stop()
	assert.GreaterOrEqual(t, g.Generated(), int64(3))
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Contains(t, d.flows, "flow_1")
}

func TestSweepParams_SampleCount(t *testing.T) {
	assert.Equal(t, 10, SweepParams{TotalVolumeGB: 0}.SampleCount())
	assert.Equal(t, 100, SweepParams{TotalVolumeGB: 1}.SampleCount())
	assert.Equal(t, 2000, SweepParams{TotalVolumeGB: 50}.SampleCount())
}

func TestSweep_CountsEverySample(t *testing.T) {
	classifier := sentry.New("", sentry.FallbackUnknown, nil)

	res, err := Sweep(context.Background(), classifier, SweepParams{VideoPercentage: 100, TotalVolumeGB: 2})
	require.NoError(t, err)
	assert.Equal(t, 200, res.NumSamples)
	total := 0
	for _, n := range res.Counts {
		total += n
	}
	assert.Equal(t, 200, total)
	// Video samples have avg_pkt_len 800+i, so only i > 100 clears the 900 byte rule.
	assert.Equal(t, 99, res.Counts[model.CategoryVideo])
	assert.Equal(t, 101, res.Counts[model.CategoryUnknown])

	res, err = Sweep(context.Background(), classifier, SweepParams{VideoPercentage: -20, TotalVolumeGB: 0.05})
	require.NoError(t, err)
	assert.Equal(t, 10, res.NumSamples)
	assert.Zero(t, res.Counts[model.CategoryVideo])
}

func TestSweep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sweep(ctx, sentry.New("", sentry.FallbackUnknown, nil), DefaultSweepParams())
	assert.ErrorIs(t, err, context.Canceled)
}
