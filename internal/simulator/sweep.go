package simulator

import (
	"SentinelQoS/internal/model"
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	minSweepSamples = 10
	maxSweepSamples = 2000
	sweepWorkers    = 8
)

// SweepParams describes a what-if traffic mix.
type SweepParams struct {
	VideoPercentage float64 `json:"video_percentage"`
	TotalVolumeGB   float64 `json:"total_volume_gb"`
}

// DefaultSweepParams is an even mix of one gigabyte.
func DefaultSweepParams() SweepParams {
	return SweepParams{VideoPercentage: 50, TotalVolumeGB: 1}
}

// SweepResult counts the categories Sentry assigned to the samples.
type SweepResult struct {
	Counts     map[model.Category]int `json:"simulation_results"`
	NumSamples int                    `json:"num_samples"`
}

// SampleCount returns min(2000, max(10, gb*100)).
func (p SweepParams) SampleCount() int {
	requested := int(p.TotalVolumeGB * 100)
	if requested < minSweepSamples {
		requested = minSweepSamples
	}
	if requested > maxSweepSamples {
		requested = maxSweepSamples
	}
	return requested
}

// Samples builds the deterministic synthetic flows for the mix.
func (p SweepParams) Samples() []model.FlowFeatures {
	n := p.SampleCount()
	share := math.Max(0, math.Min(100, p.VideoPercentage)) / 100
	video := int(math.Round(float64(n) * share))

	samples := make([]model.FlowFeatures, 0, n)
	for i := 0; i < video; i++ {
		samples = append(samples, videoSample(i))
	}
	for i := video; i < n; i++ {
		samples = append(samples, otherSample(i))
	}
	return samples
}

func videoSample(i int) model.FlowFeatures {
	packets := int64(100 + i%500)
	avg := float64(800 + i%400)
	return model.FlowFeatures{
		SourceIP:        fmt.Sprintf("192.168.100.%d", i%240+10),
		DestIP:          fmt.Sprintf("10.1.0.%d", i%240+1),
		DestPort:        8000 + i%1000,
		PacketCount:     packets,
		AvgPktLen:       avg,
		DurationSeconds: float64(i%60 + 5),
		BytesTotal:      int64(avg) * packets,
	}
}

func otherSample(i int) model.FlowFeatures {
	packets := int64(10 + i%300)
	avg := float64(200 + i%300)
	return model.FlowFeatures{
		SourceIP:        fmt.Sprintf("192.168.200.%d", i%240+10),
		DestIP:          fmt.Sprintf("10.2.0.%d", i%240+1),
		DestPort:        80 + i%6000,
		PacketCount:     packets,
		AvgPktLen:       avg,
		DurationSeconds: float64(i%30 + 1),
		BytesTotal:      int64(avg) * packets,
	}
}

// Sweep classifies the synthetic samples with the fast classifier only. It
// records nothing in the engine's shared state.
func Sweep(ctx context.Context, classifier model.Classifier, p SweepParams) (SweepResult, error) {
	samples := p.Samples()
	res := SweepResult{Counts: make(map[model.Category]int), NumSamples: len(samples)}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepWorkers)
	for _, s := range samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			label := classifier.Classify(s).Category
			if label == "" {
				label = model.CategoryUnknown
			}
			mu.Lock()
			res.Counts[label]++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	return res, nil
}
