package main

import (
	"SentinelQoS/internal/config"
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/pkg/xrand"
	"SentinelQoS/internal/probe"
	"SentinelQoS/internal/simulator"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:          "sq-probe",
		Short:        "Publishes flow summaries to the SentinelQoS engine over NATS",
		SilenceUsage: true,
	}
	publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Publish synthetic flows drawn from the demo address ranges",
		Args:  cobra.NoArgs,
		RunE:  runPublish,
	}

	natsURL  string
	subject  string
	count    int
	interval time.Duration
	seed     uint64
	debug    bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(publishCmd)

	defaults := config.Default()
	publishCmd.Flags().StringVar(&natsURL, "nats-url", nats.DefaultURL, "NATS server URL")
	publishCmd.Flags().StringVar(&subject, "subject", defaults.NATS.FlowSubject, "Subject to publish flows on")
	publishCmd.Flags().IntVarP(&count, "count", "n", 0, "Number of flows to publish; 0 publishes until interrupted")
	publishCmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between flows")
	publishCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed; 0 seeds from the clock")
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger.Init(debug, nil)

	pub, err := probe.NewPublisher(natsURL, subject)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := xrand.New()
	if seed != 0 {
		rng = xrand.NewSeeded(seed)
	}

	sent, err := publishFlows(ctx, pub, rng, count, interval)
	logger.Log().Infof("Published %d flows to '%s'", sent, subject)
	return err
}

// flowPublisher is the subset of probe.Publisher used here.
type flowPublisher interface {
	Publish(m probe.FlowMessage) error
	Flush() error
}

// publishFlows publishes n synthetic flows (unbounded when n is 0) and
// flushes before returning.
func publishFlows(ctx context.Context, pub flowPublisher, rng *xrand.Rand, n int, every time.Duration) (int, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	sent := 0
	for n == 0 || sent < n {
		msg := probe.FlowMessage{
			FlowID:     fmt.Sprintf("probe_%d_%d", os.Getpid(), sent+1),
			Features:   simulator.RandomFlow(rng),
			ObservedAt: time.Now().UTC(),
		}
		if err := pub.Publish(msg); err != nil {
			return sent, fmt.Errorf("failed to publish flow %s: %w", msg.FlowID, err)
		}
		sent++
		logger.Log().Debugf("Published %s: %s -> %s:%d", msg.FlowID, msg.Features.SourceIP, msg.Features.DestIP, msg.Features.DestPort)

		if n != 0 && sent == n {
			break
		}
		select {
		case <-ctx.Done():
			return sent, pub.Flush()
		case <-ticker.C:
		}
	}
	return sent, pub.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
