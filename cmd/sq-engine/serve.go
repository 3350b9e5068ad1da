package main

import (
	"SentinelQoS/internal/api"
	"SentinelQoS/internal/audit"
	"SentinelQoS/internal/config"
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/probe"
	"SentinelQoS/internal/sentry"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its HTTP, gRPC and NATS surfaces",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	return e.serve(ctx)
}

// serve starts every background component and blocks until ctx is done or a
// server fails, then stops them in dependency order.
func (e *engine) serve(ctx context.Context) error {
	cfg := e.cfg

	e.dispatcher.Start()
	defer e.dispatcher.Stop()

	if len(e.writers) > 0 {
		exporter := audit.NewExporter(e.ledger, e.writers, config.MustDuration(cfg.Audit.Interval))
		exporter.Start()
		defer exporter.Stop()
	}

	e.generator.Start(ctx)
	defer e.generator.Stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.NATS.Ingest {
		if e.nc == nil {
			return fmt.Errorf("nats.ingest requires nats.url")
		}
		sub := probe.NewSubscriberConn(e.nc, cfg.NATS.FlowSubject, cfg.NATS.NumWorkers, cfg.NATS.BufferSize)
		if err := sub.Start(ctx, e.handleFlow); err != nil {
			return err
		}
		defer sub.Close()
	}

	if cfg.Sentry.WatchModel && cfg.Sentry.ModelPath != "" {
		w, err := sentry.NewWatcher(e.sentry, func(err error) {
			if err != nil {
				e.ledger.Logf("Sentry model reload failed: %v", err)
				return
			}
			e.ledger.Logf("Sentry model reloaded from %s", e.sentry.ModelPath())
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}

	probeHealth := api.NewHealthProbe(e.vanguard, config.MustDuration(cfg.Vanguard.HealthInterval))
	g.Go(func() error {
		probeHealth.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return api.ServeGRPC(ctx, cfg.API.GRPCListenAddr, probeHealth)
	})

	handler := api.NewHandler(api.Deps{
		Decider:     e.orchestrator,
		Suggestions: e.tracker,
		Vanguard:    e.vanguard,
		Sentry:      e.sentry,
		Simulation:  e.generator,
		Enforcement: e.dispatcher,
		Ledger:      e.ledger,
		Gatherer:    e.registry,
		AdminUser:   cfg.API.AdminUser,
		AdminPass:   cfg.API.AdminPass,
	})
	srv := &http.Server{
		Addr:              cfg.API.HTTPListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		return api.Serve(ctx, srv)
	})

	logger.Log().Info("sq-engine started")
	err := g.Wait()
	logger.Log().Info("Shutdown signal received, stopping engine...")
	return err
}

// handleFlow decides a flow received from the bus.
func (e *engine) handleFlow(ctx context.Context, m probe.FlowMessage) {
	flowID := m.FlowID
	if flowID == "" {
		flowID = "nats_" + uuid.NewString()
	}
	if _, err := e.orchestrator.DecideFlow(ctx, flowID, m.Features); err != nil {
		logger.WithFields(logrus.Fields{"flow_id": flowID, "error": err}).Warn("Failed to decide ingested flow")
	}
}
