package main

import (
	"SentinelQoS/internal/ai"
	"SentinelQoS/internal/audit"
	"SentinelQoS/internal/catalog"
	"SentinelQoS/internal/config"
	"SentinelQoS/internal/enforcement"
	"SentinelQoS/internal/explain"
	"SentinelQoS/internal/ledger"
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/metrics"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/notification"
	"SentinelQoS/internal/orchestrator"
	"SentinelQoS/internal/pkg/xrand"
	"SentinelQoS/internal/sentry"
	"SentinelQoS/internal/simulator"
	"SentinelQoS/internal/suggestion"
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// engine is the explicitly owned set of components behind one process.
type engine struct {
	cfg *config.Config

	ledger       *ledger.Ledger
	catalog      *catalog.Catalog
	sentry       *sentry.Classifier
	vanguard     *ai.Vanguard
	tracker      *suggestion.Tracker
	dispatcher   *enforcement.Dispatcher
	orchestrator *orchestrator.Orchestrator
	generator    *simulator.Generator
	registry     *prometheus.Registry
	writers      []model.InvestigationWriter
	nc           *nats.Conn

	closers []func()
}

// newEngine wires every component from cfg. External services that are not
// configured are left out; none of them is required to classify flows.
func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{cfg: cfg}
	rng := xrand.New()

	defs := catalog.DefaultDefinitions()
	if cfg.Policies.SeedFile != "" {
		loaded, err := catalog.LoadSeedFile(cfg.Policies.SeedFile)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}
	e.catalog = catalog.New(defs)

	fallback, err := sentry.ParseFallbackMode(cfg.Sentry.FallbackMode)
	if err != nil {
		return nil, err
	}
	e.sentry = sentry.New(cfg.Sentry.ModelPath, fallback, rng)

	simMode, err := ai.ParseSimulationMode(cfg.Vanguard.SimulationMode)
	if err != nil {
		return nil, err
	}
	var reasoner model.Reasoner
	if cfg.Vanguard.BaseURL != "" || cfg.Vanguard.APIKey != "" {
		r, err := ai.NewOpenAIReasoner(cfg.Vanguard)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoner: %w", err)
		}
		reasoner = r
	} else {
		logger.Log().Info("No reasoning service configured, Vanguard answers are simulated")
	}
	e.vanguard = ai.NewVanguard(reasoner, ai.Options{
		Models:         cfg.Vanguard.Models,
		Timeout:        config.MustDuration(cfg.Vanguard.Timeout),
		SimulationMode: simMode,
		Enabled:        cfg.Vanguard.Enabled,
		Rand:           rng,
	})

	e.ledger = ledger.New(ledger.Options{ActivitySize: cfg.Engine.ActivityLogSize})
	e.tracker = suggestion.NewTracker(e.catalog)

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		logger.Log().Infof("Connected to NATS server at %s", cfg.NATS.URL)
		e.nc = nc
		e.closers = append(e.closers, func() { nc.Drain() })
	}

	markers := []model.Marker{enforcement.NewLogMarker(e.ledger)}
	if cfg.Enforcement.PublishToNATS {
		if e.nc == nil {
			return nil, fmt.Errorf("enforcement.publish_to_nats requires nats.url")
		}
		markers = append(markers, enforcement.NewNATSMarker(e.nc, cfg.Enforcement.MarkingSubject))
	}
	e.dispatcher = enforcement.NewDispatcher(markers, cfg.Enforcement.QueueSize, cfg.Enforcement.NumWorkers,
		config.MustDuration(cfg.Enforcement.ApplyTimeout))

	var notifier model.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notification.NewEmailNotifier(cfg.SMTP)
	}

	e.orchestrator = orchestrator.New(orchestrator.Deps{
		Sentry:    e.sentry,
		Explainer: explain.New(e.sentry),
		Vanguard:  e.vanguard,
		Policies:  e.catalog,
		Tracker:   e.tracker,
		Ledger:    e.ledger,
		Markings:  e.dispatcher,
		Notifier:  notifier,
	}, orchestrator.Options{
		AcceptThreshold:        cfg.Engine.AcceptThreshold,
		MaxInflightEscalations: int64(cfg.Engine.MaxInflightEscalations),
	})

	e.generator = simulator.NewGenerator(e.orchestrator, e.ledger, rng,
		config.MustDuration(cfg.Simulator.MinInterval), config.MustDuration(cfg.Simulator.MaxInterval),
		cfg.Simulator.Enabled)

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(e.registry)

	if cfg.ClickHouse.Enabled {
		w, err := audit.NewClickHouseWriter(ctx, cfg.ClickHouse)
		if err != nil {
			e.close()
			return nil, err
		}
		e.writers = append(e.writers, w)
		e.closers = append(e.closers, func() { w.Close() })
	}
	if cfg.Audit.Dir != "" {
		w, err := audit.NewFileWriter(cfg.Audit.Dir)
		if err != nil {
			e.close()
			return nil, err
		}
		e.writers = append(e.writers, w)
	}

	return e, nil
}

// close releases external connections in reverse order of acquisition.
func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
