// Package api exposes the engine over HTTP (gorilla/mux) and gRPC health.
package api

import (
	"SentinelQoS/internal/ai"
	"SentinelQoS/internal/enforcement"
	"SentinelQoS/internal/ledger"
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/orchestrator"
	"SentinelQoS/internal/sentry"
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// statusLogEntries is the number of activity entries returned by /status.
const statusLogEntries = 10

// Decider runs decisions for submitted flows.
type Decider interface {
	Decide(ctx context.Context, f model.FlowFeatures) (*orchestrator.Decision, error)
	Reinvestigate(ctx context.Context, flowID string) (model.ClassificationResult, error)
}

// Suggestions is the suggestion lifecycle as seen by the API.
type Suggestions interface {
	List() []model.Suggestion
	Approve(id string) (model.Suggestion, bool)
	Deny(id string) (model.Suggestion, bool)
}

// VanguardAdmin exposes the admin-adjustable parts of Vanguard.
type VanguardAdmin interface {
	Settings() ai.Settings
	UpdateSettings(s ai.Settings) ai.Settings
	Health(ctx context.Context) ai.Health
}

// ModelReloader is the Sentry classifier with its model artifact controls.
type ModelReloader interface {
	model.Classifier
	Reload() error
	Model() *sentry.Model
	ModelPath() string
}

// SimulationToggle switches the background generator.
type SimulationToggle interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// EnforcementStats reports marking delivery counters.
type EnforcementStats interface {
	Stats() enforcement.Stats
}

// Deps are the collaborators served by the HTTP surface.
type Deps struct {
	Decider     Decider
	Suggestions Suggestions
	Vanguard    VanguardAdmin
	Sentry      ModelReloader
	Simulation  SimulationToggle
	Enforcement EnforcementStats
	Ledger      *ledger.Ledger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer  prometheus.Gatherer
	AdminUser string
	AdminPass string
}

// Handler holds the dependencies for API handlers.
type Handler struct {
	deps    Deps
	started time.Time
}

// NewHandler creates the API handler set.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, started: time.Now()}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/classify", h.classify).Methods(http.MethodPost)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/suggestions", h.listSuggestions).Methods(http.MethodGet)
	r.HandleFunc("/suggestions/{id}/approve", h.approveSuggestion).Methods(http.MethodPost)
	r.HandleFunc("/suggestions/{id}/deny", h.denySuggestion).Methods(http.MethodPost)
	r.HandleFunc("/investigations", h.listInvestigations).Methods(http.MethodGet)
	r.HandleFunc("/investigations/{flow_id}/vanguard", h.reinvestigate).Methods(http.MethodPost)
	r.HandleFunc("/simulate", h.simulate).Methods(http.MethodPost)

	gatherer := h.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// The LLM health probe is polled by dashboards and stays public.
	r.HandleFunc("/admin/llm-health", h.llmHealth).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/llm-settings", h.getLLMSettings).Methods(http.MethodGet)
	admin.HandleFunc("/llm-settings", h.setLLMSettings).Methods(http.MethodPost)
	admin.HandleFunc("/simulate", h.setSimulation).Methods(http.MethodPost)
	admin.HandleFunc("/reload-model", h.reloadModel).Methods(http.MethodPost)

	return r
}

// requireAdmin enforces HTTP basic auth with the configured admin credentials.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !secureCompare(user, h.deps.AdminUser) || !secureCompare(pass, h.deps.AdminPass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="sentinel-admin"`)
			writeError(w, http.StatusUnauthorized, "invalid admin credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.code,
			"duration": time.Since(start).String(),
		}).Debug("HTTP request served")
	})
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Log().Infof("API server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log().Info("API server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Log().Info("API server exited.")
	return nil
}
