package api

import (
	"SentinelQoS/internal/ai"
	"SentinelQoS/internal/catalog"
	"SentinelQoS/internal/enforcement"
	"SentinelQoS/internal/explain"
	"SentinelQoS/internal/ledger"
	"SentinelQoS/internal/metrics"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/orchestrator"
	"SentinelQoS/internal/sentry"
	"SentinelQoS/internal/simulator"
	"SentinelQoS/internal/suggestion"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubReasoner struct {
	answer string
	models []string
}

func (s *stubReasoner) Complete(ctx context.Context, name, prompt string) (string, error) {
	return s.answer, nil
}

func (s *stubReasoner) Models(ctx context.Context) ([]string, error) {
	if s.models == nil {
		return nil, errors.New("connection refused")
	}
	return s.models, nil
}

type testServer struct {
	handler    http.Handler
	ledger     *ledger.Ledger
	tracker    *suggestion.Tracker
	catalog    *catalog.Catalog
	vanguard   *ai.Vanguard
	sentry     *sentry.Classifier
	generator  *simulator.Generator
	dispatcher *enforcement.Dispatcher
}

func newTestServer(t *testing.T, modelPath string) *testServer {
	t.Helper()

	l := ledger.New(ledger.Options{})
	cat := catalog.NewDefault()
	tracker := suggestion.NewTracker(cat)
	classifier := sentry.New(modelPath, sentry.FallbackUnknown, nil)
	vanguard := ai.NewVanguard(&stubReasoner{
		answer: `{"app_type": "Gaming", "confidence": 0.9, "explanation": "small packets to a game port"}`,
		models: []string{"gemma:2b"},
	}, ai.Options{Models: []string{"gemma:2b"}, Enabled: true, Timeout: time.Second})

	dispatcher := enforcement.NewDispatcher([]model.Marker{enforcement.NewLogMarker(l)}, 16, 1, time.Second)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	orch := orchestrator.New(orchestrator.Deps{
		Sentry:    classifier,
		Explainer: explain.New(classifier),
		Vanguard:  vanguard,
		Policies:  cat,
		Tracker:   tracker,
		Ledger:    l,
		Markings:  dispatcher,
	}, orchestrator.Options{})
	generator := simulator.NewGenerator(orch, l, nil, time.Hour, time.Hour, false)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	h := NewHandler(Deps{
		Decider:     orch,
		Suggestions: tracker,
		Vanguard:    vanguard,
		Sentry:      classifier,
		Simulation:  generator,
		Enforcement: dispatcher,
		Ledger:      l,
		Gatherer:    registry,
		AdminUser:   "admin",
		AdminPass:   "secret",
	})
	return &testServer{
		handler:    h.Router(),
		ledger:     l,
		tracker:    tracker,
		catalog:    cat,
		vanguard:   vanguard,
		sentry:     classifier,
		generator:  generator,
		dispatcher: dispatcher,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.SetBasicAuth("admin", "secret")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func gamingFlow() model.FlowFeatures {
	return model.FlowFeatures{
		SourceIP:        "192.168.1.120",
		DestIP:          "10.0.0.7",
		DestPort:        9000,
		PacketCount:     40,
		AvgPktLen:       180,
		DurationSeconds: 12,
		BytesTotal:      7200,
	}
}

func videoFlow() model.FlowFeatures {
	return model.FlowFeatures{
		SourceIP:        "192.168.1.121",
		DestIP:          "10.0.0.8",
		DestPort:        443,
		PacketCount:     600,
		AvgPktLen:       1200,
		DurationSeconds: 30,
		BytesTotal:      720000,
	}
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestClassify_SentryAccepted(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/classify", videoFlow(), false)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, model.CategoryVideo, resp.Category)
	assert.Equal(t, model.EngineSentry, resp.Engine)
	assert.False(t, resp.Escalated)
	assert.True(t, strings.HasPrefix(resp.FlowID, "manual_"))
	assert.Equal(t, "Sentry auto-accepted (conf=0.98)", resp.Explanation)
	require.NotNil(t, resp.Policy)
	assert.Equal(t, "AF41", resp.Policy.Marking.DSCPClass)
	assert.NotEmpty(t, resp.Importances)
}

func TestClassify_EscalatesAndSuggests(t *testing.T) {
	s := newTestServer(t, "")

	var first, second ClassifyResponse
	decodeInto(t, s.do(t, http.MethodPost, "/classify", gamingFlow(), false), &first)
	decodeInto(t, s.do(t, http.MethodPost, "/classify", gamingFlow(), false), &second)

	assert.True(t, first.Escalated)
	assert.Equal(t, model.EngineVanguard, first.Engine)
	assert.Equal(t, model.CategoryGaming, first.Category)
	assert.Nil(t, first.Suggestion)
	require.NotNil(t, second.Suggestion)
	assert.Equal(t, 2, second.Suggestion.Votes)

	rec := s.do(t, http.MethodGet, "/suggestions", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var suggestions []model.Suggestion
	decodeInto(t, rec, &suggestions)
	require.Len(t, suggestions, 1)

	rec = s.do(t, http.MethodPost, "/suggestions/"+suggestions[0].ID+"/approve", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var approved model.Suggestion
	decodeInto(t, rec, &approved)
	assert.Equal(t, model.SuggestionApproved, approved.Status)

	_, ok := s.catalog.Get(suggestion.PolicyKey(approved.ID))
	assert.True(t, ok)

	rec = s.do(t, http.MethodGet, "/investigations", nil, false)
	var investigations []model.Investigation
	decodeInto(t, rec, &investigations)
	assert.Len(t, investigations, 2)
}

func TestClassify_InvalidInput(t *testing.T) {
	s := newTestServer(t, "")

	bad := gamingFlow()
	bad.DestIP = "nowhere"
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/classify", bad, false).Code)

	req := httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestionTransitions_NotFound(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/suggestions/sugg_missing/approve", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/suggestions/sugg_missing/deny", nil, false).Code)
}

func TestReinvestigate(t *testing.T) {
	s := newTestServer(t, "")

	var decided ClassifyResponse
	decodeInto(t, s.do(t, http.MethodPost, "/classify", videoFlow(), false), &decided)

	rec := s.do(t, http.MethodPost, "/investigations/"+decided.FlowID+"/vanguard", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.ClassificationResult
	decodeInto(t, rec, &res)
	assert.Equal(t, decided.FlowID, res.FlowID)
	assert.Equal(t, model.CategoryGaming, res.Category)
	assert.Equal(t, 1, s.ledger.InvestigationCount())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/investigations/flow_404/vanguard", nil, false).Code)

	s.vanguard.UpdateSettings(ai.Settings{Enabled: false})
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPost, "/investigations/"+decided.FlowID+"/vanguard", nil, false).Code)
}

func TestStatusAndHealth(t *testing.T) {
	s := newTestServer(t, "")
	s.do(t, http.MethodPost, "/classify", videoFlow(), false)
	s.do(t, http.MethodPost, "/classify", gamingFlow(), false)

	rec := s.do(t, http.MethodGet, "/status", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	decodeInto(t, rec, &status)
	assert.Len(t, status.ActiveFlows, 2)
	assert.Len(t, status.ActivePolicies, 2)
	assert.Len(t, status.Investigations, 1)
	assert.NotEmpty(t, status.ClassificationLog)
	assert.LessOrEqual(t, len(status.ClassificationLog), statusLogEntries)
	assert.Equal(t, int64(720000), status.Metrics[model.PriorityVideo].Bandwidth)
	assert.GreaterOrEqual(t, status.Enforcement.Submitted, int64(2))
	assert.False(t, status.ModelPresent)
	assert.False(t, status.SimulateEnabled)

	rec = s.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decodeInto(t, rec, &health)
	assert.True(t, health.OK)
	assert.Equal(t, "sentinel-qos", health.Service)
}

func TestSimulateSweep(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/simulate", simulator.SweepParams{VideoPercentage: 100, TotalVolumeGB: 2}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var result simulator.SweepResult
	decodeInto(t, rec, &result)
	assert.Equal(t, 200, result.NumSamples)
	assert.Equal(t, 99, result.Counts[model.CategoryVideo])
	assert.Equal(t, 0, s.ledger.InvestigationCount())

	rec = s.do(t, http.MethodPost, "/simulate", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &result)
	assert.Equal(t, 100, result.NumSamples)
}

func TestAdmin_RequiresBasicAuth(t *testing.T) {
	s := newTestServer(t, "")

	for _, path := range []string{"/admin/llm-settings"} {
		rec := s.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	}
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/admin/simulate", map[string]bool{"enabled": true}, false).Code)
	assert.False(t, s.generator.Enabled())

	req := httptest.NewRequest(http.MethodGet, "/admin/llm-settings", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_LLMSettings(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodGet, "/admin/llm-settings", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings ai.Settings
	decodeInto(t, rec, &settings)
	assert.Equal(t, ai.Settings{Enabled: true, Model: "gemma:2b"}, settings)

	rec = s.do(t, http.MethodPost, "/admin/llm-settings", map[string]interface{}{"llm_enabled": false, "llm_model": "mistral"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &settings)
	assert.Equal(t, ai.Settings{Enabled: false, Model: "mistral"}, settings)

	form := url.Values{"llm_enabled": {"true"}, "llm_model": {""}}
	req := httptest.NewRequest(http.MethodPost, "/admin/llm-settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &settings)
	assert.Equal(t, ai.Settings{Enabled: true, Model: "mistral"}, settings)
}

func TestAdmin_SimulationToggle(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/admin/simulate", map[string]bool{"enabled": true}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"simulate_enabled": true}`, rec.Body.String())
	assert.True(t, s.generator.Enabled())

	form := url.Values{"enabled": {"maybe"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/simulate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, s.generator.Enabled())
}

func TestAdmin_ReloadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentry_model.json")
	s := newTestServer(t, path)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/admin/reload-model", nil, true).Code)

	m := sentry.Model{
		Classes: []model.Category{model.CategoryBrowsing, model.CategoryGaming},
		Weights: [][]float64{{0, 0, 0, 0, 0}, {0, 0, 0, 0, 1}},
		Bias:    []float64{0, 0},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	rec := s.do(t, http.MethodPost, "/admin/reload-model", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, s.sentry.Model())

	var health HealthResponse
	decodeInto(t, s.do(t, http.MethodGet, "/health", nil, false), &health)
	assert.True(t, health.ModelPresent)
}

func TestLLMHealth_IsPublic(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodGet, "/admin/llm-health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var h ai.Health
	decodeInto(t, rec, &h)
	assert.True(t, h.Reachable)
	assert.True(t, h.ModelPresent)
	assert.Equal(t, []string{"gemma:2b"}, h.Models)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	s.do(t, http.MethodPost, "/classify", gamingFlow(), false)

	rec := s.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentinel_escalations_total")
	assert.Contains(t, rec.Body.String(), "sentinel_decisions_total")
}

func TestHealthProbe(t *testing.T) {
	reasoner := &stubReasoner{models: []string{"gemma:2b"}}
	vanguard := ai.NewVanguard(reasoner, ai.Options{Models: []string{"gemma:2b"}, Enabled: true, Timeout: time.Second})
	probe := NewHealthProbe(vanguard, time.Hour)

	ctx := context.Background()
	resp, err := probe.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: VanguardService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, probe.Check(ctx))
	resp, err = probe.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: VanguardService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	reasoner.models = nil
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, probe.Check(ctx))

	reasoner.models = []string{"gemma:2b"}
	vanguard.UpdateSettings(ai.Settings{Enabled: false})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, probe.Check(ctx))

	resp, err = probe.Server().Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
