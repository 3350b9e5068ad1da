package api

import (
	"SentinelQoS/internal/ai"
	"SentinelQoS/internal/enforcement"
	"SentinelQoS/internal/ledger"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/orchestrator"
	"SentinelQoS/internal/simulator"
	"SentinelQoS/internal/suggestion"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// ClassifyResponse is the decision for a manually submitted flow.
type ClassifyResponse struct {
	model.ClassificationResult
	Escalated  bool              `json:"escalated"`
	Policy     *model.Policy     `json:"policy,omitempty"`
	Suggestion *model.Suggestion `json:"suggestion,omitempty"`
}

// StatusResponse is the dashboard snapshot.
type StatusResponse struct {
	ActiveFlows       []ledger.Flow                                 `json:"active_flows"`
	ClassificationLog []ledger.ActivityEntry                        `json:"classification_log"`
	ActivePolicies    []model.Policy                                `json:"active_policies"`
	Metrics           map[model.PriorityClass]ledger.TrafficCounter `json:"metrics"`
	Investigations    []model.Investigation                         `json:"investigations"`
	Enforcement       enforcement.Stats                             `json:"enforcement"`
	ModelPresent      bool                                          `json:"model_present"`
	SimulateEnabled   bool                                          `json:"simulate_enabled"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Service         string `json:"service"`
	OK              bool   `json:"ok"`
	ModelPresent    bool   `json:"model_present"`
	UptimeSeconds   int64  `json:"uptime"`
	SimulateEnabled bool   `json:"simulate_enabled"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) modelPresent() bool {
	return h.deps.Sentry != nil && h.deps.Sentry.Model() != nil
}

func (h *Handler) simulateEnabled() bool {
	return h.deps.Simulation != nil && h.deps.Simulation.Enabled()
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "detail": "Sentinel engine running"})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	var features model.FlowFeatures
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	d, err := h.deps.Decider.Decide(r.Context(), features)
	switch {
	case errors.Is(err, model.ErrInvalidFeatures):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to classify flow: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{
		ClassificationResult: d.Result,
		Escalated:            d.Escalated,
		Policy:               d.Policy,
		Suggestion:           d.Suggestion,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	l := h.deps.Ledger
	resp := StatusResponse{
		ActiveFlows:       l.Flows(),
		ClassificationLog: l.Activity(statusLogEntries),
		ActivePolicies:    l.AppliedPolicies(),
		Metrics:           l.Traffic(),
		Investigations:    l.Investigations(),
		ModelPresent:      h.modelPresent(),
		SimulateEnabled:   h.simulateEnabled(),
	}
	if h.deps.Enforcement != nil {
		resp.Enforcement = h.deps.Enforcement.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Service:         "sentinel-qos",
		OK:              true,
		ModelPresent:    h.modelPresent(),
		UptimeSeconds:   int64(time.Since(h.started).Seconds()),
		SimulateEnabled: h.simulateEnabled(),
	})
}

func (h *Handler) listSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Suggestions.List())
}

func (h *Handler) approveSuggestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.deps.Suggestions.Approve(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.deps.Ledger.Logf("Suggestion %s approved and new policy %s created.", id, suggestion.PolicyKey(id))
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) denySuggestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := h.deps.Suggestions.Deny(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.deps.Ledger.Logf("Suggestion %s denied.", id)
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) listInvestigations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Ledger.Investigations())
}

func (h *Handler) reinvestigate(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["flow_id"]
	res, err := h.deps.Decider.Reinvestigate(r.Context(), flowID)
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, "Flow or investigation not found or missing features")
		return
	case errors.Is(err, orchestrator.ErrVanguardDisabled):
		writeError(w, http.StatusServiceUnavailable, "Vanguard LLM is disabled by admin")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	params := simulator.DefaultSweepParams()
	if err := decodeBody(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	result, err := simulator.Sweep(r.Context(), h.deps.Sentry, params)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) llmHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Vanguard.Health(r.Context()))
}

func (h *Handler) getLLMSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Vanguard.Settings())
}

func (h *Handler) setLLMSettings(w http.ResponseWriter, r *http.Request) {
	current := h.deps.Vanguard.Settings()
	var req ai.Settings
	if isJSON(r) {
		req = current
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
			return
		}
	} else {
		enabled, err := formBool(r, "llm_enabled", current.Enabled)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req = ai.Settings{Enabled: enabled, Model: r.FormValue("llm_model")}
	}
	writeJSON(w, http.StatusOK, h.deps.Vanguard.UpdateSettings(req))
}

func (h *Handler) setSimulation(w http.ResponseWriter, r *http.Request) {
	var enabled bool
	if isJSON(r) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err))
			return
		}
		enabled = req.Enabled
	} else {
		v, err := formBool(r, "enabled", false)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		enabled = v
	}
	h.deps.Simulation.SetEnabled(enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"simulate_enabled": h.deps.Simulation.Enabled()})
}

func (h *Handler) reloadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sentry.Reload(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.deps.Ledger.Logf("Sentry model reloaded from %s", h.deps.Sentry.ModelPath())
	writeJSON(w, http.StatusOK, map[string]string{"reloaded": h.deps.Sentry.ModelPath()})
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// formBool reads a boolean form field. A missing field yields def.
func formBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
	return v, nil
}
