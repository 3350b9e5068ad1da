package ai

import (
	"context"
	"strings"
)

// Health describes the reachability of the reasoning service.
type Health struct {
	Enabled      bool     `json:"enabled"`
	Reachable    bool     `json:"reachable"`
	ModelPresent bool     `json:"model_present"`
	Model        string   `json:"model"`
	Models       []string `json:"models"`
	Error        string   `json:"error,omitempty"`
}

// Health lists the service's models and checks that a candidate is present.
func (v *Vanguard) Health(ctx context.Context) Health {
	settings := v.Settings()
	h := Health{Enabled: settings.Enabled, Model: settings.Model, Models: []string{}}
	if v.reasoner == nil {
		h.Error = "no reasoning service configured"
		return h
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	models, err := v.reasoner.Models(callCtx)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.Reachable = true
	h.Models = models

	for _, candidate := range v.Candidates() {
		for _, m := range models {
			if sameModel(candidate, m) {
				h.ModelPresent = true
				return h
			}
		}
	}
	return h
}

// sameModel treats "name" and "name:latest" as the same model.
func sameModel(a, b string) bool {
	return strings.TrimSuffix(a, ":latest") == strings.TrimSuffix(b, ":latest")
}
