package model

import (
	"context"
)

// Reasoner defines the standard interface for the external reasoning service behind Vanguard.
type Reasoner interface {
	// Complete sends a prompt to the named model and returns its raw text answer.
	Complete(ctx context.Context, model, prompt string) (string, error)

	// Models lists the model identifiers the service currently offers.
	Models(ctx context.Context) ([]string, error)
}

// Escalator is the second classification stage. Escalate never fails; an
// unreachable service degrades to a simulated result.
type Escalator interface {
	Escalate(ctx context.Context, features FlowFeatures) ClassificationResult
}
