// Package orchestrator runs the two-stage decision for a flow: Sentry first,
// escalation to Vanguard below the acceptance threshold, then policy
// resolution, suggestion tracking and enforcement.
package orchestrator

import (
	"SentinelQoS/internal/ai"
	"SentinelQoS/internal/ledger"
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/metrics"
	"SentinelQoS/internal/model"
	"SentinelQoS/internal/notification"
	"SentinelQoS/internal/profile"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotFound is returned when a flow or investigation id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrVanguardDisabled is returned when an operator asks for an escalation
	// while Vanguard is switched off by the admin toggle.
	ErrVanguardDisabled = errors.New("vanguard is disabled")
)

// DefaultAcceptThreshold is the Sentry confidence at which escalation is skipped.
const DefaultAcceptThreshold = 0.95

// Vanguard is the escalation stage as seen by the orchestrator.
type Vanguard interface {
	model.Escalator
	Settings() ai.Settings
}

// PolicyResolver maps a category to its QoS policy.
type PolicyResolver interface {
	Resolve(category model.Category) (model.Policy, bool)
}

// SuggestionRecorder feeds escalation outcomes to the recurrence tracker.
type SuggestionRecorder interface {
	Record(profile string, category model.Category, rationale string) *model.Suggestion
}

// MarkingSink accepts marking events without blocking.
type MarkingSink interface {
	Submit(e model.MarkingEvent) bool
}

// Decision is the outcome of one flow decision.
type Decision struct {
	FlowID        string                     `json:"flow_id"`
	Result        model.ClassificationResult `json:"result"`
	Policy        *model.Policy              `json:"policy,omitempty"`
	Escalated     bool                       `json:"escalated"`
	Investigation *model.Investigation       `json:"investigation,omitempty"`
	Suggestion    *model.Suggestion          `json:"suggestion,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Sentry, Vanguard, Policies,
// Tracker and Ledger are required.
type Deps struct {
	Sentry    model.Classifier
	Explainer model.Explainer
	Vanguard  Vanguard
	Policies  PolicyResolver
	Tracker   SuggestionRecorder
	Ledger    *ledger.Ledger
	Markings  MarkingSink
	Notifier  model.Notifier
}

// Options tunes an Orchestrator.
type Options struct {
	AcceptThreshold        float64
	MaxInflightEscalations int64
}

// Orchestrator owns no flow state itself; every shared record lives in the
// ledger, tracker or catalog, each behind its own lock. No lock is held while
// Sentry or Vanguard runs.
type Orchestrator struct {
	deps      Deps
	threshold float64
	sem       *semaphore.Weighted
	now       func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.AcceptThreshold <= 0 || opts.AcceptThreshold > 1 {
		opts.AcceptThreshold = DefaultAcceptThreshold
	}
	if opts.MaxInflightEscalations <= 0 {
		opts.MaxInflightEscalations = 4
	}
	return &Orchestrator{
		deps:      deps,
		threshold: opts.AcceptThreshold,
		sem:       semaphore.NewWeighted(opts.MaxInflightEscalations),
		now:       time.Now,
	}
}

// Decide classifies a manually submitted flow under a fresh id.
func (o *Orchestrator) Decide(ctx context.Context, f model.FlowFeatures) (*Decision, error) {
	return o.DecideFlow(ctx, "manual_"+uuid.NewString(), f)
}

// DecideFlow classifies a flow under the caller's id. Invalid features are the
// only error besides cancellation of ctx before an escalation starts.
func (o *Orchestrator) DecideFlow(ctx context.Context, flowID string, f model.FlowFeatures) (*Decision, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("flow %s: %w", flowID, err)
	}

	sentryRes := o.deps.Sentry.Classify(f)
	sentryRes.FlowID = flowID
	sentryRes.Engine = model.EngineSentry
	sentryRes.Confidence = model.ClampConfidence(sentryRes.Confidence)

	d := &Decision{FlowID: flowID}

	if sentryRes.Confidence >= o.threshold {
		d.Result = sentryRes
		d.Result.Explanation = fmt.Sprintf("Sentry auto-accepted (conf=%.2f)", sentryRes.Confidence)
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vres, err := o.escalate(ctx, f)
		if err != nil {
			return nil, err
		}
		vres.FlowID = flowID

		sentryCopy := sentryRes
		inv := model.Investigation{
			FlowID:    flowID,
			ProfileID: profile.ID(f),
			Features:  f,
			Sentry:    &sentryCopy,
			Vanguard:  vres,
			CreatedAt: o.now().UTC(),
		}
		o.deps.Ledger.AppendInvestigation(inv)

		d.Result = vres
		d.Escalated = true
		d.Investigation = &inv
		d.Suggestion = o.recordSuggestion(inv.ProfileID, vres)
	}

	if o.deps.Explainer != nil {
		d.Result.Importances, d.Result.ImportancesSynthetic = o.deps.Explainer.Explain(f)
	}

	o.apply(d, f)
	return d, nil
}

// Reinvestigate runs Vanguard again on the features of a known investigation
// or active flow. The new investigation has no Sentry result.
func (o *Orchestrator) Reinvestigate(ctx context.Context, flowID string) (model.ClassificationResult, error) {
	var features model.FlowFeatures
	if inv, ok := o.deps.Ledger.LatestInvestigation(flowID); ok {
		features = inv.Features
	} else if flow, ok := o.deps.Ledger.Flow(flowID); ok {
		features = flow.Features
	} else {
		return model.ClassificationResult{}, fmt.Errorf("flow %s: %w", flowID, ErrNotFound)
	}
	if !o.deps.Vanguard.Settings().Enabled {
		return model.ClassificationResult{}, ErrVanguardDisabled
	}

	vres, err := o.escalate(ctx, features)
	if err != nil {
		return model.ClassificationResult{}, err
	}
	vres.FlowID = flowID
	o.deps.Ledger.AppendInvestigation(model.Investigation{
		FlowID:    flowID,
		ProfileID: profile.ID(features),
		Features:  features,
		Vanguard:  vres,
		CreatedAt: o.now().UTC(),
	})
	o.deps.Ledger.Logf("Vanguard re-investigated %s as %s (%.2f)", flowID, vres.Category, vres.Confidence)
	return vres, nil
}

// escalate runs Vanguard under the in-flight bound.
func (o *Orchestrator) escalate(ctx context.Context, f model.FlowFeatures) (model.ClassificationResult, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return model.ClassificationResult{}, err
	}
	defer o.sem.Release(1)

	metrics.IncEscalation()
	start := time.Now()
	vres := o.deps.Vanguard.Escalate(ctx, f)
	metrics.ObserveEscalation(time.Since(start))

	vres.Engine = model.EngineVanguard
	vres.Confidence = model.ClampConfidence(vres.Confidence)
	if vres.Category == "" {
		vres.Category = model.CategoryUnknown
	}
	return vres, nil
}

func (o *Orchestrator) recordSuggestion(profileID string, vres model.ClassificationResult) *model.Suggestion {
	if o.deps.Tracker == nil {
		return nil
	}
	s := o.deps.Tracker.Record(profileID, vres.Category, vres.Explanation)
	if s == nil {
		return nil
	}
	metrics.IncSuggestion()
	o.deps.Ledger.Logf("New policy suggestion: %s for profile %s -> %s", s.ID, profileID, s.Category)
	if o.deps.Notifier != nil {
		notifier, sugg := o.deps.Notifier, *s
		go func() {
			subject, body := notification.SuggestionMessage(sugg)
			if err := notifier.Send(subject, body); err != nil {
				logger.Log().Errorf("Failed to send suggestion notification for %s: %v", sugg.ID, err)
			}
		}()
	}
	return s
}

// apply resolves the policy for the decided category and records the outcome.
func (o *Orchestrator) apply(d *Decision, f model.FlowFeatures) {
	r := d.Result
	engine := r.Engine.String()

	flow := ledger.Flow{
		ID:       d.FlowID,
		SourceIP: f.SourceIP,
		DestIP:   f.DestIP,
		DestPort: f.DestPort,
		Status:   ledger.FlowNoPolicy,
		Category: r.Category,
		Engine:   r.Engine,
		Features: f,
	}

	outcome := "unresolved"
	if p, ok := o.deps.Policies.Resolve(r.Category); ok {
		outcome = "policy"
		p.Key = d.FlowID
		p.Explanation = r.Explanation
		d.Policy = &p
		flow.Status = ledger.FlowPolicyApplied

		o.deps.Ledger.ApplyPolicy(p)
		o.deps.Ledger.AddTraffic(p.PriorityClass, f.BytesTotal, f.PacketCount)
		metrics.AddTraffic(string(p.PriorityClass), f.BytesTotal, f.PacketCount)

		if o.deps.Markings != nil {
			o.deps.Markings.Submit(model.MarkingEvent{
				FlowID:        d.FlowID,
				SourceIP:      f.SourceIP,
				DestIP:        f.DestIP,
				DestPort:      f.DestPort,
				Category:      r.Category,
				Marking:       p.Marking,
				PriorityClass: p.PriorityClass,
				Timestamp:     o.now().UTC(),
			})
		}
	}
	o.deps.Ledger.UpsertFlow(flow)

	if d.Escalated {
		o.deps.Ledger.Logf("Vanguard classified %s as %s (%.2f) - %s", d.FlowID, r.Category, r.Confidence, r.Explanation)
	} else {
		o.deps.Ledger.Logf("Sentry classified %s as %s (%.2f)", d.FlowID, r.Category, r.Confidence)
	}

	metrics.IncDecision(engine, outcome)
	if r.Simulated {
		metrics.IncSimulated(engine)
	}
	logger.WithFields(logrus.Fields{
		"flow_id":    d.FlowID,
		"app_type":   r.Category,
		"confidence": r.Confidence,
		"engine":     engine,
		"escalated":  d.Escalated,
		"outcome":    outcome,
	}).Debug("Decision emitted")
}
