// Package suggestion tracks recurring escalation outcomes and turns them into
// policy suggestions that an operator can approve or deny.
package suggestion

import (
	"SentinelQoS/internal/logger"
	"SentinelQoS/internal/model"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Threshold is the number of escalations of one (profile, category) pair
// that produces a suggestion.
const Threshold = 2

// PolicyStore is the part of the policy catalog the tracker needs.
type PolicyStore interface {
	SuggestedMarking(category model.Category) (model.QoSMarking, model.PriorityClass)
	Put(policy model.Policy)
}

type pair struct {
	profile  string
	category model.Category
}

// Tracker counts escalation outcomes per (profile, category) and owns the
// suggestion list. One mutex guards counters and suggestions together.
type Tracker struct {
	store PolicyStore
	now   func() time.Time

	mu          sync.Mutex
	counts      map[pair]int
	byPair      map[pair]string
	byID        map[string]*model.Suggestion
	suggestions []*model.Suggestion // newest first
}

// NewTracker creates an empty tracker bound to a policy store.
func NewTracker(store PolicyStore) *Tracker {
	return &Tracker{
		store:  store,
		now:    time.Now,
		counts: make(map[pair]int),
		byPair: make(map[pair]string),
		byID:   make(map[string]*model.Suggestion),
	}
}

// Record counts one escalation of profile to category. It returns the new
// suggestion when this observation created one, otherwise nil. A pair gets at
// most one suggestion; later observations only advance the counter.
func (t *Tracker) Record(profile string, category model.Category, rationale string) *model.Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pair{profile: profile, category: category}
	t.counts[key]++
	n := t.counts[key]
	if n < Threshold {
		return nil
	}
	if _, exists := t.byPair[key]; exists {
		return nil
	}

	marking, _ := t.store.SuggestedMarking(category)
	ts := t.now().UTC()
	s := &model.Suggestion{
		ID:        "sugg_" + uuid.NewString(),
		ProfileID: profile,
		Category:  category,
		Marking:   marking,
		Rationale: rationale,
		Votes:     n,
		Status:    model.SuggestionPending,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	t.byPair[key] = s.ID
	t.byID[s.ID] = s
	t.suggestions = append([]*model.Suggestion{s}, t.suggestions...)

	logger.Log().Infof("Suggestion %s created: profile %s -> %s after %d escalations", s.ID, profile, category, n)
	out := *s
	return &out
}

// Count returns how many times a pair has been recorded.
func (t *Tracker) Count(profile string, category model.Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[pair{profile: profile, category: category}]
}

// Approve marks a suggestion approved and inserts its derived policy into the
// catalog. Approving again re-inserts the same key.
func (t *Tracker) Approve(id string) (model.Suggestion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID[id]
	if !ok {
		return model.Suggestion{}, false
	}
	s.Status = model.SuggestionApproved
	s.UpdatedAt = t.now().UTC()

	_, class := t.store.SuggestedMarking(s.Category)
	t.store.Put(model.Policy{
		Key:           PolicyKey(id),
		Category:      s.Category,
		Marking:       s.Marking,
		PriorityClass: class,
		Explanation:   s.Rationale,
	})
	logger.Log().Infof("Suggestion %s approved, policy %s installed", id, PolicyKey(id))
	return *s, true
}

// Deny marks a suggestion denied. It never touches the catalog.
func (t *Tracker) Deny(id string) (model.Suggestion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID[id]
	if !ok {
		return model.Suggestion{}, false
	}
	s.Status = model.SuggestionDenied
	s.UpdatedAt = t.now().UTC()
	logger.Log().Infof("Suggestion %s denied", id)
	return *s, true
}

// Get returns a suggestion by id.
func (t *Tracker) Get(id string) (model.Suggestion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if !ok {
		return model.Suggestion{}, false
	}
	return *s, true
}

// List returns a snapshot of all suggestions, newest first.
func (t *Tracker) List() []model.Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Suggestion, 0, len(t.suggestions))
	for _, s := range t.suggestions {
		out = append(out, *s)
	}
	return out
}

// PolicyKey is the catalog key of the policy derived from a suggestion.
func PolicyKey(id string) string {
	return "policy_suggested_" + id
}
