// Package ledger holds the engine's in-memory shared records: investigations,
// the activity log, active flows, applied policies and traffic counters.
// Each collection has its own lock; nothing here is persisted.
package ledger

import (
	"SentinelQoS/internal/model"
	"fmt"
	"sync"
	"time"
)

const (
	defaultActivitySize = 200
	defaultMaxFlows     = 1000
)

// ActivityEntry is one line of the human-readable activity log.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// FlowStatus is the state shown for an active flow.
type FlowStatus string

const (
	FlowClassified    FlowStatus = "Classified"
	FlowPolicyApplied FlowStatus = "Policy Applied"
	FlowNoPolicy      FlowStatus = "No Policy"
)

// Flow is an entry of the active-flow table.
type Flow struct {
	ID        string             `json:"id"`
	SourceIP  string             `json:"source_ip"`
	DestIP    string             `json:"dest_ip"`
	DestPort  int                `json:"dest_port"`
	Status    FlowStatus         `json:"status"`
	Category  model.Category     `json:"app_type"`
	Engine    model.Engine       `json:"engine"`
	Features  model.FlowFeatures `json:"-"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TrafficCounter accumulates volume for a priority class.
type TrafficCounter struct {
	Bandwidth int64 `json:"bandwidth"`
	Packets   int64 `json:"packets"`
}

// Options sizes the bounded collections.
type Options struct {
	ActivitySize int
	MaxFlows     int
}

// Ledger is the set of shared in-memory records.
type Ledger struct {
	now func() time.Time

	invMu          sync.RWMutex
	investigations []model.Investigation

	actMu    sync.Mutex
	activity []ActivityEntry // ring buffer
	actNext  int
	actFull  bool

	flowMu    sync.RWMutex
	flows     map[string]Flow
	flowOrder []string
	maxFlows  int

	polMu    sync.RWMutex
	policies map[string]model.Policy
	polOrder []string

	trafficMu sync.Mutex
	traffic   map[model.PriorityClass]TrafficCounter
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	if opts.ActivitySize <= 0 {
		opts.ActivitySize = defaultActivitySize
	}
	if opts.MaxFlows <= 0 {
		opts.MaxFlows = defaultMaxFlows
	}
	traffic := make(map[model.PriorityClass]TrafficCounter, 4)
	for _, c := range []model.PriorityClass{model.PriorityHigh, model.PriorityVideo, model.PriorityBestEffort, model.PriorityLow} {
		traffic[c] = TrafficCounter{}
	}
	return &Ledger{
		now:      time.Now,
		activity: make([]ActivityEntry, opts.ActivitySize),
		flows:    make(map[string]Flow),
		maxFlows: opts.MaxFlows,
		policies: make(map[string]model.Policy),
		traffic:  traffic,
	}
}

// AppendInvestigation records an escalation. Investigations are never removed.
func (l *Ledger) AppendInvestigation(inv model.Investigation) {
	l.invMu.Lock()
	defer l.invMu.Unlock()
	l.investigations = append(l.investigations, inv)
}

// Investigations returns all investigations, newest first.
func (l *Ledger) Investigations() []model.Investigation {
	l.invMu.RLock()
	defer l.invMu.RUnlock()
	out := make([]model.Investigation, len(l.investigations))
	for i, inv := range l.investigations {
		out[len(l.investigations)-1-i] = inv
	}
	return out
}

// InvestigationsSince returns the investigations appended after the first
// offset ones, in append order, and the new offset.
func (l *Ledger) InvestigationsSince(offset int) ([]model.Investigation, int) {
	l.invMu.RLock()
	defer l.invMu.RUnlock()
	if offset < 0 || offset > len(l.investigations) {
		offset = len(l.investigations)
	}
	out := make([]model.Investigation, len(l.investigations)-offset)
	copy(out, l.investigations[offset:])
	return out, len(l.investigations)
}

// InvestigationCount returns the number of recorded investigations.
func (l *Ledger) InvestigationCount() int {
	l.invMu.RLock()
	defer l.invMu.RUnlock()
	return len(l.investigations)
}

// LatestInvestigation returns the most recent investigation of a flow.
func (l *Ledger) LatestInvestigation(flowID string) (model.Investigation, bool) {
	l.invMu.RLock()
	defer l.invMu.RUnlock()
	for i := len(l.investigations) - 1; i >= 0; i-- {
		if l.investigations[i].FlowID == flowID {
			return l.investigations[i], true
		}
	}
	return model.Investigation{}, false
}

// Logf appends a formatted message to the activity log, overwriting the
// oldest entry once the log is full.
func (l *Ledger) Logf(format string, args ...interface{}) {
	entry := ActivityEntry{Timestamp: l.now().UTC(), Message: fmt.Sprintf(format, args...)}

	l.actMu.Lock()
	defer l.actMu.Unlock()
	l.activity[l.actNext] = entry
	l.actNext = (l.actNext + 1) % len(l.activity)
	if l.actNext == 0 {
		l.actFull = true
	}
}

// Activity returns up to n entries, most recent first. n <= 0 returns all.
func (l *Ledger) Activity(n int) []ActivityEntry {
	l.actMu.Lock()
	defer l.actMu.Unlock()

	size := l.actNext
	if l.actFull {
		size = len(l.activity)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]ActivityEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.actNext - i + len(l.activity)) % len(l.activity)
		out = append(out, l.activity[idx])
	}
	return out
}

// UpsertFlow inserts or replaces an active flow. The oldest flow and its
// applied policy are evicted once the table is full.
func (l *Ledger) UpsertFlow(f Flow) {
	f.UpdatedAt = l.now().UTC()

	var evicted string
	l.flowMu.Lock()
	if _, exists := l.flows[f.ID]; !exists {
		l.flowOrder = append(l.flowOrder, f.ID)
		if len(l.flowOrder) > l.maxFlows {
			evicted = l.flowOrder[0]
			l.flowOrder = l.flowOrder[1:]
			delete(l.flows, evicted)
		}
	}
	l.flows[f.ID] = f
	l.flowMu.Unlock()

	if evicted != "" {
		l.removePolicy(evicted)
	}
}

// Flow returns an active flow by id.
func (l *Ledger) Flow(id string) (Flow, bool) {
	l.flowMu.RLock()
	defer l.flowMu.RUnlock()
	f, ok := l.flows[id]
	return f, ok
}

// Flows returns the active flows in insertion order.
func (l *Ledger) Flows() []Flow {
	l.flowMu.RLock()
	defer l.flowMu.RUnlock()
	out := make([]Flow, 0, len(l.flowOrder))
	for _, id := range l.flowOrder {
		out = append(out, l.flows[id])
	}
	return out
}

// ApplyPolicy records the policy applied to a flow.
func (l *Ledger) ApplyPolicy(p model.Policy) {
	l.polMu.Lock()
	defer l.polMu.Unlock()
	if _, exists := l.policies[p.Key]; !exists {
		l.polOrder = append(l.polOrder, p.Key)
	}
	l.policies[p.Key] = p
}

func (l *Ledger) removePolicy(key string) {
	l.polMu.Lock()
	defer l.polMu.Unlock()
	if _, exists := l.policies[key]; !exists {
		return
	}
	delete(l.policies, key)
	for i, k := range l.polOrder {
		if k == key {
			l.polOrder = append(l.polOrder[:i], l.polOrder[i+1:]...)
			break
		}
	}
}

// AppliedPolicies returns the applied policies in insertion order.
func (l *Ledger) AppliedPolicies() []model.Policy {
	l.polMu.RLock()
	defer l.polMu.RUnlock()
	out := make([]model.Policy, 0, len(l.polOrder))
	for _, key := range l.polOrder {
		out = append(out, l.policies[key])
	}
	return out
}

// AddTraffic adds a flow's volume to its priority class.
func (l *Ledger) AddTraffic(class model.PriorityClass, bytes, packets int64) {
	l.trafficMu.Lock()
	defer l.trafficMu.Unlock()
	c := l.traffic[class]
	c.Bandwidth += bytes
	c.Packets += packets
	l.traffic[class] = c
}

// Traffic returns a copy of the per-class counters.
func (l *Ledger) Traffic() map[model.PriorityClass]TrafficCounter {
	l.trafficMu.Lock()
	defer l.trafficMu.Unlock()
	out := make(map[model.PriorityClass]TrafficCounter, len(l.traffic))
	for k, v := range l.traffic {
		out[k] = v
	}
	return out
}
