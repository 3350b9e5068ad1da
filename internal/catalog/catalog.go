// Package catalog maps application categories to their QoS treatment.
package catalog

import (
	"SentinelQoS/internal/model"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultMarking is the highest-priority treatment, used when a category has no definition.
var DefaultMarking = model.QoSMarking{DSCPClass: "EF", DSCPValue: "0x2e", TCClass: "1:10"}

// Definition maps a category to its QoS treatment.
type Definition struct {
	Category      model.Category      `yaml:"category"`
	Marking       model.QoSMarking    `yaml:",inline"`
	PriorityClass model.PriorityClass `yaml:"priority_class"`
}

// seedFile is the on-disk format of a policy seed table.
type seedFile struct {
	Policies []Definition `yaml:"policies"`
}

// DefaultDefinitions returns the built-in seed table.
func DefaultDefinitions() []Definition {
	return []Definition{
		{model.CategoryCall, model.QoSMarking{DSCPClass: "EF", DSCPValue: "0x2e", TCClass: "1:10"}, model.PriorityHigh},
		{model.CategoryGaming, model.QoSMarking{DSCPClass: "EF", DSCPValue: "0x2e", TCClass: "1:10"}, model.PriorityHigh},
		{model.CategoryVideo, model.QoSMarking{DSCPClass: "AF41", DSCPValue: "0x22", TCClass: "1:20"}, model.PriorityVideo},
		{model.CategoryBrowsing, model.QoSMarking{DSCPClass: "AF21", DSCPValue: "0x12", TCClass: "1:30"}, model.PriorityBestEffort},
		{model.CategoryDownload, model.QoSMarking{DSCPClass: "CS1", DSCPValue: "0x08", TCClass: "1:40"}, model.PriorityLow},
		{model.CategoryUpload, model.QoSMarking{DSCPClass: "AF31", DSCPValue: "0x1a", TCClass: "1:40"}, model.PriorityLow},
	}
}

// LoadSeedFile reads a YAML seed table.
func LoadSeedFile(filename string) ([]Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	if len(seed.Policies) == 0 {
		return nil, fmt.Errorf("no policies defined in %s", filename)
	}
	for i, def := range seed.Policies {
		if def.Category == "" || def.Marking.DSCPClass == "" || def.Marking.TCClass == "" {
			return nil, fmt.Errorf("policy %d in %s needs category, dscp_class and tc_class", i, filename)
		}
		if def.PriorityClass == "" {
			seed.Policies[i].PriorityClass = model.PriorityBestEffort
		}
	}
	return seed.Policies, nil
}

// Catalog is the category -> QoS table. Seed definitions are fixed at
// construction; derived policies are added only through Put.
type Catalog struct {
	mu          sync.RWMutex
	definitions map[model.Category]Definition
	order       []model.Category
	derived     map[string]model.Policy
	derivedKeys []string
}

// New creates a catalog from seed definitions. Later duplicates of a category win.
func New(defs []Definition) *Catalog {
	c := &Catalog{
		definitions: make(map[model.Category]Definition, len(defs)),
		derived:     make(map[string]model.Policy),
	}
	for _, def := range defs {
		if _, exists := c.definitions[def.Category]; !exists {
			c.order = append(c.order, def.Category)
		}
		c.definitions[def.Category] = def
	}
	return c
}

// NewDefault creates a catalog from the built-in seed table.
func NewDefault() *Catalog {
	return New(DefaultDefinitions())
}

// Resolve returns the policy for a category. Seed definitions take precedence
// over approved derived policies; among derived policies the most recently
// inserted one wins.
func (c *Catalog) Resolve(category model.Category) (model.Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if def, ok := c.definitions[category]; ok {
		return model.Policy{
			Category:      def.Category,
			Marking:       def.Marking,
			PriorityClass: def.PriorityClass,
		}, true
	}
	for i := len(c.derivedKeys) - 1; i >= 0; i-- {
		p := c.derived[c.derivedKeys[i]]
		if p.Category == category {
			return p, true
		}
	}
	return model.Policy{}, false
}

// SuggestedMarking returns the marking a suggestion for category should carry,
// falling back to DefaultMarking.
func (c *Catalog) SuggestedMarking(category model.Category) (model.QoSMarking, model.PriorityClass) {
	if p, ok := c.Resolve(category); ok {
		return p.Marking, p.PriorityClass
	}
	return DefaultMarking, model.PriorityHigh
}

// Put inserts or replaces a derived policy under its key.
func (c *Catalog) Put(policy model.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.derived[policy.Key]; !exists {
		c.derivedKeys = append(c.derivedKeys, policy.Key)
	}
	c.derived[policy.Key] = policy
}

// Get returns a derived policy by key.
func (c *Catalog) Get(key string) (model.Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.derived[key]
	return p, ok
}

// Derived returns a copy of the derived policies in insertion order.
func (c *Catalog) Derived() []model.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Policy, 0, len(c.derivedKeys))
	for _, key := range c.derivedKeys {
		out = append(out, c.derived[key])
	}
	return out
}

// Definitions returns a copy of the seed table in load order.
func (c *Catalog) Definitions() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Definition, 0, len(c.order))
	for _, category := range c.order {
		out = append(out, c.definitions[category])
	}
	return out
}

// Len returns the number of seed definitions plus derived policies.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.definitions) + len(c.derived)
}
