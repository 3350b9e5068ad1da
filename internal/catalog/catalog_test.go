package catalog

import (
	"SentinelQoS/internal/model"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SeedTable(t *testing.T) {
	c := NewDefault()

	p, ok := c.Resolve(model.CategoryVideo)
	require.True(t, ok)
	assert.Equal(t, "AF41", p.Marking.DSCPClass)
	assert.Equal(t, "1:20", p.Marking.TCClass)
	assert.Equal(t, model.PriorityVideo, p.PriorityClass)

	p, ok = c.Resolve(model.CategoryDownload)
	require.True(t, ok)
	assert.Equal(t, "CS1", p.Marking.DSCPClass)

	_, ok = c.Resolve(model.CategoryUnknown)
	assert.False(t, ok)
}

func TestSuggestedMarking_DefaultsToHighestPriority(t *testing.T) {
	c := NewDefault()
	marking, class := c.SuggestedMarking("Carrier Pigeon")
	assert.Equal(t, DefaultMarking, marking)
	assert.Equal(t, model.PriorityHigh, class)

	marking, _ = c.SuggestedMarking(model.CategoryBrowsing)
	assert.Equal(t, "AF21", marking.DSCPClass)
}

func TestPut_IsKeyedAndIdempotent(t *testing.T) {
	c := NewDefault()
	before := c.Len()

	policy := model.Policy{Key: "policy_suggested_a", Category: model.CategoryUnknown, Marking: DefaultMarking, PriorityClass: model.PriorityHigh}
	c.Put(policy)
	c.Put(policy)

	assert.Equal(t, before+1, c.Len())
	require.Len(t, c.Derived(), 1)

	got, ok := c.Get("policy_suggested_a")
	require.True(t, ok)
	assert.Equal(t, policy, got)

	resolved, ok := c.Resolve(model.CategoryUnknown)
	require.True(t, ok)
	assert.Equal(t, "policy_suggested_a", resolved.Key)
}

func TestResolve_SeedBeatsDerived(t *testing.T) {
	c := NewDefault()
	c.Put(model.Policy{Key: "policy_suggested_b", Category: model.CategoryVideo, Marking: DefaultMarking})

	p, ok := c.Resolve(model.CategoryVideo)
	require.True(t, ok)
	assert.Equal(t, "AF41", p.Marking.DSCPClass)
	assert.Empty(t, p.Key)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	body := `
policies:
  - category: Gaming
    dscp_class: EF
    dscp_value: "0x2e"
    tc_class: "1:10"
    priority_class: high_prio
  - category: Backup
    dscp_class: CS1
    dscp_value: "0x08"
    tc_class: "1:40"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	defs, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, model.PriorityBestEffort, defs[1].PriorityClass)

	c := New(defs)
	p, ok := c.Resolve("Backup")
	require.True(t, ok)
	assert.Equal(t, "1:40", p.Marking.TCClass)
	assert.Len(t, c.Definitions(), 2)
}

func TestLoadSeedFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  - category: Gaming\n"), 0o644))
	_, err := LoadSeedFile(path)
	assert.Error(t, err)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSeedFile_SampleMatchesBuiltins(t *testing.T) {
	defs, err := LoadSeedFile(filepath.Join("..", "..", "configs", "policies.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDefinitions(), defs)
}
