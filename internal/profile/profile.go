// Package profile derives stable identifiers for flow feature vectors.
package profile

import (
	"SentinelQoS/internal/model"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Canonical returns the feature vector as JSON with sorted keys.
func Canonical(f model.FlowFeatures) []byte {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	// encoding/json sorts map keys.
	sorted, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return sorted
}

// Hash returns the 64-bit content hash of a feature vector.
func Hash(f model.FlowFeatures) uint64 {
	return xxhash.Sum64(Canonical(f))
}

// ID returns the flow profile id, profile_ followed by the low 32 bits of Hash in hex.
func ID(f model.FlowFeatures) string {
	return fmt.Sprintf("profile_%08x", uint32(Hash(f)))
}
