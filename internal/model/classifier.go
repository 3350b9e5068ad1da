package model

// Classifier is the fast first classification stage. Classify is total.
type Classifier interface {
	Classify(features FlowFeatures) ClassificationResult
}

// Explainer computes per-feature importances for a flow. The boolean result
// reports whether the importances were synthesized rather than computed.
type Explainer interface {
	Explain(features FlowFeatures) (map[string]float64, bool)
}
