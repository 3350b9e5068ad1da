package model

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// ErrInvalidFeatures is returned when a flow feature vector fails validation.
var ErrInvalidFeatures = errors.New("invalid flow features")

// Category is an application category label.
type Category string

const (
	CategoryCall     Category = "Audio/Video Call"
	CategoryGaming   Category = "Gaming"
	CategoryVideo    Category = "Video Streaming"
	CategoryBrowsing Category = "Browsing"
	CategoryDownload Category = "File Download"
	CategoryUpload   Category = "Video Upload"
	CategoryUnknown  Category = "Unknown"
)

// TrafficTypes lists the categories that carry a seeded QoS policy, in catalog order.
var TrafficTypes = []Category{
	CategoryCall,
	CategoryGaming,
	CategoryVideo,
	CategoryBrowsing,
	CategoryDownload,
	CategoryUpload,
}

// IsKnown reports whether c is one of the traffic types or Unknown.
func (c Category) IsKnown() bool {
	if c == CategoryUnknown {
		return true
	}
	for _, t := range TrafficTypes {
		if t == c {
			return true
		}
	}
	return false
}

// FlowFeatures is the summary of a single observed flow.
type FlowFeatures struct {
	SourceIP        string  `json:"source_ip"`
	DestIP          string  `json:"dest_ip"`
	DestPort        int     `json:"dest_port"`
	PacketCount     int64   `json:"packet_count"`
	AvgPktLen       float64 `json:"avg_pkt_len"`
	DurationSeconds float64 `json:"duration_seconds"`
	BytesTotal      int64   `json:"bytes_total"`
	Protocol        string  `json:"protocol,omitempty"`
}

// Validate rejects feature vectors that no classifier stage can interpret.
func (f FlowFeatures) Validate() error {
	if f.SourceIP == "" || f.DestIP == "" {
		return fmt.Errorf("%w: source and destination addresses are required", ErrInvalidFeatures)
	}
	if net.ParseIP(f.SourceIP) == nil || net.ParseIP(f.DestIP) == nil {
		return fmt.Errorf("%w: addresses must be IP literals (%q -> %q)", ErrInvalidFeatures, f.SourceIP, f.DestIP)
	}
	if f.DestPort < 0 || f.DestPort > 65535 {
		return fmt.Errorf("%w: dest_port %d out of range", ErrInvalidFeatures, f.DestPort)
	}
	if f.PacketCount < 0 || f.BytesTotal < 0 {
		return fmt.Errorf("%w: counters must not be negative", ErrInvalidFeatures)
	}
	for name, v := range map[string]float64{"avg_pkt_len": f.AvgPktLen, "duration_seconds": f.DurationSeconds} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative number", ErrInvalidFeatures, name)
		}
	}
	return nil
}

// Lookup returns a numeric feature by its schema name.
func (f FlowFeatures) Lookup(name string) (float64, bool) {
	switch name {
	case "packet_count":
		return float64(f.PacketCount), true
	case "avg_pkt_len":
		return f.AvgPktLen, true
	case "duration_seconds":
		return f.DurationSeconds, true
	case "bytes_total":
		return float64(f.BytesTotal), true
	case "dest_port":
		return float64(f.DestPort), true
	}
	return 0, false
}

// DefaultFeatureColumns is the numeric schema used when a model does not declare its own.
var DefaultFeatureColumns = []string{"packet_count", "avg_pkt_len", "duration_seconds", "bytes_total", "dest_port"}

// Engine identifies the classifier stage that produced a result.
type Engine int

const (
	EngineSentry Engine = iota + 1
	EngineVanguard
)

func (e Engine) String() string {
	switch e {
	case EngineSentry:
		return "Sentry"
	case EngineVanguard:
		return "Vanguard"
	}
	return fmt.Sprintf("Engine(%d)", int(e))
}

// MarshalText encodes the engine as its name; the zero value encodes as "".
func (e Engine) MarshalText() ([]byte, error) {
	switch e {
	case 0:
		return []byte{}, nil
	case EngineSentry, EngineVanguard:
		return []byte(e.String()), nil
	}
	return nil, fmt.Errorf("unknown engine %d", int(e))
}

// UnmarshalText accepts the names produced by MarshalText.
func (e *Engine) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*e = 0
	case "Sentry":
		*e = EngineSentry
	case "Vanguard":
		*e = EngineVanguard
	default:
		return fmt.Errorf("unknown engine %q", string(text))
	}
	return nil
}

// ClassificationResult is the outcome of a single classification attempt.
type ClassificationResult struct {
	FlowID      string             `json:"flow_id"`
	Category    Category           `json:"app_type"`
	Confidence  float64            `json:"confidence"`
	Explanation string             `json:"explanation,omitempty"`
	Importances map[string]float64 `json:"shap,omitempty"`
	// ImportancesSynthetic marks importances produced without a real explainer.
	ImportancesSynthetic bool   `json:"shap_synthetic,omitempty"`
	Engine               Engine `json:"engine"`
	// Simulated marks filler answers that did not come from real inference.
	Simulated bool `json:"simulated"`
}

// ClampConfidence forces a confidence value into [0,1]; NaN becomes 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// PriorityClass groups QoS markings for traffic accounting.
type PriorityClass string

const (
	PriorityHigh       PriorityClass = "high_prio"
	PriorityVideo      PriorityClass = "video_stream"
	PriorityBestEffort PriorityClass = "best_effort"
	PriorityLow        PriorityClass = "low_prio"
)

// QoSMarking is the DSCP / traffic-control pairing applied to a flow.
type QoSMarking struct {
	DSCPClass string `json:"dscp_class" yaml:"dscp_class"`
	DSCPValue string `json:"dscp_value" yaml:"dscp_value"`
	TCClass   string `json:"tc_class" yaml:"tc_class"`
}

// Policy binds a category to a QoS treatment.
type Policy struct {
	Key           string        `json:"flow_id"`
	Category      Category      `json:"app_type"`
	Marking       QoSMarking    `json:"marking"`
	PriorityClass PriorityClass `json:"priority_class"`
	Explanation   string        `json:"explanation,omitempty"`
}

// Investigation records an escalation to Vanguard.
type Investigation struct {
	FlowID    string                `json:"flow_id"`
	ProfileID string                `json:"profile_id"`
	Features  FlowFeatures          `json:"features"`
	Sentry    *ClassificationResult `json:"sentry,omitempty"`
	Vanguard  ClassificationResult  `json:"vanguard"`
	CreatedAt time.Time             `json:"timestamp"`
}

// SuggestionStatus is the lifecycle state of a policy suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionDenied   SuggestionStatus = "denied"
)

// Suggestion proposes a policy for a recurring flow profile.
type Suggestion struct {
	ID        string           `json:"id"`
	ProfileID string           `json:"profile_id"`
	Category  Category         `json:"suggested_app"`
	Marking   QoSMarking       `json:"marking"`
	Rationale string           `json:"rationale"`
	Votes     int              `json:"votes"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// MarkingEvent asks the enforcement layer to mark a flow.
type MarkingEvent struct {
	FlowID        string        `json:"flow_id"`
	SourceIP      string        `json:"source_ip"`
	DestIP        string        `json:"dest_ip"`
	DestPort      int           `json:"dest_port"`
	Category      Category      `json:"app_type"`
	Marking       QoSMarking    `json:"marking"`
	PriorityClass PriorityClass `json:"priority_class"`
	Timestamp     time.Time     `json:"timestamp"`
}
