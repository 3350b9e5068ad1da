package ai

import (
	"SentinelQoS/internal/model"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const systemPrompt = "You are an expert network analyst. You answer with a single JSON object and nothing else."

const maxRawExplanation = 1000

// BuildPrompt renders the flow summary the reasoner is asked to classify.
func BuildPrompt(f model.FlowFeatures) string {
	known := make([]string, 0, len(model.TrafficTypes))
	for _, c := range model.TrafficTypes {
		known = append(known, string(c))
	}
	return fmt.Sprintf(
		"Given the flow summary:\n"+
			"source_ip=%s, dest_ip=%s, dest_port=%d, packet_count=%d, avg_pkt_len=%.1f, duration_sec=%.2f, bytes=%d.\n"+
			"Known application types: %s.\n"+
			"Provide a JSON object with keys: app_type (one of the known types, or Unknown), "+
			"confidence (0-1), explanation (short human-readable).",
		f.SourceIP, f.DestIP, f.DestPort, f.PacketCount, f.AvgPktLen, f.DurationSeconds, f.BytesTotal,
		strings.Join(known, ", "),
	)
}

var (
	labelKeys       = []string{"app_type", "classification", "category", "label"}
	confidenceKeys  = []string{"confidence", "probability"}
	explanationKeys = []string{"explanation", "reason"}
)

// ParseResponse extracts a classification from reasoner output. It never
// fails: text that holds no JSON object becomes Unknown at 0.5 with the raw
// text (truncated) as explanation.
func ParseResponse(text string) model.ClassificationResult {
	fields, ok := extractObject(text)
	if !ok {
		return model.ClassificationResult{
			Category:    model.CategoryUnknown,
			Confidence:  0.5,
			Explanation: truncate(strings.TrimSpace(text), maxRawExplanation),
			Engine:      model.EngineVanguard,
		}
	}

	r := model.ClassificationResult{Category: model.CategoryUnknown, Engine: model.EngineVanguard}
	if label, ok := firstString(fields, labelKeys); ok && label != "" {
		r.Category = canonicalCategory(label)
	}
	if conf, ok := firstNumber(fields, confidenceKeys); ok {
		r.Confidence = model.ClampConfidence(conf)
	}
	if expl, ok := firstString(fields, explanationKeys); ok {
		r.Explanation = expl
	}
	return r
}

func extractObject(text string) (map[string]interface{}, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(s[start:end+1]), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func firstString(fields map[string]interface{}, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s), true
			}
		}
	}
	return "", false
}

func firstNumber(fields map[string]interface{}, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			return v, true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// canonicalCategory maps a label onto a known category ignoring case; other
// labels are kept as given.
func canonicalCategory(label string) model.Category {
	if strings.EqualFold(label, string(model.CategoryUnknown)) {
		return model.CategoryUnknown
	}
	for _, c := range model.TrafficTypes {
		if strings.EqualFold(label, string(c)) {
			return c
		}
	}
	return model.Category(label)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
