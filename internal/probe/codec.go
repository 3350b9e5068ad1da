package probe

import (
	"SentinelQoS/internal/model"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FlowMessage is a flow summary carried over the bus.
type FlowMessage struct {
	FlowID     string
	Features   model.FlowFeatures
	ObservedAt time.Time
}

// EncodeFlow serializes a flow message as a protobuf Struct.
func EncodeFlow(m FlowMessage) ([]byte, error) {
	fields := map[string]interface{}{
		"flow_id":          m.FlowID,
		"source_ip":        m.Features.SourceIP,
		"dest_ip":          m.Features.DestIP,
		"dest_port":        float64(m.Features.DestPort),
		"packet_count":     float64(m.Features.PacketCount),
		"avg_pkt_len":      m.Features.AvgPktLen,
		"duration_seconds": m.Features.DurationSeconds,
		"bytes_total":      float64(m.Features.BytesTotal),
		"observed_at":      m.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.Features.Protocol != "" {
		fields["protocol"] = m.Features.Protocol
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build flow message: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeFlow parses a message produced by EncodeFlow. The features are not validated.
func DecodeFlow(data []byte) (FlowMessage, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return FlowMessage{}, fmt.Errorf("failed to unmarshal flow message: %w", err)
	}
	f := st.GetFields()

	m := FlowMessage{
		FlowID: f["flow_id"].GetStringValue(),
		Features: model.FlowFeatures{
			SourceIP:        f["source_ip"].GetStringValue(),
			DestIP:          f["dest_ip"].GetStringValue(),
			DestPort:        int(f["dest_port"].GetNumberValue()),
			PacketCount:     int64(f["packet_count"].GetNumberValue()),
			AvgPktLen:       f["avg_pkt_len"].GetNumberValue(),
			DurationSeconds: f["duration_seconds"].GetNumberValue(),
			BytesTotal:      int64(f["bytes_total"].GetNumberValue()),
			Protocol:        f["protocol"].GetStringValue(),
		},
	}
	if ts := f["observed_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return FlowMessage{}, fmt.Errorf("invalid observed_at %q: %w", ts, err)
		}
		m.ObservedAt = t
	}
	return m, nil
}

// EncodeMarking serializes a marking event as a protobuf Struct.
func EncodeMarking(e model.MarkingEvent) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"flow_id":        e.FlowID,
		"source_ip":      e.SourceIP,
		"dest_ip":        e.DestIP,
		"dest_port":      float64(e.DestPort),
		"app_type":       string(e.Category),
		"dscp_class":     e.Marking.DSCPClass,
		"dscp_value":     e.Marking.DSCPValue,
		"tc_class":       e.Marking.TCClass,
		"priority_class": string(e.PriorityClass),
		"timestamp":      e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build marking message: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeMarking parses a message produced by EncodeMarking.
func DecodeMarking(data []byte) (model.MarkingEvent, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return model.MarkingEvent{}, fmt.Errorf("failed to unmarshal marking message: %w", err)
	}
	f := st.GetFields()
	e := model.MarkingEvent{
		FlowID:   f["flow_id"].GetStringValue(),
		SourceIP: f["source_ip"].GetStringValue(),
		DestIP:   f["dest_ip"].GetStringValue(),
		DestPort: int(f["dest_port"].GetNumberValue()),
		Category: model.Category(f["app_type"].GetStringValue()),
		Marking: model.QoSMarking{
			DSCPClass: f["dscp_class"].GetStringValue(),
			DSCPValue: f["dscp_value"].GetStringValue(),
			TCClass:   f["tc_class"].GetStringValue(),
		},
		PriorityClass: model.PriorityClass(f["priority_class"].GetStringValue()),
	}
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return model.MarkingEvent{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		e.Timestamp = t
	}
	return e, nil
}
