package enforcement

import (
	"SentinelQoS/internal/model"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMarker struct {
	mu     sync.Mutex
	events []model.MarkingEvent
	err    error
}

func (m *recordingMarker) Name() string { return "recording" }

func (m *recordingMarker) Apply(ctx context.Context, e model.MarkingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *recordingMarker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type activityRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (a *activityRecorder) Logf(format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, fmt.Sprintf(format, args...))
}

func event(id string) model.MarkingEvent {
	return model.MarkingEvent{
		FlowID:   id,
		SourceIP: "192.168.1.110",
		DestIP:   "10.0.0.8",
		DestPort: 443,
		Category: model.CategoryVideo,
		Marking:  model.QoSMarking{DSCPClass: "AF41", DSCPValue: "0x22", TCClass: "1:20"},
	}
}

func TestDispatcher_DeliversToAllMarkers(t *testing.T) {
	a, b := &recordingMarker{}, &recordingMarker{}
	d := NewDispatcher([]model.Marker{a, b}, 16, 2, time.Second)
	d.Start()

	for i := 0; i < 10; i++ {
		require.True(t, d.Submit(event(fmt.Sprintf("flow_%d", i))))
	}
	d.Stop()

	assert.Equal(t, 10, a.count())
	assert.Equal(t, 10, b.count())
	assert.Equal(t, Stats{Submitted: 10, Applied: 20}, d.Stats())
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	m := &recordingMarker{}
	d := NewDispatcher([]model.Marker{m}, 2, 1, time.Second)

	assert.True(t, d.Submit(event("a")))
	assert.True(t, d.Submit(event("b")))
	assert.False(t, d.Submit(event("c")))

	d.Start()
	d.Stop()
	assert.Equal(t, 2, m.count())
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(nil, 4, 1, time.Second)
	d.Start()
	d.Stop()
	d.Stop()
	assert.False(t, d.Submit(event("late")))
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_CountsFailures(t *testing.T) {
	m := &recordingMarker{err: errors.New("tc not available")}
	d := NewDispatcher([]model.Marker{m}, 4, 1, time.Second)
	d.Start()
	d.Submit(event("x"))
	d.Stop()
	assert.Equal(t, int64(1), d.Stats().Failed)
	assert.Equal(t, int64(0), d.Stats().Applied)
}

func TestLogMarker_WritesActivity(t *testing.T) {
	activity := &activityRecorder{}
	m := NewLogMarker(activity)
	require.NoError(t, m.Apply(context.Background(), event("flow_7")))
	require.Len(t, activity.lines, 1)
	assert.Equal(t, "[SIM] Mark 192.168.1.110->10.0.0.8:443 as DSCP=AF41 tc=1:20", activity.lines[0])
}
