package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func runEvent(stage Stage) Event {
	return Event{RunID: "run-1", TS: time.Now(), Stage: stage}
}

func TestHubDeliversEventsToSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(runEvent(StageRunStart))
	hub.Emit(Event{
		RunID:          "run-1",
		TS:             time.Now(),
		Stage:          StageRecordDone,
		ID:             harvest.Identifier("org/alpha"),
		Classification: harvest.ClassComplete,
		StatusClass:    Status2xx,
	})
	hub.Emit(runEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))

	events := sink.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, StageRunStart, events[0].Stage)
	assert.Equal(t, harvest.Identifier("org/alpha"), events[1].ID)
	assert.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageRunStart}) // missing run id and timestamp
	hub.Emit(Event{RunID: "run-1", TS: time.Now(), Stage: Stage("BOGUS")})

	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.snapshot())
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(runEvent(StageRunStart))
	assert.Empty(t, sink.snapshot())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(runEvent(StageRunStart))
	assert.NoError(t, hub.Close(context.Background()))
}
