package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestProgressEventBusDeliversToPlanSubscribers(t *testing.T) {
	bus := NewProgressEventBus(nil, "", nil, zerolog.Nop())
	planOne, cancelOne := bus.Subscribe(1)
	planTwo, cancelTwo := bus.Subscribe(2)
	defer cancelTwo()

	bus.Publish(context.Background(), ProgressEvent{Type: EventDayUnlocked, PlanID: 1, DayIndex: 2})

	got := collect(t, planOne, 1, time.Second)
	require.Len(t, got, 1)
	require.Equal(t, EventDayUnlocked, got[0].Type)
	require.NotEmpty(t, got[0].ID)
	require.False(t, got[0].OccurredAt.IsZero())
	require.Empty(t, collect(t, planTwo, 1, 20*time.Millisecond))

	cancelOne()
	cancelOne()
	_, open := <-planOne
	require.False(t, open)
}

func TestProgressEventBusRunsHandlersAndSurvivesPanics(t *testing.T) {
	bus := NewProgressEventBus(nil, "", nil, zerolog.Nop())
	var handled int32
	bus.Handle(func(context.Context, ProgressEvent) { panic("boom") })
	bus.Handle(func(_ context.Context, event ProgressEvent) {
		if event.Type == EventActivityCompleted {
			atomic.AddInt32(&handled, 1)
		}
	})

	bus.Publish(context.Background(),
		ProgressEvent{Type: EventActivityCompleted, PlanID: 3},
		ProgressEvent{Type: EventActivityCompleted, PlanID: 3},
		ProgressEvent{Type: EventAssessmentScored, AssessmentID: 9},
	)
	bus.Wait()
	require.EqualValues(t, 2, atomic.LoadInt32(&handled))
}

func TestProgressEventBusRelaysAcrossNodesThroughRedis(t *testing.T) {
	mr, clientA := newTestRedis(t)
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = clientB.Close() })

	nodeA := NewProgressEventBus(clientA, "readalong", nil, zerolog.Nop())
	nodeB := NewProgressEventBus(clientB, "readalong", nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	channel := "readalong:progress"
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	var remoteHandled int32
	nodeB.Handle(func(context.Context, ProgressEvent) { atomic.AddInt32(&remoteHandled, 1) })

	local, cancelLocal := nodeA.Subscribe(5)
	defer cancelLocal()
	remote, cancelRemote := nodeB.Subscribe(5)
	defer cancelRemote()

	nodeA.Publish(context.Background(), ProgressEvent{Type: EventDayCompleted, PlanID: 5, DayIndex: 1})

	fromRemote := collect(t, remote, 1, 2*time.Second)
	require.Len(t, fromRemote, 1)
	require.Equal(t, EventDayCompleted, fromRemote[0].Type)

	fromLocal := collect(t, local, 2, 200*time.Millisecond)
	require.Len(t, fromLocal, 1)
	require.Equal(t, fromLocal[0].ID, fromRemote[0].ID)

	nodeB.Wait()
	require.Zero(t, atomic.LoadInt32(&remoteHandled))
}

func TestProgressEventBusDropsDuplicateAndOwnMessages(t *testing.T) {
	bus := NewProgressEventBus(nil, "readalong", nil, zerolog.Nop())
	concrete := bus.(*progressEventBus)
	events, cancel := bus.Subscribe(4)
	defer cancel()

	payload, err := json.Marshal(progressEnvelope{
		Source: "another-node",
		Event:  ProgressEvent{ID: "evt-1", Type: EventDayUnlocked, PlanID: 4, DayIndex: 3},
	})
	require.NoError(t, err)
	concrete.handleRemote(payload)
	concrete.handleRemote(payload)

	own, err := json.Marshal(progressEnvelope{
		Source: concrete.nodeID,
		Event:  ProgressEvent{ID: "evt-2", Type: EventDayUnlocked, PlanID: 4},
	})
	require.NoError(t, err)
	concrete.handleRemote(own)
	concrete.handleRemote([]byte("not json"))

	got := collect(t, events, 3, 50*time.Millisecond)
	require.Len(t, got, 1)
	require.Equal(t, "evt-1", got[0].ID)
}

func TestProgressEventBusForgetsOldestSeenEvents(t *testing.T) {
	bus := NewProgressEventBus(nil, "", nil, zerolog.Nop()).(*progressEventBus)
	require.True(t, bus.markSeen("first"))
	require.False(t, bus.markSeen("first"))
	for i := 0; i < seenEventsCapacity; i++ {
		bus.markSeen(time.Duration(i).String())
	}
	require.True(t, bus.markSeen("first"))
	require.True(t, bus.markSeen(""))
}
