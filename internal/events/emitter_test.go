package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, Event) error {
	f.calls++
	return errors.New("redis down")
}

func TestRecipientsDropsActorAndDuplicates(t *testing.T) {
	actor, a, b := uuid.New(), uuid.New(), uuid.New()
	got := Recipients(actor, a, actor, b, a, uuid.Nil)
	assert.Equal(t, []uuid.UUID{a, b}, got)
}

func TestEmitSkipsEventsWithoutRecipients(t *testing.T) {
	bus := NewMemoryBus()
	e := NewEmitter(bus, zap.NewNop())

	e.Emit(context.Background(),
		Event{Type: EventChatOpened, RelatedEntityID: uuid.New()},
		Event{Type: EventDisputeOpened, RecipientUserIDs: []uuid.UUID{uuid.New()}, RelatedEntityID: uuid.New()},
	)

	require.Len(t, bus.Published(), 1)
	assert.Equal(t, EventDisputeOpened, bus.Published()[0].Type)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &failingPublisher{}
	e := NewEmitter(pub, zap.NewNop())

	e.Emit(context.Background(),
		Event{Type: EventMediationCompleted, RecipientUserIDs: []uuid.UUID{uuid.New()}},
		Event{Type: EventMediationCompleted, RecipientUserIDs: []uuid.UUID{uuid.New()}},
	)
	assert.Equal(t, 2, pub.calls)
}

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	var got []Event
	require.NoError(t, bus.Subscribe(context.Background(), Channel, func(e Event) { got = append(got, e) }))

	require.NoError(t, bus.Publish(context.Background(), Channel, Event{Type: EventEscrowFunded}))
	require.NoError(t, bus.Publish(context.Background(), "other", Event{Type: EventChatOpened}))

	require.Len(t, got, 1)
	assert.Equal(t, EventEscrowFunded, got[0].Type)
	assert.Len(t, bus.OfType(EventChatOpened), 1)
}
