package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakehouse/models"
)

func collect(t *testing.T, bus *Bus, eventType EventType, n int) (<-chan Event, *sync.WaitGroup) {
	t.Helper()
	ch := make(chan Event, n)
	var wg sync.WaitGroup
	wg.Add(n)
	bus.Subscribe(eventType, func(ctx context.Context, event Event) {
		defer wg.Done()
		ch <- event
	})
	return ch, &wg
}

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not delivered within timeout")
	}
}

func TestTransactionalBus_FlushDelivers(t *testing.T) {
	bus := NewBus()
	tx := NewTransactionalBus(bus)
	received, wg := collect(t, bus, EventTypeRoomSettled, 1)

	event := RoomSettledEvent{
		RoomID:      uuid.New(),
		Currency:    models.CurrencyTON,
		Outcome:     models.Outcome{Game: models.GameCoinflip, Coinflip: &models.CoinflipOutcome{Side: models.CoinHeads}},
		Pot:         2_000_000_000,
		TotalPaid:   2_000_000_000,
		PlayerCount: 2,
	}
	tx.Publish(event)
	assert.Equal(t, 1, tx.Pending())

	require.NoError(t, tx.Flush(context.Background()))
	assert.Equal(t, 0, tx.Pending())
	waitFor(t, wg)

	got := <-received
	assert.Equal(t, event, got)
}

func TestTransactionalBus_DiscardDropsEvents(t *testing.T) {
	bus := NewBus()
	tx := NewTransactionalBus(bus)

	delivered := make(chan Event, 1)
	bus.Subscribe(EventTypePlayerJoined, func(ctx context.Context, event Event) {
		delivered <- event
	})

	tx.Publish(PlayerJoinedEvent{RoomID: uuid.New(), UserID: uuid.New()})
	tx.Discard()
	require.NoError(t, tx.Flush(context.Background()))

	select {
	case ev := <-delivered:
		t.Fatalf("discarded event delivered: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransactionalBus_FlushOutlivesCancelledContext(t *testing.T) {
	bus := NewBus()
	tx := NewTransactionalBus(bus)

	errs := make(chan error, 1)
	bus.Subscribe(EventTypeRoomStatusChanged, func(ctx context.Context, event Event) {
		errs <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	tx.Publish(RoomStatusChangedEvent{RoomID: uuid.New(), OldStatus: models.RoomStatusOpen, NewStatus: models.RoomStatusLocked})
	require.NoError(t, tx.Flush(ctx))
	cancel()

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_SubscribeAllAndPanicIsolation(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(EventTypeLedgerEntryPosted, func(ctx context.Context, event Event) {
		panic("boom")
	})

	var mu sync.Mutex
	seen := map[EventType]int{}
	var wg sync.WaitGroup
	wg.Add(len(AllEventTypes))
	bus.SubscribeAll(func(ctx context.Context, event Event) {
		defer wg.Done()
		mu.Lock()
		seen[event.Type()]++
		mu.Unlock()
	})

	ctx := context.Background()
	bus.Emit(ctx, LedgerEntryPostedEvent{EntryID: 1})
	bus.Emit(ctx, PlayerJoinedEvent{})
	bus.Emit(ctx, RoomStatusChangedEvent{})
	bus.Emit(ctx, RoomSettledEvent{})
	bus.Emit(ctx, RoomCreatedEvent{})
	waitFor(t, &wg)

	for _, et := range AllEventTypes {
		assert.Equal(t, 1, seen[et], "event type %s", et)
	}
}
