package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypePlayerJoined      EventType = "player_joined"
	EventTypeRoomStatusChanged EventType = "room_status_changed"
	EventTypeRoomSettled       EventType = "room_settled"
	EventTypeLedgerEntryPosted EventType = "ledger_entry_posted"
	EventTypeRoomCreated       EventType = "room_created"
)

// AllEventTypes lists every type the engine emits
var AllEventTypes = []EventType{
	EventTypePlayerJoined,
	EventTypeRoomStatusChanged,
	EventTypeRoomSettled,
	EventTypeLedgerEntryPosted,
	EventTypeRoomCreated,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// RoomCreatedEvent is emitted for every new room, including lobby replacements
type RoomCreatedEvent struct {
	RoomID      uuid.UUID        `json:"roomId"`
	Kind        models.RoomKind  `json:"kind"`
	Currency    models.Currency  `json:"currency"`
	Game        models.GameKind  `json:"game"`
	StakeAmount int64            `json:"stakeAmount"`
	StartMode   models.StartMode `json:"startMode"`
	Commitment  string           `json:"serverSeedHash"`
	Replaces    *uuid.UUID       `json:"replaces,omitempty"`
}

func (e RoomCreatedEvent) Type() EventType {
	return EventTypeRoomCreated
}

// PlayerJoinedEvent represents a stake locked into a room
type PlayerJoinedEvent struct {
	RoomID       uuid.UUID       `json:"roomId"`
	UserID       uuid.UUID       `json:"userId"`
	Currency     models.Currency `json:"currency"`
	Game         models.GameKind `json:"game"`
	StakeAmount  int64           `json:"stakeAmount"`
	PlayersCount int             `json:"playersCount"`
	MaxPlayers   int             `json:"maxPlayers"`
}

func (e PlayerJoinedEvent) Type() EventType {
	return EventTypePlayerJoined
}

// RoomStatusChangedEvent represents a room state machine transition
type RoomStatusChangedEvent struct {
	RoomID    uuid.UUID         `json:"roomId"`
	Game      models.GameKind   `json:"game"`
	OldStatus models.RoomStatus `json:"oldStatus"`
	NewStatus models.RoomStatus `json:"newStatus"`
}

func (e RoomStatusChangedEvent) Type() EventType {
	return EventTypeRoomStatusChanged
}

// RoomSettledEvent carries a settlement and its total payout
type RoomSettledEvent struct {
	RoomID      uuid.UUID       `json:"roomId"`
	Currency    models.Currency `json:"currency"`
	Outcome     models.Outcome  `json:"outcome"`
	Reveal      models.Reveal   `json:"reveal"`
	Pot         int64           `json:"pot"`
	TotalPaid   int64           `json:"totalPaid"`
	PlayerCount int             `json:"playerCount"`
}

func (e RoomSettledEvent) Type() EventType {
	return EventTypeRoomSettled
}

// LedgerEntryPostedEvent represents an appended ledger entry
type LedgerEntryPostedEvent struct {
	EntryID   int64            `json:"entryId"`
	UserID    uuid.UUID        `json:"userId"`
	Currency  models.Currency  `json:"currency"`
	EntryType models.EntryType `json:"type"`
	Amount    int64            `json:"amount"`
	RefType   string           `json:"refType"`
	RefID     string           `json:"refId"`
}

func (e LedgerEntryPostedEvent) Type() EventType {
	return EventTypeLedgerEntryPosted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus dispatches events to subscribers asynchronously
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds handler for every type in AllEventTypes
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range AllEventTypes {
		b.Subscribe(t, handler)
	}
}

// Emit hands event to every registered handler on its own goroutine.
// A panicking handler is logged and does not affect the others.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until the
// transaction commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the number of events waiting for Flush
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// Flush emits pending events. Called after a successful commit.
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing transactional bus")

	// handlers outlive the request that committed the transaction
	eventCtx := context.WithoutCancel(ctx)

	if b.real != nil {
		for _, ev := range b.pending {
			b.real.Emit(eventCtx, ev)
		}
	}
	b.pending = nil
	return nil
}

// Discard drops pending events. Called after a rollback.
func (b *TransactionalBus) Discard() {
	if len(b.pending) > 0 {
		log.WithField("discardedCount", len(b.pending)).Debug("Discarding pending events after rollback")
	}
	b.pending = nil
}
