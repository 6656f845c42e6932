package infrastructure

import (
	"fmt"

	"stakehouse/events"
)

// SubjectPrefix roots every subject the engine publishes
const SubjectPrefix = "stakehouse"

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeRoomCreated:
		return SubjectPrefix + ".rooms.created"
	case events.EventTypePlayerJoined:
		return SubjectPrefix + ".rooms.player_joined"
	case events.EventTypeRoomStatusChanged:
		return SubjectPrefix + ".rooms.status_changed"
	case events.EventTypeRoomSettled:
		return SubjectPrefix + ".rooms.settled"
	case events.EventTypeLedgerEntryPosted:
		return SubjectPrefix + ".ledger.entry_posted"
	default:
		return fmt.Sprintf("%s.unknown.%s", SubjectPrefix, event.Type())
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case SubjectPrefix + ".rooms.created":
		return events.EventTypeRoomCreated
	case SubjectPrefix + ".rooms.player_joined":
		return events.EventTypePlayerJoined
	case SubjectPrefix + ".rooms.status_changed":
		return events.EventTypeRoomStatusChanged
	case SubjectPrefix + ".rooms.settled":
		return events.EventTypeRoomSettled
	case SubjectPrefix + ".ledger.entry_posted":
		return events.EventTypeLedgerEntryPosted
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns the wildcard subjects of the engine stream
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		SubjectPrefix + ".rooms.*",
		SubjectPrefix + ".ledger.*",
	}
}
