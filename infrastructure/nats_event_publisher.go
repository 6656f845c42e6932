package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stakehouse/events"
)

// StreamName is the JetStream stream holding engine events
const StreamName = "stakehouse_events"

// EventEnvelope wraps every published event
type EventEnvelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	Payload       json.RawMessage `json:"payload"`
}

// MessagePublisher sends raw bytes to a subject
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSEventPublisher forwards committed domain events to JetStream
type NATSEventPublisher struct {
	client        MessagePublisher
	subjectMapper *EventSubjectMapper
	source        string
	now           func() time.Time
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(client MessagePublisher, subjectMapper *EventSubjectMapper, source string) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		source:        source,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Envelope builds the subject and serialized envelope for event
func (p *NATSEventPublisher) Envelope(event events.Event) (string, []byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     p.now(),
		SourceService: p.source,
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	return p.subjectMapper.MapEventToSubject(event), data, nil
}

// Publish sends event to its subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject, data, err := p.Envelope(event)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"subject":   subject,
	}).Debug("Published event to NATS")
	return nil
}

// Attach subscribes the publisher to every event type on bus. Delivery is
// best effort; failures are logged.
func (p *NATSEventPublisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		if err := p.Publish(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Warn("Failed to forward event")
		}
	})
}
