package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is written in the same transaction as the state change it
// announces and drained by the outbox publisher.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
}

func NewOutboxEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) OutboxEvent {
	return OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     uuid.New().String(),
		Status:        "NEW",
	}
}
