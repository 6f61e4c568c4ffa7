// Package telemetry emits audit events for client lifecycle milestones:
// process start and stop, room subscriptions, exhausted reconnects.
package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	deviceID    string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	DeviceID      string       `json:"device_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	RoomID string `json:"room_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment, deviceID string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		deviceID:    deviceID,
	}
}

// Emit publishes one audit event; a nil emitter or publisher is a no-op.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, roomID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: level=%s room_id=%s user_id=%v text=%q", level, roomID, userID, text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		DeviceID:      e.deviceID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Text:   text,
			RoomID: roomID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
