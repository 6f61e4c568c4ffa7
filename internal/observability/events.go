package observability

import "context"

// EventEnvelope wraps a telemetry event for the message bus.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Publisher is the sink telemetry events go to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

// SetPublisher installs the process-wide event sink.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent forwards an event to the configured sink; without one it
// is a no-op. Publish failures count against the AMQP error metric.
func PublishEvent(ctx context.Context, routingKey string, event any) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, event)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
