package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/telemetry"
)

func TestNewPublisherWithoutURLFallsBackToNoop(t *testing.T) {
	p := NewPublisher("", "chat_events")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
}

func TestNoopPublisherAcceptsEvents(t *testing.T) {
	p := NewPublisher("", "chat_events")

	err := p.Publish(context.Background(), "audit_log.chat_client", telemetry.AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		Service:       "chat-client",
	})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "other", map[string]string{"k": "v"}))
	require.NoError(t, p.Close())
}
