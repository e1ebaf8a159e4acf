package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

func TestNoop_Publish(t *testing.T) {
	assert.NoError(t, Noop{}.Publish(context.Background(), domain.OrderEvent{Type: domain.EventOrderPlaced}))
}

func TestRabbitPublisher_RoutesByEventType(t *testing.T) {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL not set, skipping rabbitmq integration test")
	}
	conn, ch, err := SetupConn(url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Skip("RabbitMQ not available, skipping integration test")
	}
	pub := NewRabbitPublisher(conn, ch)
	defer pub.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, string(domain.EventOrderCancelled), ExchangeName, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ev := domain.OrderEvent{
		ID:         uuid.NewString(),
		Type:       domain.EventOrderCancelled,
		OrderID:    "o1",
		UserID:     "u1",
		Status:     domain.OrderStatusCancelled,
		TotalPrice: decimal.NewFromInt(30),
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, pub.Publish(context.Background(), ev))

	select {
	case d := <-deliveries:
		var got domain.OrderEvent
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, ev.OrderID, got.OrderID)
		assert.Equal(t, string(domain.EventOrderCancelled), d.RoutingKey)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}
