package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"park-ticketing/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishTicketIssued(t *testing.T) {
	writer := &recordingWriter{}
	producer := &Producer{Writer: writer}

	ticket := models.Ticket{
		ID:            12,
		VisitDate:     "2026-10-20",
		Quantity:      1,
		Visitors:      []models.Visitor{{Age: 30, PassType: models.PassVIP}},
		PaymentMethod: models.PaymentOnline,
		UserID:        2,
		CheckoutURL:   "https://checkout.test/pay?ticket=12",
		QRPayload:     "data:image/png;base64,AAAA",
		IssuedAt:      time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, producer.PublishTicketIssued(context.Background(), ticket))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "2026-10-20", string(msg.Key))
	assert.Contains(t, msg.Headers, kafka.Header{Key: "ticket_id", Value: []byte("12")})

	var event TicketIssuedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, EventTicketIssued, event.Type)
	assert.Equal(t, int64(12), event.Ticket.ID)
	assert.Empty(t, event.Ticket.QRPayload)
	assert.Equal(t, ticket.IssuedAt, event.OccurredAt)
}

func TestPublishTicketIssuedPropagatesWriterError(t *testing.T) {
	producer := &Producer{Writer: &recordingWriter{err: errors.New("leader not available")}}
	err := producer.PublishTicketIssued(context.Background(), models.Ticket{ID: 1})
	assert.Error(t, err)
}
