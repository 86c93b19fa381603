package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"park-ticketing/internal/models"

	"github.com/segmentio/kafka-go"
)

const EventTicketIssued = "ticket.issued"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer messageWriter
}

// TicketIssuedEvent is the message body published for every stored ticket.
type TicketIssuedEvent struct {
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurredAt"`
	Ticket     models.Ticket `json:"ticket"`
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &Producer{Writer: writer}
}

// PublishTicketIssued keys the message by visit day so events for one day
// stay ordered on a single partition. The QR image is left out of the payload.
func (p *Producer) PublishTicketIssued(ctx context.Context, ticket models.Ticket) error {
	ticket.QRPayload = ""
	msgBytes, err := json.Marshal(TicketIssuedEvent{
		Type:       EventTicketIssued,
		OccurredAt: ticket.IssuedAt,
		Ticket:     ticket,
	})
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(ticket.VisitDate),
			Value: msgBytes,
			Headers: []kafka.Header{
				{Key: "event", Value: []byte(EventTicketIssued)},
				{Key: "ticket_id", Value: []byte(strconv.FormatInt(ticket.ID, 10))},
			},
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
