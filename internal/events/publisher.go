package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/circuitbreaker"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultTopic   = "order-events"
	publishTimeout = 5 * time.Second
)

// OrderEvent is the JSON payload written for every order change.
type OrderEvent struct {
	EventType     string               `json:"event_type"`
	OrderID       string               `json:"order_id"`
	CustomerID    string               `json:"customer_id"`
	Status        domain.OrderStatus   `json:"order_status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	Progress      int                  `json:"progress"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events to Kafka keyed by order id, so events of one
// order stay on one partition.
type Publisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewPublisher(topic string, logger *slog.Logger, brokers ...string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		writer:  w,
		breaker: circuitbreaker.New[struct{}]("order-events", logger),
		timeout: publishTimeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, eventType string, o *domain.Order) error {
	event := OrderEvent{
		EventType:     eventType,
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		Progress:      o.Status.Progress(),
		OccurredAt:    p.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", eventType, o.ID, err)
	}

	p.logger.DebugContext(ctx, "order event published", "event_type", eventType, "order_id", o.ID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
