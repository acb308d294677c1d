// Package events publishes order events to downstream readers (the reporting aggregator).
// Publishing happens after the order transaction commits; the OrderEvents table stays the source of truth.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"salesquota-backend/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Event is the broker message for one OrderEvents row.
type Event struct {
	EventID     uuid.UUID       `json:"event_id"`
	Type        string          `json:"event_type"`
	OrderID     uuid.UUID       `json:"order_id"`
	TerritoryID uuid.UUID       `json:"territory_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

func FromOrderEvent(e domain.OrderEvent) Event {
	data := json.RawMessage(e.EventData)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return Event{
		EventID:     e.EventID,
		Type:        e.EventType,
		OrderID:     e.OrderID,
		TerritoryID: e.TerritoryID,
		OccurredAt:  e.CreatedAt.UTC(),
		Data:        data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, e Event) error { return nil }

var (
	ErrPublisherClosed = errors.New("publisher closed")
	// ErrBrokerUnavailable is returned without waiting while another caller is dialling or
	// a recent dial failed.
	ErrBrokerUnavailable = errors.New("order event broker unavailable")
)

const (
	// dialTimeout caps the TCP connect plus AMQP handshake when the caller's context has no deadline.
	dialTimeout = 5 * time.Second
	redialAfter = 2 * time.Second
)

// AMQPPublisher publishes events as persistent JSON messages to a durable queue on the default exchange.
// The connection is opened lazily and re-dialled after the broker drops it. Dialling happens outside
// the lock, so one slow broker handshake never queues up other publishers behind it.
type AMQPPublisher struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	closed  bool
	dialing bool
	retryAt time.Time
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{url: url, queue: queue}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.EventID.String(),
			Type:         e.Type,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.mu.Lock()
		if p.ch == ch {
			p.reset()
		}
		p.mu.Unlock()
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// channel returns an open channel, dialling when needed. Only one caller dials at a time;
// the others fail fast with ErrBrokerUnavailable.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing || time.Now().Before(p.retryAt) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.reset()
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.retryAt = time.Now().Add(redialAfter)
		return nil, err
	}
	if p.closed {
		_ = ch.Close()
		_ = conn.Close()
		return nil, ErrPublisherClosed
	}
	log.Info().Str("queue", p.queue).Msg("connected to order event broker")
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("dial broker: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	return conn, ch, nil
}

// reset drops the current connection. Caller holds p.mu.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Connected reports whether the publisher currently holds an open broker connection.
func (p *AMQPPublisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}
