package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/transit-systems/ticketing-core/internal/event"
)

// Publisher holds a long-lived AMQP connection/channel pair and declares
// the exchange plus every partition queue each time it (re)connects, instead of the
// teacher's internal/service/queue_publisher.go dial-per-call approach —
// dialing per publish is fine for an occasional confirmation event but
// this publisher backs the outbox relay, which publishes continuously, so
// it amortizes the connection the way internal/queue/consumer.go already
// does on the consume side.
type Publisher struct {
	url        string
	partitions int

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher that connects lazily on first Publish.
func NewPublisher(url string, partitions int) *Publisher {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &Publisher{url: url, partitions: partitions}
}

// Publish sends env on Exchange with the partition routing key derived
// from env.AggregateID (= bookingId, per §4.2 "message key is bookingId").
// Headers carry eventType, correlationId and timestamp per §4.2.
func (p *Publisher) Publish(ctx context.Context, env *event.Envelope) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	headers := amqp.Table{
		"eventType":     env.EventType,
		"correlationId": env.CorrelationID,
		"timestamp":     env.Timestamp.Format(time.RFC3339),
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.Timestamp,
		Headers:      headers,
		Body:         body,
	}
	routingKey := RoutingKey(env.AggregateID, p.partitions)
	return ch.PublishWithContext(ctx, Exchange, routingKey, false, false, pub)
}

// channel returns the live channel, (re)dialing and redeclaring topology
// if the connection has dropped since the last call.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel: %w", err)
	}
	if err := declareTopology(ch, p.partitions); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// declareTopology declares the exchange and every partition queue/binding
// idempotently. Both Publisher and Consumer call this so either side can
// come up first.
func declareTopology(ch *amqp.Channel, partitions int) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	for n := 0; n < partitions; n++ {
		q := PartitionQueue(n)
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", q, err)
		}
	}
	return nil
}

// Close closes the channel and the connection (§9 "Global mutable state":
// graceful shutdown closes the producer before the pools).
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			log.Printf("bus: channel close: %v", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
