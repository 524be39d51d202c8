package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/transit-systems/ticketing-core/internal/event"
)

// Handler processes one decoded envelope. Returning an error leaves the
// message unacked so the broker redelivers it (§4.3 "Failure handling");
// returning nil acks it.
type Handler func(ctx context.Context, env *event.Envelope) error

// Consumer runs one logical consumer group across Partitions queues
// (DefaultPartitions when unset), one goroutine per partition so that processing is sequential
// within a partition and parallel across partitions (spec §5 "projector
// runs one task per partition"). Reconnect/backoff follows the teacher's
// internal/queue/consumer.go StartBookingConsumer loop.
type Consumer struct {
	URL           string
	Partitions    int
	MaxAttempts   int // poison-message dead-letter threshold, §4.3 default 5
	DeadLetterURL string
}

// Run blocks, consuming every partition queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	partitions := c.Partitions
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	errs := make(chan error, partitions)
	for n := 0; n < partitions; n++ {
		go func(partition int) {
			errs <- c.runPartition(ctx, partition, maxAttempts, handle)
		}(n)
	}

	for i := 0; i < partitions; i++ {
		if err := <-errs; err != nil && ctx.Err() == nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *Consumer) runPartition(ctx context.Context, partition, maxAttempts int, handle Handler) error {
	queue := PartitionQueue(partition)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Printf("bus: partition %d: dial failed: %v; retrying in %s", partition, err, backoff)
			if !sleepOrDone(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		if err := c.consumeLoop(ctx, conn, queue, maxAttempts, handle); err != nil {
			log.Printf("bus: partition %d: consume loop ended: %v; reconnecting", partition, err)
			_ = conn.Close()
			if !sleepOrDone(ctx, 2*time.Second) {
				return nil
			}
			continue
		}
		_ = conn.Close()
		return nil
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, maxAttempts int, handle Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareTopology(ch, max(c.Partitions, DefaultPartitions)); err != nil {
		return err
	}
	if err := ch.Qos(20, 0, false); err != nil {
		log.Printf("bus: set QoS failed: %v", err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	attempts := map[string]int{} // messageId -> delivery attempt count, in-memory poison tracking

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			var env event.Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				log.Printf("bus: unmarshal envelope failed: %v; dropping malformed message", err)
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, &env); err != nil {
				attempts[env.EventID]++
				if attempts[env.EventID] >= maxAttempts {
					log.Printf("bus: event %s failed %d times, dead-lettering", env.EventID, attempts[env.EventID])
					c.deadLetter(ctx, d.Body)
					_ = d.Ack(false) // drop from the main topic once parked on the DLQ
					delete(attempts, env.EventID)
					continue
				}
				log.Printf("bus: handler failed for event %s (attempt %d): %v", env.EventID, attempts[env.EventID], err)
				_ = d.Nack(false, true) // requeue: checkpoint was not advanced
				continue
			}
			delete(attempts, env.EventID)
			_ = d.Ack(false)
		}
	}
}

// deadLetter best-effort publishes a poison message's raw body to a
// dead-letter topic (§4.3 "diverted to a dead-letter topic after N
// attempts"). Failure to dead-letter is logged only; the message has
// already been acked off the main topic by the caller.
func (c *Consumer) deadLetter(ctx context.Context, body []byte) {
	if c.DeadLetterURL == "" {
		return
	}
	conn, err := amqp.Dial(c.DeadLetterURL)
	if err != nil {
		log.Printf("bus: dead-letter dial failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()
	ch, err := conn.Channel()
	if err != nil {
		log.Printf("bus: dead-letter channel failed: %v", err)
		return
	}
	defer func() { _ = ch.Close() }()
	const dlq = "ticket-events.dead-letter"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		log.Printf("bus: dead-letter queue declare failed: %v", err)
		return
	}
	_ = ch.PublishWithContext(ctx, "", dlq, false, false, amqp.Publishing{
		ContentType: "application/json", DeliveryMode: amqp.Persistent, Body: body,
	})
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
