package bus

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/transit-systems/ticketing-core/internal/event"
	"github.com/transit-systems/ticketing-core/internal/store"
)

// OutboxSource is the subset of store.WriteRepo the relay needs; declared
// as an interface here so relay tests can supply an in-memory fake
// (teacher test-tooling choice is documented in DESIGN.md — no sqlmock
// dependency exists anywhere in the retrieval pack).
type OutboxSource interface {
	FetchUnrelayedOutbox(ctx context.Context, limit int) ([]store.RelayRow, error)
	MarkRelayed(ctx context.Context, id int64, at time.Time) error
}

// Relay is the transactional-outbox background task described in
// SPEC_FULL.md §4.7: polls booking_outbox for unrelayed rows and
// publishes them, never touching the command core's own transaction.
// Grounded on the teacher's internal/queue/consumer.go reconnect loop in
// spirit (retry-forever-on-error) but driven by a plain ticker since it
// is polling a table, not consuming a queue.
type Relay struct {
	Source   OutboxSource
	Pub      *Publisher
	Interval time.Duration
	BatchSize int
	// Wake lets the command core hint the relay to poll immediately after
	// a commit instead of waiting out the full interval (best-effort
	// latency optimization, not required for correctness per §4.1.5).
	Wake chan struct{}
	Now  func() time.Time
}

// NewRelay builds a Relay with sane defaults.
func NewRelay(source OutboxSource, pub *Publisher) *Relay {
	return &Relay{
		Source:    source,
		Pub:       pub,
		Interval:  500 * time.Millisecond,
		BatchSize: 100,
		Wake:      make(chan struct{}, 1),
		Now:       time.Now,
	}
}

// Nudge signals the relay to poll immediately. Safe to call from any
// goroutine; non-blocking.
func (r *Relay) Nudge() {
	select {
	case r.Wake <- struct{}{}:
	default:
	}
}

// Run blocks, relaying outbox rows until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.Wake:
		}
	}
}

// drain publishes every currently-pending outbox row, looping until a
// fetch returns fewer than BatchSize rows.
func (r *Relay) drain(ctx context.Context) {
	for {
		rows, err := r.Source.FetchUnrelayedOutbox(ctx, r.BatchSize)
		if err != nil {
			log.Printf("bus: relay fetch failed: %v", err)
			return
		}
		if len(rows) == 0 {
			return
		}
		for _, row := range rows {
			// The outbox payload column holds the full marshalled envelope
			// (written by the command core in the same transaction as the
			// booking/event mutation), so relaying is a pure unmarshal +
			// republish with no reassembly.
			var env event.Envelope
			if err := json.Unmarshal(row.Payload, &env); err != nil {
				log.Printf("bus: relay: outbox row %d has unparseable payload: %v; skipping", row.ID, err)
				continue
			}
			if err := r.Pub.Publish(ctx, &env); err != nil {
				log.Printf("bus: relay: publish failed for outbox row %d: %v", row.ID, err)
				return // stop draining; this row and any after it retry next tick
			}
			if err := r.Source.MarkRelayed(ctx, row.ID, r.Now()); err != nil {
				log.Printf("bus: relay: mark relayed failed for outbox row %d: %v", row.ID, err)
				return
			}
		}
		if len(rows) < r.BatchSize {
			return
		}
	}
}
