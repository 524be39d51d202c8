// Package sweeper implements the expiry sweeper (spec §4.5): a periodic
// task that finds RESERVED bookings past their expiresAt and drives them
// through the command core's Expire transition one at a time.
package sweeper

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/transit-systems/ticketing-core/internal/core"
	"github.com/transit-systems/ticketing-core/internal/store"
)

// DefaultInterval matches spec §4.5's default sweep interval.
const DefaultInterval = 30 * time.Second

// DefaultBatchSize bounds how many expired ids one sweep pass claims, so a
// large backlog after an outage doesn't hold row locks for an unbounded
// stretch of one sweep tick.
const DefaultBatchSize = 100

// Sweeper periodically finds and expires stale reservations.
type Sweeper struct {
	Write    *store.WriteRepo
	Core     *core.Core
	Interval time.Duration
	Batch    int
	Now      func() time.Time
}

// New builds a Sweeper with spec-default interval and batch size.
func New(write *store.WriteRepo, c *core.Core) *Sweeper {
	return &Sweeper{
		Write:    write,
		Core:     c,
		Interval: DefaultInterval,
		Batch:    DefaultBatchSize,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, sweeping on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweepOnce expires every currently-overdue reservation it can find, up
// to Batch ids, logging (not failing the whole pass on) any single
// booking's error — a race with a concurrent Confirm/Cancel on the same
// booking is expected and handled by core.Expire returning InvalidState,
// which is not worth logging at more than debug granularity.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	batch := s.Batch
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	ids, err := s.Write.FindExpiredReservationIDs(ctx, s.Now(), batch)
	if err != nil {
		log.Printf("sweeper: find expired reservations: %v", err)
		return
	}
	for _, id := range ids {
		if _, err := s.Core.Expire(ctx, id); err != nil {
			var coreErr *core.Error
			if errors.As(err, &coreErr) && coreErr.Kind == core.KindInvalidState {
				continue // lost the race to a concurrent Confirm/Cancel; not an error
			}
			log.Printf("sweeper: expire booking %s: %v", id, err)
		}
	}
}
