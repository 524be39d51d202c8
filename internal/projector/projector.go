// Package projector implements the idempotent read-model projector (Q's
// upstream collaborator, spec §3/§4.3): it consumes ticket events off the
// bus and maintains user_tickets_view, schedule_availability_view and the
// projection checkpoint, then invalidates the query cache.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/transit-systems/ticketing-core/internal/cache"
	"github.com/transit-systems/ticketing-core/internal/event"
	"github.com/transit-systems/ticketing-core/internal/model"
	"github.com/transit-systems/ticketing-core/internal/store"
)

// decimalFromString parses the wire-format price carried in event payloads
// (a string, so JSON round-tripping never loses fixed-point precision to
// float64, per SPEC_FULL.md §3 DOMAIN STACK).
func decimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// ProjectionName identifies this projector's checkpoint/idempotency-ledger
// rows; a service could in principle run more than one named projection
// over the same event stream, so the name is not hardcoded into the store.
const ProjectionName = "user_tickets_view"

// RetainLast bounds the idempotency ledger per projection (§3 DOMAIN STACK).
const RetainLast = 10000

// statusRank orders statuses for the monotonic-dominance rule (§4.3 "never
// regress a booking's status due to a reordered redelivery"). Terminal
// statuses share the top rank since none of them can transition into
// another per §4.6 — a duplicate terminal event is idempotent, not a
// regression, but two different terminal events for one booking should
// never both arrive in a correct system, so ties are resolved by simply
// not overwriting once terminal.
var statusRank = map[model.BookingStatus]int{
	model.StatusPending:   0,
	model.StatusReserved:  1,
	model.StatusConfirmed: 2,
	model.StatusCancelled: 3,
	model.StatusExpired:   3,
	model.StatusRefunded:  3,
}

// ReadModel is the slice of store.ReadRepo the projector needs. Declaring
// it as an interface, rather than taking *store.ReadRepo directly, lets
// tests supply an in-memory fake (the pack has no sqlmock-style library),
// mirroring bus.OutboxSource's role for the relay.
type ReadModel interface {
	HasProcessedEvent(ctx context.Context, projectionName, eventID string) (bool, error)
	AdvanceCheckpoint(ctx context.Context, projectionName, eventID string, at time.Time) error
	MarkEventProcessed(ctx context.Context, projectionName, eventID string, at time.Time, retainLast int) error
	UpsertTicketView(ctx context.Context, t *model.TicketView) error
	SetTicketStatus(ctx context.Context, bookingID string, status model.BookingStatus, updatedAt time.Time) error
	GetTicketStatus(ctx context.Context, bookingID string) (model.BookingStatus, bool, error)
	GetTicketByID(ctx context.Context, bookingID string) (*model.TicketView, error)
	AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error
}

// Projector applies envelopes to the read store and invalidates the
// affected cache entries. Safe to run from multiple partition goroutines
// concurrently (bus.Consumer does this) since each method's writes are
// scoped to one bookingId/scheduleId at a time.
type Projector struct {
	Read  ReadModel
	Cache *cache.Cache
	Now   func() time.Time
}

// New builds a Projector with real clock.
func New(read *store.ReadRepo, c *cache.Cache) *Projector {
	return &Projector{Read: read, Cache: c, Now: func() time.Time { return time.Now().UTC() }}
}

// Handle adapts Apply to bus.Handler's signature.
func (p *Projector) Handle(ctx context.Context, env *event.Envelope) error {
	return p.Apply(ctx, env)
}

// Apply implements §4.3's four-step idempotent-apply protocol: skip if
// already processed, apply with status dominance, advance the checkpoint
// and idempotency ledger, then invalidate cache. Returning an error leaves
// the event unacked so bus.Consumer redelivers it.
func (p *Projector) Apply(ctx context.Context, env *event.Envelope) error {
	done, err := p.Read.HasProcessedEvent(ctx, ProjectionName, env.EventID)
	if err != nil {
		return fmt.Errorf("projector: idempotency check: %w", err)
	}
	if done {
		log.Printf("projector: event %s already processed, skipping", env.EventID)
		return nil
	}

	if err := p.apply(ctx, env); err != nil {
		return err
	}

	now := p.Now()
	if err := p.Read.AdvanceCheckpoint(ctx, ProjectionName, env.EventID, now); err != nil {
		return fmt.Errorf("projector: advance checkpoint: %w", err)
	}
	if err := p.Read.MarkEventProcessed(ctx, ProjectionName, env.EventID, now, RetainLast); err != nil {
		return fmt.Errorf("projector: mark processed: %w", err)
	}

	p.invalidate(ctx, env)
	return nil
}

func (p *Projector) apply(ctx context.Context, env *event.Envelope) error {
	switch env.EventType {
	case event.TypeBooked:
		payload, err := decodePayload[event.BookedPayload](env)
		if err != nil {
			return err
		}
		applied, err := p.upsert(ctx, payload.BookingID, payload.UserID, payload.RouteID, payload.ScheduleID,
			payload.SeatNumber, payload.PassengerName, payload.PassengerEmail, payload.Price, payload.Currency,
			model.StatusPending, env.Timestamp)
		if err != nil || !applied {
			return err
		}
		return p.Read.AdjustBookedSeats(ctx, payload.ScheduleID, 1)

	case event.TypeReserved:
		payload, err := decodePayload[event.ReservedPayload](env)
		if err != nil {
			return err
		}
		applied, err := p.upsert(ctx, payload.BookingID, payload.UserID, payload.RouteID, payload.ScheduleID,
			payload.SeatNumber, payload.PassengerName, payload.PassengerEmail, payload.Price, payload.Currency,
			model.StatusReserved, env.Timestamp)
		if err != nil || !applied {
			return err
		}
		return p.Read.AdjustBookedSeats(ctx, payload.ScheduleID, 1)

	case event.TypeConfirmed:
		payload, err := decodePayload[event.ConfirmedPayload](env)
		if err != nil {
			return err
		}
		_, err = p.setStatus(ctx, payload.BookingID, model.StatusConfirmed, env.Timestamp)
		return err

	case event.TypeCancelled:
		payload, err := decodePayload[event.CancelledPayload](env)
		if err != nil {
			return err
		}
		applied, err := p.setStatus(ctx, payload.BookingID, model.StatusCancelled, env.Timestamp)
		if err != nil || !applied {
			return err
		}
		return p.releaseBookedSeat(ctx, payload.BookingID)

	case event.TypeExpired:
		payload, err := decodePayload[event.ExpiredPayload](env)
		if err != nil {
			return err
		}
		applied, err := p.setStatus(ctx, payload.BookingID, model.StatusExpired, env.Timestamp)
		if err != nil || !applied {
			return err
		}
		return p.releaseBookedSeat(ctx, payload.BookingID)

	case event.TypeRefunded:
		payload, err := decodePayload[event.RefundedPayload](env)
		if err != nil {
			return err
		}
		_, err = p.setStatus(ctx, payload.BookingID, model.StatusRefunded, env.Timestamp)
		return err

	default:
		log.Printf("projector: unrecognized event type %q, ignoring", env.EventType)
		return nil
	}
}

// upsert handles the BOOKED/RESERVED branches, which are the only ones
// that may be the first event the projector ever sees for a booking.
// applied reports whether the write actually happened, so callers with a
// follow-up side effect (the booked-seat counter) can skip it when the
// dominance rule vetoed the write, mirroring setStatus below.
func (p *Projector) upsert(ctx context.Context, bookingID, userID, routeID, scheduleID string,
	seatNumber *string, passengerName, passengerEmail, price, currency string,
	status model.BookingStatus, at time.Time) (applied bool, err error) {

	dominant, err := p.isDominant(ctx, bookingID, status)
	if err != nil {
		return false, err
	}
	if !dominant {
		return false, nil
	}

	dec, err := decimalFromString(price)
	if err != nil {
		return false, fmt.Errorf("projector: parse price: %w", err)
	}
	t := &model.TicketView{
		BookingID: bookingID, UserID: userID, RouteID: routeID, ScheduleID: scheduleID,
		SeatNumber: seatNumber, PassengerName: passengerName, PassengerEmail: passengerEmail,
		Price: dec, Currency: currency, Status: status, CreatedAt: at, UpdatedAt: at,
	}
	if err := p.Read.UpsertTicketView(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// setStatus handles every branch that only ever transitions an existing
// row (CONFIRMED/CANCELLED/EXPIRED/REFUNDED). applied reports whether the
// write actually happened, so callers with a follow-up side effect (seat
// release) can skip it when the dominance rule vetoed the write.
func (p *Projector) setStatus(ctx context.Context, bookingID string, status model.BookingStatus, at time.Time) (applied bool, err error) {
	dominant, err := p.isDominant(ctx, bookingID, status)
	if err != nil {
		return false, err
	}
	if !dominant {
		return false, nil
	}
	if err := p.Read.SetTicketStatus(ctx, bookingID, status, at); err != nil {
		return false, err
	}
	return true, nil
}

// isDominant enforces §4.3's monotonic-status rule: the write is skipped
// (not an error — the checkpoint and idempotency ledger still advance)
// when the read model's current status already ranks at or above the
// incoming one, which is what a reordered redelivery of an older event
// looks like.
func (p *Projector) isDominant(ctx context.Context, bookingID string, incoming model.BookingStatus) (bool, error) {
	current, found, err := p.Read.GetTicketStatus(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("projector: read current status: %w", err)
	}
	if !found {
		return true, nil
	}
	return statusRank[incoming] > statusRank[current], nil
}

// releaseBookedSeat decrements the booked-seat counter for a cancelled or
// expired booking, whether or not it held a concrete seat number, the
// mirror image of the unconditional increment on BOOKED/RESERVED. The
// CancelledPayload/ExpiredPayload carry no scheduleId, so it reads the
// row it just updated back out to find the schedule, and drops that
// schedule's cached availability once the counter has moved.
func (p *Projector) releaseBookedSeat(ctx context.Context, bookingID string) error {
	t, err := p.Read.GetTicketByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("projector: reload ticket for seat release: %w", err)
	}
	if err := p.Read.AdjustBookedSeats(ctx, t.ScheduleID, -1); err != nil {
		return err
	}
	p.Cache.Del(ctx, cache.ScheduleAvailabilityKey(t.ScheduleID))
	return nil
}

// invalidate drops every cache entry the applied event could have made
// stale (§4.3 step 4): the ticket's own detail key, every page of the
// owning user's ticket list, and, when the payload carries a scheduleId
// (BOOKED/RESERVED), the schedule's availability counter. CANCELLED and
// EXPIRED drop that key in releaseBookedSeat instead.
func (p *Projector) invalidate(ctx context.Context, env *event.Envelope) {
	bookingID, userID, scheduleID := bookingAndUserID(env)
	if bookingID != "" {
		p.Cache.Del(ctx, cache.TicketKey(bookingID))
	}
	if userID != "" {
		p.Cache.DelPrefix(ctx, cache.UserTicketsPrefix(userID))
	}
	if scheduleID != "" {
		p.Cache.Del(ctx, cache.ScheduleAvailabilityKey(scheduleID))
	}
}

// bookingAndUserID extracts the ids every payload carries without a full
// type switch, by round-tripping through a minimal anonymous struct.
func bookingAndUserID(env *event.Envelope) (bookingID, userID, scheduleID string) {
	var ids struct {
		BookingID  string `json:"bookingId"`
		UserID     string `json:"userId"`
		ScheduleID string `json:"scheduleId"`
	}
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return "", "", ""
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return "", "", ""
	}
	return ids.BookingID, ids.UserID, ids.ScheduleID
}

// decodePayload re-encodes env.Payload (an `any` populated by json.Unmarshal
// of the envelope, so a map[string]any at this point) into the typed
// payload struct the caller expects.
func decodePayload[T any](env *event.Envelope) (T, error) {
	var out T
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return out, fmt.Errorf("projector: re-encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("projector: decode %T: %w", out, err)
	}
	return out, nil
}
