package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transit-systems/ticketing-core/internal/event"
	"github.com/transit-systems/ticketing-core/internal/model"
	"github.com/transit-systems/ticketing-core/internal/store"
)

// Core is the command core (C): it validates commands, mutates the
// booking aggregate, and writes the event store and outbox under one
// transaction (§4.1.5). Clock and NewID are overridable for tests the
// way the teacher's utils package keeps token generation behind a seam
// (crypto/rand wrapped in a function) rather than calling it inline.
type Core struct {
	Write *store.WriteRepo
	Clock func() time.Time
	NewID func() string
	// Nudge, if set, hints the outbox relay to poll immediately after a
	// successful commit. Best-effort latency optimization (§4.1.5); never
	// required for correctness and safe to leave nil in tests.
	Nudge func()
}

// NewCore builds a Core with real clock/uuid generation.
func NewCore(write *store.WriteRepo) *Core {
	return &Core{
		Write: write,
		Clock: func() time.Time { return time.Now().UTC() },
		NewID: func() string { return uuid.NewString() },
	}
}

func (c *Core) now() time.Time { return c.Clock() }

func (c *Core) nudge() {
	if c.Nudge != nil {
		c.Nudge()
	}
}

// BookInput is the Book command's parameters (§4.1.1).
type BookInput struct {
	UserID         string
	RouteID        string
	ScheduleID     string
	SeatNumber     *string
	PassengerName  string
	PassengerEmail string
	PassengerPhone *string
	Price          decimal.Decimal
	Currency       string
	CorrelationID  string
}

// ReserveInput is the Reserve command's parameters (§4.1.2).
type ReserveInput struct {
	BookInput
	ReservationDurationMinutes *int
}

// ConfirmInput is the Confirm command's parameters (§4.1.3).
type ConfirmInput struct {
	BookingID     string
	PaymentID     string
	CorrelationID string
}

// CancelInput is the Cancel command's parameters (§4.1.4). UserID is
// optional (enforced-when-present, §9 open question). CallerCapability
// resolves that open question: a userId-less cancel from a peer service
// must present "cancel:any" (SPEC_FULL.md §4.8).
type CancelInput struct {
	BookingID        string
	UserID           *string
	Reason           *string
	CallerCapability string
	CorrelationID    string
}

// normalizeBookInput defaults an empty currency to USD and rounds the
// price to two fractional digits (§4.1.1) before validating the result.
func normalizeBookInput(in *BookInput) error {
	if in.Currency == "" {
		in.Currency = "USD"
	}
	in.Price = in.Price.Round(2)

	if in.UserID == "" || in.RouteID == "" || in.ScheduleID == "" || in.PassengerName == "" || in.PassengerEmail == "" {
		return BadRequest("missing required field")
	}
	if in.Price.Sign() <= 0 {
		return BadRequest("price must be positive")
	}
	if len(in.Currency) != 3 {
		return BadRequest("currency must be a three-letter code")
	}
	return nil
}

// Book executes the Book command (§4.1.1).
func (c *Core) Book(ctx context.Context, in BookInput) (*model.Booking, error) {
	if err := normalizeBookInput(&in); err != nil {
		return nil, err
	}
	return c.createBooking(ctx, in, model.StatusPending, nil)
}

// Reserve executes the Reserve command (§4.1.2).
func (c *Core) Reserve(ctx context.Context, in ReserveInput) (*model.Booking, error) {
	if err := normalizeBookInput(&in.BookInput); err != nil {
		return nil, err
	}
	duration := 15
	if in.ReservationDurationMinutes != nil {
		duration = *in.ReservationDurationMinutes
	}
	if duration < 5 || duration > 60 {
		return nil, BadRequest("reservationDurationMinutes must be between 5 and 60")
	}

	expiresAt := c.now().Add(time.Duration(duration) * time.Minute)
	return c.createBooking(ctx, in.BookInput, model.StatusReserved, &expiresAt)
}

// createBooking implements the shared Book/Reserve transactional protocol
// (§4.1.5): lock-and-check the seat if one was requested, insert the new
// aggregate at version 1, append the event, append the outbox row, commit.
func (c *Core) createBooking(ctx context.Context, in BookInput, status model.BookingStatus, expiresAt *time.Time) (*model.Booking, error) {
	tx, err := c.Write.BeginTx(ctx)
	if err != nil {
		return nil, Unavailable("could not start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := c.now()
	b := &model.Booking{
		ID:             c.NewID(),
		UserID:         in.UserID,
		RouteID:        in.RouteID,
		ScheduleID:     in.ScheduleID,
		SeatNumber:     in.SeatNumber,
		PassengerName:  in.PassengerName,
		PassengerEmail: in.PassengerEmail,
		PassengerPhone: in.PassengerPhone,
		Price:          in.Price,
		Currency:       in.Currency,
		Status:         status,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if status == model.StatusReserved {
		b.ReservedAt = &now
	}

	if in.SeatNumber != nil {
		if err := c.acquireSeat(ctx, tx, in.ScheduleID, *in.SeatNumber, b.ID, status, expiresAt); err != nil {
			return nil, err
		}
	}

	if err := c.Write.InsertBookingTx(ctx, tx, b); err != nil {
		return nil, Internal("failed to create booking: " + err.Error())
	}

	eventType := event.TypeBooked
	var payload any = event.BookedPayload{
		BookingID: b.ID, UserID: b.UserID, RouteID: b.RouteID, ScheduleID: b.ScheduleID,
		SeatNumber: b.SeatNumber, PassengerName: b.PassengerName, PassengerEmail: b.PassengerEmail,
		Price: b.Price.StringFixed(2), Currency: b.Currency, Status: string(b.Status),
	}
	if status == model.StatusReserved {
		eventType = event.TypeReserved
		payload = event.ReservedPayload{
			BookingID: b.ID, UserID: b.UserID, RouteID: b.RouteID, ScheduleID: b.ScheduleID,
			SeatNumber: b.SeatNumber, PassengerName: b.PassengerName, PassengerEmail: b.PassengerEmail,
			Price: b.Price.StringFixed(2), Currency: b.Currency, Status: string(b.Status),
			ExpiresAt: *expiresAt,
		}
	}

	if err := c.appendEventAndOutbox(ctx, tx, b, eventType, payload, in.CorrelationID, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, Unavailable("failed to commit transaction")
	}
	committed = true
	c.nudge()
	return b, nil
}

// acquireSeat implements §4.1.5 step 2 plus the seat acquisition rule
// from §4.1.1/§4.1.2: AVAILABLE, or LOCKED with a stale lock, are both
// acquirable; anything else is InsufficientSeats.
func (c *Core) acquireSeat(ctx context.Context, tx *sql.Tx, scheduleID, seatNumber, bookingID string, status model.BookingStatus, expiresAt *time.Time) error {
	if err := c.Write.EnsureSeatRowTx(ctx, tx, scheduleID, seatNumber); err != nil {
		return Internal("failed to prepare seat row: " + err.Error())
	}
	seat, err := c.Write.LockSeatTx(ctx, tx, scheduleID, seatNumber)
	if err != nil {
		return Internal("failed to lock seat: " + err.Error())
	}

	acquirable := seat.Status == model.SeatAvailable ||
		(seat.Status == model.SeatLocked && seat.LockedUntil != nil && seat.LockedUntil.Before(c.now()))
	if !acquirable {
		return InsufficientSeats()
	}

	newStatus := model.SeatBooked
	var lockedUntil *time.Time
	if status == model.StatusReserved {
		newStatus = model.SeatLocked
		lockedUntil = expiresAt
	}
	id := bookingID
	if err := c.Write.SetSeatStatusTx(ctx, tx, scheduleID, seatNumber, newStatus, &id, lockedUntil); err != nil {
		return Internal("failed to update seat: " + err.Error())
	}
	return nil
}

// Confirm executes the Confirm command (§4.1.3).
func (c *Core) Confirm(ctx context.Context, in ConfirmInput) (*model.Booking, error) {
	if in.BookingID == "" || in.PaymentID == "" {
		return nil, BadRequest("bookingId and paymentId are required")
	}

	tx, err := c.Write.BeginTx(ctx)
	if err != nil {
		return nil, Unavailable("could not start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := c.Write.LockBookingTx(ctx, tx, in.BookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("booking not found")
		}
		return nil, Internal("failed to load booking: " + err.Error())
	}

	if b.Status != model.StatusReserved && b.Status != model.StatusPending {
		return nil, InvalidState(string(b.Status), "")
	}
	now := c.now()
	if b.Status == model.StatusReserved && b.ExpiresAt != nil && b.ExpiresAt.Before(now) {
		return nil, InvalidState(string(b.Status), "reservation expired")
	}

	previousVersion := b.Version
	paymentID := in.PaymentID
	b.Status = model.StatusConfirmed
	b.PaymentID = &paymentID
	b.ConfirmedAt = &now
	b.ExpiresAt = nil
	b.UpdatedAt = now
	b.Version++

	if b.SeatNumber != nil {
		// Locked purely for serialization with a concurrent Cancel/Expire on
		// the same seat; the status is set unconditionally below regardless
		// of what it currently is.
		if _, err := c.Write.LockSeatTx(ctx, tx, b.ScheduleID, *b.SeatNumber); err != nil {
			return nil, Internal("failed to lock seat: " + err.Error())
		}
		if err := c.Write.SetSeatStatusTx(ctx, tx, b.ScheduleID, *b.SeatNumber, model.SeatBooked, &b.ID, nil); err != nil {
			return nil, Internal("failed to update seat: " + err.Error())
		}
	}

	if err := c.Write.UpdateBookingTx(ctx, tx, b, previousVersion); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ConflictVersion()
		}
		return nil, Internal("failed to update booking: " + err.Error())
	}

	payload := event.ConfirmedPayload{BookingID: b.ID, UserID: b.UserID, PaymentID: in.PaymentID, ConfirmedAt: now}
	if err := c.appendEventAndOutbox(ctx, tx, b, event.TypeConfirmed, payload, in.CorrelationID, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, Unavailable("failed to commit transaction")
	}
	committed = true
	c.nudge()
	return b, nil
}

// serviceCancelCapability is the capability a peer service must present
// to cancel a booking without supplying a userId (SPEC_FULL.md §4.8,
// resolving spec §9's open question).
const serviceCancelCapability = "cancel:any"

// Cancel executes the Cancel command (§4.1.4).
func (c *Core) Cancel(ctx context.Context, in CancelInput) (*model.Booking, error) {
	if in.BookingID == "" {
		return nil, BadRequest("bookingId is required")
	}
	if in.UserID == nil && in.CallerCapability != serviceCancelCapability {
		return nil, Forbidden("a service-to-service cancel requires the cancel:any capability")
	}

	tx, err := c.Write.BeginTx(ctx)
	if err != nil {
		return nil, Unavailable("could not start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := c.Write.LockBookingTx(ctx, tx, in.BookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("booking not found")
		}
		return nil, Internal("failed to load booking: " + err.Error())
	}

	if in.UserID != nil && *in.UserID != b.UserID {
		return nil, Forbidden("caller does not own this booking")
	}

	if err := requireTransition(b.Status, model.StatusCancelled, ""); err != nil {
		return nil, err
	}

	now := c.now()
	previousVersion := b.Version
	previousStatus := b.Status
	b.Status = model.StatusCancelled
	b.CancelledAt = &now
	b.ExpiresAt = nil
	b.UpdatedAt = now
	b.Version++

	if b.SeatNumber != nil {
		if _, err := c.Write.LockSeatTx(ctx, tx, b.ScheduleID, *b.SeatNumber); err != nil {
			return nil, Internal("failed to lock seat: " + err.Error())
		}
		if err := c.Write.SetSeatStatusTx(ctx, tx, b.ScheduleID, *b.SeatNumber, model.SeatAvailable, nil, nil); err != nil {
			return nil, Internal("failed to update seat: " + err.Error())
		}
	}

	if err := c.Write.UpdateBookingTx(ctx, tx, b, previousVersion); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ConflictVersion()
		}
		return nil, Internal("failed to update booking: " + err.Error())
	}

	refund := refundAmount(previousStatus, b.Price)
	var refundStr *string
	if refund != nil {
		s := refund.StringFixed(2)
		refundStr = &s
	}
	payload := event.CancelledPayload{BookingID: b.ID, UserID: b.UserID, Reason: in.Reason, CancelledAt: now, RefundAmount: refundStr}
	if err := c.appendEventAndOutbox(ctx, tx, b, event.TypeCancelled, payload, in.CorrelationID, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, Unavailable("failed to commit transaction")
	}
	committed = true
	c.nudge()
	return b, nil
}

// refundAmount implements the placeholder refund policy (§4.1.4, §9):
// full price iff the booking was CONFIRMED before cancellation, else nil.
func refundAmount(previousStatus model.BookingStatus, price decimal.Decimal) *decimal.Decimal {
	if previousStatus != model.StatusConfirmed {
		return nil
	}
	amount := price
	return &amount
}

// Expire executes the sweeper's Cancel-style transition to EXPIRED
// (§4.5). It is intentionally symmetrical with Cancel's locking and
// event-writing shape but has its own legality check (RESERVED only) and
// never takes a CallerCapability — the sweeper is trusted infrastructure,
// not an external caller.
func (c *Core) Expire(ctx context.Context, bookingID string) (*model.Booking, error) {
	tx, err := c.Write.BeginTx(ctx)
	if err != nil {
		return nil, Unavailable("could not start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := c.Write.LockBookingTx(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("booking not found")
		}
		return nil, Internal("failed to load booking: " + err.Error())
	}

	// A concurrent Confirm may have already won the lock and moved the
	// booking out of RESERVED; this is reported as InvalidState, which the
	// sweeper treats as nothing to do rather than a failure.
	if b.Status != model.StatusReserved {
		return nil, InvalidState(string(b.Status), "")
	}
	now := c.now()
	if b.ExpiresAt == nil || !b.ExpiresAt.Before(now) {
		return nil, InvalidState(string(b.Status), "reservation not yet expired")
	}

	previousVersion := b.Version
	b.Status = model.StatusExpired
	b.ExpiresAt = nil
	b.UpdatedAt = now
	b.Version++

	if b.SeatNumber != nil {
		if _, err := c.Write.LockSeatTx(ctx, tx, b.ScheduleID, *b.SeatNumber); err != nil {
			return nil, Internal("failed to lock seat: " + err.Error())
		}
		if err := c.Write.SetSeatStatusTx(ctx, tx, b.ScheduleID, *b.SeatNumber, model.SeatAvailable, nil, nil); err != nil {
			return nil, Internal("failed to update seat: " + err.Error())
		}
	}

	if err := c.Write.UpdateBookingTx(ctx, tx, b, previousVersion); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ConflictVersion()
		}
		return nil, Internal("failed to update booking: " + err.Error())
	}

	payload := event.ExpiredPayload{BookingID: b.ID, UserID: b.UserID, ExpiredAt: now}
	if err := c.appendEventAndOutbox(ctx, tx, b, event.TypeExpired, payload, "", ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, Unavailable("failed to commit transaction")
	}
	committed = true
	c.nudge()
	return b, nil
}

// appendEventAndOutbox implements §4.1.5 steps 5-6's event insert plus the
// outbox row that replaces a direct same-transaction bus publish
// (SPEC_FULL.md §3 DOMAIN STACK, §9). Both rows carry the same eventId so
// a reconciler can correlate them.
func (c *Core) appendEventAndOutbox(ctx context.Context, tx *sql.Tx, b *model.Booking, eventType string, payload any, correlationID, causationID string) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Internal("failed to encode event payload: " + err.Error())
	}

	eventID := c.NewID()
	now := c.now()
	ev := &model.BookingEvent{
		EventID:       eventID,
		EventType:     eventType,
		AggregateID:   b.ID,
		AggregateType: event.AggregateTypeBooking,
		Payload:       payloadJSON,
		Version:       b.Version,
		CreatedAt:     now,
	}
	if correlationID != "" {
		ev.CorrelationID = &correlationID
	}
	if causationID != "" {
		ev.CausationID = &causationID
	}
	if err := c.Write.InsertEventTx(ctx, tx, ev); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return ConflictVersion()
		}
		return Internal("failed to append event: " + err.Error())
	}

	env := event.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateID:   b.ID,
		AggregateType: event.AggregateTypeBooking,
		Timestamp:     now,
		Version:       b.Version,
		CorrelationID: correlationID,
		CausationID:   causationID,
		Payload:       payload,
	}
	envelopeJSON, err := json.Marshal(env)
	if err != nil {
		return Internal("failed to encode event envelope: " + err.Error())
	}
	row := store.OutboxRow{EventID: eventID, BookingID: b.ID, EventType: eventType, Payload: envelopeJSON, CreatedAt: now}
	if correlationID != "" {
		row.CorrelationID = &correlationID
	}
	if err := c.Write.InsertOutboxTx(ctx, tx, row); err != nil {
		return Internal("failed to append outbox row: " + err.Error())
	}
	return nil
}
