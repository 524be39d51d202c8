package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/transit-systems/ticketing-core/internal/model"
)

// ErrNotFound is returned by the lock/lookup helpers below when no row
// matches. It is sql.ErrNoRows itself, the way the teacher's repository layer
// lets sql.ErrNoRows propagate directly; core translates it to its own
// NotFound error kind.
var ErrNotFound = sql.ErrNoRows

// ErrVersionConflict is returned by InsertEventTx when the
// (aggregateId, version) unique index rejects a duplicate insert — the
// write fence described in spec §4.1.5.
var ErrVersionConflict = errors.New("store: version conflict")

// WriteRepo is the transactional repository over bookings, booking_events,
// seat_availability and booking_outbox. Every mutating method takes an
// explicit *sql.Tx, mirroring the teacher's *Tx-suffixed method
// convention in internal/repository/reservation_repository.go; read-only
// helpers that don't need transactional isolation take *sql.DB instead.
type WriteRepo struct {
	db *sql.DB
}

// NewWriteRepo returns a WriteRepo bound to the write-store pool.
func NewWriteRepo(db *sql.DB) *WriteRepo { return &WriteRepo{db: db} }

// DB exposes the underlying pool so callers can start transactions.
func (r *WriteRepo) DB() *sql.DB { return r.db }

// BeginTx starts a transaction. Callers must commit or roll back.
func (r *WriteRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// LockBookingTx selects and locks the booking row for update (§4.1.5 step
// 1). Returns ErrNotFound when no booking with this id exists.
func (r *WriteRepo) LockBookingTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error) {
	const q = `SELECT id, user_id, route_id, schedule_id, seat_number, passenger_name,
		passenger_email, passenger_phone, price, currency, status, payment_id,
		reserved_at, confirmed_at, cancelled_at, expires_at, created_at, updated_at, version
		FROM bookings WHERE id = ? FOR UPDATE`
	return scanBooking(tx.QueryRowContext(ctx, q, id))
}

// GetBooking reads a booking without locking, for callers outside the
// command pipeline (e.g. diagnostics, replay tooling).
func (r *WriteRepo) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	const q = `SELECT id, user_id, route_id, schedule_id, seat_number, passenger_name,
		passenger_email, passenger_phone, price, currency, status, payment_id,
		reserved_at, confirmed_at, cancelled_at, expires_at, created_at, updated_at, version
		FROM bookings WHERE id = ?`
	return scanBooking(r.db.QueryRowContext(ctx, q, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var seatNumber, phone, paymentID sql.NullString
	var reservedAt, confirmedAt, cancelledAt, expiresAt sql.NullTime
	err := row.Scan(&b.ID, &b.UserID, &b.RouteID, &b.ScheduleID, &seatNumber, &b.PassengerName,
		&b.PassengerEmail, &phone, &b.Price, &b.Currency, &b.Status, &paymentID,
		&reservedAt, &confirmedAt, &cancelledAt, &expiresAt, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	if seatNumber.Valid {
		b.SeatNumber = &seatNumber.String
	}
	if phone.Valid {
		b.PassengerPhone = &phone.String
	}
	if paymentID.Valid {
		b.PaymentID = &paymentID.String
	}
	if reservedAt.Valid {
		b.ReservedAt = &reservedAt.Time
	}
	if confirmedAt.Valid {
		b.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	if expiresAt.Valid {
		b.ExpiresAt = &expiresAt.Time
	}
	return &b, nil
}

// InsertBookingTx inserts a brand-new aggregate at version 1 (§4.1.1,
// §4.1.2). b.CreatedAt/UpdatedAt/Version must already be populated by the
// caller (core assigns them so the same values land in the event payload).
func (r *WriteRepo) InsertBookingTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (id, user_id, route_id, schedule_id, seat_number,
		passenger_name, passenger_email, passenger_phone, price, currency, status,
		payment_id, reserved_at, confirmed_at, cancelled_at, expires_at, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, b.ID, b.UserID, b.RouteID, b.ScheduleID, b.SeatNumber,
		b.PassengerName, b.PassengerEmail, b.PassengerPhone, b.Price, b.Currency, b.Status,
		b.PaymentID, b.ReservedAt, b.ConfirmedAt, b.CancelledAt, b.ExpiresAt, b.CreatedAt, b.UpdatedAt, b.Version)
	return err
}

// UpdateBookingTx persists a mutation of an existing aggregate (§4.1.5 step
// 3). The WHERE clause's version check is the optimistic half of the write
// fence: InsertEventTx's unique index is the hard guarantee, this check is
// a cheap early rejection that avoids writing an event for a stale update.
func (r *WriteRepo) UpdateBookingTx(ctx context.Context, tx *sql.Tx, b *model.Booking, previousVersion int64) error {
	const q = `UPDATE bookings SET status = ?, payment_id = ?, reserved_at = ?, confirmed_at = ?,
		cancelled_at = ?, expires_at = ?, updated_at = ?, version = ? WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q, b.Status, b.PaymentID, b.ReservedAt, b.ConfirmedAt,
		b.CancelledAt, b.ExpiresAt, b.UpdatedAt, b.Version, b.ID, previousVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// EnsureSeatRowTx makes sure a seat_availability row exists for
// (scheduleId, seatNumber) so it can be locked with FOR UPDATE; a seat
// that has never been touched is implicitly AVAILABLE.
func (r *WriteRepo) EnsureSeatRowTx(ctx context.Context, tx *sql.Tx, scheduleID, seatNumber string) error {
	const q = `INSERT IGNORE INTO seat_availability (schedule_id, seat_number, status, booking_id, locked_until)
		VALUES (?, ?, 'AVAILABLE', NULL, NULL)`
	_, err := tx.ExecContext(ctx, q, scheduleID, seatNumber)
	return err
}

// LockSeatTx selects and locks the seat_availability row for update
// (§4.1.5 step 2). Callers must call EnsureSeatRowTx first.
func (r *WriteRepo) LockSeatTx(ctx context.Context, tx *sql.Tx, scheduleID, seatNumber string) (*model.SeatAvailability, error) {
	const q = `SELECT schedule_id, seat_number, status, booking_id, locked_until
		FROM seat_availability WHERE schedule_id = ? AND seat_number = ? FOR UPDATE`
	var s model.SeatAvailability
	var bookingID sql.NullString
	var lockedUntil sql.NullTime
	err := tx.QueryRowContext(ctx, q, scheduleID, seatNumber).Scan(
		&s.ScheduleID, &s.SeatNumber, &s.Status, &bookingID, &lockedUntil)
	if err != nil {
		return nil, err
	}
	if bookingID.Valid {
		s.BookingID = &bookingID.String
	}
	if lockedUntil.Valid {
		s.LockedUntil = &lockedUntil.Time
	}
	return &s, nil
}

// SetSeatStatusTx transitions the locked seat row (§4.1.5 step 4).
func (r *WriteRepo) SetSeatStatusTx(ctx context.Context, tx *sql.Tx, scheduleID, seatNumber string,
	status model.SeatAvailabilityStatus, bookingID *string, lockedUntil *time.Time) error {
	const q = `UPDATE seat_availability SET status = ?, booking_id = ?, locked_until = ?
		WHERE schedule_id = ? AND seat_number = ?`
	_, err := tx.ExecContext(ctx, q, status, bookingID, lockedUntil, scheduleID, seatNumber)
	return err
}

// InsertEventTx appends the event-store row carrying the post-mutation
// version (§4.1.5 step 5). A duplicate (aggregateId, version) is the write
// fence and surfaces as ErrVersionConflict.
func (r *WriteRepo) InsertEventTx(ctx context.Context, tx *sql.Tx, ev *model.BookingEvent) error {
	const q = `INSERT INTO booking_events (event_id, event_type, aggregate_id, aggregate_type,
		payload, correlation_id, causation_id, version, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, ev.EventID, ev.EventType, ev.AggregateID, ev.AggregateType,
		ev.Payload, ev.CorrelationID, ev.CausationID, ev.Version, ev.CreatedAt)
	if err != nil {
		var my *mysql.MySQLError
		if errors.As(err, &my) && my.Number == 1062 { // ER_DUP_ENTRY
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

// OutboxRow is one row of booking_outbox, the transactional-outbox table
// described in SPEC_FULL.md §3 DOMAIN STACK. Writing it inside the same
// transaction as the booking/event mutation removes the dual-write race
// the direct-publish approach in spec §4.1.5 documents as a known risk.
type OutboxRow struct {
	EventID       string
	BookingID     string
	EventType     string
	Payload       []byte
	CorrelationID *string
	CreatedAt     time.Time
}

// InsertOutboxTx appends one outbox row in the same transaction as the
// booking mutation and event insert.
func (r *WriteRepo) InsertOutboxTx(ctx context.Context, tx *sql.Tx, row OutboxRow) error {
	const q = `INSERT INTO booking_outbox (event_id, booking_id, event_type, payload, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, row.EventID, row.BookingID, row.EventType, row.Payload, row.CorrelationID, row.CreatedAt)
	return err
}

// FetchUnrelayedOutbox returns up to limit rows that have not yet been
// relayed, ordered by id so publish preserves insertion order within a
// partition. Used by the outbox relay (SPEC_FULL.md §4.7).
func (r *WriteRepo) FetchUnrelayedOutbox(ctx context.Context, limit int) ([]RelayRow, error) {
	const q = `SELECT id, event_id, booking_id, event_type, payload, correlation_id
		FROM booking_outbox WHERE relayed_at IS NULL ORDER BY id ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RelayRow
	for rows.Next() {
		var rr RelayRow
		var corr sql.NullString
		if err := rows.Scan(&rr.ID, &rr.EventID, &rr.BookingID, &rr.EventType, &rr.Payload, &corr); err != nil {
			return nil, err
		}
		if corr.Valid {
			rr.CorrelationID = corr.String
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// RelayRow is an outbox row as read back by the relay.
type RelayRow struct {
	ID            int64
	EventID       string
	BookingID     string
	EventType     string
	Payload       []byte
	CorrelationID string
}

// MarkRelayed stamps relayed_at on a successfully published outbox row.
func (r *WriteRepo) MarkRelayed(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE booking_outbox SET relayed_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, at, id)
	return err
}

// FindExpiredReservationIDs returns booking ids in RESERVED status whose
// expiresAt has passed, for the sweeper (§4.5) to process one at a time.
func (r *WriteRepo) FindExpiredReservationIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `SELECT id FROM bookings WHERE status = 'RESERVED' AND expires_at < ? LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountEventsForAggregate supports testable property P1 (event count
// equals current version).
func (r *WriteRepo) CountEventsForAggregate(ctx context.Context, aggregateID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM booking_events WHERE aggregate_id = ?`
	var n int64
	err := r.db.QueryRowContext(ctx, q, aggregateID).Scan(&n)
	return n, err
}

// EventsForAggregate returns the full event history in version order, for
// replay (P5, §8 scenario 6).
func (r *WriteRepo) EventsForAggregate(ctx context.Context, aggregateID string) ([]model.BookingEvent, error) {
	const q = `SELECT event_id, event_type, aggregate_id, aggregate_type, payload,
		correlation_id, causation_id, version, created_at
		FROM booking_events WHERE aggregate_id = ? ORDER BY version ASC`
	rows, err := r.db.QueryContext(ctx, q, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BookingEvent
	for rows.Next() {
		var e model.BookingEvent
		var corr, caus sql.NullString
		if err := rows.Scan(&e.EventID, &e.EventType, &e.AggregateID, &e.AggregateType, &e.Payload,
			&corr, &caus, &e.Version, &e.CreatedAt); err != nil {
			return nil, err
		}
		if corr.Valid {
			e.CorrelationID = &corr.String
		}
		if caus.Valid {
			e.CausationID = &caus.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
