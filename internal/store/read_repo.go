package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/transit-systems/ticketing-core/internal/model"
)

// ReadRepo is the denormalized read-store repository: user_tickets_view,
// schedule_availability_view and projection_checkpoints. It is bound to a
// second *sql.DB pool (spec §6's "two database endpoints") — the same
// Open() helper is used with the read-store DSN.
type ReadRepo struct {
	db *sql.DB
}

// NewReadRepo returns a ReadRepo bound to the read-store pool.
func NewReadRepo(db *sql.DB) *ReadRepo { return &ReadRepo{db: db} }

// DB exposes the underlying pool for readiness probes and graceful
// shutdown; no repository method needs it directly.
func (r *ReadRepo) DB() *sql.DB { return r.db }

// UpsertTicketView implements the projector's BOOKED/RESERVED handling
// (§4.3 step 2): insert a fresh row, or on conflict by id, only advance
// status when it does not regress a booking already in a terminal-ish
// state the monotonic rule protects (status dominance is applied by the
// caller before calling this — see internal/projector).
func (r *ReadRepo) UpsertTicketView(ctx context.Context, t *model.TicketView) error {
	const q = `INSERT INTO user_tickets_view (booking_id, user_id, route_id, schedule_id, seat_number,
		passenger_name, passenger_email, price, currency, status, route_name, departure_time,
		arrival_time, origin_stop, destination_stop, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = VALUES(updated_at)`
	_, err := r.db.ExecContext(ctx, q, t.BookingID, t.UserID, t.RouteID, t.ScheduleID, t.SeatNumber,
		t.PassengerName, t.PassengerEmail, t.Price, t.Currency, t.Status, t.RouteName, t.DepartureTime,
		t.ArrivalTime, t.OriginStop, t.DestinationStop, t.CreatedAt, t.UpdatedAt)
	return err
}

// SetTicketStatus implements the CONFIRMED/CANCELLED/EXPIRED projector
// branches (§4.3 step 2): a plain status + updated_at write by id.
func (r *ReadRepo) SetTicketStatus(ctx context.Context, bookingID string, status model.BookingStatus, updatedAt time.Time) error {
	const q = `UPDATE user_tickets_view SET status = ?, updated_at = ? WHERE booking_id = ?`
	_, err := r.db.ExecContext(ctx, q, status, updatedAt, bookingID)
	return err
}

// GetTicketStatus returns the current status of a row, used by the
// projector to enforce the monotonic-status idempotency rule.
func (r *ReadRepo) GetTicketStatus(ctx context.Context, bookingID string) (model.BookingStatus, bool, error) {
	const q = `SELECT status FROM user_tickets_view WHERE booking_id = ?`
	var s model.BookingStatus
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(&s)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// GetTicketByID backs query core's Get ticket details (§4.4.2).
func (r *ReadRepo) GetTicketByID(ctx context.Context, bookingID string) (*model.TicketView, error) {
	const q = `SELECT booking_id, user_id, route_id, schedule_id, seat_number, passenger_name,
		passenger_email, price, currency, status, route_name, departure_time, arrival_time,
		origin_stop, destination_stop, created_at, updated_at
		FROM user_tickets_view WHERE booking_id = ?`
	return scanTicketView(r.db.QueryRowContext(ctx, q, bookingID))
}

func scanTicketView(row rowScanner) (*model.TicketView, error) {
	var t model.TicketView
	var seatNumber, routeName, originStop, destinationStop sql.NullString
	var departureTime, arrivalTime sql.NullTime
	err := row.Scan(&t.BookingID, &t.UserID, &t.RouteID, &t.ScheduleID, &seatNumber, &t.PassengerName,
		&t.PassengerEmail, &t.Price, &t.Currency, &t.Status, &routeName, &departureTime, &arrivalTime,
		&originStop, &destinationStop, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if seatNumber.Valid {
		t.SeatNumber = &seatNumber.String
	}
	if routeName.Valid {
		t.RouteName = &routeName.String
	}
	if originStop.Valid {
		t.OriginStop = &originStop.String
	}
	if destinationStop.Valid {
		t.DestinationStop = &destinationStop.String
	}
	if departureTime.Valid {
		t.DepartureTime = &departureTime.Time
	}
	if arrivalTime.Valid {
		t.ArrivalTime = &arrivalTime.Time
	}
	return &t, nil
}

// ListTicketsByUser backs query core's List user tickets (§4.4.1),
// ordered by createdAt descending with offset/limit pagination and an
// optional status filter. Returns the page plus the total matching count.
func (r *ReadRepo) ListTicketsByUser(ctx context.Context, userID string, status *model.BookingStatus, page, limit int) ([]model.TicketView, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		where += ` AND status = ?`
		args = append(args, *status)
	}

	var total int
	countQ := `SELECT COUNT(*) FROM user_tickets_view ` + where
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT booking_id, user_id, route_id, schedule_id, seat_number, passenger_name,
		passenger_email, price, currency, status, route_name, departure_time, arrival_time,
		origin_stop, destination_stop, created_at, updated_at
		FROM user_tickets_view ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	offset := (page - 1) * limit
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.TicketView
	for rows.Next() {
		t, err := scanTicketView(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

// AdjustBookedSeats applies a ScheduleAvailability.BookedSeats delta,
// clamped at zero, creating the row with the compatibility-quirk fallback
// total (50, per spec §9 open question) when it doesn't exist yet.
func (r *ReadRepo) AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error {
	const defaultTotalSeatsFallback = 50 // spec §9: no authoritative source for totalSeats in the core
	const upsert = `INSERT INTO schedule_availability_view (schedule_id, total_seats, booked_seats)
		VALUES (?, ?, GREATEST(0, ?))
		ON DUPLICATE KEY UPDATE booked_seats = GREATEST(0, booked_seats + ?)`
	bookedSeats := delta
	if bookedSeats < 0 {
		bookedSeats = 0
	}
	_, err := r.db.ExecContext(ctx, upsert, scheduleID, defaultTotalSeatsFallback, bookedSeats, delta)
	return err
}

// GetScheduleAvailability reads the per-schedule counter.
func (r *ReadRepo) GetScheduleAvailability(ctx context.Context, scheduleID string) (*model.ScheduleAvailability, error) {
	const q = `SELECT schedule_id, total_seats, booked_seats FROM schedule_availability_view WHERE schedule_id = ?`
	var s model.ScheduleAvailability
	err := r.db.QueryRowContext(ctx, q, scheduleID).Scan(&s.ScheduleID, &s.TotalSeats, &s.BookedSeats)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetCheckpoint returns the last processed event id for a named
// projection, or ("", false, nil) if the projection has never run.
func (r *ReadRepo) GetCheckpoint(ctx context.Context, projectionName string) (string, bool, error) {
	const q = `SELECT last_processed_event_id FROM projection_checkpoints WHERE projection_name = ?`
	var id string
	err := r.db.QueryRowContext(ctx, q, projectionName).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// AdvanceCheckpoint upserts the projector checkpoint (§4.3 step 3).
func (r *ReadRepo) AdvanceCheckpoint(ctx context.Context, projectionName, eventID string, at time.Time) error {
	const q = `INSERT INTO projection_checkpoints (projection_name, last_processed_event_id, last_processed_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE last_processed_event_id = VALUES(last_processed_event_id), last_processed_at = VALUES(last_processed_at)`
	_, err := r.db.ExecContext(ctx, q, projectionName, eventID, at)
	return err
}

// HasProcessedEvent and MarkEventProcessed implement the bounded
// idempotency ledger (SPEC_FULL.md §3 DOMAIN STACK): a small table of
// (projection_name, event_id) pairs consulted before applying an event,
// so a true at-least-once redelivery of an event that is not the most
// recent one seen for the aggregate is still caught.
func (r *ReadRepo) HasProcessedEvent(ctx context.Context, projectionName, eventID string) (bool, error) {
	const q = `SELECT 1 FROM processed_events WHERE projection_name = ? AND event_id = ?`
	var x int
	err := r.db.QueryRowContext(ctx, q, projectionName, eventID).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkEventProcessed records the event id and trims the ledger to the
// most recent retainLast rows for that projection.
func (r *ReadRepo) MarkEventProcessed(ctx context.Context, projectionName, eventID string, at time.Time, retainLast int) error {
	const ins = `INSERT IGNORE INTO processed_events (projection_name, event_id, processed_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, ins, projectionName, eventID, at); err != nil {
		return err
	}
	const trim = `DELETE FROM processed_events WHERE projection_name = ? AND event_id NOT IN (
		SELECT event_id FROM (
			SELECT event_id FROM processed_events WHERE projection_name = ? ORDER BY processed_at DESC LIMIT ?
		) AS keep)`
	_, err := r.db.ExecContext(ctx, trim, projectionName, projectionName, retainLast)
	return err
}
