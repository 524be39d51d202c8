// Package model defines the persistence-shaped types for the booking
// aggregate and its supporting read models. Field comments note the
// backing column the way the teacher's model package documents its
// MySQL-backed structs.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus enumerates the lifecycle states of a Booking. Terminal
// states (Cancelled, Expired, Refunded) never transition further.
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusReserved  BookingStatus = "RESERVED"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusExpired   BookingStatus = "EXPIRED"
	StatusRefunded  BookingStatus = "REFUNDED"
)

// IsTerminal reports whether status can no longer transition (I4).
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// Booking is the aggregate root. ID is an opaque string (uuid) rather than
// an auto-increment integer since bookings are referenced across service
// boundaries (§6 caller identity, bus partition key).
type Booking struct {
	ID              string // bookings.id
	UserID          string // bookings.user_id
	RouteID         string // bookings.route_id
	ScheduleID      string // bookings.schedule_id
	SeatNumber      *string // bookings.seat_number (nullable)
	PassengerName   string
	PassengerEmail  string
	PassengerPhone  *string
	Price           decimal.Decimal // two fractional digits, enforced on write
	Currency        string          // three-letter code
	Status          BookingStatus
	PaymentID       *string
	ReservedAt      *time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	ExpiresAt       *time.Time // non-nil iff Status == RESERVED (I2)
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64 // monotonically increasing per aggregate (I5)
}

// BookingEvent is the append-only event-store row (§3, I5).
type BookingEvent struct {
	EventID       string // globally unique (uuid)
	EventType     string
	AggregateID   string // Booking.ID
	AggregateType string // always "Booking"
	Payload       []byte // JSON-encoded typed payload
	CorrelationID *string
	CausationID   *string
	Version       int64
	CreatedAt     time.Time
}

// SeatAvailabilityStatus enumerates seat_availability.status.
type SeatAvailabilityStatus string

const (
	SeatAvailable SeatAvailabilityStatus = "AVAILABLE"
	SeatLocked    SeatAvailabilityStatus = "LOCKED"
	SeatBooked    SeatAvailabilityStatus = "BOOKED"
)

// SeatAvailability tracks the (scheduleId, seatNumber) allocation state.
type SeatAvailability struct {
	ScheduleID  string
	SeatNumber  string
	Status      SeatAvailabilityStatus
	BookingID   *string
	LockedUntil *time.Time
}

// TicketView is the denormalized read-model row maintained by the
// projector (§3, §4.3). Route/schedule display fields start out nil
// pending enrichment from a schedule lookup that this core does not own.
type TicketView struct {
	BookingID       string
	UserID          string
	RouteID         string
	ScheduleID      string
	SeatNumber      *string
	PassengerName   string
	PassengerEmail  string
	Price           decimal.Decimal
	Currency        string
	Status          BookingStatus
	RouteName       *string
	DepartureTime   *time.Time
	ArrivalTime     *time.Time
	OriginStop      *string
	DestinationStop *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduleAvailability is the per-schedule booked-seat counter read model.
type ScheduleAvailability struct {
	ScheduleID  string
	TotalSeats  int
	BookedSeats int
}

// AvailableSeats derives the remaining capacity, floored at zero.
func (s ScheduleAvailability) AvailableSeats() int {
	if n := s.TotalSeats - s.BookedSeats; n > 0 {
		return n
	}
	return 0
}

// ProjectorCheckpoint is the named cursor the projector advances per event.
type ProjectorCheckpoint struct {
	ProjectionName     string
	LastProcessedEventID string
	LastProcessedAt    time.Time
}
