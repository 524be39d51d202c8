// Package event defines the envelope and typed payloads published on the
// bus by the command core and consumed by the projector. Shape follows
// the self-describing-JSON-value-plus-headers style used across the
// booking/event-sourcing examples this service is grounded on (see
// DESIGN.md) rather than the teacher's ad hoc BookingConfirmedEvent,
// since the core now needs one envelope for six distinct event types.
package event

import "time"

// Type names match the TICKET_* constants in spec §4.2 exactly; they are
// also used as the AMQP message header "eventType" and logged verbatim,
// so they are never translated or abbreviated.
const (
	TypeBooked    = "TICKET_BOOKED"
	TypeReserved  = "TICKET_RESERVED"
	TypeConfirmed = "TICKET_CONFIRMED"
	TypeCancelled = "TICKET_CANCELLED"
	TypeExpired   = "TICKET_EXPIRED"
	TypeRefunded  = "TICKET_REFUNDED"
)

// AggregateTypeBooking is the only aggregate type this service emits.
const AggregateTypeBooking = "Booking"

// Envelope wraps every event published on the ticket-events topic. Payload
// is an untyped value so the envelope can be marshalled/unmarshalled
// without needing a type switch at the transport layer: the command core
// sets one of the payload structs below, and after json.Unmarshal on the
// consumer side it holds a map[string]any, which the projector's
// decodePayload re-encodes into the typed struct.
type Envelope struct {
	EventID       string            `json:"eventId"`
	EventType     string            `json:"eventType"`
	AggregateID   string            `json:"aggregateId"`
	AggregateType string            `json:"aggregateType"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       int64             `json:"version"`
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Payload       any               `json:"payload"`
}

// BookedPayload backs TICKET_BOOKED.
type BookedPayload struct {
	BookingID      string  `json:"bookingId"`
	UserID         string  `json:"userId"`
	RouteID        string  `json:"routeId"`
	ScheduleID     string  `json:"scheduleId"`
	SeatNumber     *string `json:"seatNumber,omitempty"`
	PassengerName  string  `json:"passengerName"`
	PassengerEmail string  `json:"passengerEmail"`
	Price          string  `json:"price"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
}

// ReservedPayload backs TICKET_RESERVED; identical to BookedPayload plus
// the reservation's expiry.
type ReservedPayload struct {
	BookingID      string    `json:"bookingId"`
	UserID         string    `json:"userId"`
	RouteID        string    `json:"routeId"`
	ScheduleID     string    `json:"scheduleId"`
	SeatNumber     *string   `json:"seatNumber,omitempty"`
	PassengerName  string    `json:"passengerName"`
	PassengerEmail string    `json:"passengerEmail"`
	Price          string    `json:"price"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// ConfirmedPayload backs TICKET_CONFIRMED.
type ConfirmedPayload struct {
	BookingID   string    `json:"bookingId"`
	UserID      string    `json:"userId"`
	PaymentID   string    `json:"paymentId"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// CancelledPayload backs TICKET_CANCELLED.
type CancelledPayload struct {
	BookingID    string    `json:"bookingId"`
	UserID       string    `json:"userId"`
	Reason       *string   `json:"reason,omitempty"`
	CancelledAt  time.Time `json:"cancelledAt"`
	RefundAmount *string   `json:"refundAmount,omitempty"`
}

// ExpiredPayload backs TICKET_EXPIRED.
type ExpiredPayload struct {
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// RefundedPayload backs TICKET_REFUNDED.
type RefundedPayload struct {
	BookingID    string    `json:"bookingId"`
	UserID       string    `json:"userId"`
	RefundAmount string    `json:"refundAmount"`
	RefundedAt   time.Time `json:"refundedAt"`
}
