package projector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/transit-systems/ticketing-core/internal/cache"
	"github.com/transit-systems/ticketing-core/internal/event"
	"github.com/transit-systems/ticketing-core/internal/model"
)

// fakeReadModel is an in-memory stand-in for store.ReadRepo, keyed by
// booking id, so seat-counter and status-dominance behavior can be
// exercised without a MySQL instance.
type fakeReadModel struct {
	tickets     map[string]*model.TicketView
	bookedSeats map[string]int
	processed   map[string]bool
}

func newFakeReadModel() *fakeReadModel {
	return &fakeReadModel{
		tickets:     make(map[string]*model.TicketView),
		bookedSeats: make(map[string]int),
		processed:   make(map[string]bool),
	}
}

func (f *fakeReadModel) HasProcessedEvent(ctx context.Context, projectionName, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeReadModel) AdvanceCheckpoint(ctx context.Context, projectionName, eventID string, at time.Time) error {
	return nil
}

func (f *fakeReadModel) MarkEventProcessed(ctx context.Context, projectionName, eventID string, at time.Time, retainLast int) error {
	f.processed[eventID] = true
	return nil
}

func (f *fakeReadModel) UpsertTicketView(ctx context.Context, t *model.TicketView) error {
	cp := *t
	f.tickets[t.BookingID] = &cp
	return nil
}

func (f *fakeReadModel) SetTicketStatus(ctx context.Context, bookingID string, status model.BookingStatus, updatedAt time.Time) error {
	if t, ok := f.tickets[bookingID]; ok {
		t.Status = status
		t.UpdatedAt = updatedAt
	}
	return nil
}

func (f *fakeReadModel) GetTicketStatus(ctx context.Context, bookingID string) (model.BookingStatus, bool, error) {
	t, ok := f.tickets[bookingID]
	if !ok {
		return "", false, nil
	}
	return t.Status, true, nil
}

func (f *fakeReadModel) GetTicketByID(ctx context.Context, bookingID string) (*model.TicketView, error) {
	t, ok := f.tickets[bookingID]
	if !ok {
		return nil, assertNotFound{}
	}
	return t, nil
}

func (f *fakeReadModel) AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error {
	f.bookedSeats[scheduleID] += delta
	if f.bookedSeats[scheduleID] < 0 {
		f.bookedSeats[scheduleID] = 0
	}
	return nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func TestStatusRank_Monotonic(t *testing.T) {
	// Assert: every legal transition in the state machine must strictly
	// increase rank, or the dominance rule would silently drop it.
	legal := [][2]model.BookingStatus{
		{model.StatusPending, model.StatusConfirmed},
		{model.StatusPending, model.StatusCancelled},
		{model.StatusReserved, model.StatusConfirmed},
		{model.StatusReserved, model.StatusCancelled},
		{model.StatusReserved, model.StatusExpired},
		{model.StatusConfirmed, model.StatusCancelled},
		{model.StatusConfirmed, model.StatusRefunded},
	}
	for _, pair := range legal {
		assert.Greater(t, statusRank[pair[1]], statusRank[pair[0]], "%s -> %s", pair[0], pair[1])
	}
}

func TestStatusRank_TerminalStatesShareTopRank(t *testing.T) {
	// Assert
	assert.Equal(t, statusRank[model.StatusCancelled], statusRank[model.StatusExpired])
	assert.Equal(t, statusRank[model.StatusCancelled], statusRank[model.StatusRefunded])
}

func TestDecodePayload_RoundTrips(t *testing.T) {
	// Arrange: env.Payload arrives as map[string]any, the shape json.Unmarshal
	// produces when decoding into an `any` field.
	env := &event.Envelope{
		Payload: map[string]any{
			"bookingId":      "b1",
			"userId":         "u1",
			"routeId":        "r1",
			"scheduleId":     "s1",
			"passengerName":  "Jane",
			"passengerEmail": "jane@example.com",
			"price":          "25.00",
			"currency":       "USD",
			"status":         "PENDING",
		},
	}

	// Act
	payload, err := decodePayload[event.BookedPayload](env)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "b1", payload.BookingID)
	assert.Equal(t, "25.00", payload.Price)
	assert.Equal(t, "USD", payload.Currency)
}

func TestBookingAndUserID_ExtractsCommonFields(t *testing.T) {
	// Arrange
	env := &event.Envelope{
		Payload: map[string]any{
			"bookingId":  "b1",
			"userId":     "u1",
			"scheduleId": "s1",
		},
	}

	// Act
	bookingID, userID, scheduleID := bookingAndUserID(env)

	// Assert
	assert.Equal(t, "b1", bookingID)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "s1", scheduleID)
}

func TestBookingAndUserID_MalformedPayloadReturnsEmpty(t *testing.T) {
	// Arrange
	env := &event.Envelope{Payload: "not-an-object"}

	// Act
	bookingID, userID, scheduleID := bookingAndUserID(env)

	// Assert
	assert.Empty(t, bookingID)
	assert.Empty(t, userID)
	assert.Empty(t, scheduleID)
}

func TestDecimalFromString_RejectsGarbage(t *testing.T) {
	// Act
	_, err := decimalFromString("not-a-number")

	// Assert
	assert.Error(t, err)
}

func newTestProjector(read ReadModel) *Projector {
	return &Projector{Read: read, Cache: cache.New(nil), Now: func() time.Time { return time.Now().UTC() }}
}

func TestApply_Booked_IncrementsBookedSeats(t *testing.T) {
	// Arrange: this TICKET_BOOKED carries no seat number (§4.3 step 2
	// still requires the counter to move unconditionally).
	read := newFakeReadModel()
	p := newTestProjector(read)
	env := &event.Envelope{
		EventID:   "e1",
		EventType: event.TypeBooked,
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"bookingId":      "b1",
			"userId":         "u1",
			"routeId":        "r1",
			"scheduleId":     "s1",
			"passengerName":  "Jane",
			"passengerEmail": "jane@example.com",
			"price":          "25.00",
			"currency":       "USD",
		},
	}

	// Act
	err := p.Apply(context.Background(), env)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 1, read.bookedSeats["s1"])
}

func TestApply_Reserved_IncrementsBookedSeatsEvenWithoutSeatNumber(t *testing.T) {
	// Arrange: previously this branch only adjusted the counter when
	// seatNumber was non-nil; it must move unconditionally.
	read := newFakeReadModel()
	p := newTestProjector(read)
	env := &event.Envelope{
		EventID:   "e2",
		EventType: event.TypeReserved,
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"bookingId":      "b2",
			"userId":         "u1",
			"routeId":        "r1",
			"scheduleId":     "s2",
			"passengerName":  "Jane",
			"passengerEmail": "jane@example.com",
			"price":          "25.00",
			"currency":       "USD",
		},
	}

	// Act
	err := p.Apply(context.Background(), env)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 1, read.bookedSeats["s2"])
}

func TestApply_Reserved_SkipsSeatAdjustWhenNotDominant(t *testing.T) {
	// Arrange: a booking already confirmed outranks a reordered RESERVED
	// redelivery — the seat counter must not move a second time.
	read := newFakeReadModel()
	read.tickets["b3"] = &model.TicketView{BookingID: "b3", ScheduleID: "s3", Status: model.StatusConfirmed}
	p := newTestProjector(read)
	env := &event.Envelope{
		EventID:   "e3",
		EventType: event.TypeReserved,
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"bookingId":      "b3",
			"userId":         "u1",
			"routeId":        "r1",
			"scheduleId":     "s3",
			"passengerName":  "Jane",
			"passengerEmail": "jane@example.com",
			"price":          "25.00",
			"currency":       "USD",
		},
	}

	// Act
	err := p.Apply(context.Background(), env)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 0, read.bookedSeats["s3"])
}
