package core

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/transit-systems/ticketing-core/internal/model"
)

// These tests exercise only the validation and authorization paths that
// return before touching Write, so a nil *store.WriteRepo is safe to use.
// The transactional protocol itself (tx begin/lock/mutate/commit) has no
// in-pack fake to substitute for database/sql, so it is left to an
// integration suite run against a real MySQL instance.

func testCore() *Core {
	return &Core{
		Clock: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string { return "fixed-id" },
	}
}

func TestBook_RejectsMissingFields(t *testing.T) {
	// Arrange
	c := testCore()
	in := BookInput{RouteID: "r1", ScheduleID: "s1", PassengerName: "A", PassengerEmail: "a@b.com", Price: decimal.NewFromInt(10)}

	// Act
	_, err := c.Book(context.Background(), in)

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindBadRequest, coreErr.Kind)
}

func TestBook_RejectsNonPositivePrice(t *testing.T) {
	// Arrange
	c := testCore()
	in := validBookInput()
	in.Price = decimal.Zero

	// Act
	_, err := c.Book(context.Background(), in)

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, "BAD_REQUEST", coreErr.Code)
}

func TestBook_RejectsBadCurrency(t *testing.T) {
	// Arrange
	c := testCore()
	in := validBookInput()
	in.Currency = "US"

	// Act
	_, err := c.Book(context.Background(), in)

	// Assert
	assert.Error(t, err)
}

func TestReserve_RejectsOutOfRangeDuration(t *testing.T) {
	// Arrange
	c := testCore()
	tooShort := 1
	in := ReserveInput{BookInput: validBookInput(), ReservationDurationMinutes: &tooShort}

	// Act
	_, err := c.Reserve(context.Background(), in)

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindBadRequest, coreErr.Kind)
}

func TestConfirm_RequiresBookingIDAndPaymentID(t *testing.T) {
	// Arrange
	c := testCore()

	// Act
	_, err := c.Confirm(context.Background(), ConfirmInput{})

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindBadRequest, coreErr.Kind)
}

func TestCancel_RequiresBookingID(t *testing.T) {
	// Arrange
	c := testCore()
	uid := "user-1"

	// Act
	_, err := c.Cancel(context.Background(), CancelInput{UserID: &uid})

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindBadRequest, coreErr.Kind)
}

func TestCancel_ServiceCallWithoutCapabilityIsForbidden(t *testing.T) {
	// Arrange
	c := testCore()

	// Act
	_, err := c.Cancel(context.Background(), CancelInput{BookingID: "b1"})

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindForbidden, coreErr.Kind)
}

func TestRefundAmount_OnlyRefundsFromConfirmed(t *testing.T) {
	// Arrange
	price := decimal.NewFromFloat(42.50)

	// Act + Assert
	assert.Nil(t, refundAmount(model.StatusPending, price))
	assert.Nil(t, refundAmount(model.StatusReserved, price))
	got := refundAmount(model.StatusConfirmed, price)
	assert.NotNil(t, got)
	assert.True(t, price.Equal(*got))
}

func validBookInput() BookInput {
	return BookInput{
		UserID: "user-1", RouteID: "route-1", ScheduleID: "sched-1",
		PassengerName: "Jane Doe", PassengerEmail: "jane@example.com",
		Price: decimal.NewFromInt(25), Currency: "USD",
	}
}
