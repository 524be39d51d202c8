package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transit-systems/ticketing-core/internal/model"
)

func TestCanTransition(t *testing.T) {
	// Arrange
	cases := []struct {
		from model.BookingStatus
		to   model.BookingStatus
		want bool
	}{
		{model.StatusPending, model.StatusConfirmed, true},
		{model.StatusPending, model.StatusCancelled, true},
		{model.StatusPending, model.StatusReserved, false},
		{model.StatusPending, model.StatusExpired, false},
		{model.StatusReserved, model.StatusConfirmed, true},
		{model.StatusReserved, model.StatusCancelled, true},
		{model.StatusReserved, model.StatusExpired, true},
		{model.StatusReserved, model.StatusRefunded, false},
		{model.StatusConfirmed, model.StatusCancelled, true},
		{model.StatusConfirmed, model.StatusRefunded, true},
		{model.StatusConfirmed, model.StatusExpired, false},
		{model.StatusCancelled, model.StatusConfirmed, false},
		{model.StatusExpired, model.StatusConfirmed, false},
		{model.StatusRefunded, model.StatusCancelled, false},
	}

	for _, tc := range cases {
		// Act
		got := canTransition(tc.from, tc.to)

		// Assert
		assert.Equal(t, tc.want, got, "canTransition(%s, %s)", tc.from, tc.to)
	}
}

func TestRequireTransition_IllegalCarriesCurrentStatus(t *testing.T) {
	// Act
	err := requireTransition(model.StatusCancelled, model.StatusConfirmed, "already cancelled")

	// Assert
	var coreErr *Error
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindInvalidState, coreErr.Kind)
	assert.Equal(t, string(model.StatusCancelled), coreErr.CurrentStatus)
	assert.Equal(t, "already cancelled", coreErr.SubReason)
}

func TestRequireTransition_Legal(t *testing.T) {
	// Act
	err := requireTransition(model.StatusReserved, model.StatusCancelled, "")

	// Assert
	assert.NoError(t, err)
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	// Assert
	assert.True(t, model.StatusCancelled.IsTerminal())
	assert.True(t, model.StatusExpired.IsTerminal())
	assert.True(t, model.StatusRefunded.IsTerminal())
	assert.False(t, model.StatusPending.IsTerminal())
	assert.False(t, model.StatusReserved.IsTerminal())
	assert.False(t, model.StatusConfirmed.IsTerminal())
}
