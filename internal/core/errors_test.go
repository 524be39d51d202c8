package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error_WithAndWithoutSubReason(t *testing.T) {
	// Arrange
	withSub := InvalidState("CONFIRMED", "already confirmed")
	withoutSub := NotFound("booking not found")

	// Assert
	assert.Equal(t, "INVALID_BOOKING_STATE: illegal state transition (already confirmed)", withSub.Error())
	assert.Equal(t, "NOT_FOUND: booking not found", withoutSub.Error())
}

func TestInsufficientSeats(t *testing.T) {
	// Act
	err := InsufficientSeats()

	// Assert
	assert.Equal(t, KindConflict, err.Kind)
	assert.Equal(t, "INSUFFICIENT_SEATS", err.Code)
}

func TestConflictVersion(t *testing.T) {
	// Act
	err := ConflictVersion()

	// Assert
	assert.Equal(t, KindConflict, err.Kind)
	assert.Equal(t, "CONFLICT_VERSION", err.Code)
}

func TestInvalidState_CarriesCurrentStatus(t *testing.T) {
	// Act
	err := InvalidState("CANCELLED", "terminal state")

	// Assert
	assert.Equal(t, KindInvalidState, err.Kind)
	assert.Equal(t, "CANCELLED", err.CurrentStatus)
	assert.Equal(t, "terminal state", err.SubReason)
}
