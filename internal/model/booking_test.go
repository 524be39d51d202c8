package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduleAvailability_AvailableSeats_FloorsAtZero(t *testing.T) {
	// Arrange
	cases := []struct {
		name string
		s    ScheduleAvailability
		want int
	}{
		{"seats remain", ScheduleAvailability{TotalSeats: 40, BookedSeats: 10}, 30},
		{"fully booked", ScheduleAvailability{TotalSeats: 40, BookedSeats: 40}, 0},
		{"overbooked never negative", ScheduleAvailability{TotalSeats: 40, BookedSeats: 45}, 0},
	}

	for _, tc := range cases {
		// Act
		got := tc.s.AvailableSeats()

		// Assert
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestBookingStatus_IsTerminal_CoversTerminalSet(t *testing.T) {
	// Assert
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusReserved.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
}
