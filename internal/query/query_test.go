package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transit-systems/ticketing-core/internal/core"
)

func TestNormalizeLimit(t *testing.T) {
	// Arrange
	cases := []struct {
		limit     int
		wantLimit int
	}{
		{0, defaultPageLimit},
		{-5, defaultPageLimit},
		{10, 10},
		{1000, maxPageLimit},
	}

	for _, tc := range cases {
		// Act
		limit := normalizeLimit(tc.limit)

		// Assert
		assert.Equal(t, tc.wantLimit, limit)
	}
}

func TestListUserTickets_RequiresUserID(t *testing.T) {
	// Arrange
	q := &Query{}

	// Act
	_, err := q.ListUserTickets(context.Background(), "", nil, 1, 10)

	// Assert
	assert.Error(t, err)
}

func TestListUserTickets_RejectsPageLessThanOne(t *testing.T) {
	// Arrange
	q := &Query{}

	// Act
	_, err := q.ListUserTickets(context.Background(), "user-1", nil, 0, 10)

	// Assert
	var ce *core.Error
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, core.KindBadRequest, ce.Kind)
}

func TestGetTicket_RequiresBookingID(t *testing.T) {
	// Arrange
	q := &Query{}

	// Act
	_, err := q.GetTicket(context.Background(), "", "")

	// Assert
	assert.Error(t, err)
}

func TestRequireOwner_MismatchIsForbiddenNotNotFound(t *testing.T) {
	// Act
	err := requireOwner("user-1", "user-2")

	// Assert
	var ce *core.Error
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, core.KindForbidden, ce.Kind)
}

func TestRequireOwner_MatchingOwnerPasses(t *testing.T) {
	// Act
	err := requireOwner("user-1", "user-1")

	// Assert
	assert.NoError(t, err)
}

func TestRequireOwner_EmptyOwnerSkipsCheck(t *testing.T) {
	// Act: empty ownerUserID signals a service-capability caller.
	err := requireOwner("", "user-2")

	// Assert
	assert.NoError(t, err)
}

func TestGetScheduleAvailability_RequiresScheduleID(t *testing.T) {
	// Arrange
	q := &Query{}

	// Act
	_, err := q.GetScheduleAvailability(context.Background(), "")

	// Assert
	assert.Error(t, err)
}
