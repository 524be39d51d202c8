package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders_MatchSpecShape(t *testing.T) {
	// Assert
	assert.Equal(t, "user:u1:tickets:page:2:limit:20", UserTicketsPageKey("u1", 2, 20))
	assert.Equal(t, "user:u1:tickets:*", UserTicketsPrefix("u1"))
	assert.Equal(t, "ticket:b1", TicketKey("b1"))
	assert.Equal(t, "schedule:s1:availability", ScheduleAvailabilityKey("s1"))
}

func TestCache_NilClientDegradesToMissEverywhere(t *testing.T) {
	// Arrange
	c := New(nil)
	ctx := context.Background()

	// Act / Assert
	var dest map[string]string
	ok := c.Get(ctx, "any", &dest)
	assert.False(t, ok)
	assert.False(t, c.Enabled())

	// None of these should panic on a nil client.
	c.Set(ctx, "any", map[string]string{"a": "b"}, time.Second)
	c.Del(ctx, "any")
	c.DelPrefix(ctx, "any:*")
}
