package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionFor_IsStableAndInRange(t *testing.T) {
	// Arrange
	bookingID := "booking-123"

	// Act
	first := PartitionFor(bookingID, 5)
	second := PartitionFor(bookingID, 5)

	// Assert
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 5)
}

func TestPartitionFor_DefaultsWhenPartitionsNonPositive(t *testing.T) {
	// Act
	n := PartitionFor("booking-123", 0)

	// Assert
	assert.GreaterOrEqual(t, n, 0)
	assert.Less(t, n, DefaultPartitions)
}

func TestRoutingKey_MatchesPartitionQueueName(t *testing.T) {
	// Arrange
	bookingID := "booking-123"
	partition := PartitionFor(bookingID, 3)

	// Act
	key := RoutingKey(bookingID, 3)

	// Assert
	assert.Equal(t, PartitionQueue(partition), key)
}

func TestPartitionQueue_Naming(t *testing.T) {
	// Assert
	assert.Equal(t, "ticket-events.partition.0", PartitionQueue(0))
	assert.Equal(t, "ticket-events.partition.2", PartitionQueue(2))
}

func TestPartitionFor_DistributesAcrossPartitions(t *testing.T) {
	// Arrange
	seen := map[int]bool{}

	// Act
	for i := 0; i < 200; i++ {
		id := "booking-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
		seen[PartitionFor(id, 3)] = true
	}

	// Assert: with 200 varied ids across 3 partitions, every partition
	// should have received at least one (not a strict guarantee for any
	// one hash, but FNV-1a over this input space reliably spreads).
	assert.Len(t, seen, 3)
}
