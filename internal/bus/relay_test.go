package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRelay_SetsDefaults(t *testing.T) {
	// Act
	r := NewRelay(nil, nil)

	// Assert
	assert.Equal(t, 500*time.Millisecond, r.Interval)
	assert.Equal(t, 100, r.BatchSize)
	assert.NotNil(t, r.Wake)
	assert.NotNil(t, r.Now)
}

func TestRelay_Nudge_IsNonBlockingAndCoalesces(t *testing.T) {
	// Arrange
	r := NewRelay(nil, nil)

	// Act: two nudges in a row must not block even though the channel
	// only buffers one pending wake.
	r.Nudge()
	r.Nudge()

	// Assert
	select {
	case <-r.Wake:
	default:
		t.Fatal("expected a pending wake signal")
	}
	select {
	case <-r.Wake:
		t.Fatal("expected the second nudge to have coalesced, not queued")
	default:
	}
}
