package sweeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_SetsSpecDefaults(t *testing.T) {
	// Act
	s := New(nil, nil)

	// Assert
	assert.Equal(t, DefaultInterval, s.Interval)
	assert.Equal(t, DefaultBatchSize, s.Batch)
	assert.NotNil(t, s.Now)
}

func TestDefaultInterval_MatchesSpec(t *testing.T) {
	// Assert
	assert.Equal(t, 30*time.Second, DefaultInterval)
}
