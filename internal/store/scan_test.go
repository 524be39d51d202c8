package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// erroringRow is a rowScanner that always fails, letting the scan helpers'
// error-propagation path be exercised without a real *sql.Row (no
// sqlmock-style dependency exists anywhere in the retrieval pack — see
// DESIGN.md — so the happy path, which needs driver-level column
// machinery, is left to an integration suite against a real MySQL).
type erroringRow struct{ err error }

func (r erroringRow) Scan(dest ...any) error { return r.err }

func TestScanBooking_PropagatesRowError(t *testing.T) {
	// Arrange
	want := errors.New("boom")

	// Act
	b, err := scanBooking(erroringRow{err: want})

	// Assert
	assert.Nil(t, b)
	assert.ErrorIs(t, err, want)
}

func TestScanTicketView_PropagatesRowError(t *testing.T) {
	// Arrange
	want := errors.New("boom")

	// Act
	tv, err := scanTicketView(erroringRow{err: want})

	// Assert
	assert.Nil(t, tv)
	assert.ErrorIs(t, err, want)
}

func TestScanBooking_PropagatesErrNotFound(t *testing.T) {
	// Act
	b, err := scanBooking(erroringRow{err: ErrNotFound})

	// Assert
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrNotFound)
}
