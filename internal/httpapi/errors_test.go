package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transit-systems/ticketing-core/internal/core"
)

func TestStatusFor_MapsEveryKind(t *testing.T) {
	// Arrange
	cases := map[core.Kind]int{
		core.KindBadRequest:   http.StatusBadRequest,
		core.KindValidation:   http.StatusUnprocessableEntity,
		core.KindUnauthorized: http.StatusUnauthorized,
		core.KindForbidden:    http.StatusForbidden,
		core.KindNotFound:     http.StatusNotFound,
		core.KindConflict:     http.StatusConflict,
		core.KindInvalidState: http.StatusConflict,
		core.KindUnavailable:  http.StatusServiceUnavailable,
		core.KindInternal:     http.StatusInternalServerError,
	}

	for kind, want := range cases {
		// Act
		got := statusFor(kind)

		// Assert
		assert.Equal(t, want, got, "kind %s", kind)
	}
}
