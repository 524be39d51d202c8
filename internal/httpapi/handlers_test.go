package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestQueryInt_FallsBackOnMissingOrInvalid(t *testing.T) {
	// Arrange
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=oops", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Act
	got := queryInt(c, "limit", 20)
	missing := queryInt(c, "page", 1)

	// Assert
	assert.Equal(t, 20, got)
	assert.Equal(t, 1, missing)
}

func TestQueryInt_ParsesValidValue(t *testing.T) {
	// Arrange
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// Act
	got := queryInt(c, "page", 1)

	// Assert
	assert.Equal(t, 3, got)
}
