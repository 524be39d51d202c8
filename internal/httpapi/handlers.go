package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/transit-systems/ticketing-core/internal/core"
	"github.com/transit-systems/ticketing-core/internal/httpapi/middleware"
	"github.com/transit-systems/ticketing-core/internal/model"
	"github.com/transit-systems/ticketing-core/internal/query"
	"github.com/transit-systems/ticketing-core/internal/store"
)

// Handler bundles the two cores the HTTP adapter fronts. It holds no
// business logic of its own — every method here only binds/validates
// transport-shaped input and maps a core.Error to a wire response,
// mirroring the teacher's handler.AuthHandler pattern of a thin struct
// wrapping the collaborators it delegates to.
type Handler struct {
	Core  *core.Core
	Query *query.Query
}

// NewHandler builds a Handler over the command and query cores.
func NewHandler(c *core.Core, q *query.Query) *Handler {
	return &Handler{Core: c, Query: q}
}

// ----- request/response DTOs (§6 "HTTP surface") -----

type bookReq struct {
	RouteID        string  `json:"routeId"`
	ScheduleID     string  `json:"scheduleId"`
	SeatNumber     *string `json:"seatNumber,omitempty"`
	PassengerName  string  `json:"passengerName"`
	PassengerEmail string  `json:"passengerEmail"`
	PassengerPhone *string `json:"passengerPhone,omitempty"`
	Price          string  `json:"price"`
	Currency       string  `json:"currency,omitempty"`
	CorrelationID  string  `json:"correlationId,omitempty"`
}

type reserveReq struct {
	bookReq
	ReservationDurationMinutes *int `json:"reservationDurationMinutes,omitempty"`
}

type confirmReq struct {
	BookingID     string `json:"bookingId"`
	PaymentID     string `json:"paymentId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type cancelReq struct {
	BookingID     string  `json:"bookingId"`
	Reason        *string `json:"reason,omitempty"`
	CorrelationID string  `json:"correlationId,omitempty"`
}

type bookingResp struct {
	BookingID      string  `json:"bookingId"`
	UserID         string  `json:"userId"`
	RouteID        string  `json:"routeId"`
	ScheduleID     string  `json:"scheduleId"`
	SeatNumber     *string `json:"seatNumber,omitempty"`
	PassengerName  string  `json:"passengerName"`
	PassengerEmail string  `json:"passengerEmail"`
	Price          string  `json:"price"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	PaymentID      *string `json:"paymentId,omitempty"`
	ExpiresAt      *string `json:"expiresAt,omitempty"`
	Version        int64   `json:"version"`
}

func toBookingResp(b *model.Booking) bookingResp {
	r := bookingResp{
		BookingID:      b.ID,
		UserID:         b.UserID,
		RouteID:        b.RouteID,
		ScheduleID:     b.ScheduleID,
		SeatNumber:     b.SeatNumber,
		PassengerName:  b.PassengerName,
		PassengerEmail: b.PassengerEmail,
		Price:          b.Price.StringFixed(2),
		Currency:       b.Currency,
		Status:         string(b.Status),
		PaymentID:      b.PaymentID,
		Version:        b.Version,
	}
	if b.ExpiresAt != nil {
		s := b.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
		r.ExpiresAt = &s
	}
	return r
}

// ----- commands -----

func (h *Handler) Book(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price must be a decimal string"})
	}
	in := core.BookInput{
		UserID:         middleware.UserID(c),
		RouteID:        req.RouteID,
		ScheduleID:     req.ScheduleID,
		SeatNumber:     req.SeatNumber,
		PassengerName:  req.PassengerName,
		PassengerEmail: req.PassengerEmail,
		PassengerPhone: req.PassengerPhone,
		Price:          price,
		Currency:       req.Currency,
		CorrelationID:  req.CorrelationID,
	}
	b, err := h.Core.Book(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toBookingResp(b))
}

func (h *Handler) Reserve(c echo.Context) error {
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price must be a decimal string"})
	}
	in := core.ReserveInput{
		BookInput: core.BookInput{
			UserID:         middleware.UserID(c),
			RouteID:        req.RouteID,
			ScheduleID:     req.ScheduleID,
			SeatNumber:     req.SeatNumber,
			PassengerName:  req.PassengerName,
			PassengerEmail: req.PassengerEmail,
			PassengerPhone: req.PassengerPhone,
			Price:          price,
			Currency:       req.Currency,
			CorrelationID:  req.CorrelationID,
		},
		ReservationDurationMinutes: req.ReservationDurationMinutes,
	}
	b, err := h.Core.Reserve(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toBookingResp(b))
}

func (h *Handler) Confirm(c echo.Context) error {
	var req confirmReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in := core.ConfirmInput{BookingID: req.BookingID, PaymentID: req.PaymentID, CorrelationID: req.CorrelationID}
	b, err := h.Core.Confirm(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

func (h *Handler) Cancel(c echo.Context) error {
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in := core.CancelInput{
		BookingID:        req.BookingID,
		Reason:           req.Reason,
		CorrelationID:    req.CorrelationID,
		CallerCapability: middleware.Capability(c),
	}
	if uid := middleware.UserID(c); uid != "" {
		in.UserID = &uid
	}
	b, err := h.Core.Cancel(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

// ----- queries -----

func (h *Handler) MyTickets(c echo.Context) error {
	userID := middleware.UserID(c)
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)
	var status *model.BookingStatus
	if raw := c.QueryParam("status"); raw != "" {
		s := model.BookingStatus(raw)
		status = &s
	}
	result, err := h.Query.ListUserTickets(c.Request().Context(), userID, status, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetTicket(c echo.Context) error {
	bookingID := c.Param("bookingId")
	owner := middleware.UserID(c)
	if middleware.Capability(c) != "" {
		owner = "" // trusted peer service, no ownership check
	}
	t, err := h.Query.GetTicket(c.Request().Context(), bookingID, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "NOT_FOUND"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
