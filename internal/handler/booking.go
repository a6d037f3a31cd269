package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// BookingHandler serves the customer booking endpoints.  All methods
// assume JWTAuth and RequireRole ran first.
type BookingHandler struct {
	Bookings     *service.BookingService
	Orchestrator *service.PaymentOrchestrator
	Log          *zap.Logger
}

func NewBookingHandler(bookings *service.BookingService, orchestrator *service.PaymentOrchestrator, log *zap.Logger) *BookingHandler {
	if bookings == nil || orchestrator == nil {
		panic("nil service passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Bookings: bookings, Orchestrator: orchestrator, Log: log}
}

type createBookingBody struct {
	SeatIDs       []uint64 `json:"seat_ids"`
	PaymentMethod string   `json:"payment_method"`
}

// Create handles POST /v1/showtimes/:id/bookings.  It books the seats and
// charges for them in one call; the response is 201 with the confirmed
// booking, or an error after the booking has been cancelled.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showtimeID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	var body createBookingBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Orchestrator.Pay(c.Request().Context(), service.PayRequest{
		UserID:        userID,
		Email:         middleware.Email(c),
		ShowtimeID:    showtimeID,
		SeatIDs:       body.SeatIDs,
		PaymentMethod: model.PaymentMethod(strings.ToUpper(strings.TrimSpace(body.PaymentMethod))),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking":         toBookingResponse(res.Booking),
		"payment_ref":     res.PaymentRef,
		"points_earned":   res.PointsEarned,
		"membership_tier": res.Tier,
	})
}

// List handles GET /v1/bookings?limit=&offset=.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Bookings.ListBookings(c.Request().Context(), userID, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]bookingResponse, 0, len(list))
	for i := range list {
		out = append(out, toBookingResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// Get handles GET /v1/bookings/:id.  Bookings of other users are 404.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Bookings.GetBooking(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel handles POST /v1/bookings/:id/cancel for a PENDING booking.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Bookings.CancelForUser(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
