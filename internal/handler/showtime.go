package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// ShowtimeHandler serves the public showtime reads.  No authentication is
// required so guests can browse before signing in.
type ShowtimeHandler struct {
	Showtimes *service.ShowtimeService
	Inventory *service.SeatInventory
	Log       *zap.Logger
}

func NewShowtimeHandler(showtimes *service.ShowtimeService, inventory *service.SeatInventory, log *zap.Logger) *ShowtimeHandler {
	if showtimes == nil || inventory == nil {
		panic("nil service passed to NewShowtimeHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ShowtimeHandler{Showtimes: showtimes, Inventory: inventory, Log: log}
}

// List handles GET /v1/showtimes?limit=N and returns upcoming showtimes
// ordered by start time.
func (h *ShowtimeHandler) List(c echo.Context) error {
	items, err := h.Showtimes.ListUpcoming(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]showtimeResponse, 0, len(items))
	for i := range items {
		out = append(out, toShowtimeResponse(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"showtimes": out})
}

// Get handles GET /v1/showtimes/:id.
func (h *ShowtimeHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	st, err := h.Showtimes.GetShowtime(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toShowtimeResponse(st))
}

// Seats handles GET /v1/showtimes/:id/seats and returns the live seat map.
func (h *ShowtimeHandler) Seats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	m, err := h.Inventory.SeatMap(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}
