package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// AdminHandler serves the ADMIN-only endpoints: scheduling showtimes and
// granting the PREMIUM tier.
type AdminHandler struct {
	Showtimes *service.ShowtimeService
	Members   *service.MembershipService
	Log       *zap.Logger
}

func NewAdminHandler(showtimes *service.ShowtimeService, members *service.MembershipService, log *zap.Logger) *AdminHandler {
	if showtimes == nil || members == nil {
		panic("nil service passed to NewAdminHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Showtimes: showtimes, Members: members, Log: log}
}

type createShowtimeBody struct {
	MovieID     uint64            `json:"movie_id"`
	MovieTitle  string            `json:"movie_title"`
	CinemaID    uint64            `json:"cinema_id"`
	CinemaName  string            `json:"cinema_name"`
	Screen      string            `json:"screen"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      time.Time         `json:"ends_at"`
	BasePrice   int64             `json:"base_price"`
	Rows        int               `json:"rows"`
	SeatsPerRow int               `json:"seats_per_row"`
	RowTypes    map[string]string `json:"row_types"`
}

// CreateShowtime handles POST /v1/admin/showtimes.  Rows are labelled A, B,
// ..., Z, AA and every row defaults to STANDARD unless row_types says
// otherwise.
func (h *AdminHandler) CreateShowtime(c echo.Context) error {
	var body createShowtimeBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	types := make(map[string]model.SeatType, len(body.RowTypes))
	for row, t := range body.RowTypes {
		types[row] = model.SeatType(t)
	}
	st, err := h.Showtimes.CreateShowtime(c.Request().Context(), service.CreateShowtimeRequest{
		MovieID:     body.MovieID,
		MovieTitle:  body.MovieTitle,
		CinemaID:    body.CinemaID,
		CinemaName:  body.CinemaName,
		Screen:      body.Screen,
		StartsAt:    body.StartsAt,
		EndsAt:      body.EndsAt,
		BasePrice:   body.BasePrice,
		Rows:        body.Rows,
		SeatsPerRow: body.SeatsPerRow,
		RowTypes:    types,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toShowtimeResponse(st))
}

// GrantPremium handles POST /v1/admin/users/:id/premium.
func (h *AdminHandler) GrantPremium(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	m, err := h.Members.GrantPremium(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// RevokePremium handles DELETE /v1/admin/users/:id/premium.  The tier
// falls back to the one the user's points earn.
func (h *AdminHandler) RevokePremium(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	m, err := h.Members.RevokePremium(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}
