package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/service"
)

var errUnauthorized = errors.New("invalid user_id in context")

// getUserID extracts the authenticated user ID stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errUnauthorized
	}
	return id, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// queryInt reads an integer query parameter, falling back to def.
func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return n
}

// writeError maps service errors onto HTTP responses.  Anything it does
// not recognise is logged and reported as 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var (
		conflict *service.ConflictError
		invalid  *service.InvalidStateError
		provider *payment.ProviderError
	)
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": err.Error()})
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "seats_unavailable",
			"message":  "some seats are no longer available",
			"seat_ids": conflict.SeatIDs,
		})
	case errors.Is(err, service.ErrScheduleOverlap):
		return c.JSON(http.StatusConflict, echo.Map{"error": "schedule_overlap", "message": err.Error()})
	case errors.As(err, &invalid):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":   "invalid_state",
			"message": err.Error(),
			"status":  invalid.Status,
		})
	case errors.Is(err, service.ErrPaymentInProgress):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "payment_in_progress", "message": err.Error()})
	case errors.As(err, &provider):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment_failed", "code": provider.Code})
	case errors.Is(err, service.ErrPersistence):
		log.Error("persistence failure", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": "please retry"})
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
}
