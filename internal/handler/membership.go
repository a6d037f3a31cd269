package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/service"
)

type MembershipHandler struct {
	Members *service.MembershipService
	Log     *zap.Logger
}

func NewMembershipHandler(members *service.MembershipService, log *zap.Logger) *MembershipHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MembershipHandler{Members: members, Log: log}
}

// Me handles GET /v1/me/membership.  The first call registers the user
// at BASIC with zero points.
func (h *MembershipHandler) Me(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	if email := middleware.Email(c); email != "" {
		if err := h.Members.Register(ctx, userID, email); err != nil {
			return writeError(c, h.Log, err)
		}
	}
	m, err := h.Members.Get(ctx, userID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}
