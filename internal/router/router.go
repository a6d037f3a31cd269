package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Health     echo.HandlerFunc
	Showtimes  *handler.ShowtimeHandler
	Bookings   *handler.BookingHandler
	Membership *handler.MembershipHandler
	Admin      *handler.AdminHandler
}

// Middlewares are the optional Redis-backed middlewares.  A nil entry is
// skipped.
type Middlewares struct {
	ShowtimeCache echo.MiddlewareFunc
	BookingLimit  echo.MiddlewareFunc
}

// Register mounts every route on e.  Showtime reads are public, booking
// and membership routes need a CUSTOMER token and /v1/admin needs ADMIN.
func Register(e *echo.Echo, h Handlers, mw Middlewares, jwtSecret string) {
	e.GET("/healthz", h.Health)

	e.GET("/v1/showtimes", h.Showtimes.List)
	e.GET("/v1/showtimes/:id", h.Showtimes.Get, optional(mw.ShowtimeCache)...)
	// Seat maps change with every claim and are never cached.
	e.GET("/v1/showtimes/:id/seats", h.Showtimes.Seats)

	customer := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	customer.POST("/showtimes/:id/bookings", h.Bookings.Create, optional(mw.BookingLimit)...)
	customer.GET("/bookings", h.Bookings.List)
	customer.GET("/bookings/:id", h.Bookings.Get)
	customer.POST("/bookings/:id/cancel", h.Bookings.Cancel)
	customer.GET("/me/membership", h.Membership.Me)

	admin := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	admin.POST("/showtimes", h.Admin.CreateShowtime)
	admin.POST("/users/:id/premium", h.Admin.GrantPremium)
	admin.DELETE("/users/:id/premium", h.Admin.RevokePremium)
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
