package handler

import (
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// showtimeResponse is the public view of a showtime.
type showtimeResponse struct {
	ID             uint64    `json:"id"`
	MovieID        uint64    `json:"movie_id"`
	MovieTitle     string    `json:"movie_title"`
	CinemaID       uint64    `json:"cinema_id"`
	CinemaName     string    `json:"cinema_name"`
	Screen         string    `json:"screen"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	BasePrice      int64     `json:"base_price"`
	AvailableSeats int       `json:"available_seats"`
}

func toShowtimeResponse(s *model.Showtime) showtimeResponse {
	return showtimeResponse{
		ID:             s.ID,
		MovieID:        s.MovieID,
		MovieTitle:     s.MovieTitle,
		CinemaID:       s.CinemaID,
		CinemaName:     s.CinemaName,
		Screen:         s.Screen,
		StartsAt:       s.StartsAt.UTC(),
		EndsAt:         s.EndsAt.UTC(),
		BasePrice:      s.BasePrice,
		AvailableSeats: s.AvailableSeats,
	}
}

type bookingSeatResponse struct {
	SeatID uint64         `json:"seat_id"`
	Label  string         `json:"label"`
	Type   model.SeatType `json:"type"`
	Price  int64          `json:"price"`
}

type bookingResponse struct {
	ID            uint64                `json:"id"`
	Reference     string                `json:"reference"`
	ShowtimeID    uint64                `json:"showtime_id"`
	MovieID       uint64                `json:"movie_id"`
	CinemaID      uint64                `json:"cinema_id"`
	Status        model.BookingStatus   `json:"status"`
	PaymentMethod model.PaymentMethod   `json:"payment_method"`
	PaymentRef    *string               `json:"payment_ref,omitempty"`
	CancelReason  *string               `json:"cancel_reason,omitempty"`
	TotalAmount   int64                 `json:"total_amount"`
	Seats         []bookingSeatResponse `json:"seats"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	ConfirmedAt   *time.Time            `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	out := bookingResponse{
		ID:            b.ID,
		Reference:     b.Reference,
		ShowtimeID:    b.ShowtimeID,
		MovieID:       b.MovieID,
		CinemaID:      b.CinemaID,
		Status:        b.Status,
		PaymentMethod: b.PaymentMethod,
		PaymentRef:    b.PaymentRef,
		CancelReason:  b.CancelReason,
		TotalAmount:   b.TotalAmount,
		Seats:         make([]bookingSeatResponse, 0, len(b.Seats)),
		ConfirmedAt:   b.ConfirmedAt,
		CreatedAt:     b.CreatedAt.UTC(),
	}
	if b.Status == model.BookingPending {
		exp := b.ExpiresAt.UTC()
		out.ExpiresAt = &exp
	}
	for _, s := range b.Seats {
		out.Seats = append(out.Seats, bookingSeatResponse{SeatID: s.SeatID, Label: s.Label(), Type: s.Type, Price: s.Price})
	}
	return out
}
