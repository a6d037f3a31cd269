// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both queues are durable and use the default exchange.
const (
    BookingConfirmedQueue = "booking.confirmed"
    BookingCancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published when a booking is successfully confirmed.
// It contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type BookingConfirmedEvent struct {
    BookingID      uint64   `json:"booking_id"`
    Reference      string   `json:"reference"`
    UserID         uint64   `json:"user_id"`
    ShowtimeID     uint64   `json:"showtime_id"`
    CinemaID       uint64   `json:"cinema_id"`
    CinemaName     string   `json:"cinema_name"`
    Screen         string   `json:"screen"`
    MovieTitle     string   `json:"movie_title"`
    StartsAt       string   `json:"starts_at"`
    SeatLabels     []string `json:"seats"`
    TotalAmount    int64    `json:"total_amount"`
    PointsEarned   int64    `json:"points_earned"`
    MembershipTier string   `json:"membership_tier"`
    ConfirmedAt    string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a PENDING booking is cancelled,
// either by the customer, by a failed payment or by expiry.
type BookingCancelledEvent struct {
    BookingID   uint64   `json:"booking_id"`
    Reference   string   `json:"reference"`
    UserID      uint64   `json:"user_id"`
    ShowtimeID  uint64   `json:"showtime_id"`
    SeatLabels  []string `json:"seats"`
    Reason      string   `json:"reason"`
    CancelledAt string   `json:"cancelled_at"`
}
