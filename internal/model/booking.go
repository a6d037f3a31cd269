package model

import (
    "strconv"
    "time"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
    BookingPending   BookingStatus = "PENDING"
    BookingConfirmed BookingStatus = "CONFIRMED"
    BookingCancelled BookingStatus = "CANCELLED"
    BookingCompleted BookingStatus = "COMPLETED"
)

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
    return s == BookingCancelled || s == BookingCompleted
}

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
    PaymentCard    PaymentMethod = "CARD"
    PaymentWallet  PaymentMethod = "WALLET"
    PaymentBanking PaymentMethod = "BANKING"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
    switch m {
    case PaymentCard, PaymentWallet, PaymentBanking:
        return true
    }
    return false
}

// Booking is the aggregate root of a purchase.  It references seats by ID
// rather than embedding them because seat availability is shared across
// concurrent bookings of the same showtime.
//
// Fields:
//  ID            – primary key identifier.
//  Reference     – public booking code (UUID) shown on tickets.
//  UserID        – customer who booked.
//  ShowtimeID    – showtime being booked.
//  MovieID       – copied from the showtime.
//  CinemaID      – copied from the showtime.
//  Seats         – seats in the order they were requested.
//  TotalAmount   – sum of seat prices in currency units.
//  Status        – PENDING, CONFIRMED, CANCELLED or COMPLETED.
//  PaymentMethod – CARD, WALLET or BANKING.
//  PaymentRef    – provider transaction reference once paid.
//  CancelReason  – why the booking was cancelled.
//  ExpiresAt     – PENDING bookings past this instant are reclaimed.
type Booking struct {
    ID            uint64        // bookings.id
    Reference     string        // bookings.reference
    UserID        uint64        // bookings.user_id
    ShowtimeID    uint64        // bookings.showtime_id
    MovieID       uint64        // bookings.movie_id
    CinemaID      uint64        // bookings.cinema_id
    Seats         []BookingSeat // booking_seats rows
    TotalAmount   int64         // bookings.total_amount
    Status        BookingStatus // bookings.status
    PaymentMethod PaymentMethod // bookings.payment_method
    PaymentRef    *string       // bookings.payment_ref (nullable)
    CancelReason  *string       // bookings.cancel_reason (nullable)
    ExpiresAt     time.Time     // bookings.expires_at
    ConfirmedAt   *time.Time    // bookings.confirmed_at (nullable)
    CreatedAt     time.Time     // bookings.created_at
    UpdatedAt     time.Time     // bookings.updated_at
}

// SeatIDs returns the booked seat IDs in booking order.
func (b *Booking) SeatIDs() []uint64 {
    ids := make([]uint64, 0, len(b.Seats))
    for _, s := range b.Seats {
        ids = append(ids, s.SeatID)
    }
    return ids
}

// BookingSeat links a booking to a seat and records the price charged for
// it at booking time.
type BookingSeat struct {
    BookingID uint64   // booking_seats.booking_id
    SeatID    uint64   // booking_seats.seat_id
    Position  int      // booking_seats.position (request order)
    RowLabel  string   // seats.row_label (joined)
    Number    uint32   // seats.seat_number (joined)
    Type      SeatType // seats.seat_type (joined)
    Price     int64    // booking_seats.price
}

// Label renders the booked seat as row+number, e.g. "C7".
func (s BookingSeat) Label() string {
    return s.RowLabel + strconv.FormatUint(uint64(s.Number), 10)
}

// SeatLabels returns the labels of the booked seats in booking order.
func (b *Booking) SeatLabels() []string {
    out := make([]string, 0, len(b.Seats))
    for _, s := range b.Seats {
        out = append(out, s.Label())
    }
    return out
}
