package model

import (
    "strconv"
    "time"
)

// SeatType is the class of a seat and drives its price.
type SeatType string

const (
    SeatStandard SeatType = "STANDARD"
    SeatPremium  SeatType = "PREMIUM"
    SeatVIP      SeatType = "VIP"
    SeatCouple   SeatType = "COUPLE"
)

// priceMultiplierPct is the share of the showtime base price charged for
// each seat type.
var priceMultiplierPct = map[SeatType]int64{
    SeatStandard: 100,
    SeatPremium:  120,
    SeatVIP:      150,
    SeatCouple:   200,
}

// Valid reports whether t is a known seat type.
func (t SeatType) Valid() bool {
    _, ok := priceMultiplierPct[t]
    return ok
}

// Price returns the price of a seat of this type given the showtime base
// price.  Unknown types are charged as STANDARD.
func (t SeatType) Price(base int64) int64 {
    pct, ok := priceMultiplierPct[t]
    if !ok {
        pct = 100
    }
    return base * pct / 100
}

// Seat is a single seat of a showtime.  A seat is identified by its
// showtime, row label and number; the numeric ID is assigned by the
// database.  IsAvailable is shared mutable state across concurrent
// booking attempts and is only ever changed through a conditional update.
//
// Fields:
//  ID          – primary key identifier.
//  ShowtimeID  – showtime the seat belongs to.
//  RowLabel    – row designation (A, B, ... AA).
//  Number      – 1-based position in the row.
//  Type        – STANDARD, PREMIUM, VIP or COUPLE.
//  IsAvailable – false while claimed by a booking.
//  BookingID   – booking holding the seat (nil when available).
//  Version     – bumped on every claim/release.
type Seat struct {
    ID          uint64    // seats.id
    ShowtimeID  uint64    // seats.showtime_id
    RowLabel    string    // seats.row_label
    Number      uint32    // seats.seat_number
    Type        SeatType  // seats.seat_type
    IsAvailable bool      // seats.is_available
    BookingID   *uint64   // seats.booking_id (nullable)
    Version     uint32    // seats.version
    UpdatedAt   time.Time // seats.updated_at
}

// Label renders the seat as row+number, e.g. "C7".
func (s Seat) Label() string {
    return s.RowLabel + strconv.FormatUint(uint64(s.Number), 10)
}
