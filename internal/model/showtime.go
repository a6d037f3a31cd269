package model

import "time"

// Showtime represents a scheduled screening of a movie on one screen of a
// cinema.  The movie and cinema are referenced by ID with their display
// names denormalised onto the row so that bookings can be rendered
// without further lookups.
//
// Fields:
//  ID             – primary key identifier.
//  MovieID        – external movie identifier.
//  MovieTitle     – title shown to customers.
//  CinemaID       – external cinema identifier.
//  CinemaName     – cinema display name.
//  Screen         – screen/hall label inside the cinema.
//  StartsAt       – when the screening begins.
//  EndsAt         – when the screening ends (after StartsAt).
//  BasePrice      – price of a STANDARD seat in currency units.
//  AvailableSeats – seats not yet confirmed; decremented on confirmation
//                   only and never negative.
type Showtime struct {
    ID             uint64    // showtimes.id
    MovieID        uint64    // showtimes.movie_id
    MovieTitle     string    // showtimes.movie_title
    CinemaID       uint64    // showtimes.cinema_id
    CinemaName     string    // showtimes.cinema_name
    Screen         string    // showtimes.screen
    StartsAt       time.Time // showtimes.starts_at
    EndsAt         time.Time // showtimes.ends_at
    BasePrice      int64     // showtimes.base_price
    AvailableSeats int       // showtimes.available_seats
    CreatedAt      time.Time // showtimes.created_at
    UpdatedAt      time.Time // showtimes.updated_at
}

// Started reports whether the showtime has begun at now.
func (s Showtime) Started(now time.Time) bool {
    return !now.Before(s.StartsAt)
}
