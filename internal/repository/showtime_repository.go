// Package repository contains data access logic.  This file covers
// showtimes: a scheduled screening of a movie on one screen of a cinema,
// with the counter of seats that are not yet confirmed.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// ErrShowtimeNotFound indicates that a showtime was not located in the DB.
var ErrShowtimeNotFound = errors.New("showtime not found")

// ShowtimeRepo manages persistence for showtimes.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo constructs a ShowtimeRepo with the given DB handle.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo {
	return &ShowtimeRepo{db: db}
}

// DB exposes the underlying sql.DB so services can begin transactions
// spanning several repositories.
func (r *ShowtimeRepo) DB() *sql.DB {
	return r.db
}

const showtimeColumns = `id, movie_id, movie_title, cinema_id, cinema_name, screen,
	starts_at, ends_at, base_price, available_seats, created_at, updated_at`

// CreateTx inserts a new showtime inside the caller's transaction and
// populates its ID and timestamps.
func (r *ShowtimeRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Showtime) error {
	now := time.Now().UTC()
	const q = `INSERT INTO showtimes (movie_id, movie_title, cinema_id, cinema_name, screen,
	           starts_at, ends_at, base_price, available_seats, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		s.MovieID, s.MovieTitle, s.CinemaID, s.CinemaName, s.Screen,
		toMillis(s.StartsAt), toMillis(s.EndsAt), s.BasePrice, s.AvailableSeats,
		toMillis(now), toMillis(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt = fromMillis(toMillis(now))
	s.UpdatedAt = s.CreatedAt
	return nil
}

// GetByID retrieves a showtime by its id.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
	return getShowtime(ctx, r.db, id)
}

// GetByIDTx retrieves a showtime inside the caller's transaction.
func (r *ShowtimeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	return getShowtime(ctx, tx, id)
}

func getShowtime(ctx context.Context, q querier, id uint64) (*model.Showtime, error) {
	row := q.QueryRowContext(ctx, "SELECT "+showtimeColumns+" FROM showtimes WHERE id = ?", id)
	s, err := scanShowtime(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowtimeNotFound
		}
		return nil, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShowtime(row rowScanner) (*model.Showtime, error) {
	var (
		s                          model.Showtime
		starts, ends, created, upd int64
	)
	if err := row.Scan(&s.ID, &s.MovieID, &s.MovieTitle, &s.CinemaID, &s.CinemaName, &s.Screen,
		&starts, &ends, &s.BasePrice, &s.AvailableSeats, &created, &upd); err != nil {
		return nil, err
	}
	s.StartsAt = fromMillis(starts)
	s.EndsAt = fromMillis(ends)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(upd)
	return &s, nil
}

// ListUpcoming returns showtimes that start after now ordered by start
// time.  A non-positive limit defaults to 50.
func (r *ShowtimeRepo) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]model.Showtime, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+showtimeColumns+" FROM showtimes WHERE starts_at > ? ORDER BY starts_at, id LIMIT ?",
		toMillis(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Showtime, 0)
	for rows.Next() {
		s, err := scanShowtime(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// HasOverlapTx reports whether another showtime on the same cinema screen
// overlaps [start, end).  A showtime overlaps when it starts before the
// proposed end and ends after the proposed start.
func (r *ShowtimeRepo) HasOverlapTx(ctx context.Context, tx *sql.Tx, cinemaID uint64, screen string, start, end time.Time) (bool, error) {
	const q = `SELECT COUNT(*) FROM showtimes
	           WHERE cinema_id = ? AND screen = ? AND NOT (ends_at <= ? OR starts_at >= ?)`
	var n int
	if err := tx.QueryRowContext(ctx, q, cinemaID, screen, toMillis(start), toMillis(end)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// DecrementAvailableTx lowers available_seats by n only when at least n
// seats remain.  It returns ErrConflict when the counter would go negative
// and ErrShowtimeNotFound when the row does not exist.
func (r *ShowtimeRepo) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, n int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE showtimes SET available_seats = available_seats - ?, updated_at = ?
		 WHERE id = ? AND available_seats >= ?`,
		n, toMillis(time.Now()), id, n)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return nil
	}
	if _, err := getShowtime(ctx, tx, id); err != nil {
		return err
	}
	return ErrConflict
}
