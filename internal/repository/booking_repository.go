package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// BookingRepo provides persistence for bookings and their seats.  Status
// changes are conditional on the current status so two racing transitions
// of the same booking cannot both succeed.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, reference, user_id, showtime_id, movie_id, cinema_id, total_amount, status,
	payment_method, payment_ref, cancel_reason, expires_at, confirmed_at, created_at, updated_at`

// CreateTx inserts a booking within the scope of an existing transaction
// and populates its generated ID and timestamps.  Seats are written
// separately with CreateSeatsTx.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	now := toMillis(time.Now())
	const q = `INSERT INTO bookings (reference, user_id, showtime_id, movie_id, cinema_id, total_amount,
	           status, payment_method, expires_at, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		b.Reference, b.UserID, b.ShowtimeID, b.MovieID, b.CinemaID, b.TotalAmount,
		string(b.Status), string(b.PaymentMethod), toMillis(b.ExpiresAt), now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt = fromMillis(now)
	b.UpdatedAt = b.CreatedAt
	for i := range b.Seats {
		b.Seats[i].BookingID = b.ID
	}
	return nil
}

// CreateSeatsTx inserts the booking_seats rows of a booking in a single
// statement.  Passing an empty slice has no effect.
func (r *BookingRepo) CreateSeatsTx(ctx context.Context, tx *sql.Tx, seats []model.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id, position, price) VALUES `
	args := make([]any, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, s.BookingID, s.SeatID, s.Position, s.Price)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a booking with its seats.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, r.db, id)
}

// GetByIDTx returns a booking with its seats inside the caller's
// transaction.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	return getBooking(ctx, tx, id)
}

// GetForUser returns a booking only when it belongs to userID.  It returns
// ErrForbidden for another user's booking.
func (r *BookingRepo) GetForUser(ctx context.Context, id, userID uint64) (*model.Booking, error) {
	b, err := getBooking(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrForbidden
	}
	return b, nil
}

func getBooking(ctx context.Context, q querier, id uint64) (*model.Booking, error) {
	row := q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if b.Seats, err = bookingSeats(ctx, q, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b                         model.Booking
		status, method            string
		payRef, reason            sql.NullString
		expires, created, updated int64
		confirmed                 sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.Reference, &b.UserID, &b.ShowtimeID, &b.MovieID, &b.CinemaID,
		&b.TotalAmount, &status, &method, &payRef, &reason, &expires, &confirmed, &created, &updated); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.PaymentMethod = model.PaymentMethod(method)
	b.PaymentRef = nullString(payRef)
	b.CancelReason = nullString(reason)
	b.ExpiresAt = fromMillis(expires)
	b.ConfirmedAt = nullMillis(confirmed)
	b.CreatedAt = fromMillis(created)
	b.UpdatedAt = fromMillis(updated)
	return &b, nil
}

func bookingSeats(ctx context.Context, q querier, bookingID uint64) ([]model.BookingSeat, error) {
	const seatQ = `SELECT bs.booking_id, bs.seat_id, bs.position, se.row_label, se.seat_number, se.seat_type, bs.price
	               FROM booking_seats bs
	               JOIN seats se ON se.id = bs.seat_id
	               WHERE bs.booking_id = ?
	               ORDER BY bs.position`
	rows, err := q.QueryContext(ctx, seatQ, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BookingSeat, 0)
	for rows.Next() {
		var (
			s        model.BookingSeat
			seatType string
		)
		if err := rows.Scan(&s.BookingID, &s.SeatID, &s.Position, &s.RowLabel, &s.Number, &seatType, &s.Price); err != nil {
			return nil, err
		}
		s.Type = model.SeatType(seatType)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByUser returns the bookings of a user, newest first.  Seats are
// loaded for every booking.  A non-positive limit defaults to 20.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	list, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Seats, err = bookingSeats(ctx, r.db, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ConfirmTx moves a PENDING booking to CONFIRMED and records the payment
// reference.  It reports false when the booking was not PENDING.
func (r *BookingRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64, paymentRef string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, payment_ref = ?, confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.BookingConfirmed), paymentRef, toMillis(now), toMillis(now), id, string(model.BookingPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CancelTx moves a PENDING booking to CANCELLED.  It reports false when
// the booking was not PENDING.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64, reason string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, cancel_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.BookingCancelled), reason, toMillis(now), id, string(model.BookingPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompleteFinished marks every CONFIRMED booking whose showtime has ended
// by now as COMPLETED and returns how many were changed.
func (r *BookingRepo) CompleteFinished(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ?
		 WHERE status = ? AND showtime_id IN (SELECT id FROM showtimes WHERE ends_at <= ?)`,
		string(model.BookingCompleted), toMillis(now), string(model.BookingConfirmed), toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListExpiredPending returns up to limit PENDING bookings whose hold
// expired at or before now, oldest first.  Seats are included so the
// caller can release them.
func (r *BookingRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE status = ? AND expires_at <= ? ORDER BY expires_at, id LIMIT ?",
		string(model.BookingPending), toMillis(now), limit)
	if err != nil {
		return nil, err
	}
	list, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Seats, err = bookingSeats(ctx, r.db, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}
