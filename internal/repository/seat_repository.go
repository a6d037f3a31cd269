package repository // repository defines data access for showtime seats

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// SeatRepo provides access to the seats of a showtime.  Availability is
// only ever changed through ClaimTx and ReleaseTx, each a single
// conditional UPDATE, never a read followed by a write.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, showtime_id, row_label, seat_number, seat_type, is_available, booking_id, version, updated_at`

// CreateBulkTx inserts multiple seats in a single statement.  All seats
// start available.
func (r *SeatRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	now := toMillis(time.Now())
	query := `INSERT INTO seats (showtime_id, row_label, seat_number, seat_type, is_available, version, updated_at) VALUES `
	args := make([]any, 0, len(seats)*5)
	for i, seat := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, 1, 0, ?)"
		args = append(args, seat.ShowtimeID, seat.RowLabel, seat.Number, string(seat.Type), now)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListByShowtime retrieves all seats of a showtime ordered by row then
// seat number.  Rows sort by label length first so that "AA" follows "Z".
func (r *SeatRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+seatColumns+` FROM seats WHERE showtime_id = ?
		 ORDER BY LENGTH(row_label), row_label, seat_number`, showtimeID)
	if err != nil {
		return nil, err
	}
	return collectSeats(rows)
}

// GetByIDs returns the requested seats of a showtime.  Seats that do not
// exist or belong to another showtime are simply absent from the result.
func (r *SeatRepo) GetByIDs(ctx context.Context, showtimeID uint64, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return []model.Seat{}, nil
	}
	args := append([]any{showtimeID}, uint64Args(ids)...)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+seatColumns+" FROM seats WHERE showtime_id = ? AND id IN ("+inClause(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	return collectSeats(rows)
}

func collectSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	out := make([]model.Seat, 0)
	for rows.Next() {
		var (
			s         model.Seat
			seatType  string
			bookingID sql.NullInt64
			updated   int64
		)
		if err := rows.Scan(&s.ID, &s.ShowtimeID, &s.RowLabel, &s.Number, &seatType,
			&s.IsAvailable, &bookingID, &s.Version, &updated); err != nil {
			return nil, err
		}
		s.Type = model.SeatType(seatType)
		if bookingID.Valid {
			b := uint64(bookingID.Int64)
			s.BookingID = &b
		}
		s.UpdatedAt = fromMillis(updated)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimTx marks every requested seat as held by bookingID, but only the
// seats that are currently available.  It returns how many rows changed;
// the caller compares that with len(seatIDs) and rolls the transaction
// back on a shortfall so a claim is all-or-nothing.
func (r *SeatRepo) ClaimTx(ctx context.Context, tx *sql.Tx, showtimeID, bookingID uint64, seatIDs []uint64) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	args := append([]any{bookingID, toMillis(time.Now()), showtimeID}, uint64Args(seatIDs)...)
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET is_available = 0, booking_id = ?, version = version + 1, updated_at = ?
		 WHERE showtime_id = ? AND is_available = 1 AND id IN (`+inClause(len(seatIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnclaimableTx returns the requested seat IDs that bookingID does not
// hold and cannot hold: seats taken by someone else, seats of another
// showtime and unknown seats.  It is used after a short ClaimTx to report
// which seats caused the conflict.
func (r *SeatRepo) UnclaimableTx(ctx context.Context, tx *sql.Tx, showtimeID, bookingID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return []uint64{}, nil
	}
	args := append([]any{showtimeID, bookingID}, uint64Args(seatIDs)...)
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM seats
		 WHERE showtime_id = ? AND (is_available = 1 OR booking_id = ?) AND id IN (`+inClause(len(seatIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ok := make(map[uint64]struct{}, len(seatIDs))
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ok[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	bad := make([]uint64, 0, len(seatIDs)-len(ok))
	for _, id := range seatIDs {
		if _, found := ok[id]; !found {
			bad = append(bad, id)
		}
	}
	return bad, nil
}

// ReleaseTx makes the seats held by bookingID available again.  Seats
// that are already available or held by another booking are left alone,
// so releasing twice is a no-op.  It returns how many seats were freed.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, showtimeID, bookingID uint64, seatIDs []uint64) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	args := append([]any{toMillis(time.Now()), showtimeID, bookingID}, uint64Args(seatIDs)...)
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET is_available = 1, booking_id = NULL, version = version + 1, updated_at = ?
		 WHERE showtime_id = ? AND booking_id = ? AND id IN (`+inClause(len(seatIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
