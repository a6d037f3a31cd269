package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// SeatInventory claims and releases seats of a showtime.  A claim changes
// every requested seat or none of them.
type SeatInventory struct {
	db        *sql.DB
	seats     *repository.SeatRepo
	showtimes *repository.ShowtimeRepo
	log       *zap.Logger
}

func NewSeatInventory(db *sql.DB, seats *repository.SeatRepo, showtimes *repository.ShowtimeRepo, log *zap.Logger) *SeatInventory {
	if log == nil {
		log = zap.NewNop()
	}
	return &SeatInventory{db: db, seats: seats, showtimes: showtimes, log: log.Named("inventory")}
}

// SeatView is one entry of a seat map.
type SeatView struct {
	ID        uint64         `json:"id"`
	Label     string         `json:"label"`
	Row       string         `json:"row"`
	Number    uint32         `json:"number"`
	Type      model.SeatType `json:"type"`
	Price     int64          `json:"price"`
	Available bool           `json:"available"`
}

// SeatMap is the client read model of a showtime's seats.
type SeatMap struct {
	ShowtimeID     uint64     `json:"showtime_id"`
	AvailableSeats int        `json:"available_seats"`
	Seats          []SeatView `json:"seats"`
}

// Claim runs ClaimTx in its own transaction.
func (s *SeatInventory) Claim(ctx context.Context, showtimeID, bookingID uint64, seatIDs []uint64) error {
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.ClaimTx(ctx, tx, showtimeID, bookingID, seatIDs)
	})
	return classify("claim seats", err)
}

// ClaimTx holds every seat in seatIDs for bookingID with one conditional
// update.  When any seat is taken, unknown or belongs to another showtime
// it returns a *ConflictError and the caller must roll tx back.
func (s *SeatInventory) ClaimTx(ctx context.Context, tx *sql.Tx, showtimeID, bookingID uint64, seatIDs []uint64) error {
	ids := uniqueIDs(seatIDs)
	if len(ids) == 0 {
		return validation("at least one seat is required")
	}
	n, err := s.seats.ClaimTx(ctx, tx, showtimeID, bookingID, ids)
	if err != nil {
		return persistence("claim seats", err)
	}
	if n == int64(len(ids)) {
		return nil
	}
	bad, err := s.seats.UnclaimableTx(ctx, tx, showtimeID, bookingID, ids)
	if err != nil {
		return persistence("claim seats", err)
	}
	s.log.Debug("claim conflict",
		zap.Uint64("showtime_id", showtimeID),
		zap.Uint64("booking_id", bookingID),
		zap.Uint64s("seat_ids", bad))
	return &ConflictError{ShowtimeID: showtimeID, SeatIDs: bad}
}

// Release runs ReleaseTx in its own transaction.
func (s *SeatInventory) Release(ctx context.Context, showtimeID, bookingID uint64, seatIDs []uint64) error {
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.ReleaseTx(ctx, tx, showtimeID, bookingID, seatIDs)
	})
	return classify("release seats", err)
}

// ReleaseTx frees the seats that bookingID holds.  Seats already free or
// held by another booking are skipped, so releasing twice is harmless.
func (s *SeatInventory) ReleaseTx(ctx context.Context, tx *sql.Tx, showtimeID, bookingID uint64, seatIDs []uint64) error {
	ids := uniqueIDs(seatIDs)
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.seats.ReleaseTx(ctx, tx, showtimeID, bookingID, ids); err != nil {
		return persistence("release seats", err)
	}
	return nil
}

// SeatMap returns every seat of a showtime with its price and
// availability.
func (s *SeatInventory) SeatMap(ctx context.Context, showtimeID uint64) (*SeatMap, error) {
	st, err := s.showtimes.GetByID(ctx, showtimeID)
	if err != nil {
		return nil, mapRepoErr("seat map", err)
	}
	seats, err := s.seats.ListByShowtime(ctx, showtimeID)
	if err != nil {
		return nil, persistence("seat map", err)
	}
	out := &SeatMap{ShowtimeID: st.ID, AvailableSeats: st.AvailableSeats, Seats: make([]SeatView, 0, len(seats))}
	for _, seat := range seats {
		out.Seats = append(out.Seats, SeatView{
			ID:        seat.ID,
			Label:     seat.Label(),
			Row:       seat.RowLabel,
			Number:    seat.Number,
			Type:      seat.Type,
			Price:     seat.Type.Price(st.BasePrice),
			Available: seat.IsAvailable,
		})
	}
	return out, nil
}

// uniqueIDs drops zero and repeated IDs and keeps the first occurrence
// order.
func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
