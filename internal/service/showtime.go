package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// Layout limits.
const (
	MaxRows        = 52
	MaxSeatsPerRow = 100
)

// ShowtimeService schedules showtimes and generates their seats.
type ShowtimeService struct {
	db        *sql.DB
	showtimes *repository.ShowtimeRepo
	seats     *repository.SeatRepo
	log       *zap.Logger
}

func NewShowtimeService(db *sql.DB, showtimes *repository.ShowtimeRepo, seats *repository.SeatRepo, log *zap.Logger) *ShowtimeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShowtimeService{db: db, showtimes: showtimes, seats: seats, log: log.Named("showtime")}
}

// CreateShowtimeRequest describes a new showtime and its seat layout.
// RowTypes maps a row label to the seat type of that whole row; rows not
// listed are STANDARD.
type CreateShowtimeRequest struct {
	MovieID     uint64
	MovieTitle  string
	CinemaID    uint64
	CinemaName  string
	Screen      string
	StartsAt    time.Time
	EndsAt      time.Time
	BasePrice   int64
	Rows        int
	SeatsPerRow int
	RowTypes    map[string]model.SeatType
}

func (r *CreateShowtimeRequest) normalize() error {
	r.MovieTitle = strings.TrimSpace(r.MovieTitle)
	r.CinemaName = strings.TrimSpace(r.CinemaName)
	r.Screen = strings.TrimSpace(r.Screen)
	switch {
	case r.MovieID == 0 || r.CinemaID == 0:
		return validation("movie_id and cinema_id are required")
	case r.MovieTitle == "":
		return validation("movie_title is required")
	case r.Screen == "":
		return validation("screen is required")
	case r.StartsAt.IsZero() || !r.EndsAt.After(r.StartsAt):
		return validation("ends_at must be after starts_at")
	case r.BasePrice < 0:
		return validation("base_price must not be negative")
	case r.Rows <= 0 || r.Rows > MaxRows:
		return validation("rows must be between 1 and %d", MaxRows)
	case r.SeatsPerRow <= 0 || r.SeatsPerRow > MaxSeatsPerRow:
		return validation("seats_per_row must be between 1 and %d", MaxSeatsPerRow)
	}
	types := make(map[string]model.SeatType, len(r.RowTypes))
	for label, t := range r.RowTypes {
		label = NormalizeRowLabel(label)
		idx, ok := RowLabelToIndex(label)
		if !ok || idx >= r.Rows {
			return validation("row %q is not part of the layout", label)
		}
		t = model.SeatType(strings.ToUpper(string(t)))
		if !t.Valid() {
			return validation("unknown seat type %q", t)
		}
		types[label] = t
	}
	r.RowTypes = types
	return nil
}

// CreateShowtime inserts the showtime and all of its seats in one
// transaction.  A showtime overlapping another one on the same screen is
// rejected with ErrScheduleOverlap.
func (s *ShowtimeService) CreateShowtime(ctx context.Context, req CreateShowtimeRequest) (*model.Showtime, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	st := &model.Showtime{
		MovieID:        req.MovieID,
		MovieTitle:     req.MovieTitle,
		CinemaID:       req.CinemaID,
		CinemaName:     req.CinemaName,
		Screen:         req.Screen,
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         req.EndsAt.UTC(),
		BasePrice:      req.BasePrice,
		AvailableSeats: req.Rows * req.SeatsPerRow,
	}
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		overlap, err := s.showtimes.HasOverlapTx(ctx, tx, st.CinemaID, st.Screen, st.StartsAt, st.EndsAt)
		if err != nil {
			return persistence("check overlap", err)
		}
		if overlap {
			return ErrScheduleOverlap
		}
		if err := s.showtimes.CreateTx(ctx, tx, st); err != nil {
			return persistence("insert showtime", err)
		}
		return persistence("insert seats", s.seats.CreateBulkTx(ctx, tx, layoutSeats(st.ID, req)))
	})
	if err != nil {
		return nil, classify("create showtime", err)
	}
	s.log.Info("showtime created",
		zap.Uint64("showtime_id", st.ID),
		zap.Uint64("cinema_id", st.CinemaID),
		zap.String("screen", st.Screen),
		zap.Int("seats", st.AvailableSeats))
	return st, nil
}

func layoutSeats(showtimeID uint64, req CreateShowtimeRequest) []model.Seat {
	seats := make([]model.Seat, 0, req.Rows*req.SeatsPerRow)
	for r := 0; r < req.Rows; r++ {
		label := IndexToRowLabel(r)
		t, ok := req.RowTypes[label]
		if !ok {
			t = model.SeatStandard
		}
		for n := 1; n <= req.SeatsPerRow; n++ {
			seats = append(seats, model.Seat{ShowtimeID: showtimeID, RowLabel: label, Number: uint32(n), Type: t})
		}
	}
	return seats
}

// GetShowtime returns one showtime.
func (s *ShowtimeService) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	st, err := s.showtimes.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("get showtime", err)
	}
	return st, nil
}

// ListUpcoming returns showtimes starting after now.
func (s *ShowtimeService) ListUpcoming(ctx context.Context, limit int) ([]model.Showtime, error) {
	list, err := s.showtimes.ListUpcoming(ctx, time.Now(), limit)
	if err != nil {
		return nil, persistence("list showtimes", err)
	}
	return list, nil
}

// IndexToRowLabel converts a zero-based index to a row label: A..Z, AA, AB...
func IndexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []rune
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// RowLabelToIndex is the inverse of IndexToRowLabel.
func RowLabelToIndex(label string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if s == "" {
		return -1, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 'A' || ch > 'Z' {
			return -1, false
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1, true
}

// NormalizeRowLabel keeps ASCII letters only, upper-cased.
func NormalizeRowLabel(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}
