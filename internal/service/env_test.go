package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

const basePrice = 90000

type testEnv struct {
	db        *sql.DB
	users     *repository.UserRepo
	seatRepo  *repository.SeatRepo
	members   *MembershipService
	inventory *SeatInventory
	showtimes *ShowtimeService
	bookings  *BookingService
	events    *recordingPublisher
	cache     *recordingCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "sqlite"))

	users := repository.NewUserRepo(db)
	seats := repository.NewSeatRepo(db)
	showtimes := repository.NewShowtimeRepo(db)
	bookings := repository.NewBookingRepo(db)

	e := &testEnv{db: db, users: users, seatRepo: seats, events: &recordingPublisher{}, cache: &recordingCache{}}
	e.members = NewMembershipService(db, users, nil)
	e.inventory = NewSeatInventory(db, seats, showtimes, nil)
	e.showtimes = NewShowtimeService(db, showtimes, seats, nil)
	e.bookings = NewBookingService(db, showtimes, seats, bookings, e.inventory, e.members, 10*time.Minute, nil).
		WithEvents(e.events).
		WithShowtimeCache(e.cache)
	return e
}

// seedShowtime creates a showtime starting in a day with rows x perRow
// seats and returns it with its seats in row order.
func (e *testEnv) seedShowtime(t *testing.T, rows, perRow int, rowTypes map[string]model.SeatType) (*model.Showtime, []model.Seat) {
	t.Helper()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	return e.seedShowtimeAt(t, start, rows, perRow, rowTypes)
}

var screenSeq struct {
	sync.Mutex
	n int
}

func (e *testEnv) seedShowtimeAt(t *testing.T, start time.Time, rows, perRow int, rowTypes map[string]model.SeatType) (*model.Showtime, []model.Seat) {
	t.Helper()
	screenSeq.Lock()
	screenSeq.n++
	screen := string(rune('A' + screenSeq.n%26))
	screenSeq.Unlock()

	st, err := e.showtimes.CreateShowtime(context.Background(), CreateShowtimeRequest{
		MovieID: 1, MovieTitle: "Heat", CinemaID: 1, CinemaName: "Downtown", Screen: screen,
		StartsAt: start, EndsAt: start.Add(2 * time.Hour), BasePrice: basePrice,
		Rows: rows, SeatsPerRow: perRow, RowTypes: rowTypes,
	})
	require.NoError(t, err)
	seats, err := e.seatRepo.ListByShowtime(context.Background(), st.ID)
	require.NoError(t, err)
	return st, seats
}

func (e *testEnv) seatsByID(t *testing.T, showtimeID uint64, ids ...uint64) map[uint64]model.Seat {
	t.Helper()
	list, err := e.seatRepo.GetByIDs(context.Background(), showtimeID, ids)
	require.NoError(t, err)
	out := make(map[uint64]model.Seat, len(list))
	for _, s := range list {
		out[s.ID] = s
	}
	return out
}

func (e *testEnv) user(t *testing.T, id uint64) *model.User {
	t.Helper()
	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) availableSeats(t *testing.T, showtimeID uint64) int {
	t.Helper()
	st, err := e.showtimes.GetShowtime(context.Background(), showtimeID)
	require.NoError(t, err)
	return st.AvailableSeats
}

func seatIDs(seats ...model.Seat) []uint64 {
	out := make([]uint64, 0, len(seats))
	for _, s := range seats {
		out = append(out, s.ID)
	}
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	confirmed []queue.BookingConfirmedEvent
	cancelled []queue.BookingCancelledEvent
}

func (p *recordingPublisher) BookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, ev)
	return nil
}

func (p *recordingPublisher) BookingCancelled(_ context.Context, ev queue.BookingCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, ev)
	return nil
}

type recordingCache struct {
	mu  sync.Mutex
	ids []uint64
}

func (c *recordingCache) InvalidateShowtime(_ context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	return nil
}
