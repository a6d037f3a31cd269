package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// Cancellation reasons recorded on bookings.
const (
	ReasonExpired        = "expired"
	ReasonPaymentFailed  = "payment_failed"
	ReasonAbandoned      = "abandoned"
	ReasonCustomerCancel = "cancelled_by_customer"
)

// EventPublisher receives booking events after they are committed.
type EventPublisher interface {
	BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	BookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error
}

// ShowtimeCache drops cached showtime reads that a confirmation made stale.
type ShowtimeCache interface {
	InvalidateShowtime(ctx context.Context, id uint64) error
}

// BookingService drives the booking state machine:
//
//	PENDING -> CONFIRMED -> COMPLETED
//	PENDING -> CANCELLED
//
// Every transition is a conditional update on the current status, so of
// two racing transitions only one can win.
type BookingService struct {
	db         *sql.DB
	showtimes  *repository.ShowtimeRepo
	seats      *repository.SeatRepo
	bookings   *repository.BookingRepo
	inventory  *SeatInventory
	members    *MembershipService
	events     EventPublisher
	cache      ShowtimeCache
	pendingTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// NewBookingService wires the state machine.  pendingTTL bounds how long a
// PENDING booking may hold its seats.
func NewBookingService(
	db *sql.DB,
	showtimes *repository.ShowtimeRepo,
	seats *repository.SeatRepo,
	bookings *repository.BookingRepo,
	inventory *SeatInventory,
	members *MembershipService,
	pendingTTL time.Duration,
	log *zap.Logger,
) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	if pendingTTL <= 0 {
		pendingTTL = 10 * time.Minute
	}
	return &BookingService{
		db:         db,
		showtimes:  showtimes,
		seats:      seats,
		bookings:   bookings,
		inventory:  inventory,
		members:    members,
		pendingTTL: pendingTTL,
		log:        log.Named("booking"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents sets the publisher used after commits.
func (s *BookingService) WithEvents(p EventPublisher) *BookingService {
	s.events = p
	return s
}

// WithShowtimeCache sets the cache invalidated on confirmation.
func (s *BookingService) WithShowtimeCache(c ShowtimeCache) *BookingService {
	s.cache = c
	return s
}

// CreateBookingRequest is the input of CreateBooking.
type CreateBookingRequest struct {
	UserID        uint64
	Email         string
	ShowtimeID    uint64
	SeatIDs       []uint64
	PaymentMethod model.PaymentMethod
}

// CreateBooking prices the requested seats, inserts a PENDING booking and
// claims the seats in the same transaction.  If any seat cannot be claimed
// the transaction is rolled back, no booking exists afterwards and a
// *ConflictError is returned.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*model.Booking, error) {
	if req.UserID == 0 {
		return nil, validation("user id is required")
	}
	ids := uniqueIDs(req.SeatIDs)
	if len(ids) == 0 {
		return nil, validation("at least one seat is required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, validation("unsupported payment method %q", req.PaymentMethod)
	}

	st, err := s.showtimes.GetByID(ctx, req.ShowtimeID)
	if err != nil {
		return nil, mapRepoErr("load showtime", err)
	}
	now := s.now()
	if st.Started(now) {
		return nil, validation("showtime %d already started", st.ID)
	}
	if err := s.members.Register(ctx, req.UserID, req.Email); err != nil {
		return nil, err
	}

	found, err := s.seats.GetByIDs(ctx, st.ID, ids)
	if err != nil {
		return nil, persistence("load seats", err)
	}
	byID := make(map[uint64]model.Seat, len(found))
	for _, seat := range found {
		byID[seat.ID] = seat
	}
	b := &model.Booking{
		Reference:     uuid.NewString(),
		UserID:        req.UserID,
		ShowtimeID:    st.ID,
		MovieID:       st.MovieID,
		CinemaID:      st.CinemaID,
		Status:        model.BookingPending,
		PaymentMethod: req.PaymentMethod,
		ExpiresAt:     now.Add(s.pendingTTL),
	}
	var unknown []uint64
	for i, id := range ids {
		seat, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		price := seat.Type.Price(st.BasePrice)
		b.TotalAmount += price
		b.Seats = append(b.Seats, model.BookingSeat{
			SeatID:   id,
			Position: i,
			RowLabel: seat.RowLabel,
			Number:   seat.Number,
			Type:     seat.Type,
			Price:    price,
		})
	}
	if len(unknown) > 0 {
		return nil, &ConflictError{ShowtimeID: st.ID, SeatIDs: unknown}
	}

	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.bookings.CreateTx(ctx, tx, b); err != nil {
			return persistence("insert booking", err)
		}
		if err := s.bookings.CreateSeatsTx(ctx, tx, b.Seats); err != nil {
			return persistence("insert booking seats", err)
		}
		return s.inventory.ClaimTx(ctx, tx, st.ID, b.ID, ids)
	})
	if err != nil {
		return nil, classify("create booking", err)
	}
	s.log.Info("booking created",
		zap.Uint64("booking_id", b.ID),
		zap.String("reference", b.Reference),
		zap.Uint64("user_id", b.UserID),
		zap.Uint64("showtime_id", b.ShowtimeID),
		zap.Int("seats", len(b.Seats)),
		zap.Int64("total", b.TotalAmount))
	return b, nil
}

// Confirmation is the outcome of a successful ConfirmBooking.
type Confirmation struct {
	Booking      *model.Booking
	PointsEarned int64
	Tier         model.Tier
}

// ConfirmBooking moves a PENDING booking to CONFIRMED, lowers the
// showtime's available seat counter and credits the customer's points in
// one transaction.  Any other status yields *InvalidStateError and nothing
// changes.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID uint64, paymentRef string) (*Confirmation, error) {
	var (
		out *Confirmation
		st  *model.Showtime
	)
	now := s.now()
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := s.bookings.GetByIDTx(ctx, tx, bookingID)
		if err != nil {
			return mapRepoErr("load booking", err)
		}
		ok, err := s.bookings.ConfirmTx(ctx, tx, bookingID, paymentRef, now)
		if err != nil {
			return persistence("confirm booking", err)
		}
		if !ok {
			return s.invalidState(ctx, tx, b, "confirm")
		}
		if err := s.showtimes.DecrementAvailableTx(ctx, tx, b.ShowtimeID, len(b.Seats)); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				err = fmt.Errorf("available seats of showtime %d would go negative", b.ShowtimeID)
			}
			return persistence("decrement available seats", err)
		}
		u, earned, err := s.members.addPointsTx(ctx, tx, b.UserID, b.TotalAmount)
		if err != nil {
			return err
		}
		if st, err = s.showtimes.GetByIDTx(ctx, tx, b.ShowtimeID); err != nil {
			return persistence("load showtime", err)
		}

		b.Status = model.BookingConfirmed
		b.PaymentRef = &paymentRef
		b.ConfirmedAt = &now
		b.UpdatedAt = now
		out = &Confirmation{Booking: b, PointsEarned: earned, Tier: u.MembershipLevel}
		return nil
	})
	if err != nil {
		return nil, classify("confirm booking", err)
	}

	b := out.Booking
	s.log.Info("booking confirmed",
		zap.Uint64("booking_id", b.ID),
		zap.Uint64("user_id", b.UserID),
		zap.Int64("points", out.PointsEarned),
		zap.String("tier", string(out.Tier)))
	s.afterCommit(ctx, func(ctx context.Context) {
		if s.cache != nil {
			if err := s.cache.InvalidateShowtime(ctx, b.ShowtimeID); err != nil {
				s.log.Warn("invalidate showtime cache", zap.Uint64("showtime_id", b.ShowtimeID), zap.Error(err))
			}
		}
		if s.events != nil {
			_ = s.events.BookingConfirmed(ctx, queue.BookingConfirmedEvent{
				BookingID:      b.ID,
				Reference:      b.Reference,
				UserID:         b.UserID,
				ShowtimeID:     b.ShowtimeID,
				CinemaID:       st.CinemaID,
				CinemaName:     st.CinemaName,
				Screen:         st.Screen,
				MovieTitle:     st.MovieTitle,
				StartsAt:       st.StartsAt.Format(time.RFC3339),
				SeatLabels:     b.SeatLabels(),
				TotalAmount:    b.TotalAmount,
				PointsEarned:   out.PointsEarned,
				MembershipTier: string(out.Tier),
				ConfirmedAt:    now.Format(time.RFC3339),
			})
		}
	})
	return out, nil
}

// CancelBooking moves a PENDING booking to CANCELLED and releases its seats
// in one transaction.  Any other status yields *InvalidStateError.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uint64, reason string) (*model.Booking, error) {
	now := s.now()
	var out *model.Booking
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := s.bookings.GetByIDTx(ctx, tx, bookingID)
		if err != nil {
			return mapRepoErr("load booking", err)
		}
		ok, err := s.bookings.CancelTx(ctx, tx, bookingID, reason, now)
		if err != nil {
			return persistence("cancel booking", err)
		}
		if !ok {
			return s.invalidState(ctx, tx, b, "cancel")
		}
		if err := s.inventory.ReleaseTx(ctx, tx, b.ShowtimeID, b.ID, b.SeatIDs()); err != nil {
			return err
		}
		b.Status = model.BookingCancelled
		b.CancelReason = &reason
		b.UpdatedAt = now
		out = b
		return nil
	})
	if err != nil {
		return nil, classify("cancel booking", err)
	}

	s.log.Info("booking cancelled", zap.Uint64("booking_id", out.ID), zap.String("reason", reason))
	s.afterCommit(ctx, func(ctx context.Context) {
		if s.events != nil {
			_ = s.events.BookingCancelled(ctx, queue.BookingCancelledEvent{
				BookingID:   out.ID,
				Reference:   out.Reference,
				UserID:      out.UserID,
				ShowtimeID:  out.ShowtimeID,
				SeatLabels:  out.SeatLabels(),
				Reason:      reason,
				CancelledAt: now.Format(time.RFC3339),
			})
		}
	})
	return out, nil
}

// CancelForUser cancels a booking on behalf of its owner.  Other users'
// bookings are reported as not found.
func (s *BookingService) CancelForUser(ctx context.Context, userID, bookingID uint64) (*model.Booking, error) {
	if _, err := s.GetBooking(ctx, userID, bookingID); err != nil {
		return nil, err
	}
	return s.CancelBooking(ctx, bookingID, ReasonCustomerCancel)
}

// invalidState re-reads the booking inside tx so the error carries the
// status that actually blocked the transition.
func (s *BookingService) invalidState(ctx context.Context, tx *sql.Tx, b *model.Booking, op string) error {
	status := b.Status
	if cur, err := s.bookings.GetByIDTx(ctx, tx, b.ID); err == nil {
		status = cur.Status
	}
	return &InvalidStateError{BookingID: b.ID, Status: status, Op: op}
}

// afterCommit runs side effects on a context that survives the caller's
// cancellation but not forever.
func (s *BookingService) afterCommit(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	fn(ctx)
}

// GetBooking returns one of userID's bookings.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID uint64) (*model.Booking, error) {
	b, err := s.bookings.GetForUser(ctx, bookingID, userID)
	if err != nil {
		return nil, mapRepoErr("get booking", err)
	}
	return b, nil
}

// ListBookings returns userID's bookings, newest first.
func (s *BookingService) ListBookings(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	list, err := s.bookings.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, persistence("list bookings", err)
	}
	return list, nil
}

// ExpirePending cancels PENDING bookings whose hold expired by now and
// releases their seats.  A booking confirmed in the meantime is skipped.
// It returns how many bookings were cancelled.
func (s *BookingService) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.bookings.ListExpiredPending(ctx, now, 100)
	if err != nil {
		return 0, persistence("list expired bookings", err)
	}
	n := 0
	for _, b := range expired {
		if _, err := s.CancelBooking(ctx, b.ID, ReasonExpired); err != nil {
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// CompleteFinished moves CONFIRMED bookings of ended showtimes to
// COMPLETED.
func (s *BookingService) CompleteFinished(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.bookings.CompleteFinished(ctx, now)
	if err != nil {
		return 0, persistence("complete bookings", err)
	}
	return n, nil
}

// RunReclaimer expires abandoned PENDING bookings and completes finished
// ones every interval until ctx is done.
func (s *BookingService) RunReclaimer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("reclaimer started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reclaimer stopped")
			return
		case <-ticker.C:
			s.reclaimOnce(ctx)
		}
	}
}

func (s *BookingService) reclaimOnce(ctx context.Context) {
	now := s.now()
	expired, err := s.ExpirePending(ctx, now)
	if err != nil {
		s.log.Error("expire pending bookings", zap.Error(err))
	}
	completed, err := s.CompleteFinished(ctx, now)
	if err != nil {
		s.log.Error("complete finished bookings", zap.Error(err))
	}
	if expired > 0 || completed > 0 {
		s.log.Info("reclaimer pass", zap.Int("expired", expired), zap.Int64("completed", completed))
	}
}
