package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/cache"
	"github.com/iliyamo/cinema-booking/internal/membership"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
)

// ReasonConfirmFailed is recorded when the charge went through but the
// booking could not be confirmed and the charge was refunded.
const ReasonConfirmFailed = "confirmation_failed"

// AttemptLocker guards against a second concurrent payment attempt of the
// same user for the same showtime.
type AttemptLocker interface {
	Acquire(ctx context.Context, userID, showtimeID uint64) (func(context.Context), error)
}

// PaymentOrchestrator runs one payment attempt end to end: create the
// booking (claiming its seats), charge the provider, then confirm or
// cancel.  An attempt always ends CONFIRMED or CANCELLED; a PENDING
// booking is never left behind on purpose.  If even the compensation
// fails, the reclaimer cancels the booking once it expires.
type PaymentOrchestrator struct {
	bookings *BookingService
	provider payment.Provider
	lock     AttemptLocker
	timeout  time.Duration
	log      *zap.Logger
	confirm  func(ctx context.Context, bookingID uint64, paymentRef string) (*Confirmation, error)
}

func NewPaymentOrchestrator(bookings *BookingService, provider payment.Provider, lock AttemptLocker, timeout time.Duration, log *zap.Logger) *PaymentOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	o := &PaymentOrchestrator{bookings: bookings, provider: provider, lock: lock, timeout: timeout, log: log.Named("payment")}
	o.confirm = bookings.ConfirmBooking
	return o
}

// PayRequest is one payment attempt.
type PayRequest struct {
	UserID        uint64
	Email         string
	ShowtimeID    uint64
	SeatIDs       []uint64
	PaymentMethod model.PaymentMethod
}

// PayResult is returned for a confirmed booking.
type PayResult struct {
	Booking      *model.Booking
	PaymentRef   string
	PointsEarned int64
	Tier         model.Tier
}

// Pay books and pays for seats.  Provider failures, timeouts and the
// caller going away all cancel the booking and release its seats before
// the error is returned.  Compensation runs on a context that ignores the
// caller's cancellation.
func (o *PaymentOrchestrator) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	release := func(context.Context) {}
	if o.lock != nil {
		r, err := o.lock.Acquire(ctx, req.UserID, req.ShowtimeID)
		switch {
		case errors.Is(err, cache.ErrLocked):
			return nil, ErrPaymentInProgress
		case err != nil:
			o.log.Warn("attempt lock unavailable; continuing without it", zap.Error(err))
		default:
			release = r
		}
	}
	detached := context.WithoutCancel(ctx)
	defer release(detached)

	b, err := o.bookings.CreateBooking(ctx, CreateBookingRequest{
		UserID:        req.UserID,
		Email:         req.Email,
		ShowtimeID:    req.ShowtimeID,
		SeatIDs:       req.SeatIDs,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}
	log := o.log.With(zap.Uint64("booking_id", b.ID), zap.String("reference", b.Reference))

	receipt, err := o.charge(ctx, b)
	if err != nil {
		reason := ReasonPaymentFailed
		var pe *payment.ProviderError
		if errors.As(err, &pe) && pe.Code == payment.CodeAbandoned {
			reason = ReasonAbandoned
		}
		log.Info("charge failed; cancelling booking", zap.String("reason", reason), zap.Error(err))
		if _, cerr := o.bookings.CancelBooking(detached, b.ID, reason); cerr != nil && !errors.Is(cerr, ErrInvalidState) {
			log.Error("compensating cancel failed", zap.Error(cerr))
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	conf, err := o.confirm(detached, b.ID, receipt.Reference)
	if err != nil {
		log.Error("confirm after successful charge failed", zap.String("payment_ref", receipt.Reference), zap.Error(err))
		if !errors.Is(err, ErrInvalidState) {
			_, cerr := o.bookings.CancelBooking(detached, b.ID, ReasonConfirmFailed)
			switch {
			case cerr == nil:
			case errors.Is(cerr, ErrInvalidState):
				// The confirm may have committed despite the error.
				cur, gerr := o.bookings.GetBooking(detached, b.UserID, b.ID)
				if gerr != nil {
					log.Error("booking state unknown after failed confirm; charge kept for reconciliation",
						zap.String("payment_ref", receipt.Reference), zap.Error(gerr))
					return nil, err
				}
				if cur.Status == model.BookingConfirmed {
					log.Warn("confirm reported an error but committed", zap.String("payment_ref", receipt.Reference))
					return o.confirmedResult(detached, cur, receipt.Reference)
				}
			default:
				log.Error("compensating cancel failed", zap.Error(cerr))
			}
		}
		o.refund(detached, log, receipt.Reference, b.TotalAmount)
		return nil, err
	}
	return &PayResult{
		Booking:      conf.Booking,
		PaymentRef:   receipt.Reference,
		PointsEarned: conf.PointsEarned,
		Tier:         conf.Tier,
	}, nil
}

// confirmedResult rebuilds the result of a booking found CONFIRMED after its
// confirm call failed.
func (o *PaymentOrchestrator) confirmedResult(ctx context.Context, b *model.Booking, ref string) (*PayResult, error) {
	res := &PayResult{Booking: b, PaymentRef: ref, PointsEarned: membership.PointsFor(b.TotalAmount)}
	if m, err := o.bookings.members.Get(ctx, b.UserID); err == nil {
		res.Tier = m.Tier
	}
	return res, nil
}

// charge calls the provider with a bounded timeout and normalises every
// failure into a *payment.ProviderError.
func (o *PaymentOrchestrator) charge(ctx context.Context, b *model.Booking) (payment.Receipt, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	receipt, err := o.provider.Charge(chargeCtx, payment.ChargeRequest{
		IdempotencyKey: b.Reference,
		BookingRef:     b.Reference,
		UserID:         b.UserID,
		Amount:         b.TotalAmount,
		Method:         string(b.PaymentMethod),
	})
	if err == nil {
		return receipt, nil
	}
	switch {
	case ctx.Err() != nil:
		return payment.Receipt{}, &payment.ProviderError{Code: payment.CodeAbandoned, Err: err}
	case errors.Is(chargeCtx.Err(), context.DeadlineExceeded):
		return payment.Receipt{}, &payment.ProviderError{Code: payment.CodeTimeout, Err: err}
	case errors.Is(err, payment.ErrProvider):
		return payment.Receipt{}, err
	default:
		return payment.Receipt{}, &payment.ProviderError{Code: payment.CodeUnavailable, Err: err}
	}
}

func (o *PaymentOrchestrator) refund(ctx context.Context, log *zap.Logger, ref string, amount int64) {
	r, ok := o.provider.(payment.Refunder)
	if !ok {
		log.Warn("provider cannot refund; manual refund required", zap.String("payment_ref", ref))
		return
	}
	if err := r.Refund(ctx, ref, amount); err != nil {
		log.Error("refund failed", zap.String("payment_ref", ref), zap.Error(err))
		return
	}
	log.Info("charge refunded", zap.String("payment_ref", ref))
}
