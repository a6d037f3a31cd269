package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/cache"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/payment"
)

type stubProvider struct {
	mu       sync.Mutex
	charge   func(ctx context.Context, req payment.ChargeRequest) (payment.Receipt, error)
	calls    []payment.ChargeRequest
	refunded []string
}

func (p *stubProvider) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Receipt, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	return p.charge(ctx, req)
}

func (p *stubProvider) Refund(_ context.Context, ref string, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, ref)
	return nil
}

func approve(_ context.Context, req payment.ChargeRequest) (payment.Receipt, error) {
	return payment.Receipt{Reference: "txn-" + req.BookingRef}, nil
}

type stubLock struct {
	err      error
	released int
}

func (l *stubLock) Acquire(context.Context, uint64, uint64) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) { l.released++ }, nil
}

func payRequest(userID uint64, st *model.Showtime, seats ...model.Seat) PayRequest {
	return PayRequest{UserID: userID, ShowtimeID: st.ID, SeatIDs: seatIDs(seats...), PaymentMethod: model.PaymentCard}
}

func TestPay_Success(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 2, nil)
	provider := &stubProvider{charge: approve}
	lock := &stubLock{}
	o := NewPaymentOrchestrator(e.bookings, provider, lock, time.Second, nil)

	res, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.EqualValues(t, 18, res.PointsEarned)
	assert.Equal(t, "txn-"+res.Booking.Reference, res.PaymentRef)

	require.Len(t, provider.calls, 1)
	assert.EqualValues(t, 180000, provider.calls[0].Amount)
	assert.Equal(t, res.Booking.Reference, provider.calls[0].IdempotencyKey)
	assert.Equal(t, 1, lock.released)
	assert.Equal(t, 0, e.availableSeats(t, st.ID))
}

func TestPay_ProviderFailureReleasesSeats(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 2, nil)
	provider := &stubProvider{charge: func(context.Context, payment.ChargeRequest) (payment.Receipt, error) {
		return payment.Receipt{}, &payment.ProviderError{Code: payment.CodeDeclined, Err: errors.New("insufficient funds")}
	}}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Second, nil)

	_, err := o.Pay(ctx, payRequest(1, st, seats...))
	assert.ErrorIs(t, err, payment.ErrProvider)

	list, err := e.bookings.ListBookings(ctx, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.BookingCancelled, list[0].Status)
	assert.Equal(t, ReasonPaymentFailed, *list[0].CancelReason)
	for _, s := range e.seatsByID(t, st.ID, seatIDs(seats...)...) {
		assert.True(t, s.IsAvailable)
	}
	assert.Zero(t, e.user(t, 1).MembershipPoints)
	assert.Equal(t, 2, e.availableSeats(t, st.ID))
}

func TestPay_PlainProviderErrorIsWrapped(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	provider := &stubProvider{charge: func(context.Context, payment.ChargeRequest) (payment.Receipt, error) {
		return payment.Receipt{}, errors.New("connection reset")
	}}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Second, nil)

	_, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	var pe *payment.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, payment.CodeUnavailable, pe.Code)
}

func TestPay_TimeoutCancelsBooking(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 1, nil)
	provider := &stubProvider{charge: func(ctx context.Context, _ payment.ChargeRequest) (payment.Receipt, error) {
		<-ctx.Done()
		return payment.Receipt{}, ctx.Err()
	}}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, 50*time.Millisecond, nil)

	_, err := o.Pay(ctx, payRequest(1, st, seats...))
	var pe *payment.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, payment.CodeTimeout, pe.Code)
	assert.True(t, e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID].IsAvailable)
}

func TestPay_AbandonedByCallerStillCompensates(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	provider := &stubProvider{charge: func(chargeCtx context.Context, _ payment.ChargeRequest) (payment.Receipt, error) {
		cancel()
		<-chargeCtx.Done()
		return payment.Receipt{}, chargeCtx.Err()
	}}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Minute, nil)

	_, err := o.Pay(ctx, payRequest(1, st, seats...))
	var pe *payment.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, payment.CodeAbandoned, pe.Code)

	list, err := e.bookings.ListBookings(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.BookingCancelled, list[0].Status)
	assert.Equal(t, ReasonAbandoned, *list[0].CancelReason)
	assert.True(t, e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID].IsAvailable)
}

func TestPay_ReclaimedDuringChargeIsRefunded(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	provider := &stubProvider{}
	provider.charge = func(ctx context.Context, req payment.ChargeRequest) (payment.Receipt, error) {
		// the reclaimer wins the race while the provider is still working
		_, err := e.bookings.ExpirePending(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		return approve(ctx, req)
	}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Second, nil)

	_, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	var ie *InvalidStateError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, model.BookingCancelled, ie.Status)
	require.Len(t, provider.refunded, 1)
	assert.Zero(t, e.user(t, 1).MembershipPoints)
	assert.True(t, e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID].IsAvailable)
}

func TestPay_ConflictNeverCharges(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	e.book(t, 9, st, seats...)
	provider := &stubProvider{charge: approve}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Second, nil)

	_, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, provider.calls)
}

func TestPay_DuplicateAttemptRejected(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	provider := &stubProvider{charge: approve}
	o := NewPaymentOrchestrator(e.bookings, provider, &stubLock{err: cache.ErrLocked}, time.Second, nil)

	_, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.Empty(t, provider.calls)
}

func TestPay_LockOutageDoesNotBlockPayment(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	o := NewPaymentOrchestrator(e.bookings, &stubProvider{charge: approve}, &stubLock{err: errors.New("redis down")}, time.Second, nil)

	res, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
}

func TestPay_ConfirmErrorAfterCommitKeepsCharge(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 2, nil)
	provider := &stubProvider{charge: approve}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Second, nil)
	// the commit lands but the driver reports a broken connection
	o.confirm = func(ctx context.Context, id uint64, ref string) (*Confirmation, error) {
		if _, err := e.bookings.ConfirmBooking(ctx, id, ref); err != nil {
			return nil, err
		}
		return nil, persistence("confirm booking", errors.New("connection reset"))
	}

	res, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.EqualValues(t, 18, res.PointsEarned)
	assert.Equal(t, model.TierBasic, res.Tier)
	assert.Empty(t, provider.refunded)
	assert.EqualValues(t, 18, e.user(t, 1).MembershipPoints)
}

func TestPay_ConfirmErrorBeforeCommitRefunds(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	provider := &stubProvider{charge: approve}
	o := NewPaymentOrchestrator(e.bookings, provider, nil, time.Second, nil)
	o.confirm = func(context.Context, uint64, string) (*Confirmation, error) {
		return nil, persistence("confirm booking", errors.New("database is locked"))
	}

	_, err := o.Pay(context.Background(), payRequest(1, st, seats...))
	assert.ErrorIs(t, err, ErrPersistence)
	require.Len(t, provider.refunded, 1)
	assert.Zero(t, e.user(t, 1).MembershipPoints)
	assert.True(t, e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID].IsAvailable)
}
