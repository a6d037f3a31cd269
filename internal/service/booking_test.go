package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
)

func (e *testEnv) book(t *testing.T, userID uint64, st *model.Showtime, seats ...model.Seat) *model.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		UserID: userID, ShowtimeID: st.ID, SeatIDs: seatIDs(seats...), PaymentMethod: model.PaymentCard,
	})
	require.NoError(t, err)
	return b
}

func TestCreateBooking_PendingWithClaimedSeats(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 2, 2, map[string]model.SeatType{"B": model.SeatVIP})
	before := time.Now()

	b := e.book(t, 7, st, seats[2], seats[0])

	assert.Equal(t, model.BookingPending, b.Status)
	assert.NotEmpty(t, b.Reference)
	assert.Equal(t, []uint64{seats[2].ID, seats[0].ID}, b.SeatIDs())
	assert.Equal(t, []string{"B1", "A1"}, b.SeatLabels())
	assert.EqualValues(t, 135000+90000, b.TotalAmount)
	assert.WithinDuration(t, before.Add(10*time.Minute), b.ExpiresAt, 5*time.Second)

	got := e.seatsByID(t, st.ID, seats[0].ID, seats[2].ID)
	for _, s := range got {
		assert.False(t, s.IsAvailable)
		require.NotNil(t, s.BookingID)
		assert.Equal(t, b.ID, *s.BookingID)
	}
	assert.Equal(t, 4, e.availableSeats(t, st.ID), "counter moves on confirmation only")
	assert.Equal(t, model.TierBasic, e.user(t, 7).MembershipLevel, "customer is registered on first booking")
}

func TestCreateBooking_ConflictLeavesNoBooking(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 3, nil)
	e.book(t, 1, st, seats[1])

	_, err := e.bookings.CreateBooking(ctx, CreateBookingRequest{
		UserID: 2, ShowtimeID: st.ID, SeatIDs: seatIDs(seats[0], seats[1]), PaymentMethod: model.PaymentWallet,
	})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []uint64{seats[1].ID}, ce.SeatIDs)

	list, err := e.bookings.ListBookings(ctx, 2, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "the insert is rolled back with the claim")
	assert.True(t, e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID].IsAvailable)
}

func TestCreateBooking_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 1, nil)
	past, pastSeats := e.seedShowtimeAt(t, time.Now().Add(-time.Minute), 1, 1, nil)

	cases := []struct {
		name string
		req  CreateBookingRequest
		want error
	}{
		{"no user", CreateBookingRequest{ShowtimeID: st.ID, SeatIDs: seatIDs(seats...), PaymentMethod: model.PaymentCard}, ErrValidation},
		{"no seats", CreateBookingRequest{UserID: 1, ShowtimeID: st.ID, PaymentMethod: model.PaymentCard}, ErrValidation},
		{"bad method", CreateBookingRequest{UserID: 1, ShowtimeID: st.ID, SeatIDs: seatIDs(seats...), PaymentMethod: "CASH"}, ErrValidation},
		{"started", CreateBookingRequest{UserID: 1, ShowtimeID: past.ID, SeatIDs: seatIDs(pastSeats...), PaymentMethod: model.PaymentCard}, ErrValidation},
		{"unknown showtime", CreateBookingRequest{UserID: 1, ShowtimeID: 9999, SeatIDs: seatIDs(seats...), PaymentMethod: model.PaymentCard}, ErrNotFound},
		{"unknown seat", CreateBookingRequest{UserID: 1, ShowtimeID: st.ID, SeatIDs: []uint64{9999}, PaymentMethod: model.PaymentCard}, ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.bookings.CreateBooking(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestConfirmBooking_AccruesPointsAndDecrements(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 3, nil)
	b := e.book(t, 5, st, seats[0], seats[1])

	conf, err := e.bookings.ConfirmBooking(ctx, b.ID, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, conf.Booking.Status)
	assert.EqualValues(t, 18, conf.PointsEarned)
	assert.Equal(t, model.TierBasic, conf.Tier)

	stored, err := e.bookings.GetBooking(ctx, 5, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, stored.Status)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, "txn-1", *stored.PaymentRef)
	assert.NotNil(t, stored.ConfirmedAt)

	assert.Equal(t, 1, e.availableSeats(t, st.ID))
	assert.EqualValues(t, 18, e.user(t, 5).MembershipPoints)

	require.Len(t, e.events.confirmed, 1)
	ev := e.events.confirmed[0]
	assert.Equal(t, b.ID, ev.BookingID)
	assert.Equal(t, []string{"A1", "A2"}, ev.SeatLabels)
	assert.EqualValues(t, 18, ev.PointsEarned)
	assert.Equal(t, "Downtown", ev.CinemaName)
	assert.Equal(t, []uint64{st.ID}, e.cache.ids)
}

func TestConfirmBooking_PromotesAcrossBoundary(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 2, map[string]model.SeatType{"A": model.SeatCouple})
	require.NoError(t, e.members.Register(ctx, 3, ""))
	_, err := e.members.AddPoints(ctx, 3, 1_900_000)
	require.NoError(t, err)

	b := e.book(t, 3, st, seats[0])
	conf, err := e.bookings.ConfirmBooking(ctx, b.ID, "txn")
	require.NoError(t, err)
	assert.EqualValues(t, 18, conf.PointsEarned)
	assert.Equal(t, model.TierSilver, conf.Tier)

	u := e.user(t, 3)
	assert.EqualValues(t, 208, u.MembershipPoints)
	assert.Equal(t, model.TierSilver, u.MembershipLevel)
}

func TestConfirmBooking_InvalidStates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 2, nil)

	cancelled := e.book(t, 1, st, seats[0])
	_, err := e.bookings.CancelBooking(ctx, cancelled.ID, ReasonCustomerCancel)
	require.NoError(t, err)

	_, err = e.bookings.ConfirmBooking(ctx, cancelled.ID, "txn")
	var ie *InvalidStateError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, model.BookingCancelled, ie.Status)
	assert.Equal(t, "confirm", ie.Op)
	assert.Zero(t, e.user(t, 1).MembershipPoints, "nothing mutated")
	assert.Equal(t, 2, e.availableSeats(t, st.ID))
	released := e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID]
	assert.True(t, released.IsAvailable)
	assert.Nil(t, released.BookingID)

	confirmed := e.book(t, 1, st, seats[1])
	_, err = e.bookings.ConfirmBooking(ctx, confirmed.ID, "txn")
	require.NoError(t, err)
	_, err = e.bookings.ConfirmBooking(ctx, confirmed.ID, "txn-again")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = e.bookings.CancelBooking(ctx, confirmed.ID, ReasonCustomerCancel)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualValues(t, 9, e.user(t, 1).MembershipPoints, "points credited once")

	_, err = e.bookings.ConfirmBooking(ctx, 9999, "txn")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelBooking_ReleasesSeats(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 2, nil)
	b := e.book(t, 1, st, seats...)

	got, err := e.bookings.CancelBooking(ctx, b.ID, ReasonPaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, ReasonPaymentFailed, *got.CancelReason)

	for _, s := range e.seatsByID(t, st.ID, seatIDs(seats...)...) {
		assert.True(t, s.IsAvailable)
		assert.Nil(t, s.BookingID)
	}
	require.Len(t, e.events.cancelled, 1)
	assert.Equal(t, ReasonPaymentFailed, e.events.cancelled[0].Reason)

	// seats can be booked again
	e.book(t, 2, st, seats...)
}

func TestCancelForUser_OwnershipEnforced(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 1, nil)
	b := e.book(t, 1, st, seats...)

	_, err := e.bookings.CancelForUser(ctx, 2, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.bookings.GetBooking(ctx, 2, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := e.bookings.CancelForUser(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
}

func TestExpirePending_ReclaimsAbandonedBookings(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 3, nil)
	stale := e.book(t, 1, st, seats[0])
	paid := e.book(t, 2, st, seats[1])
	_, err := e.bookings.ConfirmBooking(ctx, paid.ID, "txn")
	require.NoError(t, err)

	n, err := e.bookings.ExpirePending(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing expired yet")

	n, err = e.bookings.ExpirePending(ctx, time.Now().Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.bookings.GetBooking(ctx, 1, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, ReasonExpired, *got.CancelReason)
	assert.True(t, e.seatsByID(t, st.ID, seats[0].ID)[seats[0].ID].IsAvailable)

	kept, err := e.bookings.GetBooking(ctx, 2, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, kept.Status)
}

func TestCompleteFinished(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	st, seats := e.seedShowtime(t, 1, 2, nil)
	done := e.book(t, 1, st, seats[0])
	_, err := e.bookings.ConfirmBooking(ctx, done.ID, "txn")
	require.NoError(t, err)
	pending := e.book(t, 1, st, seats[1])

	n, err := e.bookings.CompleteFinished(ctx, st.StartsAt)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.bookings.CompleteFinished(ctx, st.EndsAt)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := e.bookings.GetBooking(ctx, 1, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, got.Status)
	got, err = e.bookings.GetBooking(ctx, 1, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, got.Status)
}

func TestRunReclaimer_StopsWithContext(t *testing.T) {
	e := newTestEnv(t)
	st, seats := e.seedShowtime(t, 1, 1, nil)
	b := e.book(t, 1, st, seats...)
	e.bookings.now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.bookings.RunReclaimer(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		got, err := e.bookings.GetBooking(context.Background(), 1, b.ID)
		return err == nil && got.Status == model.BookingCancelled
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reclaimer did not stop")
	}
}
