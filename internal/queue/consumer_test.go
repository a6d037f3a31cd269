package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFormatLine_Confirmed(t *testing.T) {
    body, err := json.Marshal(BookingConfirmedEvent{
        BookingID: 3, Reference: "ref-3", UserID: 9, ShowtimeID: 4,
        CinemaName: "Downtown", Screen: "2", MovieTitle: "Heat",
        SeatLabels: []string{"A1", "A2"}, TotalAmount: 180000, PointsEarned: 18,
        MembershipTier: "BASIC", ConfirmedAt: "2026-01-02T10:00:00Z",
    })
    require.NoError(t, err)

    line, err := formatLine(BookingConfirmedQueue, body, time.Now())
    require.NoError(t, err)
    assert.Equal(t,
        `[2026-01-02T10:00:00Z] Booking confirmed | booking_id=3 | ref=ref-3 | user_id=9 | showtime_id=4 | cinema="Downtown" | screen="2" | movie="Heat" | total=180000 | points=+18 | tier=BASIC | seats=[A1,A2]`+"\n",
        line)
}

func TestFormatLine_CancelledUsesNowWhenUnstamped(t *testing.T) {
    body := []byte(`{"booking_id":5,"reference":"r","user_id":1,"showtime_id":2,"reason":"expired"}`)
    now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

    line, err := formatLine(BookingCancelledQueue, body, now)
    require.NoError(t, err)
    assert.Equal(t,
        `[2026-03-04T05:06:07Z] Booking cancelled | booking_id=5 | ref=r | user_id=1 | showtime_id=2 | reason="expired" | seats=[]`+"\n",
        line)
}

func TestFormatLine_Rejects(t *testing.T) {
    _, err := formatLine(BookingConfirmedQueue, []byte("{"), time.Now())
    assert.Error(t, err)
    _, err = formatLine("other", []byte("{}"), time.Now())
    assert.Error(t, err)
}

func TestHandleMessage_AppendsToFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "logs", "booking.log")
    body := []byte(`{"booking_id":1,"reason":"payment_failed","cancelled_at":"x"}`)

    require.NoError(t, handleMessage(BookingCancelledQueue, body, path, time.Now()))
    require.NoError(t, handleMessage(BookingCancelledQueue, body, path, time.Now()))

    data, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

