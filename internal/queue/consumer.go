package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// StartBookingConsumer connects to RabbitMQ, declares the booking queues
// (durable) and consumes both.  Each message is appended to logPath as a
// single human-friendly line.  It reconnects with backoff until ctx is
// cancelled and then returns ctx.Err().  Malformed messages are rejected
// without requeue so they cannot loop.
func StartBookingConsumer(ctx context.Context, url, logPath string, log *zap.Logger) error {
    if log == nil {
        log = zap.NewNop()
    }
    log = log.Named("booking-consumer")

    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, logPath, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("consume loop ended; reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

type delivery struct {
    queue string
    amqp.Delivery
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logPath string, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("set QoS failed", zap.Error(err))
    }

    merged := make(chan delivery)
    done := make(chan struct{})
    defer close(done)
    for _, name := range []string{BookingConfirmedQueue, BookingCancelledQueue} {
        if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", name, err)
        }
        msgs, err := ch.Consume(name, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("queue consume %s: %w", name, err)
        }
        go func(name string, msgs <-chan amqp.Delivery) {
            for d := range msgs {
                select {
                case merged <- delivery{queue: name, Delivery: d}:
                case <-done:
                    return
                }
            }
        }(name, msgs)
    }

    closed := ch.NotifyClose(make(chan *amqp.Error, 1))
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case amqpErr := <-closed:
            if amqpErr != nil {
                return amqpErr
            }
            return errors.New("channel closed")
        case d := <-merged:
            if err := handleMessage(d.queue, d.Body, logPath, time.Now()); err != nil {
                log.Error("handle message failed", zap.String("queue", d.queue), zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(queue string, body []byte, logPath string, now time.Time) error {
    line, err := formatLine(queue, body, now)
    if err != nil {
        return err
    }
    if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// formatLine renders one event as a log line.  The timestamp falls back to
// now when the event does not carry one.
func formatLine(queue string, body []byte, now time.Time) (string, error) {
    switch queue {
    case BookingConfirmedQueue:
        var ev BookingConfirmedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | ref=%s | user_id=%d | showtime_id=%d | cinema=%q | screen=%q | movie=%q | total=%d | points=+%d | tier=%s | seats=%s\n",
            stamp(ev.ConfirmedAt, now), ev.BookingID, ev.Reference, ev.UserID, ev.ShowtimeID,
            ev.CinemaName, ev.Screen, ev.MovieTitle, ev.TotalAmount, ev.PointsEarned, ev.MembershipTier,
            seatList(ev.SeatLabels)), nil
    case BookingCancelledQueue:
        var ev BookingCancelledEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Booking cancelled | booking_id=%d | ref=%s | user_id=%d | showtime_id=%d | reason=%q | seats=%s\n",
            stamp(ev.CancelledAt, now), ev.BookingID, ev.Reference, ev.UserID, ev.ShowtimeID,
            ev.Reason, seatList(ev.SeatLabels)), nil
    default:
        return "", fmt.Errorf("unknown queue %q", queue)
    }
}

func stamp(ts string, now time.Time) string {
    if strings.TrimSpace(ts) == "" {
        return now.UTC().Format(time.RFC3339)
    }
    return ts
}

func seatList(labels []string) string {
    return "[" + strings.Join(labels, ",") + "]"
}
