package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends booking events to RabbitMQ.  Each publish opens its own
// connection, so a broker outage never blocks request handling for longer
// than the dial.  Errors are logged and returned; callers are free to
// ignore them.
type Publisher struct {
    url string
    log *zap.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{url: url, log: log}
}

// BookingConfirmed publishes ev to the booking.confirmed queue.
func (p *Publisher) BookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
    return p.publish(ctx, BookingConfirmedQueue, ev)
}

// BookingCancelled publishes ev to the booking.cancelled queue.
func (p *Publisher) BookingCancelled(ctx context.Context, ev BookingCancelledEvent) error {
    return p.publish(ctx, BookingCancelledQueue, ev)
}

// defaultDialTimeout bounds dial and handshake when ctx has no deadline.
const defaultDialTimeout = 5 * time.Second

// dial connects with the TCP dial and AMQP handshake bounded by ctx's
// deadline.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    timeout := defaultDialTimeout
    if deadline, ok := ctx.Deadline(); ok {
        timeout = time.Until(deadline)
        if timeout <= 0 {
            return nil, context.DeadlineExceeded
        }
    }
    return amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
    log := p.log.With(zap.String("queue", queue))

    body, err := json.Marshal(event)
    if err != nil {
        log.Error("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }

    conn, err := p.dial(ctx)
    if err != nil {
        log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
        log.Warn("rabbitmq: publish failed", zap.Error(err))
        return err
    }
    return nil
}
