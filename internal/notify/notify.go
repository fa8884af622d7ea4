// Package notify publishes reservation state changes to a broadcast sink.
// Delivery is best effort: the engine only guarantees the sink is invoked
// after a state change commits, never that the message arrives.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	KindReservationCreated   = "reservation.created"
	KindReservationCancelled = "reservation.cancelled"
	KindReservationConfirmed = "reservation.confirmed"
	KindReservationDeclined  = "reservation.declined"
)

const DefaultChannel = "reservation.events"

type Event struct {
	Kind           string    `json:"kind"`
	ReservationID  uuid.UUID `json:"reservation_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher broadcasts events on a redis pub/sub channel, where the
// push fan-out service picks them up.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Dispatcher wraps a Publisher with the fire-and-forget contract: Dispatch
// returns immediately, the publish runs in the background under a bounded
// timeout, and its outcome is logged and discarded. A failed publish must
// never affect the booking operation that triggered it.
type Dispatcher struct {
	pub     Publisher
	timeout time.Duration
	logger  *zap.Logger
}

func NewDispatcher(pub Publisher, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{pub: pub, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(ev Event) {
	if d == nil || d.pub == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.pub.Publish(ctx, ev); err != nil {
			d.logger.Warn("broadcast publish failed",
				zap.String("kind", ev.Kind),
				zap.String("reservation_id", ev.ReservationID.String()),
				zap.Error(err),
			)
			return
		}
		d.logger.Debug("broadcast published",
			zap.String("kind", ev.Kind),
			zap.String("reservation_id", ev.ReservationID.String()),
		)
	}()
}
