package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Broker fans registry change events out to subscribers. Publish is
// best-effort from the registry's point of view; a lost event is repaired by
// the consumers' polling fallback.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events and a cancel function that
	// releases the subscription. The channel is closed after cancel.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// RedisBroker routes events through a redis pub/sub channel so every
// service instance sees writes committed by any of them.
type RedisBroker struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisBroker(client *redis.Client, log *logrus.Logger) *RedisBroker {
	return &RedisBroker{client: client, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	sub := b.client.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithError(err).Warn("realtime: dropping malformed event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
