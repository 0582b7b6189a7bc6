package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDispatcher publishes envelopes so every instance's Relay can reach
// the users connected to it.
type RedisDispatcher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisDispatcher(rdb *redis.Client, channel string) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb, channel: channel}
}

func (d *RedisDispatcher) Notify(ctx context.Context, userIDs []string, message string, metadata map[string]string) error {
	data, err := json.Marshal(NewEnvelope(userIDs, message, metadata))
	if err != nil {
		return err
	}
	return d.rdb.Publish(ctx, d.channel, data).Err()
}

// Relay feeds envelopes published on channel into the local hub.
type Relay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRelay(rdb *redis.Client, channel string, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{rdb: rdb, channel: channel, hub: hub, log: log}
}

// Run blocks until ctx is done or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("notification relay listening", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("bad notification payload", zap.Error(err))
				continue
			}
			if err := r.hub.Deliver(ctx, env); err != nil {
				r.log.Warn("relay delivery failed", zap.Error(err))
			}
		}
	}
}
