package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// listCap bounds the event list so an absent consumer cannot grow it forever.
const listCap = 10000

// RedisBackend broadcasts events on a Pub/Sub channel and, when listKey is
// set, keeps the newest listCap of them in a list for pollers.
type RedisBackend struct {
	client  *redis.Client
	channel string
	listKey string
}

func NewRedisBackend(addr, channel, listKey string) *RedisBackend {
	if channel == "" && listKey == "" {
		channel = "vaultuplink:events"
	}
	return &RedisBackend{
		client:  redis.NewClient(&redis.Options{Addr: addr, ClientName: "vaultuplink-satellite"}),
		channel: channel,
		listKey: listKey,
	}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Publish(ctx context.Context, payload []byte) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if r.channel != "" {
			pipe.Publish(ctx, r.channel, payload)
		}
		if r.listKey != "" {
			pipe.LPush(ctx, r.listKey, payload)
			pipe.LTrim(ctx, r.listKey, 0, listCap-1)
		}
		return nil
	})
	return err
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
