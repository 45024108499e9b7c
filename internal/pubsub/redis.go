// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/cardinalhq/tenantconf/config"
)

// RedisBackend broadcasts over a Redis pub/sub channel.
type RedisBackend struct {
	dispatcher
	client  *redis.Client
	channel string
}

var _ Backend = (*RedisBackend)(nil)

func NewRedisBackend(cfg config.RedisConfig, channel string, stats *StatsAggregator) *RedisBackend {
	return &RedisBackend{
		dispatcher: dispatcher{name: string(BackendTypeRedis), stats: stats},
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel: channel,
	}
}

func (b *RedisBackend) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := encodeInvalidation(inv)
	if err == nil {
		err = b.client.Publish(ctx, b.channel, payload).Err()
	}
	b.published(ctx, err)
	if err != nil {
		return fmt.Errorf("failed to publish invalidation to %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes until ctx is done. The client reconnects on its own; every
// resubscription after the first dispatches a resync.
func (b *RedisBackend) Run(ctx context.Context) error {
	slog.Info("Starting redis config invalidation subscriber", slog.String("channel", b.channel))

	ps := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := ps.Close(); err != nil {
			slog.Warn("Failed to close redis subscription", slog.Any("error", err))
		}
	}()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := ps.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down redis config invalidation subscriber")
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			switch msg := m.(type) {
			case *redis.Subscription:
				if msg.Kind == "subscribe" {
					slog.Info("Redis subscription restored", slog.String("channel", b.channel))
					b.dispatch(ctx, NewResync())
				}
			case *redis.Message:
				b.dispatchPayload(ctx, []byte(msg.Payload))
			}
		}
	}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
