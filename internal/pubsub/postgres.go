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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend broadcasts over LISTEN/NOTIFY on the config database.
type PostgresBackend struct {
	dispatcher
	pool              *pgxpool.Pool
	channel           string
	reconnectInterval time.Duration
}

var _ Backend = (*PostgresBackend)(nil)

func NewPostgresBackend(pool *pgxpool.Pool, channel string, reconnectInterval time.Duration, stats *StatsAggregator) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres broadcast backend requires a connection pool")
	}
	if reconnectInterval <= 0 {
		reconnectInterval = 5 * time.Second
	}
	return &PostgresBackend{
		dispatcher:        dispatcher{name: string(BackendTypePostgres), stats: stats},
		pool:              pool,
		channel:           channel,
		reconnectInterval: reconnectInterval,
	}, nil
}

func (b *PostgresBackend) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := encodeInvalidation(inv)
	if err == nil {
		_, err = b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, string(payload))
	}
	b.published(ctx, err)
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", b.channel, err)
	}
	return nil
}

// Run listens until ctx is done, reconnecting on connection loss. After a
// reconnect every layer is invalidated locally.
func (b *PostgresBackend) Run(ctx context.Context) error {
	slog.Info("Starting postgres config invalidation listener", slog.String("channel", b.channel))

	resync := false
	for {
		err := b.listen(ctx, resync)
		if ctx.Err() != nil {
			slog.Info("Shutting down postgres config invalidation listener")
			return nil
		}
		slog.Warn("Config invalidation listener disconnected, reconnecting",
			slog.String("channel", b.channel),
			slog.Duration("retryIn", b.reconnectInterval),
			slog.Any("error", err))
		resync = true

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.reconnectInterval):
		}
	}
}

func (b *PostgresBackend) listen(ctx context.Context, resync bool) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctx, "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.channel, err)
	}
	if resync {
		b.dispatch(ctx, NewResync())
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		b.dispatchPayload(ctx, []byte(n.Payload))
	}
}

// Close is a no-op; the pool belongs to the caller.
func (b *PostgresBackend) Close() error {
	return nil
}
