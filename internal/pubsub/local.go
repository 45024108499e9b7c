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
)

// LocalBackend delivers invalidations to handlers in the same process,
// synchronously inside Publish.
type LocalBackend struct {
	dispatcher
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(stats *StatsAggregator) *LocalBackend {
	return &LocalBackend{dispatcher: dispatcher{name: string(BackendTypeLocal), stats: stats}}
}

func (b *LocalBackend) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := encodeInvalidation(inv)
	if err != nil {
		b.published(ctx, err)
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	b.published(ctx, nil)
	b.dispatchPayload(ctx, payload)
	return nil
}

func (b *LocalBackend) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBackend) Close() error {
	return nil
}
