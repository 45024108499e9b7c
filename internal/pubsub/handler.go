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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	invalidationsPublished metric.Int64Counter
	invalidationsReceived  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tenantconf/internal/pubsub")

	var err error
	invalidationsPublished, err = meter.Int64Counter(
		"tenantconf.invalidations.published",
		metric.WithDescription("Number of config invalidations published"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create invalidations.published counter: %w", err))
	}

	invalidationsReceived, err = meter.Int64Counter(
		"tenantconf.invalidations.received",
		metric.WithDescription("Number of config invalidations received"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create invalidations.received counter: %w", err))
	}
}

// dispatcher fans received invalidations out to the registered handlers.
// Backends embed it.
type dispatcher struct {
	name     string
	stats    *StatsAggregator
	mu       sync.RWMutex
	handlers []Handler
}

func (d *dispatcher) GetName() string {
	return d.name
}

func (d *dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

func (d *dispatcher) dispatchPayload(ctx context.Context, payload []byte) {
	inv, err := decodeInvalidation(payload)
	if err != nil {
		slog.Warn("Dropping malformed invalidation",
			slog.String("backend", d.name),
			slog.Any("error", err))
		d.stats.RecordSkipped(d.name, 1)
		recordReceived(ctx, d.name, "malformed")
		return
	}
	d.dispatch(ctx, inv)
}

// dispatch calls every handler in registration order. Handler errors are
// logged; the handler keeps serving its previous state.
func (d *dispatcher) dispatch(ctx context.Context, inv Invalidation) {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	outcome := "success"
	for _, h := range handlers {
		if err := h(ctx, inv); err != nil {
			outcome = "error"
			slog.Error("Invalidation handler failed",
				slog.String("backend", d.name),
				slog.String("invalidationID", inv.ID.String()),
				slog.String("scope", inv.Scope.String()),
				slog.Bool("all", inv.All),
				slog.Any("error", err))
		}
	}
	if outcome == "success" {
		d.stats.RecordReceived(d.name, 1)
	} else {
		d.stats.RecordFailed(d.name, 1)
	}
	recordReceived(ctx, d.name, outcome)
}

func (d *dispatcher) published(ctx context.Context, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		d.stats.RecordFailed(d.name, 1)
	} else {
		d.stats.RecordPublished(d.name, 1)
	}
	invalidationsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", d.name),
		attribute.String("outcome", outcome),
	))
}

func recordReceived(ctx context.Context, backend, outcome string) {
	invalidationsReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	))
}
