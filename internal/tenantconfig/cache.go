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

package tenantconfig

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/tenantconf/configdb"
)

// ValueInfo is a resolved value and the time it was last written.
type ValueInfo struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Epoch is reported for values that come from the schema default.
var Epoch = time.Unix(0, 0).UTC()

// layer maps an element key to its explicitly set value.
type layer map[string]ValueInfo

// snapshot is never modified once published; refreshes build a new one
// and swap the pointer.
type snapshot struct {
	global  layer
	tenants map[string]layer
}

func emptySnapshot() *snapshot {
	return &snapshot{global: layer{}, tenants: map[string]layer{}}
}

// with returns a copy of sn whose layer for scope is replaced by l.
func (sn *snapshot) with(scope configdb.Scope, l layer) *snapshot {
	next := &snapshot{
		global:  sn.global,
		tenants: make(map[string]layer, len(sn.tenants)+1),
	}
	maps.Copy(next.tenants, sn.tenants)
	switch {
	case scope.Global:
		next.global = l
	case len(l) == 0:
		delete(next.tenants, scope.TenantAlias)
	default:
		next.tenants[scope.TenantAlias] = l
	}
	return next
}

// RefreshAll reloads every layer from the store and replaces the whole
// cache. On failure the previous cache stays in place.
func (s *Service) RefreshAll(ctx context.Context) error {
	s.events.emit(EventPreCache, "")
	if err := s.refreshAll(ctx); err != nil {
		return err
	}
	s.state.CompareAndSwap(int32(StateSchemaLoaded), int32(StateWarm))
	s.events.emit(EventCached, "")
	return nil
}

func (s *Service) refreshAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tenantconf.cache.refresh_all")
	defer span.End()

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rows, err := s.store.ListTenantConfigs(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		recordRefresh(ctx, "all", "error")
		slog.Error("Failed to load config values", slog.Any("error", err))
		return fmt.Errorf("failed to load config values: %w", err)
	}

	next := emptySnapshot()
	for _, row := range rows {
		vi, ok := s.decodeRow(ctx, row)
		if !ok {
			continue
		}
		if row.Scope.Global {
			next.global[row.ConfigKey] = vi
			continue
		}
		l, ok := next.tenants[row.Scope.TenantAlias]
		if !ok {
			l = layer{}
			next.tenants[row.Scope.TenantAlias] = l
		}
		l[row.ConfigKey] = vi
	}
	s.snap.Store(next)

	span.SetAttributes(attribute.Int("rows", len(rows)))
	recordRefresh(ctx, "all", "success")
	slog.Info("Loaded config values",
		slog.Int("rows", len(rows)),
		slog.Int("tenants", len(next.tenants)))
	return nil
}

// RefreshTenant reloads one tenant's layer, or the global layer when
// tenantAlias is the global admin alias.
func (s *Service) RefreshTenant(ctx context.Context, tenantAlias string) error {
	return s.refreshScope(ctx, s.scopeFor(tenantAlias))
}

func (s *Service) refreshScope(ctx context.Context, scope configdb.Scope) error {
	alias := s.aliasFor(scope)
	s.events.emit(EventPreCache, alias)
	if err := s.refreshLayer(ctx, scope); err != nil {
		return err
	}
	s.events.emit(EventCached, alias)
	return nil
}

func (s *Service) refreshLayer(ctx context.Context, scope configdb.Scope) error {
	ctx, span := tracer.Start(ctx, "tenantconf.cache.refresh_layer",
		trace.WithAttributes(attribute.String("scope", scope.String())))
	defer span.End()

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rows, err := s.store.ListTenantConfigs(ctx, &scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		recordRefresh(ctx, scopeKind(scope), "error")
		slog.Error("Failed to refresh config values",
			slog.String("scope", scope.String()),
			slog.Any("error", err))
		return fmt.Errorf("failed to refresh config values for %s: %w", scope, err)
	}

	l := layer{}
	for _, row := range rows {
		if vi, ok := s.decodeRow(ctx, row); ok {
			l[row.ConfigKey] = vi
		}
	}
	s.snap.Store(s.snap.Load().with(scope, l))

	recordRefresh(ctx, scopeKind(scope), "success")
	return nil
}

// decodeRow turns a stored row into a cache entry. Rows for elements the
// schema doesn't know are dropped quietly; undecodable rows are logged.
func (s *Service) decodeRow(ctx context.Context, row configdb.TenantConfigRow) (ValueInfo, bool) {
	key, err := ParseKey(row.ConfigKey)
	if err != nil || key.Optional != "" {
		recordSkip(ctx, "malformed_key")
		slog.Debug("Ignoring config row with malformed key",
			slog.String("scope", row.Scope.String()),
			slog.String("key", row.ConfigKey))
		return ValueInfo{}, false
	}
	field, ok := s.schema.global.Field(key.Module, key.Feature, key.Element)
	if !ok {
		recordSkip(ctx, "unknown_key")
		slog.Debug("Ignoring config row for unknown element",
			slog.String("scope", row.Scope.String()),
			slog.String("key", row.ConfigKey))
		return ValueInfo{}, false
	}
	v, err := field.Decode(row.Value)
	if err != nil {
		recordSkip(ctx, "corrupt")
		slog.Warn("Skipping undecodable config value",
			slog.String("scope", row.Scope.String()),
			slog.String("key", row.ConfigKey),
			slog.Any("error", err))
		return ValueInfo{}, false
	}
	return ValueInfo{Value: v, Timestamp: row.UpdatedAt.UTC()}, true
}

func scopeKind(scope configdb.Scope) string {
	if scope.Global {
		return "global"
	}
	return "tenant"
}

func recordRefresh(ctx context.Context, scope, outcome string) {
	cacheRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

func recordSkip(ctx context.Context, reason string) {
	cacheRowsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
