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
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/pubsub"
)

// target is one validated key of a mutation request.
type target struct {
	key   Key
	field Field
}

// elementEdit collects everything a request does to one element.
type elementEdit struct {
	field     Field
	full      any
	hasFull   bool
	optionals map[string]string
	clears    []string
}

// UpdateConfig sets one or more values for tenantAlias. Keys have the form
// module/feature/element, or module/feature/element/optionalKey to set one
// entry of an internationalizable value without touching its siblings.
// Nothing is written unless every key passes validation and authorization.
func (s *Service) UpdateConfig(ctx context.Context, actor Actor, tenantAlias string, values map[string]any) error {
	ctx, span := tracer.Start(ctx, "tenantconf.config.update",
		trace.WithAttributes(attribute.String("tenant", tenantAlias), attribute.Int("keys", len(values))))
	defer span.End()

	err := s.updateConfig(ctx, actor, tenantAlias, values)
	recordMutation(ctx, span, "update", err)
	return err
}

func (s *Service) updateConfig(ctx context.Context, actor Actor, tenantAlias string, values map[string]any) error {
	if err := s.checkRequest(actor, tenantAlias, len(values)); err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	edits := map[string]*elementEdit{}
	for _, raw := range keys {
		t, err := s.checkKey(actor, tenantAlias, raw)
		if err != nil {
			return err
		}
		in := values[raw]
		if in == nil {
			return newError(ErrValidation, raw, "a value is required")
		}
		if str, ok := in.(string); ok {
			in = strings.TrimSpace(str)
		}

		edit := editFor(edits, t)
		if t.key.Optional == "" {
			v, err := t.field.Coerce(in)
			if err != nil {
				return newError(ErrValidation, raw, fmt.Sprintf("invalid %s value: %v", t.field.Type(), err))
			}
			edit.full, edit.hasFull = v, true
			continue
		}
		str, err := cast.ToStringE(in)
		if err != nil {
			return newError(ErrValidation, raw, fmt.Sprintf("invalid value: %v", err))
		}
		edit.optionals[t.key.Optional] = str
	}

	scope := s.scopeFor(tenantAlias)
	changes, err := s.buildChanges(scope, edits)
	if err != nil {
		return err
	}

	s.events.emit(EventPreUpdate, tenantAlias)
	if err := s.store.ApplyTenantConfigChanges(ctx, changes); err != nil {
		return fmt.Errorf("failed to persist config update: %w", err)
	}
	return s.afterMutation(ctx, scope, tenantAlias)
}

// ClearConfig removes values for tenantAlias so that the next layer
// applies again. Clearing an optional key removes only that entry from the
// stored value. A batch may not clear an element and one of its optional
// keys together.
func (s *Service) ClearConfig(ctx context.Context, actor Actor, tenantAlias string, keys []string) error {
	ctx, span := tracer.Start(ctx, "tenantconf.config.clear",
		trace.WithAttributes(attribute.String("tenant", tenantAlias), attribute.Int("keys", len(keys))))
	defer span.End()

	err := s.clearConfig(ctx, actor, tenantAlias, keys)
	recordMutation(ctx, span, "clear", err)
	return err
}

func (s *Service) clearConfig(ctx context.Context, actor Actor, tenantAlias string, keys []string) error {
	if err := s.checkRequest(actor, tenantAlias, len(keys)); err != nil {
		return err
	}

	unique := mapset.NewThreadUnsafeSet(keys...).ToSlice()
	sort.Strings(unique)

	targets := make([]target, 0, len(unique))
	fullClears := mapset.NewThreadUnsafeSet[string]()
	for _, raw := range unique {
		t, err := s.checkKey(actor, tenantAlias, raw)
		if err != nil {
			return err
		}
		targets = append(targets, t)
		if t.key.Optional == "" {
			fullClears.Add(t.key.ElementKey())
		}
	}
	for _, t := range targets {
		if t.key.Optional != "" && fullClears.Contains(t.key.ElementKey()) {
			return newError(ErrValidation, t.key.String(),
				"cannot clear an element and one of its optional keys in the same request")
		}
	}

	scope := s.scopeFor(tenantAlias)
	var changes []configdb.TenantConfigChange
	edits := map[string]*elementEdit{}
	for _, t := range targets {
		if t.key.Optional == "" {
			changes = append(changes, configdb.TenantConfigChange{
				Scope:     scope,
				ConfigKey: t.key.ElementKey(),
				Delete:    true,
			})
			continue
		}
		edit := editFor(edits, t)
		edit.clears = append(edit.clears, t.key.Optional)
	}
	partial, err := s.buildChanges(scope, edits)
	if err != nil {
		return err
	}
	changes = append(changes, partial...)

	s.events.emit(EventPreClear, tenantAlias)
	if err := s.store.ApplyTenantConfigChanges(ctx, changes); err != nil {
		return fmt.Errorf("failed to persist config clear: %w", err)
	}
	return s.afterMutation(ctx, scope, tenantAlias)
}

func (s *Service) checkRequest(actor Actor, tenantAlias string, n int) error {
	if actor == nil || !actor.IsAdmin(tenantAlias) {
		return newError(ErrUnauthorized, "", "only administrators can change configuration")
	}
	if tenantAlias == "" {
		return newError(ErrValidation, "", "a tenant alias is required")
	}
	if n == 0 {
		return newError(ErrValidation, "", "at least one config key is required")
	}
	return nil
}

func (s *Service) checkKey(actor Actor, tenantAlias, raw string) (target, error) {
	key, err := ParseKey(raw)
	if err != nil {
		return target{}, err
	}
	field, ok := s.schema.global.Field(key.Module, key.Feature, key.Element)
	if !ok {
		return target{}, newError(ErrNotFound, raw, "no such config element")
	}
	if key.Optional != "" && !isStructured(field) {
		return target{}, newError(ErrValidation, raw, "optional keys are only allowed on internationalizable elements")
	}
	if !canMutate(actor, tenantAlias, field.Info()) {
		return target{}, newError(ErrUnauthorized, raw, "not allowed to change this config element")
	}
	return target{key: key, field: field}, nil
}

func editFor(edits map[string]*elementEdit, t target) *elementEdit {
	ek := t.key.ElementKey()
	edit, ok := edits[ek]
	if !ok {
		edit = &elementEdit{field: t.field, optionals: map[string]string{}}
		edits[ek] = edit
	}
	return edit
}

// buildChanges turns element edits into puts. Optional-key edits apply on
// top of the full value in the same request, else on the current
// effective value.
func (s *Service) buildChanges(scope configdb.Scope, edits map[string]*elementEdit) ([]configdb.TenantConfigChange, error) {
	keys := make([]string, 0, len(edits))
	for k := range edits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sn := s.snap.Load()
	changes := make([]configdb.TenantConfigChange, 0, len(keys))
	for _, ek := range keys {
		edit := edits[ek]
		v := edit.full
		if len(edit.optionals) > 0 || len(edit.clears) > 0 {
			base := v
			if !edit.hasFull {
				base = sn.resolve(scope, ek, edit.field).Value
			}
			m, err := cast.ToStringMapStringE(base)
			if err != nil {
				return nil, newError(ErrValidation, ek, fmt.Sprintf("current value is not a map: %v", err))
			}
			m = maps.Clone(m)
			if m == nil {
				m = map[string]string{}
			}
			maps.Copy(m, edit.optionals)
			for _, k := range edit.clears {
				delete(m, k)
			}
			v = m
		}
		raw, err := edit.field.Encode(v)
		if err != nil {
			return nil, newError(ErrValidation, ek, fmt.Sprintf("cannot encode value: %v", err))
		}
		changes = append(changes, configdb.TenantConfigChange{
			Scope:     scope,
			ConfigKey: ek,
			Value:     raw,
		})
	}
	return changes, nil
}

// afterMutation tells every process to reload the scope, then reloads it
// here so the writer reads its own write when the call returns.
func (s *Service) afterMutation(ctx context.Context, scope configdb.Scope, tenantAlias string) error {
	var publishErr error
	if s.bus != nil {
		if err := s.bus.Publish(ctx, pubsub.NewInvalidation(s.instanceID, scope)); err != nil {
			slog.Error("Failed to publish config invalidation",
				slog.String("scope", scope.String()),
				slog.Any("error", err))
			publishErr = fmt.Errorf("%w: %w", ErrBroadcast, err)
		}
	}

	if err := s.refreshScope(ctx, scope); err != nil {
		slog.Error("Config persisted but local refresh failed",
			slog.String("scope", scope.String()),
			slog.Any("error", err))
		return errors.Join(publishErr, err)
	}
	s.events.emit(EventUpdate, tenantAlias)
	return publishErr
}

func recordMutation(ctx context.Context, span trace.Span, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrUnauthorized):
		outcome = "unauthorized"
	case errors.Is(err, ErrBroadcast):
		outcome = "broadcast_error"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
