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
	"time"

	"github.com/cardinalhq/tenantconf/configdb"
)

// TenantConfig is an effective configuration: module -> feature ->
// element -> value.
type TenantConfig map[string]map[string]map[string]any

func (sn *snapshot) resolve(scope configdb.Scope, key string, field Field) ValueInfo {
	if !scope.Global {
		if vi, ok := sn.tenants[scope.TenantAlias][key]; ok {
			return ValueInfo{Value: cloneValue(vi.Value), Timestamp: vi.Timestamp}
		}
	}
	if vi, ok := sn.global[key]; ok {
		return ValueInfo{Value: cloneValue(vi.Value), Timestamp: vi.Timestamp}
	}
	return ValueInfo{Value: cloneValue(field.Default()), Timestamp: Epoch}
}

// Resolve returns the effective value of an element for a tenant. ok is
// false when the element is not in the schema.
func (s *Service) Resolve(tenantAlias, module, feature, element string) (vi ValueInfo, ok bool) {
	field, ok := s.schema.global.Field(module, feature, element)
	if !ok {
		return ValueInfo{}, false
	}
	return s.snap.Load().resolve(s.scopeFor(tenantAlias), elementKey(module, feature, element), field), true
}

// GetValue returns the effective value, or nil for an unknown element.
func (s *Service) GetValue(tenantAlias, module, feature, element string) any {
	vi, ok := s.Resolve(tenantAlias, module, feature, element)
	if !ok {
		return nil
	}
	return vi.Value
}

// GetLastUpdated returns when the effective value was written, or Epoch
// when it is the schema default or the element is unknown.
func (s *Service) GetLastUpdated(tenantAlias, module, feature, element string) time.Time {
	vi, ok := s.Resolve(tenantAlias, module, feature, element)
	if !ok {
		return Epoch
	}
	return vi.Timestamp
}

// LastUpdated is GetLastUpdated for a caller: the key must name a visible
// element, and a hidden one is reported as not found.
func (s *Service) LastUpdated(actor Actor, tenantAlias, rawKey string) (time.Time, error) {
	if tenantAlias == "" {
		return Epoch, newError(ErrValidation, "", "a tenant alias is required")
	}
	key, err := ParseKey(rawKey)
	if err != nil {
		return Epoch, err
	}
	if key.Optional != "" {
		return Epoch, newError(ErrValidation, rawKey, "optional keys have no timestamp of their own")
	}
	isGlobalAdmin, isTenantAdmin := viewerRole(actor, tenantAlias)
	field, ok := s.schema.global.Field(key.Module, key.Feature, key.Element)
	if !ok || hidden(field.Info(), isGlobalAdmin, isTenantAdmin) {
		return Epoch, newError(ErrNotFound, rawKey, "no visible element with this key")
	}
	return s.GetLastUpdated(tenantAlias, key.Module, key.Feature, key.Element), nil
}

func viewerRole(actor Actor, tenantAlias string) (isGlobalAdmin, isTenantAdmin bool) {
	if actor == nil {
		return false, false
	}
	isGlobalAdmin = actor.IsGlobalAdmin()
	return isGlobalAdmin, !isGlobalAdmin && actor.IsTenantAdmin(tenantAlias)
}

// GetTenantConfig returns every element the actor may see, resolved for
// tenantAlias. A nil actor is treated as anonymous.
func (s *Service) GetTenantConfig(actor Actor, tenantAlias string) (TenantConfig, error) {
	if tenantAlias == "" {
		return nil, newError(ErrValidation, "", "a tenant alias is required")
	}

	isGlobalAdmin, isTenantAdmin := viewerRole(actor, tenantAlias)

	sn := s.snap.Load()
	scope := s.scopeFor(tenantAlias)
	out := make(TenantConfig, len(s.schema.global))
	for moduleID, features := range s.schema.global {
		outFeatures := make(map[string]map[string]any, len(features))
		for featureID, f := range features {
			values := make(map[string]any, len(f.Elements))
			for elementID, field := range f.Elements {
				if hidden(field.Info(), isGlobalAdmin, isTenantAdmin) {
					continue
				}
				values[elementID] = sn.resolve(scope, elementKey(moduleID, featureID, elementID), field).Value
			}
			outFeatures[featureID] = values
		}
		out[moduleID] = outFeatures
	}
	return out, nil
}
