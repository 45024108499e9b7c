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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// Feature is a titled group of elements within a module.
type Feature struct {
	Title       string
	Description string
	Elements    map[string]Field
}

// Schema maps module id -> feature id -> feature.
type Schema map[string]map[string]*Feature

// Field looks up an element descriptor.
func (s Schema) Field(module, feature, element string) (Field, bool) {
	f, ok := s[module][feature]
	if !ok {
		return nil, false
	}
	field, ok := f.Elements[element]
	return field, ok
}

// redact returns a deep copy without globalAdminOnly elements.
func (s Schema) redact() Schema {
	out := make(Schema, len(s))
	for moduleID, features := range s {
		outFeatures := make(map[string]*Feature, len(features))
		for featureID, f := range features {
			elems := make(map[string]Field, len(f.Elements))
			for elementID, field := range f.Elements {
				if field.Info().GlobalAdminOnly {
					continue
				}
				elems[elementID] = field
			}
			outFeatures[featureID] = &Feature{
				Title:       f.Title,
				Description: f.Description,
				Elements:    elems,
			}
		}
		out[moduleID] = outFeatures
	}
	return out
}

// SchemaCache holds the global schema and its tenant-safe view. Both are
// immutable after construction.
type SchemaCache struct {
	global Schema
	tenant Schema
}

// BuildSchema merges descriptor groups into the global schema and derives
// the tenant schema. Any invalid element fails the whole build.
func BuildSchema(groups []DescriptorGroup) (*SchemaCache, error) {
	global := make(Schema)
	for _, g := range groups {
		if g.Module == "" {
			return nil, fmt.Errorf("descriptor group has no module id")
		}
		features, ok := global[g.Module]
		if !ok {
			features = make(map[string]*Feature)
			global[g.Module] = features
		}

		featureIDs := make([]string, 0, len(g.Features))
		for id := range g.Features {
			featureIDs = append(featureIDs, id)
		}
		sort.Strings(featureIDs)

		for _, featureID := range featureIDs {
			fd := g.Features[featureID]
			f := &Feature{
				Title:       fd.Title,
				Description: fd.Description,
				Elements:    make(map[string]Field, len(fd.Elements)),
			}
			for elementID, ed := range fd.Elements {
				field, err := NewField(ed)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", elementKey(g.Module, featureID, elementID), err)
				}
				f.Elements[elementID] = field
			}
			if _, exists := features[featureID]; exists {
				slog.Debug("Feature redeclared by a later descriptor group",
					slog.String("module", g.Module),
					slog.String("feature", featureID))
			}
			features[featureID] = f
		}
	}

	return &SchemaCache{
		global: global,
		tenant: global.redact(),
	}, nil
}

// Get returns the global schema for the global admin and the redacted
// tenant schema for everyone else.
func (c *SchemaCache) Get(isGlobalAdmin bool) Schema {
	if isGlobalAdmin {
		return c.global
	}
	return c.tenant
}

type fieldJSON struct {
	Type            FieldType `json:"type"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DefaultValue    any       `json:"defaultValue"`
	TenantOverride  bool      `json:"tenantOverride"`
	Suppress        bool      `json:"suppress"`
	GlobalAdminOnly bool      `json:"globalAdminOnly"`
	Group           []Choice  `json:"group,omitempty"`
}

type optionsField interface {
	Options() []Choice
}

func (f *Feature) MarshalJSON() ([]byte, error) {
	elems := make(map[string]fieldJSON, len(f.Elements))
	for id, field := range f.Elements {
		info := field.Info()
		fj := fieldJSON{
			Type:            field.Type(),
			Name:            info.Name,
			Description:     info.Description,
			DefaultValue:    field.Default(),
			TenantOverride:  info.TenantOverride,
			Suppress:        info.Suppress,
			GlobalAdminOnly: info.GlobalAdminOnly,
		}
		if o, ok := field.(optionsField); ok {
			fj.Group = o.Options()
		}
		elems[id] = fj
	}
	return json.Marshal(struct {
		Title       string               `json:"title"`
		Description string               `json:"description,omitempty"`
		Elements    map[string]fieldJSON `json:"elements"`
	}{f.Title, f.Description, elems})
}
