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

	"github.com/spf13/cast"
)

// Module reads effective values of one module.
type Module struct {
	svc *Service
	id  string
}

// Module returns an accessor for the module's elements.
func (s *Service) Module(id string) *Module {
	return &Module{svc: s, id: id}
}

func (m *Module) Value(tenantAlias, feature, element string) any {
	return m.svc.GetValue(tenantAlias, m.id, feature, element)
}

func (m *Module) Bool(tenantAlias, feature, element string) bool {
	return cast.ToBool(m.Value(tenantAlias, feature, element))
}

func (m *Module) String(tenantAlias, feature, element string) string {
	return cast.ToString(m.Value(tenantAlias, feature, element))
}

// Localized returns the entry for locale, falling back to the default
// entry when the locale has none.
func (m *Module) Localized(tenantAlias, feature, element, locale string) string {
	v := m.Value(tenantAlias, feature, element)
	entries, ok := v.(map[string]string)
	if !ok {
		return cast.ToString(v)
	}
	if s, ok := entries[locale]; ok && s != "" {
		return s
	}
	return entries[DefaultLocaleKey]
}

func (m *Module) LastUpdated(tenantAlias, feature, element string) time.Time {
	return m.svc.GetLastUpdated(tenantAlias, m.id, feature, element)
}
