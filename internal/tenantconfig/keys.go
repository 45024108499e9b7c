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
	"strings"
)

// Key addresses one element, or one optional sub-key of a structured
// element: "module/feature/element[/optionalKey]".
type Key struct {
	Module   string
	Feature  string
	Element  string
	Optional string
}

// ParseKey splits a config key. Three or four non-empty segments are required.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 && len(parts) != 4 {
		return Key{}, newError(ErrValidation, s, "config key must have the form module/feature/element[/optionalKey]")
	}
	for _, p := range parts {
		if p == "" {
			return Key{}, newError(ErrValidation, s, "config key has an empty segment")
		}
	}
	k := Key{Module: parts[0], Feature: parts[1], Element: parts[2]}
	if len(parts) == 4 {
		k.Optional = parts[3]
	}
	return k, nil
}

// ElementKey is the storage key of the element, without any optional key.
func (k Key) ElementKey() string {
	return k.Module + "/" + k.Feature + "/" + k.Element
}

func (k Key) String() string {
	if k.Optional == "" {
		return k.ElementKey()
	}
	return k.ElementKey() + "/" + k.Optional
}

func elementKey(module, feature, element string) string {
	return module + "/" + feature + "/" + element
}
