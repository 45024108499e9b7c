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

// Package modules holds the descriptor groups of the built-in modules.
package modules

import (
	"embed"
	"fmt"
	"os"

	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

//go:embed *.yaml
var builtin embed.FS

// Builtin returns the built-in descriptor groups.
func Builtin() ([]tenantconfig.DescriptorGroup, error) {
	return tenantconfig.LoadDescriptorGroups(builtin, ".")
}

// Load returns the built-in groups followed by those in extraDir, if set.
// Groups from extraDir extend or replace built-in features.
func Load(extraDir string) ([]tenantconfig.DescriptorGroup, error) {
	groups, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in modules: %w", err)
	}
	if extraDir == "" {
		return groups, nil
	}
	extra, err := tenantconfig.LoadDescriptorGroups(os.DirFS(extraDir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load modules from %s: %w", extraDir, err)
	}
	return append(groups, extra...), nil
}
