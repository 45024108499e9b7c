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

package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

func TestBuiltin_BuildsSchema(t *testing.T) {
	groups, err := Builtin()
	require.NoError(t, err)

	sc, err := tenantconfig.BuildSchema(groups)
	require.NoError(t, err)

	global := sc.Get(true)
	for _, m := range []string{"oae-authentication", "oae-principals", "oae-tenants", "oae-email"} {
		assert.Contains(t, global, m)
	}

	f, ok := global.Field("oae-authentication", "twitter", "enabled")
	require.True(t, ok)
	assert.Equal(t, true, f.Default())

	f, ok = global.Field("oae-authentication", "local", "allowAccountCreation")
	require.True(t, ok)
	assert.False(t, f.Info().TenantOverride)

	_, ok = sc.Get(false).Field("oae-email", "smtp", "host")
	assert.False(t, ok)
}

func TestLoad_ExtraDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "twitter.yaml"), []byte(`
module: oae-authentication
features:
  twitter:
    title: Twitter
    elements:
      enabled:
        type: boolean
        default: false
`), 0644))

	groups, err := Load(dir)
	require.NoError(t, err)
	sc, err := tenantconfig.BuildSchema(groups)
	require.NoError(t, err)

	f, ok := sc.Get(true).Field("oae-authentication", "twitter", "enabled")
	require.True(t, ok)
	assert.Equal(t, false, f.Default())
	_, ok = sc.Get(true).Field("oae-authentication", "local", "enabled")
	assert.True(t, ok)

	_, err = Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
