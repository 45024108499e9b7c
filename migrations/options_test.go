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

package migrations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsFromEnv_Defaults(t *testing.T) {
	t.Setenv("CONFIGDB_MIGRATION_CHECK_ENABLED", "")
	t.Setenv("MIGRATION_CHECK_TIMEOUT", "")
	t.Setenv("MIGRATION_CHECK_RETRY_INTERVAL", "")
	t.Setenv("MIGRATION_CHECK_ALLOW_DIRTY", "")

	o := OptionsFromEnv("CONFIGDB")
	assert.Equal(t, CheckModeWait, o.Mode)
	assert.Equal(t, 60*time.Second, o.Timeout)
	assert.Equal(t, 5*time.Second, o.RetryInterval)
	assert.False(t, o.AllowDirty)
}

func TestOptionsFromEnv_Overrides(t *testing.T) {
	t.Setenv("CONFIGDB_MIGRATION_CHECK_ENABLED", "false")
	t.Setenv("MIGRATION_CHECK_TIMEOUT", "30s")
	t.Setenv("MIGRATION_CHECK_RETRY_INTERVAL", "2s")
	t.Setenv("MIGRATION_CHECK_ALLOW_DIRTY", "true")

	o := OptionsFromEnv("CONFIGDB")
	assert.Equal(t, CheckModeSkip, o.Mode)
	assert.Equal(t, 30*time.Second, o.Timeout)
	assert.Equal(t, 2*time.Second, o.RetryInterval)
	assert.True(t, o.AllowDirty)
}

func TestOptionsFromEnv_ExplicitOptionsWin(t *testing.T) {
	t.Setenv("CONFIGDB_MIGRATION_CHECK_ENABLED", "false")

	o := OptionsFromEnv("CONFIGDB", WithCheckMode(CheckModeWarn), WithTimeout(time.Second))
	assert.Equal(t, CheckModeWarn, o.Mode)
	assert.Equal(t, time.Second, o.Timeout)
	assert.Equal(t, "warn", o.Mode.String())
}
