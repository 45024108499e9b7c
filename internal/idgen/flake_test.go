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

package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSonyFlakeGenerator(t *testing.T) {
	gen, err := NewFlakeGenerator()
	if err != nil {
		t.Skipf("sonyflake unavailable on this host: %v", err)
	}

	id := gen.NextID()
	id2 := gen.NextID()
	assert.Greater(t, id2, id, "NextID() did not return increasing id")

	b1, b2 := gen.NextBase32ID(), gen.NextBase32ID()
	assert.NotEqual(t, b1, b2)
	assert.Len(t, b1, 13)
	assert.False(t, strings.Contains(b1, "="), "base32 ID should not contain padding")
	assert.Equal(t, strings.ToLower(b1), b1)
}

func TestNewInstanceID(t *testing.T) {
	a, b := NewInstanceID(), NewInstanceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}
