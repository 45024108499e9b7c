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
	"encoding/base32"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var base32NoPad = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

var (
	instanceGenOnce sync.Once
	instanceGen     *SonyFlakeGenerator
)

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewFlakeGenerator fails when no machine id can be derived, which is the
// case on hosts without a private IPv4 address.
func NewFlakeGenerator() (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// NextID returns a positive int64 that'll increase roughly in time order.
func (g *SonyFlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// NextBase32ID returns NextID as unpadded lowercase base32.
func (g *SonyFlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	return base32NoPad.EncodeToString(b[:])
}

// NewInstanceID names this process on the invalidation channel and in
// logs. It is a flake id when one can be generated, else a random UUID.
func NewInstanceID() string {
	instanceGenOnce.Do(func() {
		instanceGen, _ = NewFlakeGenerator()
	})
	if instanceGen == nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return instanceGen.NextBase32ID()
}
