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

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/tenantconf/configdb"
)

// BackendType represents supported broadcast backend types
type BackendType string

const (
	BackendTypeLocal    BackendType = "local"
	BackendTypePostgres BackendType = "postgres"
	BackendTypeKafka    BackendType = "kafka"
	BackendTypeRedis    BackendType = "redis"
)

// Service defines the interface for long-running subscribers
type Service interface {
	Run(ctx context.Context) error
}

// Handler receives invalidations. Delivery is at least once, so handlers
// must tolerate duplicates.
type Handler func(ctx context.Context, inv Invalidation) error

// Backend defines the interface for different broadcast backends.
// Handlers must be registered with Subscribe before Run is called.
type Backend interface {
	Service
	GetName() string
	Publish(ctx context.Context, inv Invalidation) error
	Subscribe(h Handler)
	Close() error
}

// Invalidation tells every process to reload one override layer, or all
// of them when All is set.
type Invalidation struct {
	ID     uuid.UUID      `json:"id"`
	Origin string         `json:"origin,omitempty"`
	Scope  configdb.Scope `json:"scope"`
	All    bool           `json:"all,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// NewInvalidation builds an invalidation for scope sent by origin.
func NewInvalidation(origin string, scope configdb.Scope) Invalidation {
	return Invalidation{
		ID:     uuid.New(),
		Origin: origin,
		Scope:  scope,
		SentAt: time.Now().UTC(),
	}
}

// NewResync builds an invalidation for every layer. Backends dispatch one
// locally after reconnecting, since messages may have been missed.
func NewResync() Invalidation {
	return Invalidation{
		ID:     uuid.New(),
		All:    true,
		SentAt: time.Now().UTC(),
	}
}

func encodeInvalidation(inv Invalidation) ([]byte, error) {
	return json.Marshal(inv)
}

func decodeInvalidation(payload []byte) (Invalidation, error) {
	if len(payload) == 0 {
		return Invalidation{}, fmt.Errorf("empty message received")
	}
	var inv Invalidation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return Invalidation{}, fmt.Errorf("failed to parse invalidation: %w", err)
	}
	if !inv.All && !inv.Scope.Global && inv.Scope.TenantAlias == "" {
		return Invalidation{}, fmt.Errorf("invalidation %s names no scope", inv.ID)
	}
	return inv, nil
}
