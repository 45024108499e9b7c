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
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/tenantconf/config"
)

// Params carries what NewBackend needs to build any backend.
type Params struct {
	Config     *config.Config
	InstanceID string
	// Pool is required by the postgres backend.
	Pool *pgxpool.Pool
	// Stats is optional.
	Stats *StatsAggregator
}

// NewBackend creates a new Backend implementation based on the configured type
func NewBackend(p Params) (Backend, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("broadcast backend requires a config")
	}
	bc := p.Config.Broadcast
	switch BackendType(bc.Backend) {
	case BackendTypeLocal:
		return NewLocalBackend(p.Stats), nil
	case BackendTypePostgres:
		return NewPostgresBackend(p.Pool, bc.Channel, bc.ReconnectInterval, p.Stats)
	case BackendTypeKafka:
		kc := p.Config.Kafka
		if kc.Topic == "" {
			kc.Topic = bc.Channel
		}
		return NewKafkaBackend(kc, p.InstanceID, p.Stats)
	case BackendTypeRedis:
		return NewRedisBackend(p.Config.Redis, bc.Channel, p.Stats), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", bc.Backend)
	}
}
