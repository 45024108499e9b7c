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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/tenantconf/cmd/dbopen"
	"github.com/cardinalhq/tenantconf/config"
	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/actor"
	"github.com/cardinalhq/tenantconf/internal/modules"
	"github.com/cardinalhq/tenantconf/internal/pubsub"
	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

// configStore is what both configdb.Store and configdb.MemoryStore offer.
type configStore interface {
	tenantconfig.ValueStore
	actor.TenantKeyStore
	UpsertTenantAdminKey(ctx context.Context, key configdb.TenantAdminKey) error
	DeleteTenantAdminKey(ctx context.Context, keyHash string) error
}

// runtime holds everything a command needs to act on tenant configuration.
type runtime struct {
	cfg        *config.Config
	instanceID string
	pool       *pgxpool.Pool
	store      configStore
	backend    pubsub.Backend
	svc        *tenantconfig.Service
	resolver   *actor.Resolver
}

// newRuntime opens the configured store and broadcast backend and builds
// the service over them. The cache is not loaded; call svc.Start.
func newRuntime(ctx context.Context, cfg *config.Config, instanceID string, stats *pubsub.StatsAggregator, dbOpts ...dbopen.Options) (*runtime, error) {
	rt := &runtime{cfg: cfg, instanceID: instanceID}

	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		slog.Warn("Using in-memory config store; values are lost on exit")
		rt.store = configdb.NewMemoryStore()
	case config.StoreBackendPostgres:
		pool, err := dbopen.ConnectToConfigDB(ctx, dbOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to configdb: %w", err)
		}
		rt.pool = pool
		rt.store = configdb.NewStore(pool)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}

	groups, err := modules.Load(cfg.Schema.Dir)
	if err != nil {
		rt.Close()
		return nil, err
	}

	backend, err := pubsub.NewBackend(pubsub.Params{
		Config:     cfg,
		InstanceID: instanceID,
		Pool:       rt.pool,
		Stats:      stats,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create broadcast backend: %w", err)
	}
	rt.backend = backend

	svc, err := tenantconfig.New(rt.store, backend, groups,
		tenantconfig.WithGlobalAdminAlias(cfg.GlobalAdminAlias),
		tenantconfig.WithInstanceID(instanceID),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.svc = svc
	backend.Subscribe(svc.HandleInvalidation)

	globalKeys, err := actor.NewFileProvider(cfg.Actor.AdminKeysFile)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to load admin keys: %w", err)
	}
	rt.resolver = actor.NewResolver(globalKeys, rt.store, cfg.GlobalAdminAlias)

	slog.Info("Config runtime ready",
		slog.String("store", cfg.Store.Backend),
		slog.String("broadcast", backend.GetName()),
		slog.Int("globalAdminKeys", globalKeys.Len()))
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.backend != nil {
		if err := rt.backend.Close(); err != nil {
			slog.Warn("Failed to close broadcast backend", slog.Any("error", err))
		}
	}
	if s, ok := rt.store.(*configdb.Store); ok {
		s.Close()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}
