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

package dbopen

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/tenantconf/configdb"
	configdbmigrations "github.com/cardinalhq/tenantconf/configdb/migrations"
	"github.com/cardinalhq/tenantconf/migrations"
)

// Options configures database connection behavior
type Options struct {
	MigrationCheckOptions []migrations.CheckOption
}

// SkipMigrationCheck returns Options that skip migration checking entirely
func SkipMigrationCheck() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeSkip),
		},
	}
}

// WarnOnMigrationMismatch returns Options that warn on migration mismatches but continue
func WarnOnMigrationMismatch() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeWarn),
		},
	}
}

func checkOptions(opts []Options) []migrations.CheckOption {
	var out []migrations.CheckOption
	for _, o := range opts {
		out = append(out, o.MigrationCheckOptions...)
	}
	return out
}

// ConnectToConfigDB opens a pool from the CONFIGDB_* environment and, unless
// told otherwise, waits for the schema to reach the version this binary
// was built with.
func ConnectToConfigDB(ctx context.Context, opts ...Options) (*pgxpool.Pool, error) {
	connectionString, err := getDatabaseURLFromEnv("CONFIGDB")
	if err != nil {
		return nil, errors.Join(ErrDatabaseNotConfigured, fmt.Errorf("failed to get CONFIGDB connection string: %w", err))
	}

	pool, err := configdb.NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	if err := configdbmigrations.CheckExpectedVersion(ctx, pool, checkOptions(opts)...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("CONFIGDB migration version check failed: %w", err)
	}

	return pool, nil
}

// ConfigDBStore returns a Store over a fresh pool. The caller closes both.
func ConfigDBStore(ctx context.Context, opts ...Options) (*configdb.Store, error) {
	pool, err := ConnectToConfigDB(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return configdb.NewStore(pool), nil
}
