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
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	checks "github.com/cardinalhq/tenantconf/migrations"
)

// GetMigrationFiles returns the embedded migration files for version checking
func GetMigrationFiles() embed.FS {
	return migrationFiles
}

// CheckExpectedVersion verifies that configdb is at the migration version
// embedded in this binary. Environment defaults are read with the CONFIGDB
// prefix; opts override them.
func CheckExpectedVersion(ctx context.Context, pool *pgxpool.Pool, opts ...checks.CheckOption) error {
	o := checks.OptionsFromEnv("CONFIGDB", opts...)
	if o.Mode == checks.CheckModeSkip {
		slog.Debug("Migration version checking disabled for configdb")
		return nil
	}

	expectedVersion, err := extractLatestMigrationVersion(migrationFiles)
	if err != nil {
		return fmt.Errorf("failed to extract expected migration version for configdb: %w", err)
	}

	versionFn := func() (uint, bool, error) {
		return getCurrentMigrationVersion(pool)
	}
	return waitForVersion(ctx, expectedVersion, versionFn, o)
}

// extractLatestMigrationVersion extracts the highest migration version from embedded migration files
func extractLatestMigrationVersion(files embed.FS) (uint, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		// "1760000000_tenant_configs.up.sql"
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		if uint(version) > maxVersion {
			maxVersion = uint(version)
		}
	}

	if maxVersion == 0 {
		return 0, fmt.Errorf("no valid migration files found")
	}
	return maxVersion, nil
}

func waitForVersion(ctx context.Context, expected uint, current func() (uint, bool, error), o checks.CheckOptions) error {
	slog.Info("Checking migration version",
		slog.String("database", "configdb"),
		slog.Uint64("expected_version", uint64(expected)),
		slog.String("mode", o.Mode.String()),
		slog.Duration("timeout", o.Timeout))

	deadline := time.Now().Add(o.Timeout)
	ticker := time.NewTicker(o.RetryInterval)
	defer ticker.Stop()

	for {
		version, dirty, err := current()
		if err != nil {
			return fmt.Errorf("failed to get current migration version for configdb: %w", err)
		}

		if dirty && !o.AllowDirty {
			return errors.New("database configdb migration is in dirty state, please fix before proceeding")
		}

		if version == expected {
			slog.Info("Migration version check passed", slog.Uint64("version", uint64(version)))
			return nil
		}

		if o.Mode == checks.CheckModeWarn {
			slog.Warn("configdb migration version mismatch, continuing",
				slog.Uint64("current_version", uint64(version)),
				slog.Uint64("expected_version", uint64(expected)))
			return nil
		}

		if version > expected {
			return fmt.Errorf("database configdb version %d is newer than expected version %d - you may need to update the application",
				version, expected)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for configdb migration to complete: current version %d, expected %d",
				version, expected)
		}

		slog.Info("Waiting for migrations to complete",
			slog.Uint64("current_version", uint64(version)),
			slog.Uint64("expected_version", uint64(expected)),
			slog.Duration("remaining_timeout", time.Until(deadline)))

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for configdb migrations")
		case <-ticker.C:
		}
	}
}

func getCurrentMigrationVersion(pool *pgxpool.Pool) (uint, bool, error) {
	m, cleanup, err := newMigrate(pool)
	if err != nil {
		return 0, false, err
	}
	defer cleanup()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, dirty, nil
}
