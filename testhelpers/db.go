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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	configdbmigrations "github.com/cardinalhq/tenantconf/configdb/migrations"
)

// SetupTestConfigDB creates a clean test configdb database with migrations applied.
// Returns a connection pool and registers cleanup with t.Cleanup.
func SetupTestConfigDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_configdb_%d_%d", time.Now().Unix(), rand.Intn(10000))

	host := getEnvOrDefault("CONFIGDB_HOST", "localhost")
	port := getEnvOrDefault("CONFIGDB_PORT", "5432")
	user := getEnvOrDefault("CONFIGDB_USER", os.Getenv("USER"))
	baseDB := getEnvOrDefault("CONFIGDB_DBNAME", "testing_configdb")
	password := os.Getenv("CONFIGDB_PASSWORD")

	basePool, err := pgxpool.New(ctx, connString(user, password, host, port, baseDB))
	if err != nil {
		t.Fatalf("Failed to connect to base configdb: %v", err)
	}

	_, err = basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test configdb %s: %v", dbName, err)
	}

	testPool, err := pgxpool.New(ctx, connString(user, password, host, port, dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test configdb: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()

		_, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		if err != nil {
			slog.Error("Failed to drop test configdb", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	if err := configdbmigrations.RunMigrationsUp(ctx, testPool); err != nil {
		t.Fatalf("Failed to run configdb migrations: %v", err)
	}

	return testPool
}

func connString(user, password, host, port, dbName string) string {
	if password != "" {
		return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, dbName)
	}
	return fmt.Sprintf("postgresql://%s@%s:%s/%s", user, host, port, dbName)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
