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

package configdb

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TenantAdminKey maps a hashed API key to the tenant it administers.
type TenantAdminKey struct {
	KeyHash     string
	TenantAlias string
	Name        string
	CreatedAt   time.Time
}

type TenantAdminKeyCacheValue struct {
	TenantAdminKey
	error
}

const getTenantAdminKey = `-- name: GetTenantAdminKey :one
SELECT key_hash, tenant_alias, name, created_at
FROM tenant_admin_keys
WHERE key_hash = $1
`

// GetTenantAdminKeyUncached reads a key without consulting the cache.
func (store *Store) GetTenantAdminKeyUncached(ctx context.Context, keyHash string) (TenantAdminKey, error) {
	row := store.db.QueryRow(ctx, getTenantAdminKey, keyHash)
	var i TenantAdminKey
	err := row.Scan(&i.KeyHash, &i.TenantAlias, &i.Name, &i.CreatedAt)
	return i, err
}

// GetTenantAdminKey returns the key record, caching both hits and misses.
func (store *Store) GetTenantAdminKey(ctx context.Context, keyHash string) (TenantAdminKey, error) {
	loader := ttlcache.LoaderFunc[string, TenantAdminKeyCacheValue](
		func(cache *ttlcache.Cache[string, TenantAdminKeyCacheValue], key string) *ttlcache.Item[string, TenantAdminKeyCacheValue] {
			row, err := store.GetTenantAdminKeyUncached(ctx, key)
			return cache.Set(key, TenantAdminKeyCacheValue{
				TenantAdminKey: row,
				error:          err,
			}, ttlcache.DefaultTTL)
		},
	)
	v := store.adminKeyCache.Get(keyHash, ttlcache.WithLoader(loader))
	if v != nil {
		return v.Value().TenantAdminKey, v.Value().error
	}
	return store.GetTenantAdminKeyUncached(ctx, keyHash)
}

const upsertTenantAdminKey = `-- name: UpsertTenantAdminKey :exec
INSERT INTO tenant_admin_keys (key_hash, tenant_alias, name)
VALUES ($1, $2, $3)
ON CONFLICT (key_hash) DO UPDATE SET tenant_alias = EXCLUDED.tenant_alias, name = EXCLUDED.name
`

// UpsertTenantAdminKey stores a key and drops any cached lookup for it.
func (store *Store) UpsertTenantAdminKey(ctx context.Context, key TenantAdminKey) error {
	if _, err := store.db.Exec(ctx, upsertTenantAdminKey, key.KeyHash, key.TenantAlias, key.Name); err != nil {
		return err
	}
	store.adminKeyCache.Delete(key.KeyHash)
	return nil
}

const deleteTenantAdminKey = `-- name: DeleteTenantAdminKey :exec
DELETE FROM tenant_admin_keys WHERE key_hash = $1
`

// DeleteTenantAdminKey removes a key and drops any cached lookup for it.
func (store *Store) DeleteTenantAdminKey(ctx context.Context, keyHash string) error {
	if _, err := store.db.Exec(ctx, deleteTenantAdminKey, keyHash); err != nil {
		return err
	}
	store.adminKeyCache.Delete(keyHash)
	return nil
}
