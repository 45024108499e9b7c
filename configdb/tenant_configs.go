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
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
)

const (
	scopeKindGlobal = "global"
	scopeKindTenant = "tenant"
)

// Scope identifies one override layer. The global layer sits between
// schema defaults and every tenant layer.
type Scope struct {
	Global      bool   `json:"global,omitempty"`
	TenantAlias string `json:"tenant_alias,omitempty"`
}

// GlobalScope returns the global-admin override layer.
func GlobalScope() Scope {
	return Scope{Global: true}
}

// TenantScope returns the override layer of a single tenant.
func TenantScope(alias string) Scope {
	return Scope{TenantAlias: alias}
}

func (s Scope) kind() string {
	if s.Global {
		return scopeKindGlobal
	}
	return scopeKindTenant
}

// alias is the stored tenant_alias column; always empty for the global layer.
func (s Scope) alias() string {
	if s.Global {
		return ""
	}
	return s.TenantAlias
}

func (s Scope) String() string {
	if s.Global {
		return scopeKindGlobal
	}
	return scopeKindTenant + ":" + s.TenantAlias
}

func scopeFromColumns(kind, alias string) (Scope, error) {
	switch kind {
	case scopeKindGlobal:
		return GlobalScope(), nil
	case scopeKindTenant:
		return TenantScope(alias), nil
	default:
		return Scope{}, fmt.Errorf("unknown config scope %q", kind)
	}
}

// TenantConfigRow is one explicitly set configuration value.
type TenantConfigRow struct {
	Scope     Scope
	ConfigKey string
	Value     string
	UpdatedAt time.Time
}

// TenantConfigChange is one put or delete in an atomic batch.
type TenantConfigChange struct {
	Scope     Scope
	ConfigKey string
	Value     string
	Delete    bool
}

const listTenantConfigsPage = `-- name: ListTenantConfigsPage :many
SELECT scope, tenant_alias, config_key, value, updated_at
FROM tenant_configs
WHERE ($1::text IS NULL OR (scope = $1::text AND tenant_alias = $2::text))
  AND (scope, tenant_alias, config_key) > ($3::text, $4::text, $5::text)
ORDER BY scope, tenant_alias, config_key
LIMIT $6
`

type listTenantConfigsCursor struct {
	kind, alias, key string
}

// ListTenantConfigs returns every row of the given scope, or every row in
// the table when scope is nil. Rows are read in keyset-paged round trips.
func (store *Store) ListTenantConfigs(ctx context.Context, scope *Scope) ([]TenantConfigRow, error) {
	var (
		kindFilter  *string
		aliasFilter string
	)
	if scope != nil {
		k := scope.kind()
		kindFilter = &k
		aliasFilter = scope.alias()
	}

	var (
		out    []TenantConfigRow
		cursor listTenantConfigsCursor
	)
	for {
		page, next, err := store.listTenantConfigsPage(ctx, kindFilter, aliasFilter, cursor, DefaultScanPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < DefaultScanPageSize {
			return out, nil
		}
		cursor = next
	}
}

func (store *Store) listTenantConfigsPage(ctx context.Context, kind *string, alias string, after listTenantConfigsCursor, limit int) ([]TenantConfigRow, listTenantConfigsCursor, error) {
	rows, err := store.db.Query(ctx, listTenantConfigsPage, kind, alias, after.kind, after.alias, after.key, limit)
	if err != nil {
		return nil, after, fmt.Errorf("list tenant configs: %w", err)
	}
	defer rows.Close()

	var (
		items []TenantConfigRow
		last  = after
	)
	for rows.Next() {
		var (
			kindCol, aliasCol string
			i                 TenantConfigRow
		)
		if err := rows.Scan(&kindCol, &aliasCol, &i.ConfigKey, &i.Value, &i.UpdatedAt); err != nil {
			return nil, after, err
		}
		i.Scope, err = scopeFromColumns(kindCol, aliasCol)
		if err != nil {
			return nil, after, err
		}
		items = append(items, i)
		last = listTenantConfigsCursor{kind: kindCol, alias: aliasCol, key: i.ConfigKey}
	}
	if err := rows.Err(); err != nil {
		return nil, after, err
	}
	return items, last, nil
}

const upsertTenantConfig = `-- name: UpsertTenantConfig :exec
INSERT INTO tenant_configs (scope, tenant_alias, config_key, value, updated_at)
VALUES ($1, $2, $3, $4, clock_timestamp())
ON CONFLICT (scope, tenant_alias, config_key)
DO UPDATE SET
  value = EXCLUDED.value,
  updated_at = GREATEST(clock_timestamp(), tenant_configs.updated_at + interval '1 microsecond')
`

const deleteTenantConfig = `-- name: DeleteTenantConfig :exec
DELETE FROM tenant_configs
WHERE scope = $1 AND tenant_alias = $2 AND config_key = $3
`

// ApplyTenantConfigChanges writes every change in a single transaction.
// Either all changes are persisted or none are.
func (store *Store) ApplyTenantConfigChanges(ctx context.Context, changes []TenantConfigChange) error {
	if len(changes) == 0 {
		return nil
	}

	return store.execTx(ctx, func(s *Store) error {
		batch := &pgx.Batch{}
		for _, c := range changes {
			if c.Delete {
				batch.Queue(deleteTenantConfig, c.Scope.kind(), c.Scope.alias(), c.ConfigKey)
			} else {
				batch.Queue(upsertTenantConfig, c.Scope.kind(), c.Scope.alias(), c.ConfigKey, c.Value)
			}
		}

		results := s.db.SendBatch(ctx, batch)
		var errs *multierror.Error
		for i := range changes {
			if _, err := results.Exec(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("change %d (%s %s): %w", i, changes[i].Scope, changes[i].ConfigKey, err))
			}
		}
		if err := results.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		return errs.ErrorOrNil()
	})
}
