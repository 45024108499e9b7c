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
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

type memoryKey struct {
	scope Scope
	key   string
}

// MemoryStore is an in-process store with the same contract as Store.
// It backs single-node development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	rows      map[memoryKey]TenantConfigRow
	adminKeys map[string]TenantAdminKey
	lastWrite time.Time
	now       func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:      make(map[memoryKey]TenantConfigRow),
		adminKeys: make(map[string]TenantAdminKey),
		now:       time.Now,
	}
}

// ListTenantConfigs returns rows ordered the same way the database pages them.
func (m *MemoryStore) ListTenantConfigs(_ context.Context, scope *Scope) ([]TenantConfigRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TenantConfigRow, 0, len(m.rows))
	for k, r := range m.rows {
		if scope != nil && k.scope != normalizeScope(*scope) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scope.kind() != b.Scope.kind() {
			return a.Scope.kind() < b.Scope.kind()
		}
		if a.Scope.alias() != b.Scope.alias() {
			return a.Scope.alias() < b.Scope.alias()
		}
		return a.ConfigKey < b.ConfigKey
	})
	return out, nil
}

// ApplyTenantConfigChanges applies all changes under one lock.
func (m *MemoryStore) ApplyTenantConfigChanges(_ context.Context, changes []TenantConfigChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.nextTimestamp()
	for _, c := range changes {
		k := memoryKey{scope: normalizeScope(c.Scope), key: c.ConfigKey}
		if c.Delete {
			delete(m.rows, k)
			continue
		}
		m.rows[k] = TenantConfigRow{
			Scope:     k.scope,
			ConfigKey: c.ConfigKey,
			Value:     c.Value,
			UpdatedAt: ts,
		}
	}
	return nil
}

// nextTimestamp is strictly increasing at microsecond resolution, which is
// what the database column stores.
func (m *MemoryStore) nextTimestamp() time.Time {
	ts := m.now().UTC().Truncate(time.Microsecond)
	if !ts.After(m.lastWrite) {
		ts = m.lastWrite.Add(time.Microsecond)
	}
	m.lastWrite = ts
	return ts
}

// GetTenantAdminKey mirrors Store.GetTenantAdminKey, returning pgx.ErrNoRows on a miss.
func (m *MemoryStore) GetTenantAdminKey(_ context.Context, keyHash string) (TenantAdminKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.adminKeys[keyHash]
	if !ok {
		return TenantAdminKey{}, pgx.ErrNoRows
	}
	return k, nil
}

func (m *MemoryStore) UpsertTenantAdminKey(_ context.Context, key TenantAdminKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = m.now().UTC()
	}
	m.adminKeys[key.KeyHash] = key
	return nil
}

func (m *MemoryStore) DeleteTenantAdminKey(_ context.Context, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adminKeys, keyHash)
	return nil
}

func normalizeScope(s Scope) Scope {
	if s.Global {
		return GlobalScope()
	}
	return s
}
