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

// Package actor resolves API keys into the caller identity used for
// configuration authorization.
package actor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

// ErrUnknownKey is returned for an API key that matches no admin.
var ErrUnknownKey = fmt.Errorf("%w: unknown API key", tenantconfig.ErrUnauthorized)

// Actor is a resolved caller. The zero value is anonymous.
type Actor struct {
	Name        string
	Tenant      string
	GlobalAdmin bool
	TenantAdmin bool
}

var _ tenantconfig.Actor = (*Actor)(nil)

// Anonymous returns a caller with no admin rights visiting tenantAlias.
func Anonymous(tenantAlias string) *Actor {
	return &Actor{Tenant: tenantAlias}
}

func (a *Actor) TenantAlias() string { return a.Tenant }
func (a *Actor) IsGlobalAdmin() bool { return a.GlobalAdmin }

func (a *Actor) IsTenantAdmin(tenantAlias string) bool {
	return a.TenantAdmin && a.Tenant == tenantAlias
}

func (a *Actor) IsAdmin(tenantAlias string) bool {
	return a.GlobalAdmin || a.IsTenantAdmin(tenantAlias)
}

func (a *Actor) String() string {
	switch {
	case a.GlobalAdmin:
		return "global-admin:" + a.Name
	case a.TenantAdmin:
		return "tenant-admin:" + a.Tenant + ":" + a.Name
	default:
		return "anonymous:" + a.Tenant
	}
}

// TenantKeyStore looks up tenant admin keys by hash. Both *configdb.Store
// and *configdb.MemoryStore implement it.
type TenantKeyStore interface {
	GetTenantAdminKey(ctx context.Context, keyHash string) (configdb.TenantAdminKey, error)
}

// Resolver maps API keys to actors: global admin keys come from a key
// file, tenant admin keys from the config database.
type Resolver struct {
	globalKeys       *FileProvider
	tenantKeys       TenantKeyStore
	globalAdminAlias string
}

func NewResolver(globalKeys *FileProvider, tenantKeys TenantKeyStore, globalAdminAlias string) *Resolver {
	if globalKeys == nil {
		globalKeys = &FileProvider{}
	}
	return &Resolver{
		globalKeys:       globalKeys,
		tenantKeys:       tenantKeys,
		globalAdminAlias: globalAdminAlias,
	}
}

// Resolve returns the actor for apiKey. An empty key yields an anonymous
// visitor of tenantAlias.
func (r *Resolver) Resolve(ctx context.Context, apiKey, tenantAlias string) (*Actor, error) {
	if apiKey == "" {
		return Anonymous(tenantAlias), nil
	}
	if info, ok := r.globalKeys.Lookup(apiKey); ok {
		return &Actor{Name: info.Name, Tenant: r.globalAdminAlias, GlobalAdmin: true}, nil
	}
	if r.tenantKeys == nil {
		return nil, ErrUnknownKey
	}

	key, err := r.tenantKeys.GetTenantAdminKey(ctx, HashAPIKey(apiKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	return &Actor{Name: key.Name, Tenant: key.TenantAlias, TenantAdmin: true}, nil
}

// HashAPIKey is the stored form of an API key.
func HashAPIKey(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return fmt.Sprintf("%x", h)
}

// NewAPIKey generates a fresh tenant admin key.
func NewAPIKey() string {
	return "tk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
