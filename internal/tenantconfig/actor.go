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

package tenantconfig

// Actor is the caller on whose behalf an operation runs.
type Actor interface {
	// TenantAlias is the tenant the actor belongs to.
	TenantAlias() string
	IsGlobalAdmin() bool
	IsTenantAdmin(tenantAlias string) bool
	// IsAdmin is true for the global admin and for admins of tenantAlias.
	IsAdmin(tenantAlias string) bool
}

func isAnyAdmin(a Actor) bool {
	if a == nil {
		return false
	}
	return a.IsGlobalAdmin() || a.IsAdmin(a.TenantAlias())
}

// canMutate applies the write rule for one element.
func canMutate(a Actor, tenantAlias string, info FieldInfo) bool {
	if a == nil || !a.IsAdmin(tenantAlias) {
		return false
	}
	global := a.IsGlobalAdmin()
	if !info.TenantOverride && !global {
		return false
	}
	if info.GlobalAdminOnly && !global {
		return false
	}
	return true
}

// hidden applies the read rule for one element.
func hidden(info FieldInfo, isGlobalAdmin, isTenantAdmin bool) bool {
	if info.Suppress && !isGlobalAdmin && !isTenantAdmin {
		return true
	}
	return isTenantAdmin && info.GlobalAdminOnly
}
