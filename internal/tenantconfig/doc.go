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

// Package tenantconfig resolves layered, per-tenant configuration.
//
// # Layers
//
// Every configuration element is declared once in a module schema with a
// default value. The global admin may override that default for the whole
// platform, and a tenant admin may override it again for one tenant:
//
//	tenant override -> global override -> schema default
//
// Overrides are stored as rows keyed by scope and "module/feature/element".
// Absence of a row means the next layer applies.
//
// # Caching
//
// Every process holds the full set of overrides in memory as an immutable
// snapshot. Refreshes build a new snapshot and swap it in, so readers never
// see a half-loaded tenant. Mutations persist first, then broadcast the
// affected scope to other processes and reload it locally before returning.
//
// # Authorization
//
// Only admins may mutate. Elements with tenantOverride=false or
// globalAdminOnly=true may only be changed by the global admin. Suppressed
// elements are hidden from non-admin readers and globalAdminOnly elements
// are hidden from tenant admins.
package tenantconfig
