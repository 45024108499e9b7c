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

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/pubsub"
)

// DefaultGlobalAdminAlias is the tenant alias of the global admin.
const DefaultGlobalAdminAlias = "admin"

// ValueStore persists explicitly set values. Both *configdb.Store and
// *configdb.MemoryStore implement it.
type ValueStore interface {
	ListTenantConfigs(ctx context.Context, scope *configdb.Scope) ([]configdb.TenantConfigRow, error)
	ApplyTenantConfigChanges(ctx context.Context, changes []configdb.TenantConfigChange) error
}

// Broadcaster announces which layer changed to every process.
type Broadcaster interface {
	Publish(ctx context.Context, inv pubsub.Invalidation) error
}

// State is the cache lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateSchemaLoaded
	StateWarm
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSchemaLoaded:
		return "schemaLoaded"
	case StateWarm:
		return "warm"
	default:
		return "unknown"
	}
}

// Service holds the tenant configuration cache. Every write goes through
// UpdateConfig or ClearConfig, which broadcast and refresh after persisting.
type Service struct {
	store            ValueStore
	bus              Broadcaster
	schema           *SchemaCache
	globalAdminAlias string
	instanceID       string

	// refreshMu serializes store reads with the snapshot swap that
	// follows them.
	refreshMu sync.Mutex
	snap      atomic.Pointer[snapshot]
	state     atomic.Int32
	events    observers
}

// Option configures a Service.
type Option func(*Service)

// WithGlobalAdminAlias sets the alias whose overrides form the global layer.
func WithGlobalAdminAlias(alias string) Option {
	return func(s *Service) {
		if alias != "" {
			s.globalAdminAlias = alias
		}
	}
}

// WithInstanceID sets the id stamped on invalidations this process sends.
func WithInstanceID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.instanceID = id
		}
	}
}

// New builds the schema from groups and returns a service with an empty
// cache. bus may be nil for a single-process deployment. Call Start to
// load the cache.
func New(store ValueStore, bus Broadcaster, groups []DescriptorGroup, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("a value store is required")
	}
	s := &Service{
		store:            store,
		bus:              bus,
		globalAdminAlias: DefaultGlobalAdminAlias,
		instanceID:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(emptySnapshot())

	schema, err := BuildSchema(groups)
	if err != nil {
		return nil, fmt.Errorf("failed to build config schema: %w", err)
	}
	s.schema = schema
	s.state.Store(int32(StateSchemaLoaded))
	return s, nil
}

// Start performs the initial full cache load.
func (s *Service) Start(ctx context.Context) error {
	if err := s.RefreshAll(ctx); err != nil {
		return fmt.Errorf("initial config load failed: %w", err)
	}
	slog.Info("Config cache warm", slog.String("instanceID", s.instanceID))
	return nil
}

// State reports the cache lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// GlobalAdminAlias is the alias mapped to the global layer.
func (s *Service) GlobalAdminAlias() string {
	return s.globalAdminAlias
}

// InstanceID identifies this process on the invalidation channel.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// Subscribe registers fn for lifecycle events. Events are delivered
// synchronously on the goroutine that caused them. The returned function
// removes the subscription.
func (s *Service) Subscribe(fn func(Event)) (cancel func()) {
	return s.events.subscribe(fn)
}

// GetSchema returns the schema visible to actor: the full schema for the
// global admin and the tenant schema for tenant admins.
func (s *Service) GetSchema(actor Actor) (Schema, error) {
	if !isAnyAdmin(actor) {
		return nil, newError(ErrUnauthorized, "", "only administrators can read the config schema")
	}
	return s.schema.Get(actor.IsGlobalAdmin()), nil
}

// HandleInvalidation reloads the layer named by inv. Invalidations sent by
// this process are ignored since the writer refreshes before returning.
func (s *Service) HandleInvalidation(ctx context.Context, inv pubsub.Invalidation) error {
	if inv.Origin != "" && inv.Origin == s.instanceID {
		return nil
	}
	if inv.All {
		return s.RefreshAll(ctx)
	}
	return s.refreshScope(ctx, inv.Scope)
}

func (s *Service) scopeFor(tenantAlias string) configdb.Scope {
	if tenantAlias == s.globalAdminAlias {
		return configdb.GlobalScope()
	}
	return configdb.TenantScope(tenantAlias)
}

func (s *Service) aliasFor(scope configdb.Scope) string {
	if scope.Global {
		return s.globalAdminAlias
	}
	return scope.TenantAlias
}
