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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/pubsub"
)

const testDescriptors = `
module: oae-authentication
features:
  twitter:
    title: Twitter Authentication
    elements:
      enabled:
        type: boolean
        name: Twitter Authentication Enabled
        default: true
  local:
    title: Local Authentication
    elements:
      allowAccountCreation:
        type: boolean
        name: Allow account creation
        default: true
        tenantOverride: false
---
module: oae-principals
features:
  termsAndConditions:
    title: Terms and Conditions
    elements:
      enabled:
        type: boolean
        default: false
      text:
        type: internationalizableText
        name: Terms and Conditions
        default: ""
  recaptcha:
    title: reCaptcha
    elements:
      privateKey:
        type: text
        default: private-key
        suppress: true
      publicKey:
        type: text
        default: public-key
        globalAdminOnly: true
  user:
    title: Default user values
    elements:
      visibility:
        type: radio
        default: public
        group:
          - {name: Public, value: public}
          - {name: Private, value: private}
      nickname:
        type: text
        default: ""
`

type testActor struct {
	tenant string
	global bool
	admin  bool
}

func (a testActor) TenantAlias() string { return a.tenant }
func (a testActor) IsGlobalAdmin() bool { return a.global }
func (a testActor) IsTenantAdmin(alias string) bool {
	return a.admin && a.tenant == alias
}
func (a testActor) IsAdmin(alias string) bool {
	return a.global || a.IsTenantAdmin(alias)
}

var (
	globalAdmin = testActor{tenant: "admin", global: true}
	camAdmin    = testActor{tenant: "cam", admin: true}
	camUser     = testActor{tenant: "cam"}
	gtAdmin     = testActor{tenant: "gt", admin: true}
)

func testGroups(t *testing.T) []DescriptorGroup {
	t.Helper()
	groups, err := ParseDescriptorGroups([]byte(testDescriptors))
	require.NoError(t, err)
	return groups
}

type testEnv struct {
	svc   *Service
	store *configdb.MemoryStore
	bus   *pubsub.LocalBackend
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := configdb.NewMemoryStore()
	bus := pubsub.NewLocalBackend(nil)
	return newTestEnvWith(t, store, bus, opts...)
}

func newTestEnvWith(t *testing.T, store *configdb.MemoryStore, bus *pubsub.LocalBackend, opts ...Option) *testEnv {
	t.Helper()
	svc, err := New(store, bus, testGroups(t), opts...)
	require.NoError(t, err)
	bus.Subscribe(svc.HandleInvalidation)
	require.NoError(t, svc.Start(context.Background()))
	return &testEnv{svc: svc, store: store, bus: bus}
}

func (e *testEnv) update(t *testing.T, actor Actor, tenant string, values map[string]any) {
	t.Helper()
	require.NoError(t, e.svc.UpdateConfig(context.Background(), actor, tenant, values))
}

func (e *testEnv) clear(t *testing.T, actor Actor, tenant string, keys ...string) {
	t.Helper()
	require.NoError(t, e.svc.ClearConfig(context.Background(), actor, tenant, keys))
}

// eventRecorder collects events as "kind" or "kind:tenant".
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := ev.Kind.String()
	if ev.Tenant != "" {
		s += ":" + ev.Tenant
	}
	r.events = append(r.events, s)
}

func (r *eventRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// flakyStore wraps a MemoryStore and fails on demand.
type flakyStore struct {
	*configdb.MemoryStore
	mu        sync.Mutex
	failList  bool
	failApply bool
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) setFail(list, apply bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failList, f.failApply = list, apply
}

func (f *flakyStore) ListTenantConfigs(ctx context.Context, scope *configdb.Scope) ([]configdb.TenantConfigRow, error) {
	f.mu.Lock()
	fail := f.failList
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.MemoryStore.ListTenantConfigs(ctx, scope)
}

func (f *flakyStore) ApplyTenantConfigChanges(ctx context.Context, changes []configdb.TenantConfigChange) error {
	f.mu.Lock()
	fail := f.failApply
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.MemoryStore.ApplyTenantConfigChanges(ctx, changes)
}

// failingBus refuses to publish.
type failingBus struct{}

func (failingBus) Publish(context.Context, pubsub.Invalidation) error {
	return errors.New("broker unreachable")
}
