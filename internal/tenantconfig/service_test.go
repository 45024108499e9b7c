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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/pubsub"
)

const (
	twitterEnabled  = "oae-authentication/twitter/enabled"
	accountCreation = "oae-authentication/local/allowAccountCreation"
	termsEnabled    = "oae-principals/termsAndConditions/enabled"
	termsText       = "oae-principals/termsAndConditions/text"
	nickname        = "oae-principals/user/nickname"
)

func TestService_Lifecycle(t *testing.T) {
	store := configdb.NewMemoryStore()
	svc, err := New(store, pubsub.NewLocalBackend(nil), testGroups(t))
	require.NoError(t, err)
	assert.Equal(t, StateSchemaLoaded, svc.State())
	assert.Equal(t, "schemaLoaded", svc.State().String())

	rec := &eventRecorder{}
	svc.Subscribe(rec.record)

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateWarm, svc.State())
	assert.Equal(t, []string{"preCache", "cached"}, rec.take())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, nil, testGroups(t))
	assert.Error(t, err)

	bad := []DescriptorGroup{{
		Module: "m",
		Features: map[string]FeatureDescriptor{
			"f": {Elements: map[string]ElementDescriptor{"e": {Type: "colour"}}},
		},
	}}
	_, err = New(configdb.NewMemoryStore(), nil, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m/f/e")
}

func TestResolve_Layering(t *testing.T) {
	env := newTestEnv(t)

	vi, ok := env.svc.Resolve("cam", "oae-authentication", "twitter", "enabled")
	require.True(t, ok)
	assert.Equal(t, true, vi.Value)
	assert.Equal(t, Epoch, vi.Timestamp)

	env.update(t, globalAdmin, "admin", map[string]any{twitterEnabled: false})
	vi, _ = env.svc.Resolve("cam", "oae-authentication", "twitter", "enabled")
	assert.Equal(t, false, vi.Value)
	assert.True(t, vi.Timestamp.After(Epoch))

	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: true})
	assert.Equal(t, true, env.svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
	assert.Equal(t, false, env.svc.GetValue("gt", "oae-authentication", "twitter", "enabled"))
	assert.Equal(t, false, env.svc.GetValue("admin", "oae-authentication", "twitter", "enabled"))
}

func TestResolve_UnknownElement(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.svc.Resolve("cam", "oae-authentication", "twitter", "nope")
	assert.False(t, ok)
	assert.Nil(t, env.svc.GetValue("cam", "oae-nope", "twitter", "enabled"))
	assert.Equal(t, Epoch, env.svc.GetLastUpdated("cam", "oae-nope", "twitter", "enabled"))
}

func TestResolve_ReturnsCopies(t *testing.T) {
	env := newTestEnv(t)
	env.update(t, camAdmin, "cam", map[string]any{termsText: map[string]any{"default": "Terms"}})

	v := env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text").(map[string]string)
	v["default"] = "mutated"

	assert.Equal(t, map[string]string{"default": "Terms"},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))

	d := env.svc.GetValue("gt", "oae-principals", "termsAndConditions", "text").(map[string]string)
	d["default"] = "mutated"
	assert.Equal(t, map[string]string{"default": ""},
		env.svc.GetValue("gt", "oae-principals", "termsAndConditions", "text"))
}

func TestGetSchema(t *testing.T) {
	env := newTestEnv(t)

	global, err := env.svc.GetSchema(globalAdmin)
	require.NoError(t, err)
	_, ok := global.Field("oae-principals", "recaptcha", "publicKey")
	assert.True(t, ok)

	tenant, err := env.svc.GetSchema(camAdmin)
	require.NoError(t, err)
	_, ok = tenant.Field("oae-principals", "recaptcha", "publicKey")
	assert.False(t, ok)
	_, ok = tenant.Field("oae-principals", "recaptcha", "privateKey")
	assert.True(t, ok)

	for moduleID, features := range tenant {
		for featureID, f := range features {
			for elementID := range f.Elements {
				_, ok := global.Field(moduleID, featureID, elementID)
				assert.True(t, ok, "%s/%s/%s", moduleID, featureID, elementID)
			}
		}
	}

	for _, actor := range []Actor{camUser, nil} {
		_, err := env.svc.GetSchema(actor)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
}

func TestGetTenantConfig_Visibility(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name        string
		actor       Actor
		wantPrivate bool
		wantPublic  bool
	}{
		{"global admin", globalAdmin, true, true},
		{"tenant admin", camAdmin, true, false},
		{"user", camUser, false, true},
		{"anonymous", nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := env.svc.GetTenantConfig(tt.actor, "cam")
			require.NoError(t, err)

			recaptcha := cfg["oae-principals"]["recaptcha"]
			_, hasPrivate := recaptcha["privateKey"]
			_, hasPublic := recaptcha["publicKey"]
			assert.Equal(t, tt.wantPrivate, hasPrivate)
			assert.Equal(t, tt.wantPublic, hasPublic)
			assert.Equal(t, true, cfg["oae-authentication"]["twitter"]["enabled"])
		})
	}

	_, err := env.svc.GetTenantConfig(camAdmin, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLastUpdated_Visibility(t *testing.T) {
	env := newTestEnv(t)
	env.update(t, globalAdmin, "cam", map[string]any{
		"oae-principals/recaptcha/privateKey": "secret",
		"oae-principals/recaptcha/publicKey":  "public",
	})

	tests := []struct {
		name        string
		actor       Actor
		wantPrivate bool
		wantPublic  bool
	}{
		{"global admin", globalAdmin, true, true},
		{"tenant admin", camAdmin, true, false},
		{"user", camUser, false, true},
		{"anonymous", nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, visible := range map[string]bool{
				"oae-principals/recaptcha/privateKey": tt.wantPrivate,
				"oae-principals/recaptcha/publicKey":  tt.wantPublic,
			} {
				ts, err := env.svc.LastUpdated(tt.actor, "cam", key)
				if visible {
					require.NoError(t, err, key)
					assert.True(t, ts.After(Epoch), key)
				} else {
					assert.ErrorIs(t, err, ErrNotFound, key)
					assert.Equal(t, Epoch, ts, key)
				}
			}
		})
	}
}

func TestLastUpdated_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		tenant string
		key    string
		want   error
	}{
		{"no tenant", "", twitterEnabled, ErrValidation},
		{"malformed key", "cam", "oae-authentication/twitter", ErrValidation},
		{"optional key", "cam", termsText + "/en_GB", ErrValidation},
		{"unknown element", "cam", "oae-authentication/nope/enabled", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.LastUpdated(globalAdmin, tt.tenant, tt.key)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateConfig_PartialMerge(t *testing.T) {
	env := newTestEnv(t)
	text := func() any {
		return env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text")
	}

	env.update(t, camAdmin, "cam", map[string]any{termsText + "/en_GB": "a"})
	assert.Equal(t, map[string]string{"default": "", "en_GB": "a"}, text())

	env.update(t, camAdmin, "cam", map[string]any{termsText + "/fr_FR": "b"})
	assert.Equal(t, map[string]string{"default": "", "en_GB": "a", "fr_FR": "b"}, text())

	env.update(t, camAdmin, "cam", map[string]any{termsText + "/en_GB": "c"})
	assert.Equal(t, map[string]string{"default": "", "en_GB": "c", "fr_FR": "b"}, text())

	// Other tenants are untouched.
	assert.Equal(t, map[string]string{"default": ""},
		env.svc.GetValue("gt", "oae-principals", "termsAndConditions", "text"))
}

func TestUpdateConfig_PartialMergeOnGlobalValue(t *testing.T) {
	env := newTestEnv(t)
	env.update(t, globalAdmin, "admin", map[string]any{termsText: map[string]string{"default": "Global", "nl": "Globaal"}})

	env.update(t, camAdmin, "cam", map[string]any{termsText + "/fr": "Mondial"})
	assert.Equal(t, map[string]string{"default": "Global", "nl": "Globaal", "fr": "Mondial"},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))
}

func TestUpdateConfig_FullAndPartialInOneRequest(t *testing.T) {
	env := newTestEnv(t)
	env.update(t, camAdmin, "cam", map[string]any{termsText + "/de": "alt"})

	env.update(t, camAdmin, "cam", map[string]any{
		termsText:         "  Base  ",
		termsText + "/nl": "Basis",
	})
	assert.Equal(t, map[string]string{"default": "Base", "nl": "Basis"},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))
}

func TestUpdateConfig_TimestampMonotonic(t *testing.T) {
	env := newTestEnv(t)
	lastUpdated := func() int64 {
		return env.svc.GetLastUpdated("cam", "oae-authentication", "twitter", "enabled").UnixMicro()
	}

	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: false})
	t1 := lastUpdated()
	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: true})
	t2 := lastUpdated()
	assert.Greater(t, t2, t1)

	env.update(t, camAdmin, "cam", map[string]any{termsEnabled: true})
	assert.Equal(t, t2, lastUpdated())
}

func TestUpdateConfig_BooleanCoercion(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		key  string
		in   any
		want any
	}{
		{termsEnabled, "0", false},
		{termsEnabled, "1", true},
		{termsEnabled, false, false},
		{termsEnabled, true, true},
		{termsEnabled, "false", false},
		{termsEnabled, "true", true},
		{termsEnabled, " true ", true},
		{nickname, "0", "0"},
		{nickname, "1", "1"},
	}
	for _, tt := range tests {
		env.update(t, camAdmin, "cam", map[string]any{tt.key: tt.in})
		k, err := ParseKey(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, env.svc.GetValue("cam", k.Module, k.Feature, k.Element), "%s = %#v", tt.key, tt.in)
	}
}

func TestUpdateConfig_Trimming(t *testing.T) {
	env := newTestEnv(t)

	env.update(t, camAdmin, "cam", map[string]any{nickname: "  untrimmed  "})
	assert.Equal(t, "untrimmed", env.svc.GetValue("cam", "oae-principals", "user", "nickname"))

	scope := configdb.TenantScope("cam")
	rows, err := env.store.ListTenantConfigs(context.Background(), &scope)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "untrimmed", rows[0].Value)

	env.update(t, camAdmin, "cam", map[string]any{nickname: "   "})
	vi, _ := env.svc.Resolve("cam", "oae-principals", "user", "nickname")
	assert.Equal(t, "", vi.Value)
	assert.True(t, vi.Timestamp.After(Epoch))
}

func TestUpdateConfig_TrimsLocalizedText(t *testing.T) {
	env := newTestEnv(t)
	text := func() any {
		return env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text")
	}

	env.update(t, camAdmin, "cam", map[string]any{termsText: map[string]any{"default": "  padded  ", "nl": "\tgevuld\n"}})
	assert.Equal(t, map[string]string{"default": "padded", "nl": "gevuld"}, text())

	env.update(t, camAdmin, "cam", map[string]any{termsText + "/en": "  padded  "})
	assert.Equal(t, map[string]string{"default": "padded", "nl": "gevuld", "en": "padded"}, text())
}

func TestUpdateConfig_TenantOverrideDenied(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.UpdateConfig(context.Background(), camAdmin, "cam", map[string]any{accountCreation: false})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, true, env.svc.GetValue("cam", "oae-authentication", "local", "allowAccountCreation"))

	env.update(t, globalAdmin, "cam", map[string]any{accountCreation: false})
	assert.Equal(t, false, env.svc.GetValue("cam", "oae-authentication", "local", "allowAccountCreation"))
	assert.Equal(t, true, env.svc.GetValue("gt", "oae-authentication", "local", "allowAccountCreation"))
}

func TestUpdateConfig_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		actor  Actor
		tenant string
		values map[string]any
		want   error
	}{
		{"not an admin", camUser, "cam", map[string]any{twitterEnabled: false}, ErrUnauthorized},
		{"anonymous", nil, "cam", map[string]any{twitterEnabled: false}, ErrUnauthorized},
		{"admin of another tenant", gtAdmin, "cam", map[string]any{twitterEnabled: false}, ErrUnauthorized},
		{"empty tenant", globalAdmin, "", map[string]any{twitterEnabled: false}, ErrValidation},
		{"no values", camAdmin, "cam", map[string]any{}, ErrValidation},
		{"missing value", camAdmin, "cam", map[string]any{twitterEnabled: nil}, ErrValidation},
		{"malformed key", camAdmin, "cam", map[string]any{"oae-authentication/twitter": true}, ErrValidation},
		{"empty segment", camAdmin, "cam", map[string]any{"oae-authentication//enabled": true}, ErrValidation},
		{"unknown element", camAdmin, "cam", map[string]any{"oae-authentication/twitter/nope": true}, ErrNotFound},
		{"optional key on boolean", camAdmin, "cam", map[string]any{twitterEnabled + "/en": true}, ErrValidation},
		{"global admin only", camAdmin, "cam", map[string]any{"oae-principals/recaptcha/publicKey": "x"}, ErrUnauthorized},
		{"bad boolean", camAdmin, "cam", map[string]any{twitterEnabled: "maybe"}, ErrValidation},
		{"bad text", camAdmin, "cam", map[string]any{nickname: []int{1}}, ErrValidation},
		{"one bad key fails the batch", camAdmin, "cam", map[string]any{twitterEnabled: false, "oae-nope/a/b": 1}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := &eventRecorder{}
			env.svc.Subscribe(rec.record)

			err := env.svc.UpdateConfig(context.Background(), tt.actor, tt.tenant, tt.values)
			require.ErrorIs(t, err, tt.want)

			rows, err := env.store.ListTenantConfigs(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, rows)
			assert.Empty(t, rec.take())
		})
	}
}

func TestClearConfig_Scenario(t *testing.T) {
	env := newTestEnv(t)
	enabledFor := func(actor Actor, tenant string) any {
		cfg, err := env.svc.GetTenantConfig(actor, tenant)
		require.NoError(t, err)
		return cfg["oae-authentication"]["twitter"]["enabled"]
	}

	assert.Equal(t, true, enabledFor(camAdmin, "cam"))

	env.update(t, globalAdmin, "admin", map[string]any{twitterEnabled: false})
	assert.Equal(t, false, enabledFor(camAdmin, "cam"))
	assert.Equal(t, false, enabledFor(nil, "gt"))

	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: true})
	assert.Equal(t, true, enabledFor(camAdmin, "cam"))

	env.clear(t, camAdmin, "cam", twitterEnabled)
	assert.Equal(t, false, enabledFor(camAdmin, "cam"))

	env.clear(t, globalAdmin, "admin", twitterEnabled)
	assert.Equal(t, true, enabledFor(camAdmin, "cam"))
	assert.Equal(t, Epoch, env.svc.GetLastUpdated("cam", "oae-authentication", "twitter", "enabled"))
}

func TestClearConfig_ConflictRejected(t *testing.T) {
	orders := [][]string{
		{termsText, termsText + "/en"},
		{termsText + "/en", termsText},
	}
	for _, keys := range orders {
		env := newTestEnv(t)
		env.update(t, camAdmin, "cam", map[string]any{termsText: map[string]string{"default": "d", "en": "e"}})

		err := env.svc.ClearConfig(context.Background(), camAdmin, "cam", keys)
		require.ErrorIs(t, err, ErrValidation, "%v", keys)
		assert.Equal(t, map[string]string{"default": "d", "en": "e"},
			env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))
	}
}

func TestClearConfig_OptionalKeyKeepsRow(t *testing.T) {
	env := newTestEnv(t)
	env.update(t, camAdmin, "cam", map[string]any{termsText: map[string]string{"default": "d", "en": "e"}})

	env.clear(t, camAdmin, "cam", termsText+"/en")
	assert.Equal(t, map[string]string{"default": "d"},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))

	env.clear(t, camAdmin, "cam", termsText+"/default")
	assert.Equal(t, map[string]string{},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))

	scope := configdb.TenantScope("cam")
	rows, err := env.store.ListTenantConfigs(context.Background(), &scope)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "{}", rows[0].Value)

	env.clear(t, camAdmin, "cam", termsText)
	rows, err = env.store.ListTenantConfigs(context.Background(), &scope)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, map[string]string{"default": ""},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))
}

func TestClearConfig_DuplicateKeys(t *testing.T) {
	env := newTestEnv(t)
	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: false, nickname: "n"})

	env.clear(t, camAdmin, "cam", twitterEnabled, twitterEnabled, nickname)
	assert.Equal(t, true, env.svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
	assert.Equal(t, "", env.svc.GetValue("cam", "oae-principals", "user", "nickname"))
}

func TestClearConfig_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		actor  Actor
		tenant string
		keys   []string
		want   error
	}{
		{"not an admin", camUser, "cam", []string{twitterEnabled}, ErrUnauthorized},
		{"empty tenant", globalAdmin, "", []string{twitterEnabled}, ErrValidation},
		{"no keys", camAdmin, "cam", nil, ErrValidation},
		{"unknown element", camAdmin, "cam", []string{"oae-nope/a/b"}, ErrNotFound},
		{"tenant override denied", camAdmin, "cam", []string{accountCreation}, ErrUnauthorized},
		{"optional key on text", camAdmin, "cam", []string{nickname + "/en"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			err := env.svc.ClearConfig(context.Background(), tt.actor, tt.tenant, tt.keys)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvents_Order(t *testing.T) {
	env := newTestEnv(t)
	rec := &eventRecorder{}
	cancel := env.svc.Subscribe(rec.record)

	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: false})
	assert.Equal(t, []string{"preUpdate:cam", "preCache:cam", "cached:cam", "update:cam"}, rec.take())

	env.clear(t, camAdmin, "cam", twitterEnabled)
	assert.Equal(t, []string{"preClear:cam", "preCache:cam", "cached:cam", "update:cam"}, rec.take())

	env.update(t, globalAdmin, "admin", map[string]any{twitterEnabled: false})
	assert.Equal(t, []string{"preUpdate:admin", "preCache:admin", "cached:admin", "update:admin"}, rec.take())

	require.NoError(t, env.svc.RefreshAll(context.Background()))
	assert.Equal(t, []string{"preCache", "cached"}, rec.take())

	require.NoError(t, env.svc.RefreshTenant(context.Background(), "gt"))
	assert.Equal(t, []string{"preCache:gt", "cached:gt"}, rec.take())

	cancel()
	env.update(t, camAdmin, "cam", map[string]any{twitterEnabled: true})
	assert.Empty(t, rec.take())
}

func TestInvalidation_PropagatesToOtherInstances(t *testing.T) {
	store := configdb.NewMemoryStore()
	bus := pubsub.NewLocalBackend(nil)
	writer := newTestEnvWith(t, store, bus)
	reader := newTestEnvWith(t, store, bus)
	require.NotEqual(t, writer.svc.InstanceID(), reader.svc.InstanceID())

	rec := &eventRecorder{}
	reader.svc.Subscribe(rec.record)

	writer.update(t, camAdmin, "cam", map[string]any{twitterEnabled: false})
	assert.Equal(t, false, reader.svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
	assert.Equal(t, []string{"preCache:cam", "cached:cam"}, rec.take())

	writer.update(t, globalAdmin, "admin", map[string]any{nickname: "everyone"})
	assert.Equal(t, "everyone", reader.svc.GetValue("gt", "oae-principals", "user", "nickname"))
}

func TestHandleInvalidation_Resync(t *testing.T) {
	env := newTestEnv(t)

	// Written behind the service's back, as another process would.
	require.NoError(t, env.store.ApplyTenantConfigChanges(context.Background(), []configdb.TenantConfigChange{
		{Scope: configdb.TenantScope("cam"), ConfigKey: twitterEnabled, Value: "false"},
	}))
	assert.Equal(t, true, env.svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))

	require.NoError(t, env.svc.HandleInvalidation(context.Background(), pubsub.NewResync()))
	assert.Equal(t, false, env.svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
}

func TestRefresh_SkipsBadRows(t *testing.T) {
	env := newTestEnv(t)
	cam := configdb.TenantScope("cam")
	require.NoError(t, env.store.ApplyTenantConfigChanges(context.Background(), []configdb.TenantConfigChange{
		{Scope: cam, ConfigKey: twitterEnabled, Value: "notabool"},
		{Scope: cam, ConfigKey: termsText, Value: "not json"},
		{Scope: cam, ConfigKey: termsEnabled, Value: "true"},
		{Scope: cam, ConfigKey: "oae-removed/feature/element", Value: "1"},
		{Scope: cam, ConfigKey: "not-a-key", Value: "1"},
	}))

	require.NoError(t, env.svc.RefreshAll(context.Background()))

	vi, _ := env.svc.Resolve("cam", "oae-authentication", "twitter", "enabled")
	assert.Equal(t, true, vi.Value)
	assert.Equal(t, Epoch, vi.Timestamp)
	assert.Equal(t, map[string]string{"default": ""},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))
	assert.Equal(t, true, env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "enabled"))

	require.NoError(t, env.svc.RefreshTenant(context.Background(), "cam"))
	assert.Equal(t, true, env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "enabled"))
}

func TestRefresh_FailureKeepsPreviousState(t *testing.T) {
	store := &flakyStore{MemoryStore: configdb.NewMemoryStore()}
	svc, err := New(store, nil, testGroups(t))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.UpdateConfig(context.Background(), camAdmin, "cam", map[string]any{twitterEnabled: false}))

	store.setFail(true, false)
	assert.ErrorIs(t, svc.RefreshAll(context.Background()), errStoreDown)
	assert.ErrorIs(t, svc.RefreshTenant(context.Background(), "cam"), errStoreDown)
	assert.Equal(t, false, svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
	assert.Equal(t, StateWarm, svc.State())
}

func TestStart_FailureLeavesSchemaLoaded(t *testing.T) {
	store := &flakyStore{MemoryStore: configdb.NewMemoryStore()}
	store.setFail(true, false)
	svc, err := New(store, nil, testGroups(t))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Start(context.Background()), errStoreDown)
	assert.Equal(t, StateSchemaLoaded, svc.State())
}

func TestUpdateConfig_PersistFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: configdb.NewMemoryStore()}
	svc, err := New(store, nil, testGroups(t))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	rec := &eventRecorder{}
	svc.Subscribe(rec.record)
	store.setFail(false, true)

	err = svc.UpdateConfig(context.Background(), camAdmin, "cam", map[string]any{twitterEnabled: false})
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 500, HTTPStatus(err))
	assert.Equal(t, true, svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
	assert.Equal(t, []string{"preUpdate:cam"}, rec.take())
}

func TestUpdateConfig_BroadcastFailure(t *testing.T) {
	svc, err := New(configdb.NewMemoryStore(), failingBus{}, testGroups(t))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	err = svc.UpdateConfig(context.Background(), camAdmin, "cam", map[string]any{twitterEnabled: false})
	require.ErrorIs(t, err, ErrBroadcast)
	assert.Equal(t, false, svc.GetValue("cam", "oae-authentication", "twitter", "enabled"))
}

func TestWithGlobalAdminAlias(t *testing.T) {
	env := newTestEnv(t, WithGlobalAdminAlias("root"), WithInstanceID("node-1"))
	assert.Equal(t, "root", env.svc.GlobalAdminAlias())
	assert.Equal(t, "node-1", env.svc.InstanceID())

	env.update(t, globalAdmin, "admin", map[string]any{nickname: "only-admin-tenant"})
	assert.Equal(t, "", env.svc.GetValue("cam", "oae-principals", "user", "nickname"))

	env.update(t, globalAdmin, "root", map[string]any{nickname: "everyone"})
	assert.Equal(t, "everyone", env.svc.GetValue("cam", "oae-principals", "user", "nickname"))
	assert.Equal(t, "only-admin-tenant", env.svc.GetValue("admin", "oae-principals", "user", "nickname"))
}

func TestService_ConcurrentReadsDuringWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				cfg, err := env.svc.GetTenantConfig(camAdmin, "cam")
				if err != nil {
					t.Error(err)
					return
				}
				if _, ok := cfg["oae-principals"]["termsAndConditions"]["text"].(map[string]string); !ok {
					t.Error("text is not a locale map")
					return
				}
			}
		}()
	}

	for i := range 50 {
		env.update(t, camAdmin, "cam", map[string]any{termsText + "/en": string(rune('a' + i%26))})
	}
	cancel()
	wg.Wait()

	assert.Equal(t, map[string]string{"default": "", "en": "x"},
		env.svc.GetValue("cam", "oae-principals", "termsAndConditions", "text"))
}
