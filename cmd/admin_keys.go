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

package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tenantconf/configdb"
	"github.com/cardinalhq/tenantconf/internal/actor"
	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

var adminKeyName string

func init() {
	adminKeyCreateCmd.Flags().StringVar(&adminKeyName, "name", "", "Human readable name of the key")
	adminKeyCmd.AddCommand(adminKeyCreateCmd, adminKeyDeleteCmd)
	rootCmd.AddCommand(adminKeyCmd)
}

var adminKeyCmd = &cobra.Command{
	Use:   "admin-key",
	Short: "Manage tenant admin API keys (global admins only)",
}

var adminKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key that administers --tenant",
	Args:  cobra.NoArgs,
	RunE:  adminRunE(runAdminKeyCreate),
}

var adminKeyDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Revoke a tenant admin API key",
	Args:  cobra.ExactArgs(1),
	RunE:  adminRunE(runAdminKeyDelete),
}

type createdKey struct {
	Key    string `json:"key"`
	Tenant string `json:"tenant"`
	Name   string `json:"name,omitempty"`
}

func runAdminKeyCreate(ctx context.Context, rt *runtime, who *actor.Actor, w io.Writer, _ []string) error {
	if err := checkKeyAdmin(rt, who); err != nil {
		return err
	}
	key := actor.NewAPIKey()
	err := rt.store.UpsertTenantAdminKey(ctx, configdb.TenantAdminKey{
		KeyHash:     actor.HashAPIKey(key),
		TenantAlias: tenantAlias,
		Name:        adminKeyName,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, createdKey{Key: key, Tenant: tenantAlias, Name: adminKeyName})
}

func runAdminKeyDelete(ctx context.Context, rt *runtime, who *actor.Actor, _ io.Writer, args []string) error {
	if err := checkKeyAdmin(rt, who); err != nil {
		return err
	}
	return rt.store.DeleteTenantAdminKey(ctx, actor.HashAPIKey(args[0]))
}

// checkKeyAdmin allows global admins to manage keys of ordinary tenants.
func checkKeyAdmin(rt *runtime, who *actor.Actor) error {
	if !who.IsGlobalAdmin() {
		return &tenantconfig.Error{Kind: tenantconfig.ErrUnauthorized, Msg: "only global admins may manage API keys"}
	}
	if tenantAlias == "" {
		return &tenantconfig.Error{Kind: tenantconfig.ErrValidation, Msg: "a tenant alias is required"}
	}
	if tenantAlias == rt.svc.GlobalAdminAlias() {
		return &tenantconfig.Error{Kind: tenantconfig.ErrValidation, Key: tenantAlias, Msg: "global admin keys live in the admin keys file"}
	}
	return nil
}
