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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tenantconf/cmd/dbopen"
	"github.com/cardinalhq/tenantconf/config"
	"github.com/cardinalhq/tenantconf/internal/actor"
	"github.com/cardinalhq/tenantconf/internal/idgen"
	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

func init() {
	rootCmd.AddCommand(schemaCmd, getCmd, setCmd, clearCmd, lastUpdatedCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the config schema visible to the acting admin",
	Args:  cobra.NoArgs,
	RunE:  adminRunE(runSchema),
}

var getCmd = &cobra.Command{
	Use:   "get [module/feature/element]",
	Short: "Print the effective config of --tenant, or one element of it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  adminRunE(runGet),
}

var setCmd = &cobra.Command{
	Use:   "set module/feature/element[/optionalKey]=value ...",
	Short: "Store config values for --tenant",
	Long: `Store config values for --tenant. Values that parse as JSON are stored as
such (true, 42, {"en_GB":"Hello"}); anything else is stored as a string.`,
	Args: cobra.MinimumNArgs(1),
	RunE: adminRunE(runSet),
}

var clearCmd = &cobra.Command{
	Use:   "clear module/feature/element[/optionalKey] ...",
	Short: "Remove stored config values of --tenant",
	Args:  cobra.MinimumNArgs(1),
	RunE:  adminRunE(runClear),
}

var lastUpdatedCmd = &cobra.Command{
	Use:   "last-updated module/feature/element",
	Short: "Print when the effective value of an element was last written",
	Args:  cobra.ExactArgs(1),
	RunE:  adminRunE(runLastUpdated),
}

type adminFunc func(ctx context.Context, rt *runtime, who *actor.Actor, w io.Writer, args []string) error

// adminRunE loads config, opens a runtime with a warm cache, resolves the
// acting admin and hands over to fn.
func adminRunE(fn adminFunc) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, args []string) error {
		c.SilenceUsage = true
		setupCLILogging()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := handleSignals(c.Context())
		defer cancel()

		rt, err := newRuntime(ctx, cfg, idgen.NewInstanceID(), nil, dbopen.WarnOnMigrationMismatch())
		if err != nil {
			return err
		}
		defer rt.Close()

		return runAdmin(ctx, rt, c.OutOrStdout(), args, fn)
	}
}

func runAdmin(ctx context.Context, rt *runtime, w io.Writer, args []string, fn adminFunc) error {
	if err := rt.svc.Start(ctx); err != nil {
		return err
	}
	who, err := rt.resolver.Resolve(ctx, apiKey, tenantAlias)
	if err != nil {
		return err
	}
	return fn(ctx, rt, who, w, args)
}

func runSchema(_ context.Context, rt *runtime, who *actor.Actor, w io.Writer, _ []string) error {
	schema, err := rt.svc.GetSchema(who)
	if err != nil {
		return err
	}
	return writeJSON(w, schema)
}

func runGet(_ context.Context, rt *runtime, who *actor.Actor, w io.Writer, args []string) error {
	cfg, err := rt.svc.GetTenantConfig(who, tenantAlias)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return writeJSON(w, cfg)
	}

	key, err := tenantconfig.ParseKey(args[0])
	if err != nil {
		return err
	}
	v, ok := cfg[key.Module][key.Feature][key.Element]
	if !ok || key.Optional != "" {
		return &tenantconfig.Error{Kind: tenantconfig.ErrNotFound, Key: args[0], Msg: "no visible element with this key"}
	}
	return writeJSON(w, v)
}

func runSet(ctx context.Context, rt *runtime, who *actor.Actor, _ io.Writer, args []string) error {
	values, err := parseAssignments(args)
	if err != nil {
		return err
	}
	return rt.svc.UpdateConfig(ctx, who, tenantAlias, values)
}

func runClear(ctx context.Context, rt *runtime, who *actor.Actor, _ io.Writer, args []string) error {
	return rt.svc.ClearConfig(ctx, who, tenantAlias, args)
}

func runLastUpdated(_ context.Context, rt *runtime, who *actor.Actor, w io.Writer, args []string) error {
	ts, err := rt.svc.LastUpdated(who, tenantAlias, args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, ts.UTC().Format(time.RFC3339Nano))
	return err
}

// parseAssignments turns key=value arguments into an update request.
func parseAssignments(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, &tenantconfig.Error{Kind: tenantconfig.ErrValidation, Key: arg, Msg: "expected key=value"}
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		values[key] = v
	}
	return values, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
