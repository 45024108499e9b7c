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
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/tenantconf/config"
	"github.com/cardinalhq/tenantconf/internal/healthcheck"
	"github.com/cardinalhq/tenantconf/internal/idgen"
	"github.com/cardinalhq/tenantconf/internal/pubsub"
	"github.com/cardinalhq/tenantconf/internal/tenantconfig"
)

const statsReportInterval = time.Minute

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the config cache and invalidation listener",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		servicename := "tenantconf-serve"
		instanceID := idgen.NewInstanceID()
		doneCtx, doneFx, err := setupTelemetry(servicename, instanceID)
		if err != nil {
			return err
		}
		defer func() {
			if err := doneFx(); err != nil {
				slog.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()

		return serve(doneCtx, cfg, instanceID)
	},
}

func serve(ctx context.Context, cfg *config.Config, instanceID string) error {
	stats := pubsub.NewStatsAggregator(statsReportInterval)
	rt, err := newRuntime(ctx, cfg, instanceID, stats)
	if err != nil {
		return err
	}
	defer rt.Close()

	health := healthcheck.NewServer(healthcheck.Config{Port: cfg.Health.Port})
	health.AddProbe("configCache", cacheProbe(rt.svc))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return health.Start(gctx)
	})

	g.Go(func() error {
		stats.Start(gctx)
		<-gctx.Done()
		stats.Stop()
		return nil
	})

	g.Go(func() error {
		return rt.backend.Run(gctx)
	})

	g.Go(func() error {
		if err := rt.svc.Start(gctx); err != nil {
			return err
		}
		health.SetStatus(healthcheck.StatusHealthy)
		slog.Info("Serving tenant config",
			slog.String("globalAdminAlias", rt.svc.GlobalAdminAlias()),
			slog.String("broadcast", rt.backend.GetName()))
		<-gctx.Done()
		health.SetStatus(healthcheck.StatusUnhealthy)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shut down cleanly")
	return nil
}

// cacheProbe reports ready once the cache has completed a full load.
func cacheProbe(svc *tenantconfig.Service) healthcheck.Probe {
	return func() (bool, string) {
		state := svc.State()
		return state == tenantconfig.StateWarm, state.String()
	}
}
