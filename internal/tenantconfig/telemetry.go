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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/cardinalhq/tenantconf/internal/tenantconfig")

var (
	cacheRefreshes   metric.Int64Counter
	cacheRowsSkipped metric.Int64Counter
	mutations        metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tenantconf/internal/tenantconfig")

	var err error
	cacheRefreshes, err = meter.Int64Counter(
		"tenantconf.cache.refreshes",
		metric.WithDescription("Number of config cache refreshes"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache.refreshes counter: %w", err))
	}

	cacheRowsSkipped, err = meter.Int64Counter(
		"tenantconf.cache.rows_skipped",
		metric.WithDescription("Number of stored config rows not loaded into the cache"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache.rows_skipped counter: %w", err))
	}

	mutations, err = meter.Int64Counter(
		"tenantconf.mutations",
		metric.WithDescription("Number of config update and clear requests"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create mutations counter: %w", err))
	}
}
