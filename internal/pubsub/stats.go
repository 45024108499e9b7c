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

package pubsub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// StatsAggregator collects and periodically logs broadcast statistics.
// A nil *StatsAggregator records nothing.
type StatsAggregator struct {
	mu       sync.Mutex
	stats    map[string]*backendStats
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

type backendStats struct {
	published int64
	received  int64
	failed    int64
	skipped   int64
}

func (s *backendStats) empty() bool {
	return s.published == 0 && s.received == 0 && s.failed == 0 && s.skipped == 0
}

// NewStatsAggregator creates a new stats aggregator with the specified reporting interval
func NewStatsAggregator(interval time.Duration) *StatsAggregator {
	return &StatsAggregator{
		stats:    make(map[string]*backendStats),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins periodic reporting
func (sa *StatsAggregator) Start(ctx context.Context) {
	sa.wg.Add(1)
	go func() {
		defer sa.wg.Done()
		ticker := time.NewTicker(sa.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sa.reportStats()
				return
			case <-sa.done:
				sa.reportStats()
				return
			case <-ticker.C:
				sa.reportStats()
			}
		}
	}()
}

// Stop stops the aggregator and reports final stats
func (sa *StatsAggregator) Stop() {
	close(sa.done)
	sa.wg.Wait()
}

func (sa *StatsAggregator) RecordPublished(backend string, count int) {
	sa.record(backend, func(s *backendStats) { s.published += int64(count) })
}

func (sa *StatsAggregator) RecordReceived(backend string, count int) {
	sa.record(backend, func(s *backendStats) { s.received += int64(count) })
}

func (sa *StatsAggregator) RecordFailed(backend string, count int) {
	sa.record(backend, func(s *backendStats) { s.failed += int64(count) })
}

func (sa *StatsAggregator) RecordSkipped(backend string, count int) {
	sa.record(backend, func(s *backendStats) { s.skipped += int64(count) })
}

func (sa *StatsAggregator) record(backend string, fn func(*backendStats)) {
	if sa == nil {
		return
	}
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.stats[backend] == nil {
		sa.stats[backend] = &backendStats{}
	}
	fn(sa.stats[backend])
}

// reportStats logs and resets statistics
func (sa *StatsAggregator) reportStats() {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	names := make([]string, 0, len(sa.stats))
	for name, s := range sa.stats {
		if !s.empty() {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)

	attrs := make([]any, 0, len(names))
	for _, name := range names {
		s := sa.stats[name]
		attrs = append(attrs, slog.Group(name,
			slog.Int64("published", s.published),
			slog.Int64("received", s.received),
			slog.Int64("failed", s.failed),
			slog.Int64("skipped", s.skipped),
		))
	}
	slog.Info("Config invalidation stats", attrs...)

	sa.stats = make(map[string]*backendStats)
}
