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

package migrations

import (
	"os"
	"strings"
	"time"
)

// CheckMode defines how migration version checking should behave
type CheckMode int

const (
	// CheckModeWait waits for migrations to complete, failing if they don't complete within timeout
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs warnings about version mismatches but continues
	CheckModeWarn
	// CheckModeSkip skips migration checking entirely
	CheckModeSkip
)

func (m CheckMode) String() string {
	switch m {
	case CheckModeWait:
		return "wait"
	case CheckModeWarn:
		return "warn"
	case CheckModeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// CheckOptions contains options for migration version checking
type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

// CheckOption is a function that modifies CheckOptions
type CheckOption func(*CheckOptions)

// WithCheckMode sets the check mode
func WithCheckMode(mode CheckMode) CheckOption {
	return func(opts *CheckOptions) {
		opts.Mode = mode
	}
}

// WithTimeout sets the timeout for waiting for migrations
func WithTimeout(timeout time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.Timeout = timeout
	}
}

// WithRetryInterval sets the interval between migration checks
func WithRetryInterval(interval time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.RetryInterval = interval
	}
}

// DefaultCheckOptions returns default options for migration checking
func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       60 * time.Second,
		RetryInterval: 5 * time.Second,
		AllowDirty:    false,
	}
}

// OptionsFromEnv starts from DefaultCheckOptions and applies
// PREFIX_MIGRATION_CHECK_ENABLED, MIGRATION_CHECK_TIMEOUT,
// MIGRATION_CHECK_RETRY_INTERVAL and MIGRATION_CHECK_ALLOW_DIRTY,
// then any explicit options.
func OptionsFromEnv(prefix string, opts ...CheckOption) CheckOptions {
	o := DefaultCheckOptions()

	if val := os.Getenv(prefix + "_MIGRATION_CHECK_ENABLED"); val != "" && strings.ToLower(val) != "true" {
		o.Mode = CheckModeSkip
	}
	if val := os.Getenv("MIGRATION_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			o.Timeout = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			o.RetryInterval = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_ALLOW_DIRTY"); val != "" {
		o.AllowDirty = strings.ToLower(val) == "true"
	}

	for _, fn := range opts {
		fn(&o)
	}
	return o
}
