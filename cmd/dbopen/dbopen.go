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

package dbopen

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// getDatabaseURLFromEnv constructs a PostgreSQL URL from environment
// variables named PREFIX_HOST, PREFIX_PORT, PREFIX_USER, PREFIX_PASSWORD,
// PREFIX_DBNAME, and optionally PREFIX_SSLMODE. PREFIX_URL, when set,
// wins over all of them.
//
// HOST and DBNAME are required. PORT defaults to 5432.
func getDatabaseURLFromEnv(prefix string) (string, error) {
	return databaseURL(prefix, os.Getenv)
}

func databaseURL(prefix string, getenv func(string) string) (string, error) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	if urlStr := getenv(prefix + "URL"); urlStr != "" {
		return urlStr, nil
	}

	host := getenv(prefix + "HOST")
	dbname := getenv(prefix + "DBNAME")

	var missing []string
	if host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf(
			"missing required environment variable(s): %s",
			strings.Join(missing, ", "),
		)
	}

	port := getenv(prefix + "PORT")
	if port == "" {
		port = "5432"
	}

	user := getenv(prefix + "USER")
	pass := getenv(prefix + "PASSWORD")
	sslmode := getenv(prefix + "SSLMODE")

	u := &url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   dbname,
	}

	if user != "" {
		if pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}

	q := u.Query()
	if sslmode != "" {
		q.Set("sslmode", sslmode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
