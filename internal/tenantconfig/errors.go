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
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed client input.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound marks a config key that matches no schema element.
	ErrNotFound = errors.New("config value not found")
	// ErrUnauthorized marks an actor lacking the required admin rights.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBroadcast marks a mutation that was persisted but whose
	// invalidation could not be published to other processes.
	ErrBroadcast = errors.New("invalidation broadcast failed")
)

// Error is a caller-facing failure. Kind is one of the sentinel errors above.
type Error struct {
	Kind error
	Key  string
	Msg  string
}

func newError(kind error, key, msg string) *Error {
	return &Error{Kind: kind, Key: key, Msg: msg}
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Key, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// HTTPStatus maps an error from this package to a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
