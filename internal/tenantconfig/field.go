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
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// FieldType names the kind of value an element holds.
type FieldType string

const (
	TypeBoolean                 FieldType = "boolean"
	TypeText                    FieldType = "text"
	TypeInternationalizableText FieldType = "internationalizableText"
	TypeRadio                   FieldType = "radio"
	TypeList                    FieldType = "list"
)

// DefaultLocaleKey is the reserved key of an internationalizable value
// used when no locale-specific entry exists.
const DefaultLocaleKey = "default"

// FieldInfo holds the descriptive and access-control attributes shared by
// every field kind.
type FieldInfo struct {
	Name            string
	Description     string
	TenantOverride  bool
	Suppress        bool
	GlobalAdminOnly bool
}

// Field is a single configuration element's descriptor. Implementations are
// immutable once the schema is built.
type Field interface {
	Type() FieldType
	Info() FieldInfo
	// Default is the schema-level value. Callers must not mutate it.
	Default() any
	// Coerce converts client input into the field's value type.
	Coerce(in any) (any, error)
	// Decode parses a stored raw value.
	Decode(raw string) (any, error)
	// Encode renders a value in its stored form.
	Encode(v any) (string, error)
}

// Choice is one selectable value of a radio or list element.
type Choice struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// BooleanField accepts true/false and the strings "true", "false", "1", "0".
type BooleanField struct {
	FieldInfo
	DefaultValue bool
}

func (f *BooleanField) Type() FieldType { return TypeBoolean }
func (f *BooleanField) Info() FieldInfo { return f.FieldInfo }
func (f *BooleanField) Default() any    { return f.DefaultValue }

func (f *BooleanField) Coerce(in any) (any, error) {
	return cast.ToBoolE(in)
}

func (f *BooleanField) Decode(raw string) (any, error) {
	return cast.ToBoolE(raw)
}

func (f *BooleanField) Encode(v any) (string, error) {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(b), nil
}

// TextField stores arbitrary strings untouched.
type TextField struct {
	FieldInfo
	DefaultValue string
}

func (f *TextField) Type() FieldType { return TypeText }
func (f *TextField) Info() FieldInfo { return f.FieldInfo }
func (f *TextField) Default() any    { return f.DefaultValue }

func (f *TextField) Coerce(in any) (any, error)     { return cast.ToStringE(in) }
func (f *TextField) Decode(raw string) (any, error) { return raw, nil }
func (f *TextField) Encode(v any) (string, error)   { return cast.ToStringE(v) }

// InternationalizableTextField holds a map of locale to text. The reserved
// "default" key is used when a locale has no entry of its own.
type InternationalizableTextField struct {
	FieldInfo
	DefaultValue map[string]string
}

func (f *InternationalizableTextField) Type() FieldType { return TypeInternationalizableText }
func (f *InternationalizableTextField) Info() FieldInfo { return f.FieldInfo }
func (f *InternationalizableTextField) Default() any    { return f.DefaultValue }

// Coerce accepts either a locale map or a bare string, which becomes the
// default entry.
func (f *InternationalizableTextField) Coerce(in any) (any, error) {
	if s, ok := in.(string); ok {
		return map[string]string{DefaultLocaleKey: s}, nil
	}
	m, err := cast.ToStringMapStringE(in)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for locale, text := range m {
		out[locale] = strings.TrimSpace(text)
	}
	return out, nil
}

func (f *InternationalizableTextField) Decode(raw string) (any, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("internationalizable value is not an object")
	}
	return m, nil
}

func (f *InternationalizableTextField) Encode(v any) (string, error) {
	m, err := cast.ToStringMapStringE(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RadioField is a text value presented as a set of exclusive choices.
type RadioField struct {
	FieldInfo
	DefaultValue string
	Group        []Choice
}

func (f *RadioField) Type() FieldType   { return TypeRadio }
func (f *RadioField) Info() FieldInfo   { return f.FieldInfo }
func (f *RadioField) Default() any      { return f.DefaultValue }
func (f *RadioField) Options() []Choice { return f.Group }

func (f *RadioField) Coerce(in any) (any, error)     { return cast.ToStringE(in) }
func (f *RadioField) Decode(raw string) (any, error) { return raw, nil }
func (f *RadioField) Encode(v any) (string, error)   { return cast.ToStringE(v) }

// ListField is a text value presented as a drop-down list.
type ListField struct {
	FieldInfo
	DefaultValue string
	List         []Choice
}

func (f *ListField) Type() FieldType   { return TypeList }
func (f *ListField) Info() FieldInfo   { return f.FieldInfo }
func (f *ListField) Default() any      { return f.DefaultValue }
func (f *ListField) Options() []Choice { return f.List }

func (f *ListField) Coerce(in any) (any, error)     { return cast.ToStringE(in) }
func (f *ListField) Decode(raw string) (any, error) { return raw, nil }
func (f *ListField) Encode(v any) (string, error)   { return cast.ToStringE(v) }

// isStructured reports whether the field's value is a map addressable by
// optional keys.
func isStructured(f Field) bool {
	_, ok := f.(*InternationalizableTextField)
	return ok
}

// cloneValue copies map values so callers can't alter cached state.
func cloneValue(v any) any {
	if m, ok := v.(map[string]string); ok {
		return maps.Clone(m)
	}
	return v
}
