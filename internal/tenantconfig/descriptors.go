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
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// DescriptorGroup is one module's declaration of configuration features.
// A module may declare several groups; they are merged by feature key.
type DescriptorGroup struct {
	Module   string                       `yaml:"module"`
	Features map[string]FeatureDescriptor `yaml:"features"`
}

// FeatureDescriptor declares a titled set of elements.
type FeatureDescriptor struct {
	Title       string                       `yaml:"title"`
	Description string                       `yaml:"description,omitempty"`
	Elements    map[string]ElementDescriptor `yaml:"elements"`
}

// ElementDescriptor declares a single element. TenantOverride defaults to
// true when omitted.
type ElementDescriptor struct {
	Type            FieldType `yaml:"type"`
	Name            string    `yaml:"name"`
	Description     string    `yaml:"description,omitempty"`
	Default         any       `yaml:"default"`
	TenantOverride  *bool     `yaml:"tenantOverride,omitempty"`
	Suppress        bool      `yaml:"suppress,omitempty"`
	GlobalAdminOnly bool      `yaml:"globalAdminOnly,omitempty"`
	Group           []Choice  `yaml:"group,omitempty"`
}

// NewField builds the typed descriptor for an element declaration.
func NewField(d ElementDescriptor) (Field, error) {
	info := FieldInfo{
		Name:            d.Name,
		Description:     d.Description,
		TenantOverride:  true,
		Suppress:        d.Suppress,
		GlobalAdminOnly: d.GlobalAdminOnly,
	}
	if d.TenantOverride != nil {
		info.TenantOverride = *d.TenantOverride
	}

	switch d.Type {
	case TypeBoolean:
		v, err := cast.ToBoolE(orZero(d.Default, false))
		if err != nil {
			return nil, fmt.Errorf("boolean default: %w", err)
		}
		return &BooleanField{FieldInfo: info, DefaultValue: v}, nil
	case TypeText:
		v, err := cast.ToStringE(d.Default)
		if err != nil {
			return nil, fmt.Errorf("text default: %w", err)
		}
		return &TextField{FieldInfo: info, DefaultValue: v}, nil
	case TypeInternationalizableText:
		v, err := i18nDefault(d.Default)
		if err != nil {
			return nil, fmt.Errorf("internationalizable text default: %w", err)
		}
		return &InternationalizableTextField{FieldInfo: info, DefaultValue: v}, nil
	case TypeRadio:
		v, err := cast.ToStringE(d.Default)
		if err != nil {
			return nil, fmt.Errorf("radio default: %w", err)
		}
		return &RadioField{FieldInfo: info, DefaultValue: v, Group: d.Group}, nil
	case TypeList:
		v, err := cast.ToStringE(d.Default)
		if err != nil {
			return nil, fmt.Errorf("list default: %w", err)
		}
		return &ListField{FieldInfo: info, DefaultValue: v, List: d.Group}, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", d.Type)
	}
}

func orZero(v any, zero any) any {
	if v == nil {
		return zero
	}
	return v
}

func i18nDefault(v any) (map[string]string, error) {
	switch t := v.(type) {
	case nil:
		return map[string]string{DefaultLocaleKey: ""}, nil
	case string:
		return map[string]string{DefaultLocaleKey: t}, nil
	default:
		return cast.ToStringMapStringE(t)
	}
}

// LoadDescriptorGroups reads every .yaml/.yml file under dir in fsys, in
// lexical order. A file may hold several YAML documents, one group each.
func LoadDescriptorGroups(fsys fs.FS, dir string) ([]DescriptorGroup, error) {
	var files []string
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list descriptor files in %s: %w", dir, err)
	}
	sort.Strings(files)

	var groups []DescriptorGroup
	for _, f := range files {
		contents, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor file %s: %w", f, err)
		}
		g, err := ParseDescriptorGroups(contents)
		if err != nil {
			return nil, fmt.Errorf("failed to parse descriptor file %s: %w", f, err)
		}
		groups = append(groups, g...)
	}
	return groups, nil
}

// ParseDescriptorGroups decodes one or more YAML documents. Unknown keys
// are rejected so a typo can't silently drop an access-control flag.
func ParseDescriptorGroups(contents []byte) ([]DescriptorGroup, error) {
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)

	var groups []DescriptorGroup
	for {
		var g DescriptorGroup
		err := dec.Decode(&g)
		if errors.Is(err, io.EOF) {
			return groups, nil
		}
		if err != nil {
			return nil, err
		}
		if g.Module == "" {
			return nil, errors.New("descriptor group has no module id")
		}
		groups = append(groups, g)
	}
}
