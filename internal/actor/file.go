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

package actor

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type AdminAPIKey struct {
	Name        string `json:"name" yaml:"name"`
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type AdminKeyFile struct {
	APIKeys []AdminAPIKey `json:"apikeys,omitempty" yaml:"apikeys,omitempty"`
}

// FileProvider holds the global admin API keys. A provider with no keys
// grants global admin rights to nobody.
type FileProvider struct {
	config AdminKeyFile
}

// NewFileProvider reads filename, or the named environment variable when
// filename has the form "env:NAME". An empty filename or a missing file
// yields an empty provider.
func NewFileProvider(filename string) (*FileProvider, error) {
	if filename == "" {
		return &FileProvider{}, nil
	}
	if envVar, ok := strings.CutPrefix(filename, "env:"); ok {
		contents := os.Getenv(envVar)
		if contents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", envVar)
		}
		return newFileProviderFromContents(filename, []byte(contents))
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileProvider{}, nil
		}
		return nil, fmt.Errorf("failed to read admin keys from file %s: %w", filename, err)
	}
	return newFileProviderFromContents(filename, contents)
}

func newFileProviderFromContents(filename string, contents []byte) (*FileProvider, error) {
	var config AdminKeyFile

	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(false)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admin keys from file %s: %w", filename, err)
	}
	for i, k := range config.APIKeys {
		if k.Key == "" {
			return nil, fmt.Errorf("admin key %d (%s) in %s has no key", i, k.Name, filename)
		}
	}
	return &FileProvider{config: config}, nil
}

// Lookup returns the key's info, without the key itself.
func (p *FileProvider) Lookup(apiKey string) (AdminAPIKey, bool) {
	if apiKey == "" {
		return AdminAPIKey{}, false
	}
	for _, key := range p.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key.Key), []byte(apiKey)) == 1 {
			return AdminAPIKey{
				Name:        key.Name,
				Description: key.Description,
			}, true
		}
	}
	return AdminAPIKey{}, false
}

// Len is the number of configured keys.
func (p *FileProvider) Len() int {
	return len(p.config.APIKeys)
}
