// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DatastoreConfig describes one relational datastore connection: the
// pkg/datastore.SQLStore dialect, its DSN, SSL mode, and pool size. YAML
// tags let a future agent/flow file loader deserialize this block directly
// (AgentSpec loading itself is out of scope per spec §1 non-goals, but the
// shape is kept ready for it).
type DatastoreConfig struct {
	Driver   string `yaml:"driver"`   // "postgres", "mysql", or "sqlite3"
	DSN      string `yaml:"dsn"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
	PoolSize int    `yaml:"pool_size,omitempty"`
}

// LLMConfig describes one named LLM adapter's defaults: where to send
// requests, which environment variable holds the API key, and the request
// timeout.
type LLMConfig struct {
	Name       string        `yaml:"name"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// APIKey resolves the configured environment variable to its value,
// returning an error naming the variable if it is unset.
func (c LLMConfig) APIKey() (string, error) {
	key := os.Getenv(c.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("config: environment variable %q is not set for LLM %q", c.APIKeyEnv, c.Name)
	}
	return key, nil
}

// ConnectionConfig bundles the datastore and LLM defaults a server process
// loads at startup.
type ConnectionConfig struct {
	Datastores map[string]DatastoreConfig `yaml:"datastores,omitempty"`
	LLMs       map[string]LLMConfig       `yaml:"llms,omitempty"`
}

// LoadConnectionConfig parses a ConnectionConfig from YAML at path.
func LoadConnectionConfig(path string) (*ConnectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg ConnectionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}
