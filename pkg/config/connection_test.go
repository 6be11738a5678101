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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConnectionYAML = `
datastores:
  primary:
    driver: postgres
    dsn: "postgres://localhost/wayflow"
    ssl_mode: require
    pool_size: 10
llms:
  gpt:
    name: gpt
    base_url: "https://api.openai.com/v1"
    api_key_env: OPENAI_API_KEY
    timeout: 30s
`

func TestLoadConnectionConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConnectionYAML), 0o600))

	cfg, err := LoadConnectionConfig(path)
	require.NoError(t, err)

	ds, ok := cfg.Datastores["primary"]
	require.True(t, ok)
	assert.Equal(t, "postgres", ds.Driver)
	assert.Equal(t, 10, ds.PoolSize)

	llm, ok := cfg.LLMs["gpt"]
	require.True(t, ok)
	assert.Equal(t, "OPENAI_API_KEY", llm.APIKeyEnv)
}

func TestLLMConfigAPIKeyMissing(t *testing.T) {
	llm := LLMConfig{Name: "gpt", APIKeyEnv: "WAYFLOW_TEST_MISSING_KEY"}
	_, err := llm.APIKey()
	require.Error(t, err)
}

func TestLLMConfigAPIKeyResolved(t *testing.T) {
	t.Setenv("WAYFLOW_TEST_KEY", "secret")
	llm := LLMConfig{Name: "gpt", APIKeyEnv: "WAYFLOW_TEST_KEY"}
	key, err := llm.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
}
