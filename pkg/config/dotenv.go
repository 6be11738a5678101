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

// Package config loads server configuration from .env files and CLI flags
// per spec §10.2, and holds the datastore/LLM connection structs a future
// YAML-based agent loader will deserialize into.
package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from .env files, first found wins:
// an explicit path, then ./.env, then ~/.env. Existing environment
// variables are never overwritten, and a missing file is not an error.
func LoadDotEnv(explicitPath string) error {
	if explicitPath != "" {
		if err := loadIfExists(explicitPath); err != nil {
			return err
		}
	}
	if err := loadIfExists(".env"); err != nil {
		return err
	}
	if home, err := os.UserHomeDir(); err == nil {
		if err := loadIfExists(filepath.Join(home, ".env")); err != nil {
			return err
		}
	}
	return nil
}

func loadIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		slog.Debug("failed to load .env file", "path", path, "error", err)
		return nil
	}
	slog.Debug("loaded environment from .env", "path", path)
	return nil
}
