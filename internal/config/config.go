// Copyright 2026 The Heeler Authors
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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sopsapi "github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "heeler.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DatabasePath     string `yaml:"databasePath"     split_words:"true"`
	RpcHost          string `yaml:"rpcHost"          split_words:"true"`
	RpcUser          string `yaml:"rpcUser"          split_words:"true"`
	RpcPass          string `yaml:"rpcPass"          split_words:"true"`
	ZmqEndpoint      string `yaml:"zmqEndpoint"      split_words:"true"`
	BindAddr         string `yaml:"bindAddr"         split_words:"true"`
	MetricsPort      uint   `yaml:"metricsPort"      split_words:"true"`
	QueueSize        int    `yaml:"queueSize"        split_words:"true"`
	Workers          int    `yaml:"workers"`
	PruneInterval    string `yaml:"pruneInterval"    split_words:"true"`
	SnapshotInterval string `yaml:"snapshotInterval" split_words:"true"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"  split_words:"true"`
	KeepWitness      bool   `yaml:"keepWitness"      split_words:"true"`
	Tracing          bool   `yaml:"tracing"`
	TracingStdout    bool   `yaml:"tracingStdout"    split_words:"true"`
}

var globalConfig = &Config{
	DatabasePath:     ".heeler",
	RpcHost:          "127.0.0.1:8332",
	RpcUser:          "",
	RpcPass:          "",
	ZmqEndpoint:      "tcp://127.0.0.1:28332",
	BindAddr:         "0.0.0.0",
	MetricsPort:      9190,
	QueueSize:        10000,
	Workers:          2,
	PruneInterval:    "5s",
	SnapshotInterval: "60s",
	ShutdownTimeout:  DefaultShutdownTimeout,
	KeepWitness:      false,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.heeler/heeler.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".heeler", "heeler.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/heeler/heeler.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/heeler/heeler.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// Node RPC credentials usually live in the config file, so files
		// encrypted with sops are supported. Plain files pass through.
		plaintext, err := decrypt.Data(buf, "yaml")
		switch {
		case err == nil:
			buf = plaintext
		case errors.Is(err, sopsapi.MetadataNotFound):
			// Not encrypted
		default:
			return nil, fmt.Errorf("error decrypting config file: %w", err)
		}

		// Overlay config values onto existing defaults
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process environment variables
	err := envconfig.Process("heeler", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	// Intervals stay strings in the file. Validate them here so a typo fails
	// at startup rather than mid-run.
	for _, interval := range []struct {
		name  string
		value string
	}{
		{"pruneInterval", globalConfig.PruneInterval},
		{"snapshotInterval", globalConfig.SnapshotInterval},
		{"shutdownTimeout", globalConfig.ShutdownTimeout},
	} {
		if interval.value == "" {
			continue
		}
		if _, err := time.ParseDuration(interval.value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", interval.name, err)
		}
	}

	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
