// Copyright 2026 TreasuryKit
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
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "stakewarden.config"

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
	DatabasePath        string `yaml:"databasePath"                                               split_words:"true"`
	BindAddr            string `yaml:"bindAddr"                                                   split_words:"true"`
	ApiPort             uint   `yaml:"apiPort"                                                    split_words:"true"`
	MetricsPort         uint   `yaml:"metricsPort"                                                split_words:"true"`
	PrivilegedPrincipal string `yaml:"privilegedPrincipal"  envconfig:"STAKEWARDEN_PRINCIPAL"`
	GovernanceServiceID string `yaml:"governanceServiceId"  envconfig:"STAKEWARDEN_GOVERNANCE_SERVICE_ID"`
	GovernanceURL       string `yaml:"governanceUrl"        envconfig:"STAKEWARDEN_GOVERNANCE_URL"`
	LedgerServiceID     string `yaml:"ledgerServiceId"      envconfig:"STAKEWARDEN_LEDGER_SERVICE_ID"`
	LedgerURL           string `yaml:"ledgerUrl"            envconfig:"STAKEWARDEN_LEDGER_URL"`
	Owner               string `yaml:"owner"`
	GovernanceAccount   string `yaml:"governanceAccount"                                          split_words:"true"`
	TreasuryAccount     string `yaml:"treasuryAccount"                                            split_words:"true"`
	ServiceAccount      string `yaml:"serviceAccount"                                             split_words:"true"`
	ShutdownTimeout     string `yaml:"shutdownTimeout"                                            split_words:"true"`
	MinimumStake        uint64 `yaml:"minimumStake"                                               split_words:"true"`
	TransferFee         uint64 `yaml:"transferFee"                                                split_words:"true"`
	SpawnThreshold      uint64 `yaml:"spawnThreshold"                                             split_words:"true"`
}

var globalConfig = &Config{
	DatabasePath:    ".stakewarden",
	BindAddr:        "0.0.0.0",
	ApiPort:         3000,
	MetricsPort:     12798,
	ShutdownTimeout: DefaultShutdownTimeout,
	MinimumStake:    100_000_000,
	TransferFee:     10_000,
	SpawnThreshold:  100_000_000,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.stakewarden/stakewarden.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(
				homeDir,
				".stakewarden",
				"stakewarden.yaml",
			)
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/stakewarden/stakewarden.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/stakewarden/stakewarden.yaml"
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
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("stakewarden", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
