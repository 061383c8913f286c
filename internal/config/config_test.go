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
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		DatabasePath:    ".stakewarden",
		BindAddr:        "0.0.0.0",
		ApiPort:         3000,
		MetricsPort:     12798,
		ShutdownTimeout: DefaultShutdownTimeout,
		MinimumStake:    100_000_000,
		TransferFee:     10_000,
		SpawnThreshold:  100_000_000,
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
databasePath: "/var/lib/stakewarden"
bindAddr: "127.0.0.1"
apiPort: 8080
metricsPort: 8088
privilegedPrincipal: "admin-principal"
governanceServiceId: "gov-svc"
governanceUrl: "http://localhost:8100"
ledgerServiceId: "ledger-svc"
ledgerUrl: "http://localhost:8200"
owner: "treasury-owner"
governanceAccount: "gov-acct"
treasuryAccount: "treasury-acct"
serviceAccount: "svc-acct"
minimumStake: 200000000
transferFee: 20000
spawnThreshold: 50000000
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-stakewarden.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	defer os.Remove(tmpFile)

	expected := &Config{
		DatabasePath:        "/var/lib/stakewarden",
		BindAddr:            "127.0.0.1",
		ApiPort:             8080,
		MetricsPort:         8088,
		PrivilegedPrincipal: "admin-principal",
		GovernanceServiceID: "gov-svc",
		GovernanceURL:       "http://localhost:8100",
		LedgerServiceID:     "ledger-svc",
		LedgerURL:           "http://localhost:8200",
		Owner:               "treasury-owner",
		GovernanceAccount:   "gov-acct",
		TreasuryAccount:     "treasury-acct",
		ServiceAccount:      "svc-acct",
		ShutdownTimeout:     DefaultShutdownTimeout,
		MinimumStake:        200_000_000,
		TransferFee:         20_000,
		SpawnThreshold:      50_000_000,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	expected := &Config{
		DatabasePath:    ".stakewarden",
		BindAddr:        "0.0.0.0",
		ApiPort:         3000,
		MetricsPort:     12798,
		ShutdownTimeout: DefaultShutdownTimeout,
		MinimumStake:    100_000_000,
		TransferFee:     10_000,
		SpawnThreshold:  100_000_000,
	}

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			cfg,
			expected,
		)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	resetGlobalConfig()

	t.Setenv("STAKEWARDEN_GOVERNANCE_URL", "http://gov.example:9000")
	t.Setenv("STAKEWARDEN_PRINCIPAL", "env-principal")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.GovernanceURL != "http://gov.example:9000" {
		t.Errorf("unexpected governance URL: %q", cfg.GovernanceURL)
	}
	if cfg.PrivilegedPrincipal != "env-principal" {
		t.Errorf("unexpected principal: %q", cfg.PrivilegedPrincipal)
	}
}

func TestContextRoundTrip(t *testing.T) {
	resetGlobalConfig()

	cfg := GetConfig()
	ctx := WithContext(t.Context(), cfg)
	if got := FromContext(ctx); got != cfg {
		t.Errorf("unexpected config from context: %+v", got)
	}
	if got := FromContext(t.Context()); got != nil {
		t.Errorf("expected nil config from empty context, got: %+v", got)
	}
}
