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

package stakewarden

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	dataDir      string
	// API listener settings
	apiListenAddress    string
	privilegedPrincipal string
	// External service endpoints
	governanceServiceID string
	governanceURL       string
	ledgerServiceID     string
	ledgerURL           string
	// Identity and accounts
	owner             []byte
	governanceAccount string
	treasuryAccount   string
	serviceAccount    string
	// Stake tunables
	minimumStake           uint64
	transferFee            uint64
	spawnMaturityThreshold uint64
	shutdownTimeout        time.Duration
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (n *Node) configValidate() error {
	if len(n.config.owner) == 0 {
		return errors.New("no owner identity defined")
	}
	if n.config.governanceServiceID == "" || n.config.governanceURL == "" {
		return errors.New("no governance service defined")
	}
	if n.config.ledgerServiceID == "" || n.config.ledgerURL == "" {
		return errors.New("no ledger service defined")
	}
	if n.config.minimumStake == 0 {
		return errors.New("invalid minimum stake value: 0")
	}
	return nil
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithApiListenAddress specifies the listen address for the HTTP API
// server. The default is :3000
func WithApiListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithPrivilegedPrincipal specifies the only caller identity allowed to
// use the mutating API routes
func WithPrivilegedPrincipal(principal string) ConfigOptionFunc {
	return func(c *Config) {
		c.privilegedPrincipal = principal
	}
}

// WithGovernanceService specifies the identifier and base URL of the
// external governance service
func WithGovernanceService(serviceID, baseURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.governanceServiceID = serviceID
		c.governanceURL = baseURL
	}
}

// WithLedgerService specifies the identifier and base URL of the external
// ledger service
func WithLedgerService(serviceID, baseURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerServiceID = serviceID
		c.ledgerURL = baseURL
	}
}

// WithOwner specifies the identity whose derived sub-addresses fund stake
// positions
func WithOwner(owner []byte) ConfigOptionFunc {
	return func(c *Config) {
		c.owner = owner
	}
}

// WithAccounts specifies the ledger accounts used by the service: the
// governance funding account, the treasury disbursement target, and the
// account this service pays from
func WithAccounts(
	governanceAccount, treasuryAccount, serviceAccount string,
) ConfigOptionFunc {
	return func(c *Config) {
		c.governanceAccount = governanceAccount
		c.treasuryAccount = treasuryAccount
		c.serviceAccount = serviceAccount
	}
}

// WithMinimumStake specifies the smallest stake the governance service accepts
func WithMinimumStake(amount uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.minimumStake = amount
	}
}

// WithTransferFee specifies the ledger's per-transfer fee
func WithTransferFee(fee uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.transferFee = fee
	}
}

// WithSpawnMaturityThreshold specifies the smallest maturity amount
// eligible for spawning into a new position
func WithSpawnMaturityThreshold(amount uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.spawnMaturityThreshold = amount
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
