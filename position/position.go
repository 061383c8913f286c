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

// Package position implements the stake-position lifecycle manager. A
// position's authoritative state lives in the external governance service;
// locally it is tracked only as a reference (derived address, sequence
// number, optional external identifier). All mutations of the same
// position are serialized by an in-memory lock keyed by the position's
// address, held across the external calls, so interleaved requests cannot
// observe a half-applied operation.
package position

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/database/models"
	"github.com/treasurykit/stakewarden/event"
	"github.com/treasurykit/stakewarden/governance"
	"github.com/treasurykit/stakewarden/internal/keyedmutex"
	"github.com/treasurykit/stakewarden/ledgersvc"
	"github.com/treasurykit/stakewarden/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GovernanceClient is the subset of the governance service consumed by
// the manager.
type GovernanceClient interface {
	ManageStakePosition(
		ctx context.Context,
		ref governance.PositionRef,
		command governance.Command,
	) (*governance.CommandResult, error)
	GetFullPosition(
		ctx context.Context,
		externalID uint64,
	) (*governance.PositionSnapshot, error)
	GetProposal(
		ctx context.Context,
		proposalID uint64,
	) (*governance.ProposalSnapshot, error)
}

// LedgerClient is the subset of the ledger service consumed by the
// manager.
type LedgerClient interface {
	Transfer(
		ctx context.Context,
		req ledgersvc.TransferRequest,
	) (uint64, error)
	BalanceOf(ctx context.Context, account string) (uint64, error)
}

// Config holds the dependencies and tunables for a Manager
type Config struct {
	Logger     *slog.Logger
	Database   *database.Database
	Scheduler  *scheduler.Scheduler
	EventBus   *event.EventBus
	Governance GovernanceClient
	Ledger     LedgerClient
	// Owner is the identity whose sub-addresses fund positions
	Owner []byte
	// GovernanceAccount receives funding transfers for new positions
	GovernanceAccount string
	// TreasuryAccount receives disbursed stake by default
	TreasuryAccount string
	// ServiceAccount is the ledger account this service pays from
	ServiceAccount string
	// MinimumStake is the smallest stake the governance service accepts
	MinimumStake uint64
	// TransferFee is the ledger's per-transfer fee
	TransferFee uint64
	// SpawnMaturityThreshold is the smallest maturity eligible for spawn
	SpawnMaturityThreshold uint64
	PromRegistry           prometheus.Registerer
}

type managerMetrics struct {
	operations *prometheus.CounterVec
}

type Manager struct {
	logger                 *slog.Logger
	db                     *database.Database
	sched                  *scheduler.Scheduler
	eventBus               *event.EventBus
	governance             GovernanceClient
	ledger                 LedgerClient
	owner                  []byte
	governanceAccount      string
	treasuryAccount        string
	serviceAccount         string
	minimumStake           uint64
	transferFee            uint64
	spawnMaturityThreshold uint64
	locks                  keyedmutex.KeyedMutex
	metrics                *managerMetrics
	// seqMu guards sequence allocation; reservedSeqs holds numbers handed
	// to in-flight creates that have not stored their row yet.
	seqMu        sync.Mutex
	reservedSeqs map[uint64]struct{}
}

// New creates a stake-position lifecycle manager
func New(cfg Config) (*Manager, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("no database provided")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("no scheduler provided")
	}
	if cfg.Governance == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("no service clients provided")
	}
	if len(cfg.Owner) == 0 {
		return nil, fmt.Errorf("no owner identity provided")
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	m := &Manager{
		logger:                 logger,
		db:                     cfg.Database,
		sched:                  cfg.Scheduler,
		eventBus:               cfg.EventBus,
		governance:             cfg.Governance,
		ledger:                 cfg.Ledger,
		owner:                  cfg.Owner,
		governanceAccount:      cfg.GovernanceAccount,
		treasuryAccount:        cfg.TreasuryAccount,
		serviceAccount:         cfg.ServiceAccount,
		minimumStake:           cfg.MinimumStake,
		transferFee:            cfg.TransferFee,
		spawnMaturityThreshold: cfg.SpawnMaturityThreshold,
		reservedSeqs:           make(map[uint64]struct{}),
	}
	if cfg.PromRegistry != nil {
		m.metrics = &managerMetrics{
			operations: promauto.With(cfg.PromRegistry).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stakewarden_position_operations_total",
					Help: "position operations by name and outcome",
				},
				[]string{"operation", "outcome"},
			),
		}
	}
	return m, nil
}

func (m *Manager) recordOp(operation string, err error) {
	if m.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.metrics.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Manager) publish(eventType event.EventType, data any) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}

// Lookup identifies a stored position by exactly one of its storage key,
// its derived address, or its external identifier.
type Lookup struct {
	StorageID  *uint   `json:"storage_id,omitempty"`
	Address    []byte  `json:"address,omitempty"`
	ExternalID *uint64 `json:"external_id,omitempty"`
}

func (m *Manager) resolve(lookup Lookup) (*models.StakePosition, error) {
	switch {
	case lookup.StorageID != nil:
		position, err := m.db.StakePosition(*lookup.StorageID)
		if err != nil {
			return nil, notFoundOrInternal(err)
		}
		return position, nil
	case len(lookup.Address) > 0:
		position, err := m.db.StakePositionByAddress(lookup.Address)
		if err != nil {
			return nil, notFoundOrInternal(err)
		}
		return position, nil
	case lookup.ExternalID != nil:
		position, err := m.db.StakePositionByExternalID(*lookup.ExternalID)
		if err != nil {
			return nil, notFoundOrInternal(err)
		}
		return position, nil
	default:
		return nil, apierror.Validation("lookup carries no identifier")
	}
}

func notFoundOrInternal(err error) error {
	if errors.Is(err, models.ErrStakePositionNotFound) {
		return apierror.NotFound("no stake position for lookup")
	}
	return fmt.Errorf("position lookup: %w", err)
}

// addressKey is the lock and scheduler key for a position's address
func addressKey(address []byte) string {
	return fmt.Sprintf("position/%x", address)
}

// allocateSequence reserves the next unused funding sequence number. The
// stored MAX alone is not enough: a concurrent create that has not stored
// its row yet also holds a number, and handing it out twice would derive
// the same address and reuse the same funding memo.
func (m *Manager) allocateSequence() (uint64, error) {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	seq, err := m.db.NextSequence()
	if err != nil {
		return 0, err
	}
	for {
		if _, held := m.reservedSeqs[seq]; !held {
			break
		}
		seq++
	}
	m.reservedSeqs[seq] = struct{}{}
	return seq, nil
}

// releaseSequence drops a reservation. Callers release only when the
// number was stored in a row (MAX now covers it) or when no external call
// carried it; a number that reached the ledger or governance service stays
// reserved so it is never handed out again.
func (m *Manager) releaseSequence(seq uint64) {
	m.seqMu.Lock()
	delete(m.reservedSeqs, seq)
	m.seqMu.Unlock()
}
