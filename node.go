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

// Package stakewarden assembles the treasury staking service: the stake
// position lifecycle manager, the proposal chain orchestrator, their
// shared storage, and the HTTP API surface.
package stakewarden

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/treasurykit/stakewarden/api"
	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/event"
	"github.com/treasurykit/stakewarden/governance"
	"github.com/treasurykit/stakewarden/ledgersvc"
	"github.com/treasurykit/stakewarden/position"
	"github.com/treasurykit/stakewarden/proposalchain"
	"github.com/treasurykit/stakewarden/scheduler"
)

type Node struct {
	db           *database.Database
	eventBus     *event.EventBus
	sched        *scheduler.Scheduler
	manager      *position.Manager
	orch         *proposalchain.Orchestrator
	api          *api.Api
	config       Config
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

func (n *Node) Run() error {
	// Load database
	db, err := database.New(&database.Config{
		Logger:  n.config.logger,
		DataDir: n.config.dataDir,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Persist the external service bindings. This fails when the stored
	// bindings differ from the configured ones, which protects a data
	// directory from being reused against different services.
	if err := n.db.SetServiceConfig(
		n.config.governanceServiceID,
		n.config.ledgerServiceID,
	); err != nil {
		return fmt.Errorf("failed to store service config: %w", err)
	}
	n.eventBus = event.NewEventBus(n.config.promRegistry, n.config.logger)
	n.sched = scheduler.New(n.config.logger)
	// Mirror lifecycle events into the diagnostic log store
	for _, eventType := range []event.EventType{
		event.PositionCreatedEventType,
		event.PositionClaimedEventType,
		event.PositionRemovedEventType,
		event.DisbursementEventType,
		event.ChainAdvancedEventType,
		event.ChainCompletedEventType,
	} {
		n.eventBus.SubscribeFunc(eventType, n.handleLoggedEvent)
	}
	govClient := governance.NewClient(n.config.governanceURL)
	ledgerClient := ledgersvc.NewClient(n.config.ledgerURL)
	manager, err := position.New(position.Config{
		Logger:                 n.config.logger,
		Database:               n.db,
		Scheduler:              n.sched,
		EventBus:               n.eventBus,
		Governance:             govClient,
		Ledger:                 ledgerClient,
		Owner:                  n.config.owner,
		GovernanceAccount:      n.config.governanceAccount,
		TreasuryAccount:        n.config.treasuryAccount,
		ServiceAccount:         n.config.serviceAccount,
		MinimumStake:           n.config.minimumStake,
		TransferFee:            n.config.transferFee,
		SpawnMaturityThreshold: n.config.spawnMaturityThreshold,
		PromRegistry:           n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load position manager: %w", err)
	}
	n.manager = manager
	orch, err := proposalchain.New(proposalchain.Config{
		Logger:       n.config.logger,
		Database:     n.db,
		EventBus:     n.eventBus,
		Submitter:    n.manager,
		Status:       govClient,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load chain orchestrator: %w", err)
	}
	n.orch = orch
	// Re-arm disbursement timers from persisted deadlines
	rearmed, err := n.manager.RearmSchedules()
	if err != nil {
		return fmt.Errorf("failed to re-arm schedules: %w", err)
	}
	if rearmed > 0 {
		n.config.logger.Info(
			"re-armed disbursement schedules",
			"count", rearmed,
		)
	}
	n.api = api.New(
		api.ApiConfig{
			ListenAddress: n.config.apiListenAddress,
			Principal:     n.config.privilegedPrincipal,
		},
		n.manager,
		n.orch,
		n.db,
		n.config.logger,
	)
	if err := n.api.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Wait for shutdown signal
	<-n.done
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Stop timers and let in-flight runs drain
	if n.sched != nil {
		n.sched.Stop()
	}

	// Phase 3: Cleanup resources
	if n.eventBus != nil {
		n.eventBus.Stop()
	}
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}

// handleLoggedEvent appends a one-line summary of a lifecycle event to the
// diagnostic log store. Failures are logged and otherwise ignored since
// the log store is advisory.
func (n *Node) handleLoggedEvent(evt event.Event) {
	var text string
	switch data := evt.Data.(type) {
	case event.PositionCreatedEvent:
		text = fmt.Sprintf(
			"position %d created at block %d",
			data.StorageID,
			data.BlockHeight,
		)
	case event.PositionClaimedEvent:
		text = fmt.Sprintf(
			"position %d claimed as %d",
			data.StorageID,
			data.ExternalID,
		)
	case event.PositionRemovedEvent:
		text = fmt.Sprintf("position %d removed", data.StorageID)
	case event.DisbursementEvent:
		text = fmt.Sprintf(
			"position %d disbursed maturity to %d targets",
			data.StorageID,
			data.Targets,
		)
	case event.ChainAdvancedEvent:
		text = fmt.Sprintf(
			"chain %d advanced to entry %d as proposal %d",
			data.ChainID,
			data.EntryIndex,
			data.ProposalID,
		)
	case event.ChainCompletedEvent:
		text = fmt.Sprintf(
			"chain %d completed after %d entries",
			data.ChainID,
			data.Entries,
		)
	default:
		text = fmt.Sprintf("event %s", evt.Type)
	}
	if logErr := n.db.AddLog(text); logErr != nil {
		n.config.logger.Warn(
			"failed to append to log store",
			"error", logErr,
		)
	}
}
