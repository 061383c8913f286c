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

// Package proposalchain implements the proposal-chain orchestrator: a
// persisted state machine that submits an ordered list of governance
// proposals one at a time, advancing only after the active proposal has
// been confirmed executed. Entry k+1 is never submitted before entry k's
// execution is confirmed, so causally dependent proposals cannot be
// decided out of order. Chains survive process restarts; all progress
// lives in the database.
package proposalchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/database/models"
	"github.com/treasurykit/stakewarden/event"
	"github.com/treasurykit/stakewarden/governance"
	"github.com/treasurykit/stakewarden/internal/keyedmutex"
	"github.com/treasurykit/stakewarden/position"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProposalSubmitter submits a proposal on behalf of a position identified
// by its external identifier. Implemented by the position manager.
type ProposalSubmitter interface {
	SubmitProposal(
		ctx context.Context,
		positionExternalID uint64,
		spec json.RawMessage,
	) (uint64, error)
}

// ProposalStatusClient looks up the execution status of a submitted
// proposal.
type ProposalStatusClient interface {
	GetProposal(
		ctx context.Context,
		proposalID uint64,
	) (*governance.ProposalSnapshot, error)
}

// Config holds the dependencies for an Orchestrator
type Config struct {
	Logger       *slog.Logger
	Database     *database.Database
	EventBus     *event.EventBus
	Submitter    ProposalSubmitter
	Status       ProposalStatusClient
	PromRegistry prometheus.Registerer
}

type orchestratorMetrics struct {
	advances *prometheus.CounterVec
}

type Orchestrator struct {
	logger    *slog.Logger
	db        *database.Database
	eventBus  *event.EventBus
	submitter ProposalSubmitter
	status    ProposalStatusClient
	locks     keyedmutex.KeyedMutex
	metrics   *orchestratorMetrics
}

// New creates a proposal-chain orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("no database provided")
	}
	if cfg.Submitter == nil || cfg.Status == nil {
		return nil, fmt.Errorf("no submitter or status client provided")
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	o := &Orchestrator{
		logger:    logger,
		db:        cfg.Database,
		eventBus:  cfg.EventBus,
		submitter: cfg.Submitter,
		status:    cfg.Status,
	}
	if cfg.PromRegistry != nil {
		o.metrics = &orchestratorMetrics{
			advances: promauto.With(cfg.PromRegistry).NewCounterVec(
				prometheus.CounterOpts{
					Name: "stakewarden_chain_advances_total",
					Help: "chain advance attempts by outcome",
				},
				[]string{"outcome"},
			),
		}
	}
	return o, nil
}

func (o *Orchestrator) recordAdvance(outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.advances.WithLabelValues(outcome).Inc()
}

func (o *Orchestrator) publish(eventType event.EventType, data any) {
	if o.eventBus == nil {
		return
	}
	o.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}

func chainKey(chainID uint) string {
	return fmt.Sprintf("chain/%d", chainID)
}

// EntryResponse is the read projection of a single chain entry
type EntryResponse struct {
	Index      uint64  `json:"index"`
	ProposalID *uint64 `json:"proposal_id,omitempty"`
}

// ChainResponse is the read projection of a chain. Completed reports that
// the final entry has been submitted; callers detect chain completion
// from this field, never from an error.
type ChainResponse struct {
	ChainID            uint            `json:"chain_id"`
	PositionExternalID uint64          `json:"position_external_id"`
	CurrentIndex       uint64          `json:"current_index"`
	ActiveProposalID   *uint64         `json:"active_proposal_id,omitempty"`
	Completed          bool            `json:"completed"`
	Entries            []EntryResponse `json:"entries"`
	CreatedAt          int64           `json:"created_at"`
}

func responseFromModel(chain *models.ProposalChain) *ChainResponse {
	entries := make([]EntryResponse, 0, len(chain.Entries))
	for _, entry := range chain.Entries {
		entries = append(entries, EntryResponse{
			Index:      entry.Index,
			ProposalID: entry.ProposalID,
		})
	}
	return &ChainResponse{
		ChainID:            chain.ID,
		PositionExternalID: chain.PositionExternalID,
		CurrentIndex:       chain.CurrentIndex,
		ActiveProposalID:   chain.ActiveProposalID,
		Completed:          chain.Completed(),
		Entries:            entries,
		CreatedAt:          chain.CreatedAt,
	}
}

// CreateChainRequest builds a chain from ordered proposal specs on behalf
// of the position identified by the lookup. Start submits the first entry
// immediately.
type CreateChainRequest struct {
	Position position.Lookup   `json:"position"`
	Specs    []json.RawMessage `json:"specs"`
	Start    bool              `json:"start"`
}

// CreateChain persists a new chain with one entry per spec at current
// index zero. The position must be claimed; an unknown or unclaimed
// position fails as not found. With Start set, the first entry is
// submitted before returning.
func (o *Orchestrator) CreateChain(
	ctx context.Context,
	req CreateChainRequest,
) (*ChainResponse, error) {
	if len(req.Specs) == 0 {
		return nil, apierror.Validation("chain needs at least one proposal")
	}
	externalID, err := o.resolvePosition(req.Position)
	if err != nil {
		return nil, err
	}
	entries := make([]models.ChainEntry, 0, len(req.Specs))
	for i, spec := range req.Specs {
		entries = append(entries, models.ChainEntry{
			Index:        uint64(i), //nolint:gosec
			ProposalSpec: spec,
		})
	}
	chain := &models.ProposalChain{
		PositionExternalID: externalID,
		Entries:            entries,
	}
	if err := o.db.AddProposalChain(chain); err != nil {
		return nil, fmt.Errorf("store chain: %w", err)
	}
	o.logger.Info(
		"created proposal chain",
		"component", "proposalchain",
		"chain_id", chain.ID,
		"entries", len(entries),
	)
	if !req.Start {
		return responseFromModel(chain), nil
	}
	return o.StartChain(ctx, chain.ID)
}

// resolvePosition maps a position lookup to its external identifier.
// Chains can only be built for claimed positions.
func (o *Orchestrator) resolvePosition(
	lookup position.Lookup,
) (uint64, error) {
	var pos *models.StakePosition
	var err error
	switch {
	case lookup.StorageID != nil:
		pos, err = o.db.StakePosition(*lookup.StorageID)
	case len(lookup.Address) > 0:
		pos, err = o.db.StakePositionByAddress(lookup.Address)
	case lookup.ExternalID != nil:
		pos, err = o.db.StakePositionByExternalID(*lookup.ExternalID)
	default:
		return 0, apierror.Validation("lookup carries no identifier")
	}
	if err != nil {
		if errors.Is(err, models.ErrStakePositionNotFound) {
			return 0, apierror.NotFound("no stake position for lookup")
		}
		return 0, fmt.Errorf("position lookup: %w", err)
	}
	if !pos.Claimed() {
		return 0, apierror.NotFound(
			"position %d has no external identifier",
			pos.ID,
		)
	}
	return *pos.ExternalID, nil
}

// StartChain submits the entry at the chain's current index. Used by
// callers that created a chain without immediate start, and internally by
// CreateChain.
func (o *Orchestrator) StartChain(
	ctx context.Context,
	chainID uint,
) (*ChainResponse, error) {
	key := chainKey(chainID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)
	chain, err := o.getChain(chainID)
	if err != nil {
		return nil, err
	}
	entry := chain.Entry(chain.CurrentIndex)
	if entry == nil {
		return nil, apierror.NotFound(
			"chain %d has no entry at index %d",
			chainID,
			chain.CurrentIndex,
		)
	}
	if entry.ProposalID != nil {
		return nil, apierror.Validation(
			"chain %d already started",
			chainID,
		)
	}
	return o.submitEntry(ctx, chain, entry.Index)
}

// AdvanceChain performs the core state transition: confirm the active
// proposal's execution, then submit the next entry. Advancing a chain
// whose final entry is already submitted is a graceful no-op; the
// returned response carries Completed set. Repeated calls while the
// active proposal is still pending return the same validation failure and
// change nothing.
func (o *Orchestrator) AdvanceChain(
	ctx context.Context,
	chainID uint,
) (resp *ChainResponse, err error) {
	defer func() {
		switch {
		case err != nil:
			o.recordAdvance("error")
		case resp != nil && resp.Completed:
			o.recordAdvance("completed")
		default:
			o.recordAdvance("advanced")
		}
	}()
	key := chainKey(chainID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)
	chain, err := o.getChain(chainID)
	if err != nil {
		return nil, err
	}
	entry := chain.Entry(chain.CurrentIndex)
	if entry == nil {
		return nil, apierror.NotFound(
			"chain %d has no entry at index %d",
			chainID,
			chain.CurrentIndex,
		)
	}
	if entry.ProposalID == nil {
		return nil, apierror.Validation(
			"current proposal of chain %d has no id",
			chainID,
		)
	}
	snapshot, err := o.status.GetProposal(ctx, *entry.ProposalID)
	if err != nil {
		return nil, err
	}
	if !snapshot.Executed() {
		return nil, apierror.Validation(
			"proposal %d not yet executed",
			*entry.ProposalID,
		)
	}
	nextIndex := chain.CurrentIndex + 1
	if nextIndex >= uint64(len(chain.Entries)) {
		// Chain complete, no-op
		o.publish(event.ChainCompletedEventType, event.ChainCompletedEvent{
			ChainID: chain.ID,
			Entries: len(chain.Entries),
		})
		return responseFromModel(chain), nil
	}
	return o.submitEntry(ctx, chain, nextIndex)
}

// submitEntry sends the entry's proposal spec to the governance service
// and records the returned proposal id as both the entry's id and the
// chain's active id, moving the current index to the entry.
func (o *Orchestrator) submitEntry(
	ctx context.Context,
	chain *models.ProposalChain,
	index uint64,
) (*ChainResponse, error) {
	entry := chain.Entry(index)
	if entry == nil {
		return nil, apierror.NotFound(
			"chain %d has no entry at index %d",
			chain.ID,
			index,
		)
	}
	proposalID, err := o.submitter.SubmitProposal(
		ctx,
		chain.PositionExternalID,
		entry.ProposalSpec,
	)
	if err != nil {
		return nil, err
	}
	if err := o.db.UpdateChainProgress(
		chain.ID,
		index,
		proposalID,
	); err != nil {
		return nil, fmt.Errorf("record chain progress: %w", err)
	}
	entry.ProposalID = &proposalID
	chain.ActiveProposalID = &proposalID
	chain.CurrentIndex = index
	o.logger.Info(
		"submitted chain entry",
		"component", "proposalchain",
		"chain_id", chain.ID,
		"entry_index", index,
		"proposal_id", proposalID,
	)
	o.publish(event.ChainAdvancedEventType, event.ChainAdvancedEvent{
		ChainID:    chain.ID,
		EntryIndex: index,
		ProposalID: proposalID,
	})
	return responseFromModel(chain), nil
}

func (o *Orchestrator) getChain(
	chainID uint,
) (*models.ProposalChain, error) {
	chain, err := o.db.ProposalChain(chainID)
	if err != nil {
		if errors.Is(err, models.ErrProposalChainNotFound) {
			return nil, apierror.NotFound("no chain %d", chainID)
		}
		return nil, fmt.Errorf("chain lookup: %w", err)
	}
	return chain, nil
}

// GetChain is a pure read projection used by callers to poll without
// mutating chain state.
func (o *Orchestrator) GetChain(chainID uint) (*ChainResponse, error) {
	chain, err := o.getChain(chainID)
	if err != nil {
		return nil, err
	}
	return responseFromModel(chain), nil
}

// ListChains returns projections of all stored chains
func (o *Orchestrator) ListChains() ([]*ChainResponse, error) {
	chains, err := o.db.ProposalChains()
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	responses := make([]*ChainResponse, 0, len(chains))
	for _, chain := range chains {
		responses = append(responses, responseFromModel(chain))
	}
	return responses, nil
}

