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

package position

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database/models"
	"github.com/treasurykit/stakewarden/event"
	"github.com/treasurykit/stakewarden/governance"
	"github.com/treasurykit/stakewarden/ledgersvc"
	"github.com/treasurykit/stakewarden/subaccount"
)

// CreateRequest funds a new stake position. DissolveDelaySeconds and
// AutoStake, when set, are applied as best-effort follow-ups after the
// position is created and claimed.
type CreateRequest struct {
	Amount               uint64  `json:"amount"`
	DissolveDelaySeconds *uint32 `json:"dissolve_delay_seconds,omitempty"`
	AutoStake            *bool   `json:"auto_stake,omitempty"`
}

// CreateResponse reports what was actually confirmed. ExternalID is nil
// when the claim follow-up did not complete; DissolveDelayApplied and
// AutoStakeApplied are nil when the corresponding follow-up was not
// requested and false when it was requested but failed.
type CreateResponse struct {
	StorageID            uint    `json:"storage_id"`
	Address              []byte  `json:"address"`
	SequenceNumber       uint64  `json:"sequence_number"`
	BlockHeight          uint64  `json:"block_height"`
	ExternalID           *uint64 `json:"external_id,omitempty"`
	DissolveDelayApplied *bool   `json:"dissolve_delay_applied,omitempty"`
	AutoStakeApplied     *bool   `json:"auto_stake_applied,omitempty"`
}

// Create funds a position at the next derived address, claims it against
// the governance service, and applies any requested follow-up
// configuration. A follow-up failure leaves the position created and
// claimed; the response reflects only what was confirmed.
func (m *Manager) Create(
	ctx context.Context,
	req CreateRequest,
) (resp *CreateResponse, err error) {
	defer func() { m.recordOp("create", err) }()
	if req.Amount < m.minimumStake+m.transferFee {
		return nil, apierror.Validation(
			"amount %d below minimum stake %d plus fee %d",
			req.Amount,
			m.minimumStake,
			m.transferFee,
		)
	}
	seq, err := m.allocateSequence()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}
	address := subaccount.Derive(m.owner, seq)
	lockKey := addressKey(address[:])
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	blockHeight, err := m.ledger.Transfer(ctx, ledgersvc.TransferRequest{
		ToAccount:    m.governanceAccount,
		ToSubaccount: address[:],
		Amount:       req.Amount - m.transferFee,
		Fee:          m.transferFee,
		Memo:         subaccount.Memo(seq),
	})
	if err != nil {
		// The transfer may or may not have landed; the number stays
		// reserved either way so no later create repeats the memo.
		return nil, err
	}
	position := &models.StakePosition{
		FundingBlockHeight: blockHeight,
		Address:            address[:],
		SequenceNumber:     seq,
	}
	if err := m.db.AddStakePosition(position); err != nil {
		return nil, fmt.Errorf("store position: %w", err)
	}
	m.releaseSequence(seq)
	resp = &CreateResponse{
		StorageID:      position.ID,
		Address:        position.Address,
		SequenceNumber: seq,
		BlockHeight:    blockHeight,
	}
	// Claim and the requested follow-ups are best effort from here: the
	// position exists and the funds are transferred, so failures are
	// logged and reported through the response rather than rolled back.
	externalID, claimErr := m.claim(ctx, position)
	if claimErr != nil {
		m.logger.Warn(
			"claim after create failed",
			"component", "position",
			"storage_id", position.ID,
			"error", claimErr,
		)
		m.publish(event.PositionCreatedEventType, event.PositionCreatedEvent{
			StorageID:      position.ID,
			Address:        position.Address,
			SequenceNumber: seq,
			BlockHeight:    blockHeight,
		})
		return resp, nil
	}
	resp.ExternalID = &externalID
	if req.DissolveDelaySeconds != nil {
		applied := m.configureFollowUp(
			ctx,
			position,
			governance.ConfigureArgs{
				IncreaseDissolveDelay: &governance.IncreaseDissolveDelayArgs{
					AdditionalSeconds: *req.DissolveDelaySeconds,
				},
			},
		)
		resp.DissolveDelayApplied = &applied
	}
	if req.AutoStake != nil {
		applied := m.configureFollowUp(
			ctx,
			position,
			governance.ConfigureArgs{
				SetAutoStake: &governance.SetAutoStakeArgs{
					Enabled: *req.AutoStake,
				},
			},
		)
		resp.AutoStakeApplied = &applied
	}
	m.publish(event.PositionCreatedEventType, event.PositionCreatedEvent{
		StorageID:      position.ID,
		Address:        position.Address,
		SequenceNumber: seq,
		BlockHeight:    blockHeight,
		ExternalID:     resp.ExternalID,
	})
	return resp, nil
}

// claim issues a claim-or-refresh against the position's funding memo and
// records the returned external identifier.
func (m *Manager) claim(
	ctx context.Context,
	position *models.StakePosition,
) (uint64, error) {
	result, err := m.governance.ManageStakePosition(
		ctx,
		governance.RefByAddress(position.Address),
		governance.Command{
			ClaimOrRefresh: &governance.ClaimOrRefreshArgs{
				Memo: position.SequenceNumber,
			},
		},
	)
	if err != nil {
		return 0, err
	}
	if result.ClaimOrRefresh == nil {
		return 0, apierror.ExternalService(
			"claim result missing from command response",
		)
	}
	externalID := result.ClaimOrRefresh.ExternalID
	position.ExternalID = &externalID
	if err := m.db.UpdateStakePosition(position); err != nil {
		return 0, fmt.Errorf("record external id: %w", err)
	}
	return externalID, nil
}

func (m *Manager) configureFollowUp(
	ctx context.Context,
	position *models.StakePosition,
	args governance.ConfigureArgs,
) bool {
	_, err := m.governance.ManageStakePosition(
		ctx,
		governance.RefByExternalID(*position.ExternalID),
		governance.Command{Configure: &args},
	)
	if err != nil {
		m.logger.Warn(
			"follow-up configuration failed",
			"component", "position",
			"storage_id", position.ID,
			"error", err,
		)
		return false
	}
	return true
}

// ClaimOrRefresh re-synchronizes the external identifier by replaying the
// funding memo derived from the position's sequence number.
func (m *Manager) ClaimOrRefresh(
	ctx context.Context,
	lookup Lookup,
) (externalID uint64, err error) {
	defer func() { m.recordOp("claim_or_refresh", err) }()
	position, err := m.resolve(lookup)
	if err != nil {
		return 0, err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	externalID, err = m.claim(ctx, position)
	if err != nil {
		return 0, err
	}
	m.publish(event.PositionClaimedEventType, event.PositionClaimedEvent{
		StorageID:  position.ID,
		ExternalID: externalID,
	})
	return externalID, nil
}

// TopUp transfers additional funds to an existing position's address. It
// does not refresh the position's stake with the governance service;
// callers are expected to follow with ClaimOrRefresh.
func (m *Manager) TopUp(
	ctx context.Context,
	lookup Lookup,
	amount uint64,
) (blockHeight uint64, err error) {
	defer func() { m.recordOp("top_up", err) }()
	if amount <= m.transferFee {
		return 0, apierror.Validation(
			"top-up amount %d does not cover fee %d",
			amount,
			m.transferFee,
		)
	}
	position, err := m.resolve(lookup)
	if err != nil {
		return 0, err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	blockHeight, err = m.ledger.Transfer(ctx, ledgersvc.TransferRequest{
		ToAccount:    m.governanceAccount,
		ToSubaccount: position.Address,
		Amount:       amount - m.transferFee,
		Fee:          m.transferFee,
		Memo:         subaccount.Memo(position.SequenceNumber),
	})
	if err != nil {
		return 0, err
	}
	position.FundingBlockHeight = blockHeight
	if err := m.db.UpdateStakePosition(position); err != nil {
		return 0, fmt.Errorf("record funding height: %w", err)
	}
	return blockHeight, nil
}

// requireClaimed resolves the lookup and fails with a validation error
// when the position has no external identifier yet.
func (m *Manager) requireClaimed(
	lookup Lookup,
) (*models.StakePosition, error) {
	position, err := m.resolve(lookup)
	if err != nil {
		return nil, err
	}
	if !position.Claimed() {
		return nil, apierror.Validation(
			"position %d not claimed yet",
			position.ID,
		)
	}
	return position, nil
}

// Reconfigure applies a single configuration operation to a claimed
// position. The operation union must carry exactly one variant.
func (m *Manager) Reconfigure(
	ctx context.Context,
	lookup Lookup,
	args governance.ConfigureArgs,
) (err error) {
	defer func() { m.recordOp("reconfigure", err) }()
	if err := args.Validate(); err != nil {
		return apierror.Validation("%s", err.Error())
	}
	position, err := m.requireClaimed(lookup)
	if err != nil {
		return err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	_, err = m.governance.ManageStakePosition(
		ctx,
		governance.RefByExternalID(*position.ExternalID),
		governance.Command{Configure: &args},
	)
	return err
}

// SpawnRequest controls the optional follow-ups applied to a freshly
// spawned position.
type SpawnRequest struct {
	StartDissolving bool `json:"start_dissolving"`
	MakePublic      bool `json:"make_public"`
}

// SpawnResponse describes the new position split out of the parent's
// maturity.
type SpawnResponse struct {
	StorageID      uint   `json:"storage_id"`
	Address        []byte `json:"address"`
	SequenceNumber uint64 `json:"sequence_number"`
	ExternalID     uint64 `json:"external_id"`
	ParentAddress  []byte `json:"parent_address"`
}

// Spawn splits the parent's accrued maturity into a new position. The
// parent's maturity is checked against the eligibility threshold before
// any external spawn command is issued. The new reference records the
// parent's address as a lookup relation.
func (m *Manager) Spawn(
	ctx context.Context,
	parentLookup Lookup,
	req SpawnRequest,
) (resp *SpawnResponse, err error) {
	defer func() { m.recordOp("spawn", err) }()
	parent, err := m.requireClaimed(parentLookup)
	if err != nil {
		return nil, err
	}
	lockKey := addressKey(parent.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	snapshot, err := m.governance.GetFullPosition(ctx, *parent.ExternalID)
	if err != nil {
		return nil, err
	}
	if snapshot.MaturityAmount < m.spawnMaturityThreshold {
		return nil, apierror.Validation(
			"maturity %d below spawn threshold %d",
			snapshot.MaturityAmount,
			m.spawnMaturityThreshold,
		)
	}
	seq, err := m.allocateSequence()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}
	result, err := m.governance.ManageStakePosition(
		ctx,
		governance.RefByExternalID(*parent.ExternalID),
		governance.Command{
			Spawn: &governance.SpawnArgs{
				Nonce:      seq,
				Percentage: 100,
			},
		},
	)
	if err != nil {
		return nil, err
	}
	if result.Spawn == nil {
		return nil, apierror.ExternalService(
			"spawn result missing from command response",
		)
	}
	address := subaccount.Derive(m.owner, seq)
	createdID := result.Spawn.CreatedExternalID
	child := &models.StakePosition{
		Address:        address[:],
		SequenceNumber: seq,
		ExternalID:     &createdID,
		ParentAddress:  parent.Address,
	}
	if err := m.db.AddStakePosition(child); err != nil {
		return nil, fmt.Errorf("store spawned position: %w", err)
	}
	m.releaseSequence(seq)
	// Visibility and dissolving are best-effort follow-ups on the child
	if req.MakePublic {
		m.configureFollowUp(ctx, child, governance.ConfigureArgs{
			SetVisibility: &governance.SetVisibilityArgs{Public: true},
		})
	}
	if req.StartDissolving {
		m.configureFollowUp(ctx, child, governance.ConfigureArgs{
			StartDissolving: &governance.StartDissolvingArgs{},
		})
	}
	m.publish(event.PositionCreatedEventType, event.PositionCreatedEvent{
		StorageID:      child.ID,
		Address:        child.Address,
		SequenceNumber: seq,
		ExternalID:     &createdID,
	})
	return &SpawnResponse{
		StorageID:      child.ID,
		Address:        child.Address,
		SequenceNumber: seq,
		ExternalID:     createdID,
		ParentAddress:  parent.Address,
	}, nil
}

// CreateProposal submits a governance proposal on behalf of a claimed
// position and returns the assigned proposal identifier.
func (m *Manager) CreateProposal(
	ctx context.Context,
	lookup Lookup,
	spec json.RawMessage,
) (proposalID uint64, err error) {
	defer func() { m.recordOp("create_proposal", err) }()
	position, err := m.requireClaimed(lookup)
	if err != nil {
		return 0, err
	}
	return m.SubmitProposal(ctx, *position.ExternalID, spec)
}

// SubmitProposal is the proposal-submission primitive consumed by the
// chain orchestrator: it submits on behalf of a position identified only
// by its external identifier, without touching local state.
func (m *Manager) SubmitProposal(
	ctx context.Context,
	positionExternalID uint64,
	spec json.RawMessage,
) (uint64, error) {
	result, err := m.governance.ManageStakePosition(
		ctx,
		governance.RefByExternalID(positionExternalID),
		governance.Command{
			MakeProposal: &governance.MakeProposalArgs{Spec: spec},
		},
	)
	if err != nil {
		return 0, err
	}
	if result.MakeProposal == nil {
		return 0, apierror.ExternalService(
			"proposal result missing from command response",
		)
	}
	return result.MakeProposal.ProposalID, nil
}

// Vote registers a ballot for a claimed position on an open proposal
func (m *Manager) Vote(
	ctx context.Context,
	lookup Lookup,
	proposalID uint64,
	choice governance.VoteChoice,
) (err error) {
	defer func() { m.recordOp("vote", err) }()
	position, err := m.requireClaimed(lookup)
	if err != nil {
		return err
	}
	_, err = m.governance.ManageStakePosition(
		ctx,
		governance.RefByExternalID(*position.ExternalID),
		governance.Command{
			RegisterVote: &governance.RegisterVoteArgs{
				ProposalID: proposalID,
				Choice:     choice,
			},
		},
	)
	return err
}

// Disburse withdraws the position's full stake to the configured treasury
// account and returns the transfer's block height. The reference row is
// kept; it remains queryable with its stale external identifier.
func (m *Manager) Disburse(
	ctx context.Context,
	lookup Lookup,
) (blockHeight uint64, err error) {
	defer func() { m.recordOp("disburse", err) }()
	position, err := m.requireClaimed(lookup)
	if err != nil {
		return 0, err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	result, err := m.governance.ManageStakePosition(
		ctx,
		governance.RefByExternalID(*position.ExternalID),
		governance.Command{
			Disburse: &governance.DisburseArgs{
				Destination: governance.DisburseDestination{
					Account: m.treasuryAccount,
				},
			},
		},
	)
	if err != nil {
		return 0, err
	}
	if result.Disburse == nil {
		return 0, apierror.ExternalService(
			"disburse result missing from command response",
		)
	}
	return result.Disburse.BlockHeight, nil
}

// FollowEntry delegates one topic to a set of followee positions
type FollowEntry struct {
	Topic     int32    `json:"topic"`
	Followees []uint64 `json:"followees"`
}

// SetFollowing sets delegation-by-topic for a claimed position, one
// governance call per supplied entry. The first failing entry aborts the
// remainder.
func (m *Manager) SetFollowing(
	ctx context.Context,
	lookup Lookup,
	entries []FollowEntry,
) (err error) {
	defer func() { m.recordOp("set_following", err) }()
	position, err := m.requireClaimed(lookup)
	if err != nil {
		return err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	for _, entry := range entries {
		_, err := m.governance.ManageStakePosition(
			ctx,
			governance.RefByExternalID(*position.ExternalID),
			governance.Command{
				Follow: &governance.FollowArgs{
					Topic:     entry.Topic,
					Followees: entry.Followees,
				},
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a position reference from local storage, clearing any
// maturity schedule and its timer first. The position itself lives on in
// the governance service.
func (m *Manager) Remove(
	ctx context.Context,
	lookup Lookup,
) (err error) {
	defer func() { m.recordOp("remove", err) }()
	position, err := m.resolve(lookup)
	if err != nil {
		return err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	m.sched.Cancel(lockKey)
	if err := m.db.DeleteStakePosition(position.ID); err != nil {
		return notFoundOrInternal(err)
	}
	m.publish(event.PositionRemovedEventType, event.PositionRemovedEvent{
		StorageID:  position.ID,
		ExternalID: position.ExternalID,
	})
	return nil
}

// Reference is the read projection of a stored position
type Reference struct {
	StorageID          uint    `json:"storage_id"`
	Address            []byte  `json:"address"`
	SequenceNumber     uint64  `json:"sequence_number"`
	FundingBlockHeight uint64  `json:"funding_block_height"`
	ExternalID         *uint64 `json:"external_id,omitempty"`
	ParentAddress      []byte  `json:"parent_address,omitempty"`
	ScheduleIntervalNs *int64  `json:"schedule_interval_ns,omitempty"`
	NextDisburseNanos  *int64  `json:"next_disburse_nanos,omitempty"`
	LastDisburseNanos  *int64  `json:"last_disburse_nanos,omitempty"`
	CreatedAt          int64   `json:"created_at"`
}

func referenceFromModel(position *models.StakePosition) Reference {
	return Reference{
		StorageID:          position.ID,
		Address:            position.Address,
		SequenceNumber:     position.SequenceNumber,
		FundingBlockHeight: position.FundingBlockHeight,
		ExternalID:         position.ExternalID,
		ParentAddress:      position.ParentAddress,
		ScheduleIntervalNs: position.ScheduleIntervalNs,
		NextDisburseNanos:  position.NextDisburseNanos,
		LastDisburseNanos:  position.LastDisburseNanos,
		CreatedAt:          position.CreatedAt,
	}
}

// List returns all stored position references ordered by storage key
func (m *Manager) List() ([]Reference, error) {
	positions, err := m.db.StakePositions()
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	refs := make([]Reference, 0, len(positions))
	for _, position := range positions {
		refs = append(refs, referenceFromModel(position))
	}
	return refs, nil
}

// FullPosition combines the local reference with the governance
// service's snapshot.
type FullPosition struct {
	Reference Reference                    `json:"reference"`
	Snapshot  *governance.PositionSnapshot `json:"snapshot,omitempty"`
}

// GetFull returns the local reference together with the governance
// service's full snapshot. For an unclaimed position only the reference
// is returned.
func (m *Manager) GetFull(
	ctx context.Context,
	lookup Lookup,
) (*FullPosition, error) {
	position, err := m.resolve(lookup)
	if err != nil {
		return nil, err
	}
	full := &FullPosition{Reference: referenceFromModel(position)}
	if position.Claimed() {
		snapshot, err := m.governance.GetFullPosition(
			ctx,
			*position.ExternalID,
		)
		if err != nil {
			return nil, err
		}
		full.Snapshot = snapshot
	}
	return full, nil
}

// ServiceBalance returns the ledger balance of the service's own account
func (m *Manager) ServiceBalance(ctx context.Context) (uint64, error) {
	return m.ledger.BalanceOf(ctx, m.serviceAccount)
}

// ValidateCreate checks a create request without side effects: the
// amount precondition plus balance cover on the service's own account.
func (m *Manager) ValidateCreate(
	ctx context.Context,
	req CreateRequest,
) error {
	if req.Amount < m.minimumStake+m.transferFee {
		return apierror.Validation(
			"amount %d below minimum stake %d plus fee %d",
			req.Amount,
			m.minimumStake,
			m.transferFee,
		)
	}
	balance, err := m.ledger.BalanceOf(ctx, m.serviceAccount)
	if err != nil {
		return err
	}
	if balance < req.Amount {
		return apierror.Validation(
			"service balance %d does not cover amount %d",
			balance,
			req.Amount,
		)
	}
	return nil
}
