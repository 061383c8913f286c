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

package position_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/database/models"
	"github.com/treasurykit/stakewarden/event"
	"github.com/treasurykit/stakewarden/governance"
	"github.com/treasurykit/stakewarden/ledgersvc"
	"github.com/treasurykit/stakewarden/position"
	"github.com/treasurykit/stakewarden/scheduler"
	"github.com/treasurykit/stakewarden/subaccount"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMinimumStake = 100_000_000
	testTransferFee  = 10_000
	testSpawnLimit   = 50_000_000
)

var testOwner = []byte("treasury-owner")

type manageCall struct {
	ref governance.PositionRef
	cmd governance.Command
}

type fakeGovernance struct {
	mu          sync.Mutex
	manageCalls []manageCall
	manageFunc  func(governance.PositionRef, governance.Command) (*governance.CommandResult, error)
	snapshot    *governance.PositionSnapshot
	proposal    *governance.ProposalSnapshot
}

func (f *fakeGovernance) ManageStakePosition(
	_ context.Context,
	ref governance.PositionRef,
	cmd governance.Command,
) (*governance.CommandResult, error) {
	f.mu.Lock()
	f.manageCalls = append(f.manageCalls, manageCall{ref: ref, cmd: cmd})
	f.mu.Unlock()
	if f.manageFunc != nil {
		return f.manageFunc(ref, cmd)
	}
	// Default: succeed with the matching result variant
	result := &governance.CommandResult{}
	switch {
	case cmd.ClaimOrRefresh != nil:
		result.ClaimOrRefresh = &governance.ClaimOrRefreshResult{
			ExternalID: 7000 + cmd.ClaimOrRefresh.Memo,
		}
	case cmd.Configure != nil:
		result.Configure = &governance.ConfigureResult{}
	case cmd.Spawn != nil:
		result.Spawn = &governance.SpawnResult{
			CreatedExternalID: 8000 + cmd.Spawn.Nonce,
		}
	case cmd.MakeProposal != nil:
		result.MakeProposal = &governance.MakeProposalResult{ProposalID: 501}
	case cmd.RegisterVote != nil:
		result.RegisterVote = &governance.RegisterVoteResult{}
	case cmd.Disburse != nil:
		result.Disburse = &governance.DisburseResult{BlockHeight: 4321}
	case cmd.Follow != nil:
		result.Follow = &governance.FollowResult{}
	case cmd.DisburseMaturity != nil:
		result.DisburseMaturity = &governance.DisburseMaturityResult{
			AmountDisbursed: 1000,
		}
	}
	return result, nil
}

func (f *fakeGovernance) GetFullPosition(
	_ context.Context,
	externalID uint64,
) (*governance.PositionSnapshot, error) {
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	return &governance.PositionSnapshot{
		ExternalID:     externalID,
		StakeAmount:    testMinimumStake,
		MaturityAmount: testSpawnLimit,
	}, nil
}

func (f *fakeGovernance) GetProposal(
	_ context.Context,
	proposalID uint64,
) (*governance.ProposalSnapshot, error) {
	if f.proposal != nil {
		return f.proposal, nil
	}
	return &governance.ProposalSnapshot{ProposalID: proposalID}, nil
}

func (f *fakeGovernance) calls() []manageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]manageCall{}, f.manageCalls...)
}

type fakeLedger struct {
	mu            sync.Mutex
	transferCalls []ledgersvc.TransferRequest
	transferErr   error
	transferFunc  func(ledgersvc.TransferRequest) (uint64, error)
	balance       uint64
}

func (f *fakeLedger) Transfer(
	_ context.Context,
	req ledgersvc.TransferRequest,
) (uint64, error) {
	f.mu.Lock()
	f.transferCalls = append(f.transferCalls, req)
	f.mu.Unlock()
	if f.transferFunc != nil {
		return f.transferFunc(req)
	}
	if f.transferErr != nil {
		return 0, f.transferErr
	}
	return 1234, nil
}

func (f *fakeLedger) BalanceOf(
	_ context.Context,
	_ string,
) (uint64, error) {
	return f.balance, nil
}

func (f *fakeLedger) calls() []ledgersvc.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledgersvc.TransferRequest{}, f.transferCalls...)
}

type testEnv struct {
	manager *position.Manager
	db      *database.Database
	sched   *scheduler.Scheduler
	bus     *event.EventBus
	gov     *fakeGovernance
	ledger  *fakeLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sched := scheduler.New(nil)
	t.Cleanup(sched.Stop)
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	gov := &fakeGovernance{}
	ledger := &fakeLedger{balance: 10 * testMinimumStake}
	manager, err := position.New(position.Config{
		Database:               db,
		Scheduler:              sched,
		EventBus:               bus,
		Governance:             gov,
		Ledger:                 ledger,
		Owner:                  testOwner,
		GovernanceAccount:      "gov-svc-1",
		TreasuryAccount:        "treasury-main",
		ServiceAccount:         "stakewarden-svc",
		MinimumStake:           testMinimumStake,
		TransferFee:            testTransferFee,
		SpawnMaturityThreshold: testSpawnLimit,
	})
	require.NoError(t, err)
	return &testEnv{
		manager: manager,
		db:      db,
		sched:   sched,
		bus:     bus,
		gov:     gov,
		ledger:  ledger,
	}
}

func lookupByID(id uint) position.Lookup {
	return position.Lookup{StorageID: &id}
}

func TestCreateBelowMinimumPerformsNoExternalCalls(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake, // below minimum plus fee
	})
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
	assert.Empty(t, env.ledger.calls())
	assert.Empty(t, env.gov.calls())
}

func TestCreateFundsClaimsAndConfigures(t *testing.T) {
	env := newTestEnv(t)
	dissolveDelay := uint32(15_778_800)
	autoStake := true
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount:               testMinimumStake + testTransferFee,
		DissolveDelaySeconds: &dissolveDelay,
		AutoStake:            &autoStake,
	})
	require.NoError(t, err)

	// The funding transfer carries the derived subaccount and the
	// sequence-number memo
	transfers := env.ledger.calls()
	require.Len(t, transfers, 1)
	expectedAddr := subaccount.Derive(testOwner, 1)
	assert.Equal(t, expectedAddr[:], transfers[0].ToSubaccount)
	assert.Equal(t, subaccount.Memo(1), transfers[0].Memo)
	assert.Equal(t, uint64(testMinimumStake), transfers[0].Amount)
	assert.Equal(t, uint64(testTransferFee), transfers[0].Fee)

	require.NotNil(t, resp.ExternalID)
	assert.Equal(t, uint64(7001), *resp.ExternalID)
	require.NotNil(t, resp.DissolveDelayApplied)
	assert.True(t, *resp.DissolveDelayApplied)
	require.NotNil(t, resp.AutoStakeApplied)
	assert.True(t, *resp.AutoStakeApplied)

	// Claim plus two configure follow-ups
	calls := env.gov.calls()
	require.Len(t, calls, 3)
	assert.NotNil(t, calls[0].cmd.ClaimOrRefresh)
	assert.NotNil(t, calls[1].cmd.Configure.IncreaseDissolveDelay)
	assert.NotNil(t, calls[2].cmd.Configure.SetAutoStake)

	stored, err := env.db.StakePosition(resp.StorageID)
	require.NoError(t, err)
	assert.True(t, stored.Claimed())
	assert.Equal(t, uint64(1234), stored.FundingBlockHeight)
}

func TestConcurrentCreatesUseDistinctSequences(t *testing.T) {
	env := newTestEnv(t)
	// Hold both funding transfers in flight at once so the creates
	// overlap on sequence allocation
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	env.ledger.transferFunc = func(_ ledgersvc.TransferRequest) (uint64, error) {
		entered <- struct{}{}
		<-release
		return 1234, nil
	}

	results := make(chan *position.CreateResponse, 2)
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			resp, err := env.manager.Create(
				context.Background(),
				position.CreateRequest{
					Amount: testMinimumStake + testTransferFee,
				},
			)
			results <- resp
			errs <- err
		}()
	}
	<-entered
	<-entered
	close(release)

	first := <-results
	require.NoError(t, <-errs)
	second := <-results
	require.NoError(t, <-errs)

	assert.NotEqual(t, first.SequenceNumber, second.SequenceNumber)
	assert.NotEqual(t, first.Address, second.Address)
	transfers := env.ledger.calls()
	require.Len(t, transfers, 2)
	assert.NotEqual(t, transfers[0].Memo, transfers[1].Memo)
	assert.NotEqual(t, transfers[0].ToSubaccount, transfers[1].ToSubaccount)
}

func TestConcurrentSpawnsUseDistinctNonces(t *testing.T) {
	env := newTestEnv(t)
	parents := make([]*position.CreateResponse, 2)
	for i := range parents {
		resp, err := env.manager.Create(context.Background(), position.CreateRequest{
			Amount: testMinimumStake + testTransferFee,
		})
		require.NoError(t, err)
		parents[i] = resp
	}

	// Hold both spawn commands in flight at once; the parents hold
	// different entity locks so only sequence allocation is shared
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	env.gov.manageFunc = func(
		_ governance.PositionRef,
		cmd governance.Command,
	) (*governance.CommandResult, error) {
		entered <- struct{}{}
		<-release
		return &governance.CommandResult{
			Spawn: &governance.SpawnResult{
				CreatedExternalID: 8000 + cmd.Spawn.Nonce,
			},
		}, nil
	}

	results := make(chan *position.SpawnResponse, 2)
	errs := make(chan error, 2)
	for _, parent := range parents {
		go func() {
			child, err := env.manager.Spawn(
				context.Background(),
				lookupByID(parent.StorageID),
				position.SpawnRequest{},
			)
			results <- child
			errs <- err
		}()
	}
	<-entered
	<-entered
	close(release)

	first := <-results
	require.NoError(t, <-errs)
	second := <-results
	require.NoError(t, <-errs)

	assert.NotEqual(t, first.SequenceNumber, second.SequenceNumber)
	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.ExternalID, second.ExternalID)
}

func TestCreateSurvivesClaimFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gov.manageFunc = func(
		_ governance.PositionRef,
		_ governance.Command,
	) (*governance.CommandResult, error) {
		return nil, apierror.ExternalService("governance unavailable")
	}
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.ExternalID)
	stored, err := env.db.StakePosition(resp.StorageID)
	require.NoError(t, err)
	assert.False(t, stored.Claimed())
}

func TestCreateReportsFollowUpFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gov.manageFunc = func(
		_ governance.PositionRef,
		cmd governance.Command,
	) (*governance.CommandResult, error) {
		if cmd.ClaimOrRefresh != nil {
			return &governance.CommandResult{
				ClaimOrRefresh: &governance.ClaimOrRefreshResult{
					ExternalID: 7001,
				},
			}, nil
		}
		return nil, apierror.ExternalService("configure rejected")
	}
	dissolveDelay := uint32(3600)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount:               testMinimumStake + testTransferFee,
		DissolveDelaySeconds: &dissolveDelay,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.ExternalID)
	require.NotNil(t, resp.DissolveDelayApplied)
	assert.False(t, *resp.DissolveDelayApplied)
	assert.Nil(t, resp.AutoStakeApplied)
}

func TestClaimOrRefreshNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.ClaimOrRefresh(
		context.Background(),
		lookupByID(999),
	)
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestTopUpDoesNotRefresh(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	govCalls := len(env.gov.calls())

	blockHeight, err := env.manager.TopUp(
		context.Background(),
		lookupByID(resp.StorageID),
		1_000_000,
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), blockHeight)
	// A top-up issues no governance calls
	assert.Len(t, env.gov.calls(), govCalls)
	transfers := env.ledger.calls()
	require.Len(t, transfers, 2)
	assert.Equal(t, resp.Address, transfers[1].ToSubaccount)
	assert.Equal(t, subaccount.Memo(resp.SequenceNumber), transfers[1].Memo)
}

func TestReconfigureRequiresClaim(t *testing.T) {
	env := newTestEnv(t)
	env.gov.manageFunc = func(
		_ governance.PositionRef,
		_ governance.Command,
	) (*governance.CommandResult, error) {
		return nil, apierror.ExternalService("governance unavailable")
	}
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	require.Nil(t, resp.ExternalID)

	env.gov.manageFunc = nil
	err = env.manager.Reconfigure(
		context.Background(),
		lookupByID(resp.StorageID),
		governance.ConfigureArgs{
			StartDissolving: &governance.StartDissolvingArgs{},
		},
	)
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
	assert.Contains(t, err.Error(), "not claimed")
}

func TestSpawnBelowThresholdIssuesNoSpawnCommand(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	env.gov.snapshot = &governance.PositionSnapshot{
		ExternalID:     *resp.ExternalID,
		MaturityAmount: testSpawnLimit - 1,
	}
	callsBefore := len(env.gov.calls())
	_, err = env.manager.Spawn(
		context.Background(),
		lookupByID(resp.StorageID),
		position.SpawnRequest{},
	)
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
	assert.Len(t, env.gov.calls(), callsBefore)
}

func TestSpawnCreatesChildWithParentAddress(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)

	child, err := env.manager.Spawn(
		context.Background(),
		lookupByID(resp.StorageID),
		position.SpawnRequest{StartDissolving: true},
	)
	require.NoError(t, err)
	assert.Equal(t, resp.Address, child.ParentAddress)
	assert.Equal(t, uint64(2), child.SequenceNumber)
	expectedAddr := subaccount.Derive(testOwner, 2)
	assert.Equal(t, expectedAddr[:], child.Address)
	assert.Equal(t, uint64(8002), child.ExternalID)

	stored, err := env.db.StakePositionByAddress(child.Address)
	require.NoError(t, err)
	assert.Equal(t, resp.Address, stored.ParentAddress)
	assert.True(t, stored.Claimed())

	// The last governance call starts dissolving the child
	calls := env.gov.calls()
	last := calls[len(calls)-1]
	require.NotNil(t, last.cmd.Configure)
	assert.NotNil(t, last.cmd.Configure.StartDissolving)
	require.NotNil(t, last.ref.ExternalID)
	assert.Equal(t, uint64(8002), *last.ref.ExternalID)
}

func TestVoteAndDisburse(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)

	err = env.manager.Vote(
		context.Background(),
		lookupByID(resp.StorageID),
		501,
		governance.VoteAdopt,
	)
	require.NoError(t, err)

	blockHeight, err := env.manager.Disburse(
		context.Background(),
		lookupByID(resp.StorageID),
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(4321), blockHeight)

	calls := env.gov.calls()
	disburse := calls[len(calls)-1]
	require.NotNil(t, disburse.cmd.Disburse)
	assert.Equal(
		t,
		"treasury-main",
		disburse.cmd.Disburse.Destination.Account,
	)

	// The reference row survives disbursement
	_, err = env.db.StakePosition(resp.StorageID)
	require.NoError(t, err)
}

func TestSetFollowingOneCallPerTopic(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	callsBefore := len(env.gov.calls())

	err = env.manager.SetFollowing(
		context.Background(),
		lookupByID(resp.StorageID),
		[]position.FollowEntry{
			{Topic: 1, Followees: []uint64{10, 11}},
			{Topic: 4, Followees: []uint64{12}},
		},
	)
	require.NoError(t, err)
	calls := env.gov.calls()
	require.Len(t, calls, callsBefore+2)
	assert.Equal(t, int32(1), calls[callsBefore].cmd.Follow.Topic)
	assert.Equal(t, int32(4), calls[callsBefore+1].cmd.Follow.Topic)
}

func TestMaturityScheduleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)

	interval := uint64(3600)
	err = env.manager.SetMaturitySchedule(
		context.Background(),
		lookupByID(resp.StorageID),
		position.ScheduleRequest{IntervalSeconds: &interval},
	)
	require.NoError(t, err)
	// Exactly one timer entry for the position
	assert.Len(t, env.sched.Keys(), 1)

	stored, err := env.db.StakePosition(resp.StorageID)
	require.NoError(t, err)
	require.True(t, stored.HasSchedule())
	// Treasury-target shorthand fills in the default target
	require.Len(t, stored.ScheduleTargets, 1)
	assert.Equal(t, "treasury-main", stored.ScheduleTargets[0].Account)
	assert.Equal(t, uint32(100), stored.ScheduleTargets[0].Percentage)
	require.NotNil(t, stored.NextDisburseNanos)
	assert.Greater(t, *stored.NextDisburseNanos, time.Now().UnixNano())

	// Clearing removes both the schedule and the timer
	err = env.manager.SetMaturitySchedule(
		context.Background(),
		lookupByID(resp.StorageID),
		position.ScheduleRequest{},
	)
	require.NoError(t, err)
	assert.Empty(t, env.sched.Keys())
	stored, err = env.db.StakePosition(resp.StorageID)
	require.NoError(t, err)
	assert.False(t, stored.HasSchedule())
}

func TestScheduledDisbursementRun(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	interval := uint64(3600)
	err = env.manager.SetMaturitySchedule(
		context.Background(),
		lookupByID(resp.StorageID),
		position.ScheduleRequest{
			IntervalSeconds: &interval,
			Targets: []models.DisbursementTarget{
				{Account: "treasury-main", Percentage: 60},
				{Account: "ops-fund", Percentage: 40},
			},
		},
	)
	require.NoError(t, err)
	callsBefore := len(env.gov.calls())

	env.manager.RunScheduledDisbursement(resp.Address)

	calls := env.gov.calls()
	require.Len(t, calls, callsBefore+2)
	assert.NotNil(t, calls[callsBefore].cmd.DisburseMaturity)
	assert.Equal(
		t,
		uint32(60),
		calls[callsBefore].cmd.DisburseMaturity.Percentage,
	)
	assert.Equal(
		t,
		"ops-fund",
		calls[callsBefore+1].cmd.DisburseMaturity.Destination.Account,
	)

	stored, err := env.db.StakePosition(resp.StorageID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastDisburseNanos)
	assert.Greater(t, *stored.NextDisburseNanos, *stored.LastDisburseNanos)
}

func TestRearmSchedules(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	interval := uint64(3600)
	err = env.manager.SetMaturitySchedule(
		context.Background(),
		lookupByID(resp.StorageID),
		position.ScheduleRequest{IntervalSeconds: &interval},
	)
	require.NoError(t, err)

	// Simulate a restart: a fresh scheduler with no live timers
	env.sched.Stop()
	freshSched := scheduler.New(nil)
	t.Cleanup(freshSched.Stop)
	manager, err := position.New(position.Config{
		Database:               env.db,
		Scheduler:              freshSched,
		Governance:             env.gov,
		Ledger:                 env.ledger,
		Owner:                  testOwner,
		GovernanceAccount:      "gov-svc-1",
		TreasuryAccount:        "treasury-main",
		ServiceAccount:         "stakewarden-svc",
		MinimumStake:           testMinimumStake,
		TransferFee:            testTransferFee,
		SpawnMaturityThreshold: testSpawnLimit,
	})
	require.NoError(t, err)

	rearmed, err := manager.RearmSchedules()
	require.NoError(t, err)
	assert.Equal(t, 1, rearmed)
	assert.Len(t, freshSched.Keys(), 1)
}

func TestRemoveClearsScheduleTimer(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	interval := uint64(3600)
	err = env.manager.SetMaturitySchedule(
		context.Background(),
		lookupByID(resp.StorageID),
		position.ScheduleRequest{IntervalSeconds: &interval},
	)
	require.NoError(t, err)
	require.Len(t, env.sched.Keys(), 1)

	err = env.manager.Remove(context.Background(), lookupByID(resp.StorageID))
	require.NoError(t, err)
	assert.Empty(t, env.sched.Keys())
	_, err = env.db.StakePosition(resp.StorageID)
	require.Error(t, err)
}

func TestValidateCreate(t *testing.T) {
	env := newTestEnv(t)
	err := env.manager.ValidateCreate(context.Background(), position.CreateRequest{
		Amount: 1,
	})
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))

	env.ledger.balance = testMinimumStake
	err = env.manager.ValidateCreate(context.Background(), position.CreateRequest{
		Amount: 2 * testMinimumStake,
	})
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
	assert.Contains(t, err.Error(), "does not cover")

	env.ledger.balance = 10 * testMinimumStake
	err = env.manager.ValidateCreate(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)
	// Validation performs no transfers and no governance calls
	assert.Empty(t, env.ledger.calls())
	assert.Empty(t, env.gov.calls())
}

func TestGetFullUnclaimedSkipsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.gov.manageFunc = func(
		_ governance.PositionRef,
		_ governance.Command,
	) (*governance.CommandResult, error) {
		return nil, apierror.ExternalService("governance unavailable")
	}
	resp, err := env.manager.Create(context.Background(), position.CreateRequest{
		Amount: testMinimumStake + testTransferFee,
	})
	require.NoError(t, err)

	full, err := env.manager.GetFull(
		context.Background(),
		lookupByID(resp.StorageID),
	)
	require.NoError(t, err)
	assert.Nil(t, full.Snapshot)
	assert.Equal(t, resp.Address, full.Reference.Address)
}
