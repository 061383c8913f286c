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

package governance

import (
	"encoding/json"
	"errors"
)

// PositionRef identifies a stake position to the governance service,
// either by its externally assigned identifier or by its funding address.
type PositionRef struct {
	ExternalID *uint64 `json:"external_id,omitempty"`
	Address    []byte  `json:"address,omitempty"`
}

// RefByExternalID builds a PositionRef from an external identifier
func RefByExternalID(externalID uint64) PositionRef {
	return PositionRef{ExternalID: &externalID}
}

// RefByAddress builds a PositionRef from a funding address
func RefByAddress(address []byte) PositionRef {
	return PositionRef{Address: address}
}

// Command is the closed set of management commands accepted by the
// governance service. Exactly one variant must be non-nil. Per-variant
// argument structs are separate from the union so new commands are
// additive.
type Command struct {
	ClaimOrRefresh   *ClaimOrRefreshArgs   `json:"claim_or_refresh,omitempty"`
	Configure        *ConfigureArgs        `json:"configure,omitempty"`
	Spawn            *SpawnArgs            `json:"spawn,omitempty"`
	MakeProposal     *MakeProposalArgs     `json:"make_proposal,omitempty"`
	RegisterVote     *RegisterVoteArgs     `json:"register_vote,omitempty"`
	Disburse         *DisburseArgs         `json:"disburse,omitempty"`
	Follow           *FollowArgs           `json:"follow,omitempty"`
	DisburseMaturity *DisburseMaturityArgs `json:"disburse_maturity,omitempty"`
}

// Validate checks that exactly one command variant is set
func (c *Command) Validate() error {
	count := 0
	if c.ClaimOrRefresh != nil {
		count++
	}
	if c.Configure != nil {
		count++
	}
	if c.Spawn != nil {
		count++
	}
	if c.MakeProposal != nil {
		count++
	}
	if c.RegisterVote != nil {
		count++
	}
	if c.Disburse != nil {
		count++
	}
	if c.Follow != nil {
		count++
	}
	if c.DisburseMaturity != nil {
		count++
	}
	if count != 1 {
		return errors.New("command must carry exactly one variant")
	}
	return nil
}

// ClaimOrRefreshArgs replays the funding memo so the governance service
// can bind or re-sync the position at the derived address.
type ClaimOrRefreshArgs struct {
	Memo uint64 `json:"memo"`
}

// ConfigureArgs is the closed set of configuration operations. Exactly one
// variant must be non-nil.
type ConfigureArgs struct {
	IncreaseDissolveDelay *IncreaseDissolveDelayArgs `json:"increase_dissolve_delay,omitempty"`
	SetAutoStake          *SetAutoStakeArgs          `json:"set_auto_stake,omitempty"`
	StartDissolving       *StartDissolvingArgs       `json:"start_dissolving,omitempty"`
	StopDissolving        *StopDissolvingArgs        `json:"stop_dissolving,omitempty"`
	SetVisibility         *SetVisibilityArgs         `json:"set_visibility,omitempty"`
}

// Validate checks that exactly one configure variant is set
func (c *ConfigureArgs) Validate() error {
	count := 0
	if c.IncreaseDissolveDelay != nil {
		count++
	}
	if c.SetAutoStake != nil {
		count++
	}
	if c.StartDissolving != nil {
		count++
	}
	if c.StopDissolving != nil {
		count++
	}
	if c.SetVisibility != nil {
		count++
	}
	if count != 1 {
		return errors.New("configure must carry exactly one variant")
	}
	return nil
}

type IncreaseDissolveDelayArgs struct {
	AdditionalSeconds uint32 `json:"additional_seconds"`
}

type SetAutoStakeArgs struct {
	Enabled bool `json:"enabled"`
}

type StartDissolvingArgs struct{}

type StopDissolvingArgs struct{}

type SetVisibilityArgs struct {
	Public bool `json:"public"`
}

// SpawnArgs splits accrued maturity into a new position funded at the
// address derived from Nonce.
type SpawnArgs struct {
	Nonce      uint64 `json:"nonce"`
	Percentage uint32 `json:"percentage"`
}

// MakeProposalArgs submits a governance proposal. The spec content is
// opaque to this service and passed through verbatim.
type MakeProposalArgs struct {
	Spec json.RawMessage `json:"spec"`
}

// VoteChoice is a ballot option for RegisterVote
type VoteChoice int32

const (
	VoteUnspecified VoteChoice = 0
	VoteAdopt       VoteChoice = 1
	VoteReject      VoteChoice = 2
)

type RegisterVoteArgs struct {
	ProposalID uint64     `json:"proposal_id"`
	Choice     VoteChoice `json:"choice"`
}

// DisburseDestination is an account, with an optional sub-address, that
// receives disbursed funds.
type DisburseDestination struct {
	Account    string `json:"account"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

// DisburseArgs withdraws stake to the destination. A nil Amount disburses
// the full stake.
type DisburseArgs struct {
	Destination DisburseDestination `json:"destination"`
	Amount      *uint64             `json:"amount,omitempty"`
}

// FollowArgs sets delegation for a single topic
type FollowArgs struct {
	Topic     int32    `json:"topic"`
	Followees []uint64 `json:"followees"`
}

// DisburseMaturityArgs pays out a percentage of accrued maturity to the
// destination.
type DisburseMaturityArgs struct {
	Destination DisburseDestination `json:"destination"`
	Percentage  uint32              `json:"percentage"`
}

// CommandResult mirrors the command union. The variant matching the
// submitted command is populated on success; Error is populated instead
// when the service rejects the command.
type CommandResult struct {
	ClaimOrRefresh   *ClaimOrRefreshResult   `json:"claim_or_refresh,omitempty"`
	Configure        *ConfigureResult        `json:"configure,omitempty"`
	Spawn            *SpawnResult            `json:"spawn,omitempty"`
	MakeProposal     *MakeProposalResult     `json:"make_proposal,omitempty"`
	RegisterVote     *RegisterVoteResult     `json:"register_vote,omitempty"`
	Disburse         *DisburseResult         `json:"disburse,omitempty"`
	Follow           *FollowResult           `json:"follow,omitempty"`
	DisburseMaturity *DisburseMaturityResult `json:"disburse_maturity,omitempty"`
	Error            *ServiceError           `json:"error,omitempty"`
}

type ClaimOrRefreshResult struct {
	ExternalID uint64 `json:"external_id"`
}

type ConfigureResult struct{}

type SpawnResult struct {
	CreatedExternalID uint64 `json:"created_external_id"`
}

type MakeProposalResult struct {
	ProposalID uint64 `json:"proposal_id"`
}

type RegisterVoteResult struct{}

type DisburseResult struct {
	BlockHeight uint64 `json:"block_height"`
}

type FollowResult struct{}

type DisburseMaturityResult struct {
	AmountDisbursed uint64 `json:"amount_disbursed"`
}

// ServiceError is the structured error payload returned by the governance
// service. The message is preserved verbatim for callers.
type ServiceError struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// PositionSnapshot is the governance service's full view of a stake
// position.
type PositionSnapshot struct {
	ExternalID           uint64 `json:"external_id"`
	Address              []byte `json:"address"`
	StakeAmount          uint64 `json:"stake_amount"`
	MaturityAmount       uint64 `json:"maturity_amount"`
	DissolveDelaySeconds uint64 `json:"dissolve_delay_seconds"`
	State                string `json:"state"`
	AutoStake            bool   `json:"auto_stake"`
	CreatedTimestamp     int64  `json:"created_timestamp"`
}

// ProposalSnapshot is the governance service's view of a proposal. A
// positive ExecutedTimestamp means the proposal has been executed.
type ProposalSnapshot struct {
	ProposalID        uint64 `json:"proposal_id"`
	Status            string `json:"status"`
	ExecutedTimestamp int64  `json:"executed_timestamp"`
	FailedTimestamp   int64  `json:"failed_timestamp"`
}

// Executed reports whether the proposal has a confirmed execution
func (p *ProposalSnapshot) Executed() bool {
	return p.ExecutedTimestamp > 0
}
