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

package models

import "errors"

var ErrStakePositionNotFound = errors.New("stake position not found")

// DisbursementTarget is one destination of a maturity disbursement run.
// Percentage is the share of accrued maturity to disburse, 1-100.
type DisbursementTarget struct {
	Account    string `json:"account"`
	Subaccount []byte `json:"subaccount,omitempty"`
	Percentage uint32 `json:"percentage"`
}

// StakePosition is the local reference to a treasury-funded stake position.
// The authoritative position state lives in the external governance
// service; locally we only track what is needed to fund, claim, and
// command it.
//
// The maturity disbursement schedule persists its absolute next-run
// deadline so live timers can be re-armed after a process restart.
type StakePosition struct {
	ID                 uint                 `gorm:"primarykey"`
	FundingBlockHeight uint64               `gorm:"not null"`
	Address            []byte               `gorm:"uniqueIndex;size:32;not null"`
	SequenceNumber     uint64               `gorm:"uniqueIndex;not null"`
	ExternalID         *uint64              `gorm:"index"`
	ParentAddress      []byte               `gorm:"index;size:32"`
	ScheduleIntervalNs *int64               // nil means no schedule
	ScheduleTargets    []DisbursementTarget `gorm:"serializer:json"`
	NextDisburseNanos  *int64
	LastDisburseNanos  *int64
	CreatedAt          int64 `gorm:"autoCreateTime:nano"`
}

// TableName returns the table name
func (StakePosition) TableName() string {
	return "stake_position"
}

// Claimed returns true once the external service has bound the funded
// address to an identifier.
func (p *StakePosition) Claimed() bool {
	return p.ExternalID != nil
}

// HasSchedule returns true if a maturity disbursement schedule is live.
func (p *StakePosition) HasSchedule() bool {
	return p.ScheduleIntervalNs != nil
}
