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

var ErrProposalChainNotFound = errors.New("proposal chain not found")

// ProposalChain is an ordered, resumable sequence of governance proposals
// submitted one at a time on behalf of one stake position. Entry indexes
// form a contiguous range 0..N-1 and CurrentIndex only ever increases.
type ProposalChain struct {
	ID                 uint         `gorm:"primarykey"`
	PositionExternalID uint64       `gorm:"index;not null"`
	CurrentIndex       uint64       `gorm:"not null"`
	ActiveProposalID   *uint64      `gorm:"index"`
	Entries            []ChainEntry `gorm:"foreignKey:ChainID"`
	CreatedAt          int64        `gorm:"autoCreateTime:nano"`
}

// TableName returns the table name
func (ProposalChain) TableName() string {
	return "proposal_chain"
}

// Entry returns the chain entry at the given index, or nil.
func (c *ProposalChain) Entry(index uint64) *ChainEntry {
	for i := range c.Entries {
		if c.Entries[i].Index == index {
			return &c.Entries[i]
		}
	}
	return nil
}

// Completed returns true once the final entry has been submitted.
func (c *ProposalChain) Completed() bool {
	if len(c.Entries) == 0 {
		return true
	}
	last := c.Entry(uint64(len(c.Entries)) - 1)
	return last != nil &&
		c.CurrentIndex == uint64(len(c.Entries))-1 &&
		last.ProposalID != nil
}

// ChainEntry is one proposal within a chain. ProposalID is set exactly
// once, when the entry is submitted to the external service.
type ChainEntry struct {
	ID           uint    `gorm:"primarykey"`
	ChainID      uint    `gorm:"uniqueIndex:idx_chain_entry,priority:1;not null"`
	Index        uint64  `gorm:"column:idx;uniqueIndex:idx_chain_entry,priority:2;not null"`
	ProposalSpec []byte  `gorm:"not null"` // caller-supplied, opaque
	ProposalID   *uint64 `gorm:"index"`
	CreatedAt    int64   `gorm:"autoCreateTime:nano"`
}

// TableName returns the table name
func (ChainEntry) TableName() string {
	return "chain_entry"
}
