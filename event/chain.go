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

package event

// ChainAdvancedEventType is the event type for proposal chain progress
const ChainAdvancedEventType = EventType("chain.advanced")

// ChainAdvancedEvent is emitted when a chain entry is submitted as a
// proposal through the governance service.
type ChainAdvancedEvent struct {
	// ChainID is the local storage key for the chain
	ChainID uint
	// EntryIndex is the index of the entry that was submitted
	EntryIndex uint64
	// ProposalID is the governance-assigned proposal identifier
	ProposalID uint64
}

// ChainCompletedEventType is the event type for exhausted proposal chains
const ChainCompletedEventType = EventType("chain.completed")

// ChainCompletedEvent is emitted when an advance request finds no further
// entries to submit.
type ChainCompletedEvent struct {
	// ChainID is the local storage key for the chain
	ChainID uint
	// Entries is the total number of entries the chain submitted
	Entries int
}
