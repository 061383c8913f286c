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

// PositionCreatedEventType is the event type for newly funded stake positions
const PositionCreatedEventType = EventType("position.created")

// PositionCreatedEvent is emitted after a stake position has been funded and
// stored locally. ExternalID is nil when the follow-up claim against the
// governance service did not complete.
type PositionCreatedEvent struct {
	// StorageID is the local storage key for the position
	StorageID uint
	// Address is the derived funding address
	Address []byte
	// SequenceNumber is the derivation sequence used for the address
	SequenceNumber uint64
	// BlockHeight is the ledger block height of the funding transfer
	BlockHeight uint64
	// ExternalID is the governance-assigned identifier, if claimed
	ExternalID *uint64
}

// PositionClaimedEventType is the event type for claim or refresh completions
const PositionClaimedEventType = EventType("position.claimed")

// PositionClaimedEvent is emitted when a position acquires or refreshes its
// governance-assigned identifier.
type PositionClaimedEvent struct {
	// StorageID is the local storage key for the position
	StorageID uint
	// ExternalID is the governance-assigned identifier
	ExternalID uint64
}

// PositionRemovedEventType is the event type for administrative removals
const PositionRemovedEventType = EventType("position.removed")

// PositionRemovedEvent is emitted when a position reference is removed from
// local storage. The position itself lives on in the governance service.
type PositionRemovedEvent struct {
	// StorageID is the local storage key the position held
	StorageID uint
	// ExternalID is the governance-assigned identifier, if it was claimed
	ExternalID *uint64
}

// DisbursementEventType is the event type for maturity disbursements
const DisbursementEventType = EventType("position.disbursed")

// DisbursementEvent is emitted after a maturity disbursement run against a
// position, scheduled or manual.
type DisbursementEvent struct {
	// StorageID is the local storage key for the position
	StorageID uint
	// ExternalID is the governance-assigned identifier
	ExternalID uint64
	// Targets is the number of disbursement targets paid
	Targets int
	// Scheduled reports whether the run was timer-driven
	Scheduled bool
}
