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

package database

import (
	"errors"

	"github.com/treasurykit/stakewarden/database/models"
	"gorm.io/gorm"
)

// AddProposalChain inserts a chain together with all of its entries in a
// single transaction and populates the storage keys.
func (d *Database) AddProposalChain(chain *models.ProposalChain) error {
	return d.meta.Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(chain); result.Error != nil {
			return result.Error
		}
		return nil
	})
}

// ProposalChain retrieves a chain by storage key with its entries ordered
// by index.
func (d *Database) ProposalChain(id uint) (*models.ProposalChain, error) {
	var chain models.ProposalChain
	if result := d.meta.Preload(
		"Entries",
		func(db *gorm.DB) *gorm.DB {
			return db.Order("chain_entry.idx")
		},
	).First(&chain, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrProposalChainNotFound
		}
		return nil, result.Error
	}
	return &chain, nil
}

// ProposalChains retrieves all chains with entries, ordered by storage key.
func (d *Database) ProposalChains() ([]*models.ProposalChain, error) {
	var chains []*models.ProposalChain
	if result := d.meta.Preload(
		"Entries",
		func(db *gorm.DB) *gorm.DB {
			return db.Order("chain_entry.idx")
		},
	).Order("id").Find(&chains); result.Error != nil {
		return nil, result.Error
	}
	return chains, nil
}

// UpdateChainProgress records a submitted entry in one transaction: the
// entry's proposal id, the chain's active proposal id, and the new current
// index.
func (d *Database) UpdateChainProgress(
	chainID uint,
	entryIndex uint64,
	proposalID uint64,
) error {
	return d.meta.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ChainEntry{}).
			Where("chain_id = ? AND idx = ?", chainID, entryIndex).
			Update("proposal_id", proposalID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrProposalChainNotFound
		}
		result = tx.Model(&models.ProposalChain{}).
			Where("id = ?", chainID).
			Updates(map[string]any{
				"active_proposal_id": proposalID,
				"current_index":      entryIndex,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrProposalChainNotFound
		}
		return nil
	})
}
