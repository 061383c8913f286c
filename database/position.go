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

// AddStakePosition inserts a new stake position reference and populates
// its storage key.
func (d *Database) AddStakePosition(position *models.StakePosition) error {
	if result := d.meta.Create(position); result.Error != nil {
		return result.Error
	}
	return nil
}

// UpdateStakePosition writes back all fields of an existing reference.
func (d *Database) UpdateStakePosition(position *models.StakePosition) error {
	if result := d.meta.Save(position); result.Error != nil {
		return result.Error
	}
	return nil
}

// StakePosition retrieves a reference by its storage key.
func (d *Database) StakePosition(id uint) (*models.StakePosition, error) {
	var position models.StakePosition
	if result := d.meta.First(&position, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrStakePositionNotFound
		}
		return nil, result.Error
	}
	return &position, nil
}

// StakePositionByAddress retrieves a reference by its derived sub-address.
func (d *Database) StakePositionByAddress(
	address []byte,
) (*models.StakePosition, error) {
	var position models.StakePosition
	if result := d.meta.Where(
		"address = ?",
		address,
	).First(&position); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrStakePositionNotFound
		}
		return nil, result.Error
	}
	return &position, nil
}

// StakePositionByExternalID retrieves a reference by the identifier the
// external service assigned at claim time.
func (d *Database) StakePositionByExternalID(
	externalID uint64,
) (*models.StakePosition, error) {
	var position models.StakePosition
	if result := d.meta.Where(
		"external_id = ?",
		externalID,
	).First(&position); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrStakePositionNotFound
		}
		return nil, result.Error
	}
	return &position, nil
}

// StakePositions retrieves all references ordered by storage key.
func (d *Database) StakePositions() ([]*models.StakePosition, error) {
	var positions []*models.StakePosition
	if result := d.meta.Order("id").Find(&positions); result.Error != nil {
		return nil, result.Error
	}
	return positions, nil
}

// ScheduledStakePositions retrieves references with a live maturity
// disbursement schedule, used to re-arm timers after a restart.
func (d *Database) ScheduledStakePositions() ([]*models.StakePosition, error) {
	var positions []*models.StakePosition
	if result := d.meta.Where(
		"schedule_interval_ns IS NOT NULL",
	).Order("id").Find(&positions); result.Error != nil {
		return nil, result.Error
	}
	return positions, nil
}

// DeleteStakePosition removes a reference row. The externally held
// position, if any, is unaffected.
func (d *Database) DeleteStakePosition(id uint) error {
	result := d.meta.Delete(&models.StakePosition{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrStakePositionNotFound
	}
	return nil
}

// NextSequence returns the next funding sequence number, one past the
// highest on record. Derived from MAX rather than the row count so that
// gaps left by administrative removals are not refilled.
func (d *Database) NextSequence() (uint64, error) {
	var maxSeq *uint64
	row := d.meta.Model(&models.StakePosition{}).
		Select("MAX(sequence_number)").
		Row()
	if err := row.Scan(&maxSeq); err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 1, nil
	}
	return *maxSeq + 1, nil
}
