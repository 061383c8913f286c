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
	"fmt"

	"github.com/treasurykit/stakewarden/database/models"

	"gorm.io/gorm"
)

// SetServiceConfig records the upstream service identifiers. The first
// write wins; a later write with different identifiers is rejected so a
// running deployment cannot be silently repointed
func (d *Database) SetServiceConfig(
	governanceServiceID string,
	ledgerServiceID string,
) error {
	existing, err := d.ServiceConfig()
	if err != nil && !errors.Is(err, models.ErrServiceConfigNotSet) {
		return err
	}
	if err == nil {
		if existing.GovernanceServiceID == governanceServiceID &&
			existing.LedgerServiceID == ledgerServiceID {
			return nil
		}
		return fmt.Errorf(
			"service config already set: governance %s, ledger %s",
			existing.GovernanceServiceID,
			existing.LedgerServiceID,
		)
	}
	tmpConfig := models.ServiceConfig{
		GovernanceServiceID: governanceServiceID,
		LedgerServiceID:     ledgerServiceID,
	}
	if result := d.meta.Create(&tmpConfig); result.Error != nil {
		return fmt.Errorf("store service config: %w", result.Error)
	}
	return nil
}

// ServiceConfig returns the recorded upstream service identifiers
func (d *Database) ServiceConfig() (models.ServiceConfig, error) {
	var tmpConfig models.ServiceConfig
	result := d.meta.Order("id").First(&tmpConfig)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return tmpConfig, models.ErrServiceConfigNotSet
		}
		return tmpConfig, fmt.Errorf(
			"lookup service config: %w",
			result.Error,
		)
	}
	return tmpConfig, nil
}
