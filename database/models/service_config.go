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

var ErrServiceConfigNotSet = errors.New("service config not set")

// ServiceConfig is the singleton configuration cell recording which
// external services this instance talks to. It is written once at
// initialization.
type ServiceConfig struct {
	ID                  uint   `gorm:"primarykey"`
	GovernanceServiceID string `gorm:"not null"`
	LedgerServiceID     string `gorm:"not null"`
	CreatedAt           int64  `gorm:"autoCreateTime:nano"`
}

// TableName returns the table name
func (ServiceConfig) TableName() string {
	return "service_config"
}
