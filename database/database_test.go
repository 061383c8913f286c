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

package database_test

import (
	"testing"

	"github.com/treasurykit/stakewarden/database"
	"github.com/treasurykit/stakewarden/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{
		Logger:  nil,
		DataDir: "",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestStakePositionRoundTrip(t *testing.T) {
	db := newTestDatabase(t)

	position := &models.StakePosition{
		FundingBlockHeight: 42,
		Address:            testAddress(0x01),
		SequenceNumber:     1,
	}
	require.NoError(t, db.AddStakePosition(position))
	require.NotZero(t, position.ID)

	fetched, err := db.StakePosition(position.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), fetched.FundingBlockHeight)
	assert.Equal(t, position.Address, fetched.Address)
	assert.False(t, fetched.Claimed())

	externalID := uint64(7001)
	fetched.ExternalID = &externalID
	require.NoError(t, db.UpdateStakePosition(fetched))

	byExternal, err := db.StakePositionByExternalID(externalID)
	require.NoError(t, err)
	assert.Equal(t, position.ID, byExternal.ID)
	assert.True(t, byExternal.Claimed())

	byAddress, err := db.StakePositionByAddress(position.Address)
	require.NoError(t, err)
	assert.Equal(t, position.ID, byAddress.ID)
}

func TestStakePositionNotFound(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.StakePosition(999)
	assert.ErrorIs(t, err, models.ErrStakePositionNotFound)

	_, err = db.StakePositionByExternalID(999)
	assert.ErrorIs(t, err, models.ErrStakePositionNotFound)

	_, err = db.StakePositionByAddress(testAddress(0xff))
	assert.ErrorIs(t, err, models.ErrStakePositionNotFound)

	err = db.DeleteStakePosition(999)
	assert.ErrorIs(t, err, models.ErrStakePositionNotFound)
}

func TestNextSequence(t *testing.T) {
	db := newTestDatabase(t)

	seq, err := db.NextSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	require.NoError(t, db.AddStakePosition(&models.StakePosition{
		Address:        testAddress(0x01),
		SequenceNumber: 1,
	}))
	require.NoError(t, db.AddStakePosition(&models.StakePosition{
		Address:        testAddress(0x02),
		SequenceNumber: 2,
	}))

	seq, err = db.NextSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	// Removing a position must not cause its sequence number to be reused
	positions, err := db.StakePositions()
	require.NoError(t, err)
	require.Len(t, positions, 2)
	require.NoError(t, db.DeleteStakePosition(positions[0].ID))

	seq, err = db.NextSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestScheduledStakePositions(t *testing.T) {
	db := newTestDatabase(t)

	interval := int64(3600 * 1e9)
	require.NoError(t, db.AddStakePosition(&models.StakePosition{
		Address:            testAddress(0x01),
		SequenceNumber:     1,
		ScheduleIntervalNs: &interval,
		ScheduleTargets: []models.DisbursementTarget{
			{Account: "treasury-main", Percentage: 100},
		},
	}))
	require.NoError(t, db.AddStakePosition(&models.StakePosition{
		Address:        testAddress(0x02),
		SequenceNumber: 2,
	}))

	scheduled, err := db.ScheduledStakePositions()
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.True(t, scheduled[0].HasSchedule())
	require.Len(t, scheduled[0].ScheduleTargets, 1)
	assert.Equal(t, "treasury-main", scheduled[0].ScheduleTargets[0].Account)
	assert.Equal(t, uint32(100), scheduled[0].ScheduleTargets[0].Percentage)
}

func TestProposalChainRoundTrip(t *testing.T) {
	db := newTestDatabase(t)

	chain := &models.ProposalChain{
		PositionExternalID: 7001,
		Entries: []models.ChainEntry{
			{Index: 0, ProposalSpec: []byte(`{"title":"first"}`)},
			{Index: 1, ProposalSpec: []byte(`{"title":"second"}`)},
			{Index: 2, ProposalSpec: []byte(`{"title":"third"}`)},
		},
	}
	require.NoError(t, db.AddProposalChain(chain))
	require.NotZero(t, chain.ID)

	fetched, err := db.ProposalChain(chain.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(7001), fetched.PositionExternalID)
	assert.Equal(t, uint64(0), fetched.CurrentIndex)
	assert.Nil(t, fetched.ActiveProposalID)
	require.Len(t, fetched.Entries, 3)
	for i, entry := range fetched.Entries {
		assert.Equal(t, uint64(i), entry.Index) //nolint:gosec
		assert.Nil(t, entry.ProposalID)
	}
	assert.False(t, fetched.Completed())
}

func TestUpdateChainProgress(t *testing.T) {
	db := newTestDatabase(t)

	chain := &models.ProposalChain{
		PositionExternalID: 7001,
		Entries: []models.ChainEntry{
			{Index: 0, ProposalSpec: []byte(`{}`)},
			{Index: 1, ProposalSpec: []byte(`{}`)},
		},
	}
	require.NoError(t, db.AddProposalChain(chain))

	require.NoError(t, db.UpdateChainProgress(chain.ID, 0, 501))

	fetched, err := db.ProposalChain(chain.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.ActiveProposalID)
	assert.Equal(t, uint64(501), *fetched.ActiveProposalID)
	assert.Equal(t, uint64(0), fetched.CurrentIndex)
	require.NotNil(t, fetched.Entries[0].ProposalID)
	assert.Equal(t, uint64(501), *fetched.Entries[0].ProposalID)
	assert.Nil(t, fetched.Entries[1].ProposalID)

	// Progress past a missing entry is rejected
	err = db.UpdateChainProgress(chain.ID, 5, 502)
	assert.ErrorIs(t, err, models.ErrProposalChainNotFound)
}

func TestProposalChainNotFound(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.ProposalChain(999)
	assert.ErrorIs(t, err, models.ErrProposalChainNotFound)
}

func TestServiceConfigFirstWriteWins(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.ServiceConfig()
	assert.ErrorIs(t, err, models.ErrServiceConfigNotSet)

	require.NoError(t, db.SetServiceConfig("gov-svc-1", "ledger-svc-1"))

	cfg, err := db.ServiceConfig()
	require.NoError(t, err)
	assert.Equal(t, "gov-svc-1", cfg.GovernanceServiceID)
	assert.Equal(t, "ledger-svc-1", cfg.LedgerServiceID)

	// Re-writing the same identifiers is a no-op
	require.NoError(t, db.SetServiceConfig("gov-svc-1", "ledger-svc-1"))

	// Pointing at different services is rejected
	err = db.SetServiceConfig("gov-svc-2", "ledger-svc-2")
	assert.Error(t, err)
}

func TestLogStore(t *testing.T) {
	db := newTestDatabase(t)

	entries, err := db.Logs(0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, db.AddLog("first"))
	require.NoError(t, db.AddLog("second"))
	require.NoError(t, db.AddLog("third"))

	entries, err = db.Logs(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first
	assert.Equal(t, "third", entries[0].Text)
	assert.Equal(t, "second", entries[1].Text)
	assert.Equal(t, "first", entries[2].Text)
	assert.Greater(t, entries[0].Seq, entries[2].Seq)
	assert.NotZero(t, entries[0].Timestamp)

	entries, err = db.Logs(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Text)
}

func testAddress(fill byte) []byte {
	address := make([]byte, 32)
	for i := range address {
		address[i] = fill
	}
	return address
}
