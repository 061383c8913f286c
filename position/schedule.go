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

package position

import (
	"context"
	"fmt"
	"time"

	"github.com/treasurykit/stakewarden/apierror"
	"github.com/treasurykit/stakewarden/database/models"
	"github.com/treasurykit/stakewarden/event"
	"github.com/treasurykit/stakewarden/governance"
)

// scheduledRunTimeout bounds the external calls made by a timer-driven
// disbursement run.
const scheduledRunTimeout = 2 * time.Minute

// ScheduleRequest sets or clears a maturity disbursement schedule. A nil
// IntervalSeconds clears the schedule. Empty Targets defaults to 100% to
// the configured treasury account.
type ScheduleRequest struct {
	IntervalSeconds *uint64                     `json:"interval_seconds,omitempty"`
	Targets         []models.DisbursementTarget `json:"targets,omitempty"`
}

// SetMaturitySchedule replaces or clears the position's maturity
// disbursement schedule and, in the same operation, re-arms or cancels
// the timer keyed by the position's address. A position with a live
// schedule always has exactly one timer entry.
func (m *Manager) SetMaturitySchedule(
	ctx context.Context,
	lookup Lookup,
	req ScheduleRequest,
) (err error) {
	defer func() { m.recordOp("set_maturity_schedule", err) }()
	position, err := m.resolve(lookup)
	if err != nil {
		return err
	}
	lockKey := addressKey(position.Address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	if req.IntervalSeconds == nil {
		position.ScheduleIntervalNs = nil
		position.ScheduleTargets = nil
		position.NextDisburseNanos = nil
		if err := m.db.UpdateStakePosition(position); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		m.sched.Cancel(lockKey)
		return nil
	}
	if !position.Claimed() {
		return apierror.Validation(
			"position %d not claimed yet",
			position.ID,
		)
	}
	if *req.IntervalSeconds == 0 {
		return apierror.Validation("schedule interval must be positive")
	}
	targets := req.Targets
	if len(targets) == 0 {
		// Treasury-target shorthand
		targets = []models.DisbursementTarget{
			{Account: m.treasuryAccount, Percentage: 100},
		}
	}
	var totalPct uint32
	for _, target := range targets {
		if target.Percentage == 0 || target.Percentage > 100 {
			return apierror.Validation(
				"target percentage %d out of range",
				target.Percentage,
			)
		}
		totalPct += target.Percentage
	}
	if totalPct > 100 {
		return apierror.Validation(
			"target percentages sum to %d, exceeding 100",
			totalPct,
		)
	}
	interval := time.Duration(*req.IntervalSeconds) * time.Second //nolint:gosec
	intervalNs := interval.Nanoseconds()
	nextRun := time.Now().Add(interval).UnixNano()
	position.ScheduleIntervalNs = &intervalNs
	position.ScheduleTargets = targets
	position.NextDisburseNanos = &nextRun
	if err := m.db.UpdateStakePosition(position); err != nil {
		return fmt.Errorf("store schedule: %w", err)
	}
	address := append([]byte{}, position.Address...)
	m.sched.ScheduleRecurring(lockKey, interval, func() {
		m.RunScheduledDisbursement(address)
	})
	return nil
}

// RunScheduledDisbursement performs one timer-driven disbursement run for
// the position at the given address. It is invoked only by the scheduler
// callback; failures are written to the diagnostic log and never surfaced
// to a caller, since there is no caller.
func (m *Manager) RunScheduledDisbursement(address []byte) {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		scheduledRunTimeout,
	)
	defer cancel()
	lockKey := addressKey(address)
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)
	position, err := m.db.StakePositionByAddress(address)
	if err != nil {
		m.logDisburseFailure(address, err)
		m.sched.Cancel(lockKey)
		return
	}
	if !position.HasSchedule() || !position.Claimed() {
		m.logDisburseFailure(address, fmt.Errorf("no live schedule"))
		m.sched.Cancel(lockKey)
		return
	}
	for _, target := range position.ScheduleTargets {
		_, err := m.governance.ManageStakePosition(
			ctx,
			governance.RefByExternalID(*position.ExternalID),
			governance.Command{
				DisburseMaturity: &governance.DisburseMaturityArgs{
					Destination: governance.DisburseDestination{
						Account:    target.Account,
						Subaccount: target.Subaccount,
					},
					Percentage: target.Percentage,
				},
			},
		)
		if err != nil {
			m.logDisburseFailure(address, err)
			// Remaining targets still get their run
		}
	}
	now := time.Now()
	lastRun := now.UnixNano()
	nextRun := now.Add(
		time.Duration(*position.ScheduleIntervalNs),
	).UnixNano()
	position.LastDisburseNanos = &lastRun
	position.NextDisburseNanos = &nextRun
	if err := m.db.UpdateStakePosition(position); err != nil {
		m.logDisburseFailure(address, err)
		return
	}
	m.publish(event.DisbursementEventType, event.DisbursementEvent{
		StorageID:  position.ID,
		ExternalID: *position.ExternalID,
		Targets:    len(position.ScheduleTargets),
		Scheduled:  true,
	})
}

// logDisburseFailure records a fire-and-forget failure in both the
// process log and the diagnostic log store.
func (m *Manager) logDisburseFailure(address []byte, err error) {
	m.logger.Warn(
		"scheduled disbursement failure",
		"component", "position",
		"address", fmt.Sprintf("%x", address),
		"error", err,
	)
	// Diagnostic log writes are themselves fire and forget
	_ = m.db.AddLog(fmt.Sprintf(
		"scheduled disbursement for %x failed: %s",
		address,
		err,
	))
}

// RearmSchedules re-arms timers for every position with a live maturity
// schedule, computing the initial delay from the persisted absolute
// deadline. Called once at startup, since live timers do not survive a
// restart. Returns the number of schedules re-armed.
func (m *Manager) RearmSchedules() (int, error) {
	positions, err := m.db.ScheduledStakePositions()
	if err != nil {
		return 0, fmt.Errorf("list scheduled positions: %w", err)
	}
	now := time.Now()
	for _, position := range positions {
		interval := time.Duration(*position.ScheduleIntervalNs)
		var initialDelay time.Duration
		if position.NextDisburseNanos != nil {
			deadline := time.Unix(0, *position.NextDisburseNanos)
			initialDelay = max(0, deadline.Sub(now))
		} else {
			initialDelay = interval
		}
		address := append([]byte{}, position.Address...)
		m.sched.ScheduleRecurringAt(
			addressKey(address),
			initialDelay,
			interval,
			func() {
				m.RunScheduledDisbursement(address)
			},
		)
		m.logger.Info(
			"re-armed maturity schedule",
			"component", "position",
			"storage_id", position.ID,
			"initial_delay", initialDelay.String(),
			"interval", interval.String(),
		)
	}
	return len(positions), nil
}
