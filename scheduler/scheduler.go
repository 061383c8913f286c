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

// Package scheduler provides named one-shot and recurring timers. Callers
// register a job under a key and can later cancel it, inspect the time
// remaining until its next run, or re-arm it after a restart. All state is
// in memory; persistence of deadlines across restarts is the caller's
// concern.
package scheduler

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

type job struct {
	timer     *time.Timer
	nextRun   time.Time
	interval  time.Duration
	recurring bool
	// gen identifies the arming lineage. A fire whose lineage no longer
	// owns the key must not run or re-arm; without this check a timer
	// that expired just before its key was replaced would race the
	// replacement and leave two live timers under one key.
	gen uint64
}

type Scheduler struct {
	logger  *slog.Logger
	jobs    map[string]*job
	nextGen uint64
	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Scheduler{
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// ScheduleOnce arms a one-shot timer under the given key. An existing timer
// under the same key is replaced.
func (s *Scheduler) ScheduleOnce(
	key string,
	delay time.Duration,
	fn func(),
) {
	s.schedule(key, delay, fn, false)
}

// ScheduleRecurring arms a recurring timer under the given key. The first
// run fires after one full interval. An existing timer under the same key
// is replaced.
func (s *Scheduler) ScheduleRecurring(
	key string,
	interval time.Duration,
	fn func(),
) {
	s.schedule(key, interval, fn, true)
}

// ScheduleRecurringAt arms a recurring timer whose first run fires after
// the given initial delay, with subsequent runs at the given interval. This
// allows re-arming a persisted schedule at its original deadline after a
// restart.
func (s *Scheduler) ScheduleRecurringAt(
	key string,
	initialDelay time.Duration,
	interval time.Duration,
	fn func(),
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.replaceLocked(key, &job{
		nextRun:   time.Now().Add(initialDelay),
		interval:  interval,
		recurring: true,
	}, initialDelay, fn)
}

func (s *Scheduler) schedule(
	key string,
	delay time.Duration,
	fn func(),
	recurring bool,
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.replaceLocked(key, &job{
		nextRun:   time.Now().Add(delay),
		interval:  delay,
		recurring: recurring,
	}, delay, fn)
}

// replaceLocked installs a job under key, stopping any previous timer.
// Must be called with the mutex held.
func (s *Scheduler) replaceLocked(
	key string,
	j *job,
	delay time.Duration,
	fn func(),
) {
	if existing, ok := s.jobs[key]; ok {
		existing.timer.Stop()
		s.logger.Debug(
			"replacing existing timer",
			"component", "scheduler",
			"key", key,
		)
	}
	s.nextGen++
	j.gen = s.nextGen
	gen := j.gen
	j.timer = time.AfterFunc(delay, func() {
		s.fire(key, gen, fn)
	})
	s.jobs[key] = j
}

func (s *Scheduler) fire(key string, gen uint64, fn func()) {
	s.mu.Lock()
	j, ok := s.jobs[key]
	if !ok || j.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	if j.recurring {
		j.nextRun = time.Now().Add(j.interval)
		j.timer = time.AfterFunc(j.interval, func() {
			s.fire(key, gen, fn)
		})
	} else {
		delete(s.jobs, key)
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	fn()
}

// Cancel stops and removes the timer under the given key. It reports
// whether a timer existed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		return false
	}
	j.timer.Stop()
	delete(s.jobs, key)
	return true
}

// TimeLeft returns the time remaining until the next run of the timer
// under the given key. The second return value reports whether a timer
// exists. A negative duration means the job is firing now.
func (s *Scheduler) TimeLeft(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		return 0, false
	}
	return time.Until(j.nextRun), true
}

// Keys returns the keys of all armed timers
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.jobs))
	for key := range s.jobs {
		keys = append(keys, key)
	}
	return keys
}

// Stop cancels all timers and waits for in-flight job functions to return.
// The scheduler cannot be reused after Stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
