// Copyright (c) 2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timertest provides a timer.Scheduler whose callbacks only fire
// when the test says so.
package timertest

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Call is a callback captured by ManualScheduler.
type Call struct {
	Delay    time.Duration
	Deadline time.Time
	Fn       func()
	seq      int
}

// ManualScheduler records scheduled callbacks without running them.
// Deadlines are taken from a fake clock which FireNext advances to the
// deadline of the callback it runs, so callbacks scheduled by a callback
// are due relative to the time it fired.
type ManualScheduler struct {
	sync.Mutex

	clock clockwork.FakeClock
	calls []Call
	seq   int
}

// NewManualScheduler returns an empty ManualScheduler on a new fake clock.
func NewManualScheduler() *ManualScheduler {
	return NewManualSchedulerWithClock(clockwork.NewFakeClock())
}

// NewManualSchedulerWithClock returns an empty ManualScheduler taking
// deadlines from clock.
func NewManualSchedulerWithClock(clock clockwork.FakeClock) *ManualScheduler {
	return &ManualScheduler{clock: clock}
}

// Clock returns the fake clock deadlines are taken from.
func (m *ManualScheduler) Clock() clockwork.FakeClock {
	return m.clock
}

// Schedule implements timer.Scheduler.
func (m *ManualScheduler) Schedule(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}

	m.Lock()
	defer m.Unlock()

	m.seq++
	m.calls = append(m.calls, Call{
		Delay:    delay,
		Deadline: m.clock.Now().Add(delay),
		Fn:       fn,
		seq:      m.seq,
	})
}

// Len implements timer.Scheduler.
func (m *ManualScheduler) Len() int {
	m.Lock()
	defer m.Unlock()

	return len(m.calls)
}

// Delays returns the delays of the callbacks waiting to fire, in the
// order they were scheduled.
func (m *ManualScheduler) Delays() []time.Duration {
	m.Lock()
	defer m.Unlock()

	var delays []time.Duration
	for _, c := range m.calls {
		delays = append(delays, c.Delay)
	}
	return delays
}

// FireNext advances the clock to the earliest deadline, runs its callback
// and returns the delay it was scheduled with. Equal deadlines fire in
// scheduling order. It returns false when nothing is scheduled. The
// callback runs without the lock held, so it may schedule more callbacks.
func (m *ManualScheduler) FireNext() (time.Duration, bool) {
	m.Lock()
	if len(m.calls) == 0 {
		m.Unlock()
		return 0, false
	}
	first := 0
	for i, c := range m.calls {
		if c.Deadline.Before(m.calls[first].Deadline) ||
			(c.Deadline.Equal(m.calls[first].Deadline) && c.seq < m.calls[first].seq) {
			first = i
		}
	}
	next := m.calls[first]
	m.calls = append(m.calls[:first:first], m.calls[first+1:]...)
	if wait := next.Deadline.Sub(m.clock.Now()); wait > 0 {
		m.clock.Advance(wait)
	}
	m.Unlock()

	next.Fn()
	return next.Delay, true
}

// FireAll runs callbacks until none are left, including the ones the
// callbacks schedule, at most limit times. It returns the number run.
func (m *ManualScheduler) FireAll(limit int) int {
	n := 0
	for ; n < limit; n++ {
		if _, ok := m.FireNext(); !ok {
			break
		}
	}
	return n
}
