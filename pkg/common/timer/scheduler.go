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

package timer

import (
	"time"

	"github.com/lorilorr/aurora/pkg/common/deadlinequeue"
	"github.com/lorilorr/aurora/pkg/common/lifecycle"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	// Schedule runs fn once, no earlier than delay from now.
	Schedule(delay time.Duration, fn func())
	// Len returns the number of callbacks waiting to fire.
	Len() int
}

// DelayScheduler is a Scheduler running every callback on a single
// goroutine, in deadline order. A callback blocks the callbacks due after
// it, so callbacks must not wait on each other. A panicking callback is
// logged and does not stop the loop.
type DelayScheduler struct {
	queue     deadlinequeue.DeadlineQueue
	clock     clockwork.Clock
	lifeCycle lifecycle.LifeCycle
	metrics   *Metrics
}

// NewDelayScheduler returns a stopped DelayScheduler. A nil clock means
// the wall clock.
func NewDelayScheduler(scope tally.Scope, clock clockwork.Clock) *DelayScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DelayScheduler{
		queue: deadlinequeue.NewDeadlineQueue(
			deadlinequeue.NewQueueMetrics(scope),
			clock,
		),
		clock:     clock,
		lifeCycle: lifecycle.NewLifeCycle(),
		metrics:   NewMetrics(scope),
	}
}

// Schedule implements Scheduler. Callbacks scheduled before Start are
// kept and fire once the scheduler is started.
func (s *DelayScheduler) Schedule(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.queue.Enqueue(
		deadlinequeue.NewItem(fn),
		s.clock.Now().Add(delay),
	)
	s.metrics.Scheduled.Inc(1)
	s.metrics.QueueSize.Update(float64(s.queue.Length()))
}

// Len implements Scheduler.
func (s *DelayScheduler) Len() int {
	return s.queue.Length()
}

// Start starts the callback loop.
func (s *DelayScheduler) Start() {
	if !s.lifeCycle.Start() {
		log.Warn("Delay scheduler is already running, no action will be performed")
		return
	}

	started := make(chan struct{})
	go func() {
		defer s.lifeCycle.StopComplete()

		stopCh := s.lifeCycle.StopCh()
		close(started)
		for {
			item := s.queue.Dequeue(stopCh)
			if item == nil {
				log.Info("Exiting the delay scheduler loop")
				return
			}
			s.metrics.QueueSize.Update(float64(s.queue.Length()))
			s.run(item.(*deadlinequeue.Item).Value().(func()))
		}
	}()
	<-started
}

// Stop stops the callback loop and waits for the running callback, if any,
// to return. Callbacks still waiting are kept.
func (s *DelayScheduler) Stop() {
	if !s.lifeCycle.Stop() {
		log.Warn("Delay scheduler is already stopped, no action will be performed")
		return
	}
	s.lifeCycle.Wait()
}

func (s *DelayScheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Panics.Inc(1)
			log.WithField("panic", r).
				Error("Recovered from panic in delayed callback")
		}
	}()
	s.metrics.Fired.Inc(1)
	fn()
}
