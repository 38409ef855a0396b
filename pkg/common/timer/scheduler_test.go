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
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"
	"go.uber.org/goleak"
)

type DelaySchedulerTestSuite struct {
	suite.Suite

	clock     clockwork.FakeClock
	scope     tally.TestScope
	scheduler *DelayScheduler
}

func TestDelaySchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(DelaySchedulerTestSuite))
}

func (s *DelaySchedulerTestSuite) SetupTest() {
	s.clock = clockwork.NewFakeClock()
	s.scope = tally.NewTestScope("", nil)
	s.scheduler = NewDelayScheduler(s.scope, s.clock)
}

func (s *DelaySchedulerTestSuite) TearDownTest() {
	s.scheduler.Stop()
	goleak.VerifyNone(s.T())
}

// TestCallbacksFireInDeadlineOrder schedules out of order and checks the
// callbacks run sorted by deadline, each only once its delay elapsed.
func (s *DelaySchedulerTestSuite) TestCallbacksFireInDeadlineOrder() {
	fired := make(chan int, 3)
	s.scheduler.Schedule(3*time.Second, func() { fired <- 3 })
	s.scheduler.Schedule(time.Second, func() { fired <- 1 })
	s.scheduler.Schedule(2*time.Second, func() { fired <- 2 })
	s.Equal(3, s.scheduler.Len())

	s.scheduler.Start()

	for i := 1; i <= 3; i++ {
		s.clock.BlockUntil(1)
		s.Empty(fired)
		s.clock.Advance(time.Second)
		s.Equal(i, <-fired)
	}
	s.Equal(0, s.scheduler.Len())
	s.Equal(int64(3), s.scope.Snapshot().Counters()["fired+"].Value())
}

// TestPanickingCallbackDoesNotStopLoop checks a panic is recovered and
// later callbacks still run.
func (s *DelaySchedulerTestSuite) TestPanickingCallbackDoesNotStopLoop() {
	done := make(chan struct{})
	s.scheduler.Schedule(0, func() { panic("boom") })
	s.scheduler.Schedule(0, func() { close(done) })
	s.scheduler.Start()

	<-done
	s.Equal(int64(1), s.scope.Snapshot().Counters()["panics+"].Value())
}

// TestNegativeDelayRunsImmediately checks negative delays are clamped.
func (s *DelaySchedulerTestSuite) TestNegativeDelayRunsImmediately() {
	s.scheduler.Start()

	done := make(chan struct{})
	s.scheduler.Schedule(-time.Minute, func() { close(done) })
	<-done
}

// TestStopKeepsPendingCallbacks checks callbacks survive a restart.
func (s *DelaySchedulerTestSuite) TestStopKeepsPendingCallbacks() {
	var wg sync.WaitGroup
	wg.Add(1)

	s.scheduler.Start()
	s.scheduler.Schedule(time.Minute, wg.Done)
	s.scheduler.Stop()
	s.Equal(1, s.scheduler.Len())

	s.scheduler.Start()
	s.clock.BlockUntil(1)
	s.clock.Advance(time.Minute)
	wg.Wait()
}

// TestStartStopIdempotent checks repeated Start and Stop are no-ops.
func (s *DelaySchedulerTestSuite) TestStartStopIdempotent() {
	s.scheduler.Start()
	s.scheduler.Start()
	s.scheduler.Stop()
	s.scheduler.Stop()
}
