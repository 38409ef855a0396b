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

package deadlinequeue

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"
	"go.uber.org/goleak"
)

type DeadlineQueueTestSuite struct {
	suite.Suite

	clock clockwork.FakeClock
	scope tally.TestScope
	queue DeadlineQueue
	stop  chan struct{}
}

func TestDeadlineQueueTestSuite(t *testing.T) {
	suite.Run(t, new(DeadlineQueueTestSuite))
}

func (s *DeadlineQueueTestSuite) SetupTest() {
	s.clock = clockwork.NewFakeClock()
	s.scope = tally.NewTestScope("", nil)
	s.queue = NewDeadlineQueue(NewQueueMetrics(s.scope), s.clock)
	s.stop = make(chan struct{})
}

func (s *DeadlineQueueTestSuite) TearDownTest() {
	goleak.VerifyNone(s.T())
}

func (s *DeadlineQueueTestSuite) enqueueAfter(value string, d time.Duration) *Item {
	item := NewItem(value)
	s.queue.Enqueue(item, s.clock.Now().Add(d))
	return item
}

// dequeueAsync dequeues on another goroutine.
func (s *DeadlineQueueTestSuite) dequeueAsync() <-chan QueueItem {
	result := make(chan QueueItem, 1)
	go func() {
		result <- s.queue.Dequeue(s.stop)
	}()
	return result
}

func (s *DeadlineQueueTestSuite) TestDueItemsInDeadlineOrder() {
	s.enqueueAfter("c", 3*time.Second)
	s.enqueueAfter("a", -time.Second)
	s.enqueueAfter("b", 0)
	s.Equal(3, s.queue.Length())

	for _, expected := range []string{"a", "b"} {
		item := s.queue.Dequeue(s.stop).(*Item)
		s.Equal(expected, item.Value())
		s.False(item.IsScheduled())
		s.Equal(-1, item.Index())
	}
	s.Equal(1, s.queue.Length())
}

func (s *DeadlineQueueTestSuite) TestDequeueWaitsForDeadline() {
	s.enqueueAfter("later", time.Minute)
	result := s.dequeueAsync()

	s.clock.BlockUntil(1)
	select {
	case <-result:
		s.Fail("dequeued before the deadline")
	default:
	}

	s.clock.Advance(time.Minute)
	item := <-result
	s.Equal("later", item.(*Item).Value())
}

func (s *DeadlineQueueTestSuite) TestEnqueueWakesDequeue() {
	s.enqueueAfter("later", time.Hour)
	result := s.dequeueAsync()
	s.clock.BlockUntil(1)

	s.enqueueAfter("now", 0)
	item := <-result
	s.Equal("now", item.(*Item).Value())
	s.Equal(1, s.queue.Length())
}

func (s *DeadlineQueueTestSuite) TestEnqueueOnlyAdvancesDeadline() {
	item := s.enqueueAfter("x", time.Minute)
	deadline := item.Deadline()

	s.queue.Enqueue(item, deadline.Add(time.Minute))
	s.Equal(deadline, item.Deadline())

	s.queue.Enqueue(item, deadline.Add(-30*time.Second))
	s.Equal(deadline.Add(-30*time.Second), item.Deadline())
	s.Equal(1, s.queue.Length())

	counters := s.scope.Snapshot().Counters()
	s.Equal(int64(1), counters["queue.enqueued+"].Value())
	s.Equal(int64(1), counters["queue.deadline_advanced+"].Value())
}

func (s *DeadlineQueueTestSuite) TestStopEmptyQueue() {
	result := s.dequeueAsync()
	close(s.stop)
	s.Nil(<-result)
}

func (s *DeadlineQueueTestSuite) TestStopWhileWaiting() {
	s.enqueueAfter("later", time.Minute)
	result := s.dequeueAsync()
	s.clock.BlockUntil(1)

	close(s.stop)
	s.Nil(<-result)
	s.Equal(1, s.queue.Length())
}

func (s *DeadlineQueueTestSuite) TestConcurrentEnqueue() {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.queue.Enqueue(NewItem(nil), s.clock.Now())
		}()
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		s.NotNil(s.queue.Dequeue(s.stop))
	}
	s.Equal(0, s.queue.Length())
}
