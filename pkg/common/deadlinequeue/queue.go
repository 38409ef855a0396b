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
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DeadlineQueue holds items until their deadline.
type DeadlineQueue interface {
	// Enqueue schedules qi at deadline. An item already queued only moves
	// if the new deadline is earlier.
	Enqueue(qi QueueItem, deadline time.Time)
	// Dequeue blocks until the earliest deadline passes and returns its
	// item, or returns nil once stopChan is closed. Only one goroutine
	// may dequeue at a time.
	Dequeue(stopChan <-chan struct{}) QueueItem
	// Length returns the number of queued items.
	Length() int
}

// NewDeadlineQueue returns an empty DeadlineQueue. A nil clock means the
// wall clock.
func NewDeadlineQueue(mtx *QueueMetrics, clock clockwork.Clock) DeadlineQueue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	q := &deadlineQueue{
		pq:    &priorityQueue{},
		wake:  make(chan struct{}, 1),
		mtx:   mtx,
		clock: clock,
	}
	heap.Init(q.pq)
	return q
}

type deadlineQueue struct {
	sync.Mutex

	pq *priorityQueue
	// signalled on enqueue so that a waiting Dequeue re-reads the head
	wake  chan struct{}
	mtx   *QueueMetrics
	clock clockwork.Clock
}

func (q *deadlineQueue) Enqueue(qi QueueItem, deadline time.Time) {
	q.Lock()
	defer q.Unlock()

	queued := qi.Index() != -1
	if queued && !deadline.Before(qi.Deadline()) {
		return
	}

	qi.SetDeadline(deadline)
	if queued {
		heap.Fix(q.pq, qi.Index())
		q.mtx.advanced.Inc(1)
	} else {
		heap.Push(q.pq, qi)
		q.mtx.enqueued.Inc(1)
	}
	q.mtx.length.Update(float64(q.pq.Len()))

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *deadlineQueue) Length() int {
	q.Lock()
	defer q.Unlock()

	return q.pq.Len()
}

func (q *deadlineQueue) Dequeue(stopChan <-chan struct{}) QueueItem {
	for {
		item, wait := q.next()
		if item != nil {
			return item
		}
		if !q.sleep(wait, stopChan) {
			return nil
		}
	}
}

// next pops the head if it is due. Otherwise it returns the time left
// until the head is due, negative for an empty queue.
func (q *deadlineQueue) next() (QueueItem, time.Duration) {
	q.Lock()
	defer q.Unlock()

	if q.pq.Len() == 0 {
		return nil, -1
	}

	now := q.clock.Now()
	if wait := q.pq.NextDeadline().Sub(now); wait > 0 {
		return nil, wait
	}

	qi := heap.Pop(q.pq).(QueueItem)
	q.mtx.popDelay.Record(now.Sub(qi.Deadline()))
	q.mtx.length.Update(float64(q.pq.Len()))
	qi.SetDeadline(time.Time{})
	return qi, 0
}

// sleep waits for wait to elapse, forever if negative, or for an enqueue.
// It returns false if stopChan closed first.
func (q *deadlineQueue) sleep(wait time.Duration, stopChan <-chan struct{}) bool {
	var due <-chan time.Time
	if wait >= 0 {
		timer := q.clock.NewTimer(wait)
		defer timer.Stop()
		due = timer.Chan()
	}

	select {
	case <-due:
	case <-q.wake:
	case <-stopChan:
		return false
	}
	return true
}
