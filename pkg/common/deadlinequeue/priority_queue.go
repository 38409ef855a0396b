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
	"time"
)

// QueueItem is an item which can be placed in a DeadlineQueue.
type QueueItem interface {
	// Index returns the position in the queue, -1 if not enqueued.
	Index() int
	// SetIndex is called by the queue whenever the item moves.
	SetIndex(i int)
	// Deadline returns the time at which the item should be dequeued.
	Deadline() time.Time
	// SetDeadline sets the deadline, zero meaning unscheduled.
	SetDeadline(deadline time.Time)
	// IsScheduled returns true if the item has a deadline.
	IsScheduled() bool
}

// Item is a QueueItem wrapping an arbitrary value.
type Item struct {
	index    int
	deadline time.Time
	value    interface{}
}

// NewItem returns an unscheduled Item holding value.
func NewItem(value interface{}) *Item {
	return &Item{
		index: -1,
		value: value,
	}
}

// Value returns the value the item was created with.
func (i *Item) Value() interface{} { return i.value }

// Index implements QueueItem.
func (i *Item) Index() int { return i.index }

// SetIndex implements QueueItem.
func (i *Item) SetIndex(index int) { i.index = index }

// Deadline implements QueueItem.
func (i *Item) Deadline() time.Time { return i.deadline }

// SetDeadline implements QueueItem.
func (i *Item) SetDeadline(deadline time.Time) { i.deadline = deadline }

// IsScheduled implements QueueItem.
func (i *Item) IsScheduled() bool { return !i.deadline.IsZero() }

// priorityQueue is the backing heap implementation, implementing the
// `container/heap.Interface` interface. The priorityQueue must only
// be called indirectly through the `container/heap` functions.
type priorityQueue []QueueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].Deadline().Before(pq[j].Deadline())
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].SetIndex(i)
	pq[j].SetIndex(j)
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(QueueItem)
	item.SetIndex(n)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.SetIndex(-1)
	*pq = old[0 : n-1]
	return item
}

// NextDeadline returns the deadline of the head of the queue.
func (pq priorityQueue) NextDeadline() time.Time {
	return pq[0].Deadline()
}
