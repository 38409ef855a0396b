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

package async

import (
	"container/list"
	"sync"
)

// Queue defines the interface of a queue used by the async pool
// to enqueue jobs and then dequeue the job when a worker becomes available
type Queue interface {
	// Enqueue is used to enqueue a job. It never blocks.
	Enqueue(job Job)
	// Dequeue blocks until a job is available or stopChan is closed, in
	// which case nil is returned.
	Dequeue(stopChan <-chan struct{}) Job
	// Length returns the number of jobs waiting in the queue.
	Length() int
}

// queue is an unbounded FIFO of jobs.
type queue struct {
	sync.Mutex
	list *list.List

	// enqueueSignal is added to after a successful enqueue. By having a buffer
	// size of 1, it's guaranteed that a waiting worker wakes up. A worker
	// taking a job while more are left passes the signal on.
	enqueueSignal chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() Queue {
	return &queue{
		list:          list.New(),
		enqueueSignal: make(chan struct{}, 1),
	}
}

// Enqueue the Job. This method will return immediately.
func (q *queue) Enqueue(job Job) {
	q.Lock()
	q.list.PushBack(job)
	q.Unlock()

	q.signal()
}

// Dequeue the Job.
func (q *queue) Dequeue(stopChan <-chan struct{}) Job {
	for {
		select {
		case <-stopChan:
			return nil
		default:
		}

		q.Lock()
		if f := q.list.Front(); f != nil {
			q.list.Remove(f)
			more := q.list.Len() > 0
			q.Unlock()

			if more {
				q.signal()
			}
			return f.Value.(Job)
		}
		q.Unlock()

		select {
		case <-stopChan:
			return nil
		case <-q.enqueueSignal:
		}
	}
}

// Length returns the number of queued jobs.
func (q *queue) Length() int {
	q.Lock()
	defer q.Unlock()

	return q.list.Len()
}

// signal tries to signal a new item is available.
func (q *queue) signal() {
	select {
	case q.enqueueSignal <- struct{}{}:
	default:
	}
}
