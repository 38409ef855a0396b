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
	"github.com/uber-go/tally"
)

// QueueMetrics are the metrics of a deadline queue, in the "queue"
// subscope.
type QueueMetrics struct {
	length tally.Gauge
	// time between an item's deadline and its pop
	popDelay tally.Timer
	enqueued tally.Counter
	// enqueues moving the deadline of a queued item earlier
	advanced tally.Counter
}

// NewQueueMetrics returns the QueueMetrics of scope.
func NewQueueMetrics(scope tally.Scope) *QueueMetrics {
	queueScope := scope.SubScope("queue")
	return &QueueMetrics{
		length:   queueScope.Gauge("length"),
		popDelay: queueScope.Timer("pop_delay"),
		enqueued: queueScope.Counter("enqueued"),
		advanced: queueScope.Counter("deadline_advanced"),
	}
}
