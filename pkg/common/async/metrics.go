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
	"github.com/uber-go/tally"
)

// Metrics is the struct containing all the counters that track the
// internal state of a WorkQueue.
type Metrics struct {
	ActiveThreads tally.Gauge
	QueueLength   tally.Gauge
	Completed     tally.Counter
	Submitted     tally.Counter
	Retried       tally.Counter
	Dropped       tally.Counter
	Panics        tally.Counter

	// work left queued when the queue was stopped
	Undrained tally.Gauge
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope
func NewMetrics(scope tally.Scope) *Metrics {
	return &Metrics{
		ActiveThreads: scope.Gauge("work_queue_active_thread_count"),
		QueueLength:   scope.Gauge("work_queue_length"),
		Completed:     scope.Counter("work_queue_completed_count"),
		Submitted:     scope.Counter("work_task_count"),
		Retried:       scope.Counter("work_queue_retried"),
		Dropped:       scope.Counter("work_queue_dropped"),
		Panics:        scope.Counter("work_queue_panics"),
		Undrained:     scope.Gauge("work_queue_undrained"),
	}
}
