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

package scheduler

import (
	"github.com/uber-go/tally"
)

// Metrics is the struct containing all the counters that track the
// scheduling of pending tasks.
type Metrics struct {
	AttemptsFired       tally.Counter
	AttemptsFailed      tally.Counter
	AttemptsRescheduled tally.Counter
	TasksSeeded         tally.Counter
	TasksLaunched       tally.Counter
	TasksLost           tally.Counter
	AttemptDuration     tally.Timer
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope
func NewMetrics(scope tally.Scope) *Metrics {
	return &Metrics{
		AttemptsFired:       scope.Counter("schedule_attempts_fired"),
		AttemptsFailed:      scope.Counter("schedule_attempts_failed"),
		AttemptsRescheduled: scope.Counter("schedule_attempts_rescheduled"),
		TasksSeeded:         scope.Counter("tasks_seeded"),
		TasksLaunched:       scope.Counter("tasks_launched"),
		TasksLost:           scope.Counter("tasks_lost"),
		AttemptDuration:     scope.Timer("task_schedule_attempt"),
	}
}
