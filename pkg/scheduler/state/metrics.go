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

package state

import (
	"strings"

	"github.com/lorilorr/aurora/pkg/api"

	"github.com/uber-go/tally"
)

// Metrics tracks the task state changes made by the Manager.
type Metrics struct {
	TasksInserted   tally.Counter
	StateChanges    tally.Counter
	TasksReplaced   tally.Counter
	ReplaceFail     tally.Counter
	ReplaceExceeded tally.Counter

	// number of tasks per state, refreshed by ReportTaskStats
	TasksByStatus map[api.ScheduleStatus]tally.Gauge
	TaskStatsFail tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope
func NewMetrics(scope tally.Scope) *Metrics {
	tasksByStatus := make(map[api.ScheduleStatus]tally.Gauge, len(api.AllStatuses))
	for _, status := range api.AllStatuses {
		tasksByStatus[status] = scope.Tagged(map[string]string{
			"status": strings.ToLower(string(status)),
		}).Gauge("tasks")
	}

	return &Metrics{
		TasksInserted:   scope.Counter("tasks_inserted"),
		StateChanges:    scope.Counter("state_changes"),
		TasksReplaced:   scope.Counter("tasks_replaced"),
		ReplaceFail:     scope.Counter("replace_fail"),
		ReplaceExceeded: scope.Counter("replace_max_failures_exceeded"),
		TasksByStatus:   tasksByStatus,
		TaskStatsFail:   scope.Counter("task_stats_fail"),
	}
}
