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

package storage

import (
	"github.com/uber-go/tally"
)

// TaskMetrics is a struct for tracking all the task related counters in
// the storage layer
type TaskMetrics struct {
	TaskFetch     tally.Counter
	TaskFetchFail tally.Counter
	TaskSave      tally.Counter
	TaskSaveFail  tally.Counter
	TaskMutate    tally.Counter
	TaskDelete    tally.Counter
}

// TransactionMetrics tracks the transactions run by a Storage.
type TransactionMetrics struct {
	Read          tally.Counter
	ReadFail      tally.Counter
	Write         tally.Counter
	WriteFail     tally.Counter
	WriteDuration tally.Timer
}

// Metrics is a struct for tracking all the general purpose counters that
// have relevance to the storage layer, i.e. how many tasks were saved etc.
type Metrics struct {
	TaskMetrics        *TaskMetrics
	TransactionMetrics *TransactionMetrics
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope
func NewMetrics(scope tally.Scope) *Metrics {
	taskScope := scope.SubScope("task")
	txnScope := scope.SubScope("transaction")

	return &Metrics{
		TaskMetrics: &TaskMetrics{
			TaskFetch:     taskScope.Counter("fetch"),
			TaskFetchFail: taskScope.Counter("fetch_fail"),
			TaskSave:      taskScope.Counter("save"),
			TaskSaveFail:  taskScope.Counter("save_fail"),
			TaskMutate:    taskScope.Counter("mutate"),
			TaskDelete:    taskScope.Counter("delete"),
		},
		TransactionMetrics: &TransactionMetrics{
			Read:          txnScope.Counter("read"),
			ReadFail:      txnScope.Counter("read_fail"),
			Write:         txnScope.Counter("write"),
			WriteFail:     txnScope.Counter("write_fail"),
			WriteDuration: txnScope.Timer("write_duration"),
		},
	}
}
