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

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks github.com/lorilorr/aurora/pkg/storage Storage

import (
	"context"

	"github.com/lorilorr/aurora/pkg/api"
)

// TaskQuery selects tasks. Empty fields match every task, all set fields
// must match.
type TaskQuery struct {
	TaskIDs  []string
	Statuses []api.ScheduleStatus
}

// QueryByID selects the tasks with the given IDs.
func QueryByID(taskIDs ...string) TaskQuery {
	return TaskQuery{TaskIDs: taskIDs}
}

// QueryByStatus selects the tasks in any of the given states.
func QueryByStatus(statuses ...api.ScheduleStatus) TaskQuery {
	return TaskQuery{Statuses: statuses}
}

// WithStatuses returns a copy of q further restricted to the given states.
func (q TaskQuery) WithStatuses(statuses ...api.ScheduleStatus) TaskQuery {
	q.Statuses = statuses
	return q
}

// Matches returns true if the task is selected by q.
func (q TaskQuery) Matches(task *api.ScheduledTask) bool {
	if len(q.TaskIDs) > 0 && !containsString(q.TaskIDs, task.TaskID) {
		return false
	}
	if len(q.Statuses) > 0 {
		for _, s := range q.Statuses {
			if s == task.Status {
				return true
			}
		}
		return false
	}
	return true
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// TaskStore is the read side of the task store.
type TaskStore interface {
	// FetchTasks returns copies of the tasks selected by query.
	FetchTasks(query TaskQuery) ([]*api.ScheduledTask, error)
}

// MutableTaskStore is the write side of the task store, only available
// inside a write transaction.
type MutableTaskStore interface {
	TaskStore

	// SaveTasks inserts or replaces tasks.
	SaveTasks(tasks ...*api.ScheduledTask) error
	// MutateTasks applies mutator to a copy of every selected task, saves
	// the result and returns the mutated tasks.
	MutateTasks(query TaskQuery, mutator func(*api.ScheduledTask)) ([]*api.ScheduledTask, error)
	// DeleteTasks removes tasks. Unknown IDs are ignored.
	DeleteTasks(taskIDs ...string) error
}

// StoreProvider gives access to the stores within a read transaction.
type StoreProvider interface {
	TaskStore() TaskStore
}

// MutableStoreProvider gives access to the stores within a write
// transaction.
type MutableStoreProvider interface {
	StoreProvider
	MutableTaskStore() MutableTaskStore
}

// Work is run within a read transaction.
type Work func(store StoreProvider) error

// MutateWork is run within a write transaction. Returning an error
// discards every change made by the work.
type MutateWork func(store MutableStoreProvider) error

// Storage runs work within transactions.
type Storage interface {
	// Read runs work in a read transaction, concurrently with other reads.
	Read(ctx context.Context, work Work) error
	// Write runs work in a write transaction. Writes are serialized.
	Write(ctx context.Context, work MutateWork) error
}
