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

// Package state changes task states in the task store. Besides direct
// changes it can replace tasks that were lost or failed, so that the
// work they carried becomes pending again.
package state

import (
	"context"
	"time"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/scheduler/events"
	"github.com/lorilorr/aurora/pkg/storage"

	"github.com/jonboulle/clockwork"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc/yarpcerrors"
)

// Config controls the replacement of lost and failed tasks.
type Config struct {
	// ReplaceLostTasks enables the replacement of LOST and FAILED tasks
	// by new PENDING tasks.
	ReplaceLostTasks bool `yaml:"replace_lost_tasks"`

	// MaxTaskFailures bounds how many times a FAILED task is replaced.
	// LOST tasks are not counted as failures. Zero means no FAILED task
	// is replaced.
	MaxTaskFailures int `yaml:"max_task_failures" validate:"min=0"`

	// StatsInterval is the period of ReportTaskStats when run as
	// background work. Zero disables it.
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// Manager changes task states.
type Manager struct {
	storage storage.Storage
	config  Config
	clock   clockwork.Clock
	metrics *Metrics
}

// NewManager returns a Manager working on the given storage. A nil clock
// means the wall clock.
func NewManager(
	store storage.Storage,
	cfg Config,
	clock clockwork.Clock,
	parent tally.Scope) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		storage: store,
		config:  cfg,
		clock:   clock,
		metrics: NewMetrics(parent.SubScope("state")),
	}
}

// InsertPendingTasks adds a PENDING task for each config and returns the
// new task IDs, in order.
func (m *Manager) InsertPendingTasks(
	ctx context.Context,
	configs []*api.TaskConfig) ([]string, error) {
	var ids []string
	err := m.storage.Write(ctx, func(store storage.MutableStoreProvider) error {
		ids = nil
		var tasks []*api.ScheduledTask
		for _, cfg := range configs {
			if cfg == nil {
				return yarpcerrors.InvalidArgumentErrorf("task config is nil")
			}
			task := m.newPendingTask(*cfg, "", 0)
			tasks = append(tasks, task)
			ids = append(ids, task.TaskID)
		}
		return store.MutableTaskStore().SaveTasks(tasks...)
	})
	if err != nil {
		return nil, err
	}
	m.metrics.TasksInserted.Inc(int64(len(ids)))
	return ids, nil
}

func (m *Manager) newPendingTask(
	cfg api.TaskConfig,
	ancestorID string,
	failureCount int) *api.ScheduledTask {
	return &api.ScheduledTask{
		TaskID:       uuid.New(),
		Status:       api.Pending,
		Config:       cfg,
		AncestorID:   ancestorID,
		FailureCount: failureCount,
		Events: []api.TaskEvent{{
			Timestamp: m.clock.Now(),
			Status:    api.Pending,
		}},
	}
}

// ChangeState moves the tasks selected by query to status within the
// caller's transaction, and returns how many tasks changed. Tasks already
// in status or in a terminal state are left alone.
func (m *Manager) ChangeState(
	store storage.MutableStoreProvider,
	query storage.TaskQuery,
	status api.ScheduleStatus,
	message string) (int, error) {
	if !status.IsValid() {
		return 0, yarpcerrors.InvalidArgumentErrorf("invalid status %q", status)
	}

	tasks, err := store.MutableTaskStore().FetchTasks(query)
	if err != nil {
		return 0, err
	}
	var eligible []string
	for _, t := range tasks {
		if t.Status == status || t.Status.IsTerminal() {
			continue
		}
		eligible = append(eligible, t.TaskID)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	now := m.clock.Now()
	changed, err := store.MutableTaskStore().MutateTasks(
		storage.QueryByID(eligible...),
		func(t *api.ScheduledTask) {
			log.WithFields(log.Fields{
				"task_id":    t.TaskID,
				"old_status": t.Status,
				"new_status": status,
				"message":    message,
			}).Info("Changing task state")
			t.Status = status
			t.Events = append(t.Events, api.TaskEvent{
				Timestamp: now,
				Status:    status,
				Message:   message,
			})
		})
	if err != nil {
		return 0, err
	}
	m.metrics.StateChanges.Inc(int64(len(changed)))
	return len(changed), nil
}

// UpdateStatus moves one task to status in its own transaction. It fails
// with a not found error for an unknown task.
func (m *Manager) UpdateStatus(
	ctx context.Context,
	taskID string,
	status api.ScheduleStatus,
	message string) error {
	return m.storage.Write(ctx, func(store storage.MutableStoreProvider) error {
		tasks, err := store.TaskStore().FetchTasks(storage.QueryByID(taskID))
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return yarpcerrors.NotFoundErrorf("task %s not found", taskID)
		}
		_, err = m.ChangeState(store, storage.QueryByID(taskID), status, message)
		return err
	})
}

// TaskChangedState replaces a task that became LOST, or FAILED with
// failures left, when replacement is enabled.
func (m *Manager) TaskChangedState(e events.TaskStateChange) {
	if !m.config.ReplaceLostTasks || e.Task == nil {
		return
	}

	failureCount := e.Task.FailureCount
	switch e.NewState {
	case api.Lost:
	case api.Failed:
		failureCount++
		if failureCount > m.config.MaxTaskFailures {
			m.metrics.ReplaceExceeded.Inc(1)
			log.WithFields(log.Fields{
				"task_id":       e.TaskID,
				"failure_count": failureCount,
			}).Info("Task exceeded max failures, not replacing it")
			return
		}
	default:
		return
	}

	replacement := m.newPendingTask(e.Task.Config, e.TaskID, failureCount)
	err := m.storage.Write(
		context.Background(),
		func(store storage.MutableStoreProvider) error {
			return store.MutableTaskStore().SaveTasks(replacement)
		})
	if err != nil {
		m.metrics.ReplaceFail.Inc(1)
		log.WithError(errors.WithStack(err)).
			WithField("task_id", e.TaskID).
			Error("Failed to replace task")
		return
	}

	m.metrics.TasksReplaced.Inc(1)
	log.WithFields(log.Fields{
		"task_id":         e.TaskID,
		"replacement_id":  replacement.TaskID,
		"previous_status": e.NewState,
	}).Info("Replaced task")
}

// StorageStarted implements events.Subscriber.
func (m *Manager) StorageStarted(events.StorageStarted) {}

// ReportTaskStats refreshes the per state task gauges from storage.
func (m *Manager) ReportTaskStats(ctx context.Context) {
	counts := make(map[api.ScheduleStatus]int, len(api.AllStatuses))
	err := m.storage.Read(ctx, func(store storage.StoreProvider) error {
		tasks, err := store.TaskStore().FetchTasks(storage.TaskQuery{})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			counts[t.Status]++
		}
		return nil
	})
	if err != nil {
		m.metrics.TaskStatsFail.Inc(1)
		log.WithError(err).Warn("Failed to read task stats")
		return
	}

	for status, gauge := range m.metrics.TasksByStatus {
		gauge.Update(float64(counts[status]))
	}
}
