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

// Package memdb implements the task store in memory on top of
// hashicorp/go-memdb. Reads run concurrently on immutable snapshots,
// writes are serialized and either fully committed or discarded.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/scheduler/events"
	"github.com/lorilorr/aurora/pkg/storage"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

const (
	_tasksTable  = "tasks"
	_idIndex     = "id"
	_statusIndex = "status"
)

// Store is a storage.Storage holding tasks in memory. Committed state
// transitions are published to the subscriber after the commit, in the
// order they were made.
type Store struct {
	db         *memdb.MemDB
	subscriber events.Subscriber
	metrics    *storage.Metrics
	startOnce  sync.Once
}

// New returns an empty Store publishing to subscriber.
func New(subscriber events.Subscriber, parent tally.Scope) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Store{
		db:         db,
		subscriber: subscriber,
		metrics:    storage.NewMetrics(parent.SubScope("storage")),
	}, nil
}

// Start publishes StorageStarted, once.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		log.Info("Task store started")
		s.subscriber.StorageStarted(events.StorageStarted{})
	})
}

// Read implements storage.Storage.
func (s *Store) Read(ctx context.Context, work storage.Work) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	s.metrics.TransactionMetrics.Read.Inc(1)
	txn := s.db.Txn(false)
	defer txn.Abort()

	if err := work(&provider{store: s, txn: txn}); err != nil {
		s.metrics.TransactionMetrics.ReadFail.Inc(1)
		return err
	}
	return nil
}

// Write implements storage.Storage.
func (s *Store) Write(ctx context.Context, work storage.MutateWork) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	s.metrics.TransactionMetrics.Write.Inc(1)
	start := time.Now()
	txn := s.db.Txn(true)
	// Abort after Commit is a no-op.
	defer txn.Abort()

	p := &provider{store: s, txn: txn, write: true}
	if err := work(p); err != nil {
		s.metrics.TransactionMetrics.WriteFail.Inc(1)
		return err
	}
	if len(p.changes) > 0 {
		changes := p.changes
		txn.Defer(func() { s.publish(changes) })
	}
	txn.Commit()
	s.metrics.TransactionMetrics.WriteDuration.Record(time.Since(start))
	return nil
}

func (s *Store) publish(changes []events.TaskStateChange) {
	for _, c := range changes {
		s.subscriber.TaskChangedState(c)
	}
}

// provider is the view of one transaction. It implements both the read
// and the write side, the write side only being handed out for write
// transactions.
type provider struct {
	store   *Store
	txn     *memdb.Txn
	write   bool
	changes []events.TaskStateChange
}

func (p *provider) TaskStore() storage.TaskStore {
	return p
}

func (p *provider) MutableTaskStore() storage.MutableTaskStore {
	return p
}

func (p *provider) FetchTasks(query storage.TaskQuery) ([]*api.ScheduledTask, error) {
	p.store.metrics.TaskMetrics.TaskFetch.Inc(1)
	tasks, err := p.fetch(query)
	if err != nil {
		p.store.metrics.TaskMetrics.TaskFetchFail.Inc(1)
		return nil, err
	}

	result := make([]*api.ScheduledTask, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, t.Copy())
	}
	return result, nil
}

// fetch returns the stored tasks, which must not be modified.
func (p *provider) fetch(query storage.TaskQuery) ([]*api.ScheduledTask, error) {
	var tasks []*api.ScheduledTask

	switch {
	case len(query.TaskIDs) > 0:
		for _, id := range query.TaskIDs {
			obj, err := p.txn.First(_tasksTable, _idIndex, id)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if obj == nil {
				continue
			}
			if task := obj.(*api.ScheduledTask); query.Matches(task) {
				tasks = append(tasks, task)
			}
		}
	case len(query.Statuses) > 0:
		for _, status := range query.Statuses {
			it, err := p.txn.Get(_tasksTable, _statusIndex, string(status))
			if err != nil {
				return nil, errors.WithStack(err)
			}
			for obj := it.Next(); obj != nil; obj = it.Next() {
				tasks = append(tasks, obj.(*api.ScheduledTask))
			}
		}
		sort.Slice(tasks, func(i, j int) bool {
			return tasks[i].TaskID < tasks[j].TaskID
		})
	default:
		it, err := p.txn.Get(_tasksTable, _idIndex)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			tasks = append(tasks, obj.(*api.ScheduledTask))
		}
	}
	return tasks, nil
}

func (p *provider) SaveTasks(tasks ...*api.ScheduledTask) error {
	if !p.write {
		return errors.New("cannot save tasks in a read transaction")
	}
	for _, task := range tasks {
		if task.TaskID == "" {
			p.store.metrics.TaskMetrics.TaskSaveFail.Inc(1)
			return errors.New("cannot save a task without ID")
		}
		if !task.Status.IsValid() {
			p.store.metrics.TaskMetrics.TaskSaveFail.Inc(1)
			return errors.Errorf("task %s has invalid status %q", task.TaskID, task.Status)
		}

		var oldState api.ScheduleStatus
		obj, err := p.txn.First(_tasksTable, _idIndex, task.TaskID)
		if err != nil {
			return errors.WithStack(err)
		}
		if obj != nil {
			oldState = obj.(*api.ScheduledTask).Status
		}

		saved := task.Copy()
		if err := p.txn.Insert(_tasksTable, saved); err != nil {
			p.store.metrics.TaskMetrics.TaskSaveFail.Inc(1)
			return errors.WithStack(err)
		}
		p.store.metrics.TaskMetrics.TaskSave.Inc(1)

		if oldState != saved.Status {
			p.changes = append(p.changes, events.TaskStateChange{
				TaskID:   saved.TaskID,
				OldState: oldState,
				NewState: saved.Status,
				Task:     saved.Copy(),
			})
		}
	}
	return nil
}

func (p *provider) MutateTasks(
	query storage.TaskQuery,
	mutator func(*api.ScheduledTask)) ([]*api.ScheduledTask, error) {
	tasks, err := p.FetchTasks(query)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		id := task.TaskID
		mutator(task)
		if task.TaskID != id {
			return nil, errors.Errorf("mutation changed task ID %s to %s", id, task.TaskID)
		}
	}
	if err := p.SaveTasks(tasks...); err != nil {
		return nil, err
	}
	p.store.metrics.TaskMetrics.TaskMutate.Inc(int64(len(tasks)))
	return tasks, nil
}

func (p *provider) DeleteTasks(taskIDs ...string) error {
	if !p.write {
		return errors.New("cannot delete tasks in a read transaction")
	}
	for _, id := range taskIDs {
		obj, err := p.txn.First(_tasksTable, _idIndex, id)
		if err != nil {
			return errors.WithStack(err)
		}
		if obj == nil {
			continue
		}
		if err := p.txn.Delete(_tasksTable, obj); err != nil {
			return errors.WithStack(err)
		}
		p.store.metrics.TaskMetrics.TaskDelete.Inc(1)
	}
	return nil
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			_tasksTable: {
				Name: _tasksTable,
				Indexes: map[string]*memdb.IndexSchema{
					_idIndex: {
						Name:    _idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "TaskID"},
					},
					_statusIndex: {
						Name:    _statusIndex,
						Indexer: &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
		},
	}
}
