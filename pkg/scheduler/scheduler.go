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

// Package scheduler matches pending tasks against the offers held in the
// offer pool. Every pending task gets its own chain of delayed scheduling
// attempts, backing off while no offer fits, until the task is launched
// or stops being pending.
package scheduler

import (
	"context"
	"time"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/common/backoff"
	"github.com/lorilorr/aurora/pkg/common/timer"
	"github.com/lorilorr/aurora/pkg/scheduler/assign"
	"github.com/lorilorr/aurora/pkg/scheduler/events"
	"github.com/lorilorr/aurora/pkg/scheduler/offer"
	"github.com/lorilorr/aurora/pkg/storage"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// LaunchFailedMsg is attached to tasks moved to LOST because their launch
// failed.
const LaunchFailedMsg = "Unknown exception attempting to schedule task."

// StateChanger changes the state of tasks within a write transaction.
type StateChanger interface {
	ChangeState(
		store storage.MutableStoreProvider,
		query storage.TaskQuery,
		status api.ScheduleStatus,
		message string) (int, error)
}

// attempt is one scheduled evaluation of a pending task. The next attempt
// of a chain is a new record.
type attempt struct {
	taskID string
	// delay this attempt was scheduled with
	delay time.Duration
}

// outcome of an attempt that did not fail.
type outcome int

const (
	// the chain ends: the task was launched, lost, or is not pending
	done outcome = iota
	// no offer fits the task yet
	retry
)

// Scheduler schedules pending tasks onto offers. It learns about pending
// tasks through events, and about offers through Offer and CancelOffer.
type Scheduler struct {
	storage      storage.Storage
	stateManager StateChanger
	assigner     assign.Assigner
	backoff      backoff.Strategy
	offers       offer.Pool
	timer        timer.Scheduler
	timeout      time.Duration
	metrics      *Metrics
}

// New returns a Scheduler. Attempts are run on the given timer, which the
// caller starts and stops.
func New(
	cfg Config,
	store storage.Storage,
	stateManager StateChanger,
	assigner assign.Assigner,
	offers offer.Pool,
	delay timer.Scheduler,
	parent tally.Scope) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	strategy, err := backoff.NewTruncatedBinaryBackoff(
		cfg.InitialScheduleBackoff, cfg.MaxScheduleBackoff)
	if err != nil {
		return nil, errors.Wrap(err, "invalid schedule backoff")
	}

	return &Scheduler{
		storage:      store,
		stateManager: stateManager,
		assigner:     assigner,
		backoff:      strategy,
		offers:       offers,
		timer:        delay,
		timeout:      cfg.AttemptTimeout,
		metrics:      NewMetrics(parent.SubScope("scheduler")),
	}, nil
}

// Start starts the offer pool.
func (s *Scheduler) Start() {
	s.offers.Start()
}

// Stop stops the offer pool, declining the held offers.
func (s *Scheduler) Stop() {
	s.offers.Stop()
}

// Offer hands new offers to the pool.
func (s *Scheduler) Offer(offers ...*api.Offer) {
	for _, o := range offers {
		s.offers.Receive(o)
	}
}

// CancelOffer forgets a rescinded offer. A launch racing with the rescind
// fails at the resource manager and the task is reported LOST.
func (s *Scheduler) CancelOffer(offerID api.OfferID) {
	s.offers.Remove(offerID)
}

// GetOffers returns a snapshot of the held offers.
func (s *Scheduler) GetOffers() []*api.Offer {
	return s.offers.GetAll()
}

// TaskChangedState starts the scheduling of tasks becoming pending.
func (s *Scheduler) TaskChangedState(e events.TaskStateChange) {
	if e.NewState == api.Pending {
		s.seed(e.TaskID)
	}
}

// StorageStarted starts the scheduling of the tasks already pending when
// the store came up.
func (s *Scheduler) StorageStarted(events.StorageStarted) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.storage.Read(ctx, func(store storage.StoreProvider) error {
		tasks, err := store.TaskStore().FetchTasks(
			storage.QueryByStatus(api.Pending))
		if err != nil {
			return err
		}
		log.WithField("count", len(tasks)).Info("Scheduling recovered pending tasks")
		for _, t := range tasks {
			s.seed(t.TaskID)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to recover pending tasks")
	}
}

// seed starts a new attempt chain for the task.
func (s *Scheduler) seed(taskID string) {
	s.metrics.TasksSeeded.Inc(1)
	s.schedule(attempt{
		taskID: taskID,
		delay:  s.backoff.NextBackoff(0),
	})
}

func (s *Scheduler) schedule(a attempt) {
	log.WithFields(log.Fields{
		"task_id": a.taskID,
		"delay":   a.delay,
	}).Debug("Evaluating task later")
	s.timer.Schedule(a.delay, func() { s.fire(a) })
}

func (s *Scheduler) retryLater(a attempt) {
	s.metrics.AttemptsRescheduled.Inc(1)
	s.schedule(attempt{
		taskID: a.taskID,
		delay:  s.backoff.NextBackoff(a.delay),
	})
}

// fire runs an attempt and decides whether the chain goes on. It never
// panics, so that one task cannot break the timer running every other.
func (s *Scheduler) fire(a attempt) {
	s.metrics.AttemptsFired.Inc(1)

	result, err := s.run(a.taskID)
	if err != nil {
		s.metrics.AttemptsFailed.Inc(1)
		log.WithError(err).
			WithField("task_id", a.taskID).
			Warn("Task scheduling unexpectedly failed, will be retried")
		s.retryLater(a)
		return
	}
	if result == retry {
		s.retryLater(a)
	}
}

// run runs one attempt in a write transaction. A panic is returned as an
// error.
func (s *Scheduler) run(taskID string) (result outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("scheduling attempt panicked: %v", r)
		}
	}()

	sw := s.metrics.AttemptDuration.Start()
	defer sw.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err = s.storage.Write(ctx, func(store storage.MutableStoreProvider) error {
		var err error
		result, err = s.tryScheduling(ctx, taskID, store)
		return err
	})
	return result, err
}

func (s *Scheduler) tryScheduling(
	ctx context.Context,
	taskID string,
	store storage.MutableStoreProvider) (outcome, error) {
	log.WithField("task_id", taskID).Debug("Attempting to schedule task")

	query := storage.QueryByID(taskID).WithStatuses(api.Pending)
	tasks, err := store.TaskStore().FetchTasks(query)
	if err != nil {
		return done, err
	}
	if len(tasks) == 0 {
		log.WithField("task_id", taskID).
			Warn("Failed to look up pending task, it may have been deleted")
		return done, nil
	}
	task := tasks[0]

	launched, err := s.offers.LaunchFirst(ctx, func(o *api.Offer) (*api.TaskInfo, bool) {
		return s.assigner.MaybeAssign(o, task)
	})

	var launchErr *offer.LaunchError
	switch {
	case errors.As(err, &launchErr):
		log.WithError(launchErr).
			WithField("task_id", taskID).
			Warn("Failed to launch task")
		// The task is replaced, if at all, by whoever watches LOST tasks.
		if _, err := s.stateManager.ChangeState(
			store, query, api.Lost, LaunchFailedMsg); err != nil {
			return done, errors.Wrap(err, "failed to mark task LOST after launch failure")
		}
		s.metrics.AttemptsFailed.Inc(1)
		s.metrics.TasksLost.Inc(1)
		return done, nil
	case err != nil:
		return done, err
	case launched:
		s.metrics.TasksLaunched.Inc(1)
		// Not retried, the task was launched.
		if _, err := s.stateManager.ChangeState(
			store, query, api.Assigned, ""); err != nil {
			log.WithError(err).
				WithField("task_id", taskID).
				Error("Failed to mark launched task ASSIGNED")
		}
		return done, nil
	default:
		return retry, nil
	}
}
