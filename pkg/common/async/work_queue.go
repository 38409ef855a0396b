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
	"context"
	"time"

	"github.com/lorilorr/aurora/pkg/common/backoff"
	"github.com/lorilorr/aurora/pkg/common/timer"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

const (
	_defaultWorkQueueWorkers = 5
	_defaultInitialBackoff   = 1 * time.Second
	_defaultMaxBackoff       = 64 * time.Second
	_defaultMaxRetries       = 10
	_defaultDrainTimeout     = 10 * time.Second
)

// Work is a unit of work run by a WorkQueue. Returning false or an error
// marks the attempt failed, and the work is retried with backoff.
type Work func(ctx context.Context) (bool, error)

// WorkQueueConfig is the configuration of a WorkQueue. Zero values take
// the defaults.
type WorkQueueConfig struct {
	// Number of workers running work concurrently.
	Workers int `yaml:"workers"`

	// Delay before the first retry, doubled on every further failure.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// Cap of the retry delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// Number of retries after which failing work is dropped.
	MaxRetries int `yaml:"max_retries"`

	// How long Stop waits for submitted work to run.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

func (c WorkQueueConfig) withDefaults() WorkQueueConfig {
	if c.Workers <= 0 {
		c.Workers = _defaultWorkQueueWorkers
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = _defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = _defaultMaxBackoff
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = _defaultMaxRetries
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = _defaultDrainTimeout
	}
	return c
}

// retryingJob is one attempt of a piece of work. A failed attempt creates
// the next one, it is never modified.
type retryingJob struct {
	work Work
	// failed attempts so far
	retries int
	// delay before this attempt, zero for the first one
	delay time.Duration
}

// WorkQueue runs work on a worker pool, retrying failed work after a
// truncated binary backoff until it succeeds or the retries run out.
// Work dropped after its last retry is only counted and logged.
type WorkQueue struct {
	pool         *Pool
	timer        timer.Scheduler
	backoff      backoff.Strategy
	maxRetries   int
	drainTimeout time.Duration
	metrics      *Metrics
}

// NewWorkQueue returns a WorkQueue delaying retries on the given timer.
// The queue runs nothing until Start.
func NewWorkQueue(
	cfg WorkQueueConfig,
	delay timer.Scheduler,
	parent tally.Scope) (*WorkQueue, error) {
	cfg = cfg.withDefaults()

	strategy, err := backoff.NewTruncatedBinaryBackoff(
		cfg.InitialBackoff, cfg.MaxBackoff)
	if err != nil {
		return nil, errors.Wrap(err, "invalid work queue backoff")
	}

	return &WorkQueue{
		pool:         NewPool(PoolOptions{MaxWorkers: cfg.Workers}, nil),
		timer:        delay,
		backoff:      strategy,
		maxRetries:   cfg.MaxRetries,
		drainTimeout: cfg.DrainTimeout,
		metrics:      NewMetrics(parent.SubScope("work_queue")),
	}, nil
}

// Start starts the workers.
func (q *WorkQueue) Start() {
	q.pool.Start()
}

// Stop waits up to the drain timeout for submitted work to run, then
// stops the workers. Work still queued after the timeout is not run, and
// neither are retries waiting on the timer.
func (q *WorkQueue) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), q.drainTimeout)
	defer cancel()

	if !q.pool.Drain(ctx) {
		q.metrics.Undrained.Update(float64(q.pool.QueueLength()))
		log.WithField("queued", q.pool.QueueLength()).
			Warn("Stopping work queue with work left")
	}
	q.pool.Stop()
}

// Submit enqueues work for immediate execution.
func (q *WorkQueue) Submit(work Work) {
	q.metrics.Submitted.Inc(1)
	q.enqueue(retryingJob{work: work})
}

// SubmitAfter enqueues work for execution no earlier than delay from now.
func (q *WorkQueue) SubmitAfter(work Work, delay time.Duration) {
	q.metrics.Submitted.Inc(1)
	job := retryingJob{work: work}
	q.timer.Schedule(delay, func() { q.enqueue(job) })
}

func (q *WorkQueue) enqueue(job retryingJob) {
	q.pool.Enqueue(JobFunc(func(ctx context.Context) {
		q.run(ctx, job)
	}))
	q.metrics.QueueLength.Update(float64(q.pool.QueueLength()))
}

func (q *WorkQueue) run(ctx context.Context, job retryingJob) {
	q.metrics.ActiveThreads.Update(float64(q.pool.ActiveWorkers()))
	ok, err := q.invoke(ctx, job.work)
	q.metrics.Completed.Inc(1)
	q.metrics.ActiveThreads.Update(float64(q.pool.ActiveWorkers() - 1))
	if ok && err == nil {
		return
	}

	next := retryingJob{
		work:    job.work,
		retries: job.retries + 1,
		delay:   q.backoff.NextBackoff(job.delay),
	}
	if next.retries > q.maxRetries {
		q.metrics.Dropped.Inc(1)
		log.WithError(err).
			WithField("retries", job.retries).
			Debug("Dropping work after max retries")
		return
	}

	q.metrics.Retried.Inc(1)
	log.WithError(err).
		WithField("retries", next.retries).
		WithField("delay", next.delay).
		Debug("Work failed, retrying")
	q.timer.Schedule(next.delay, func() { q.enqueue(next) })
}

// invoke runs the work, turning a panic into an error.
func (q *WorkQueue) invoke(ctx context.Context, work Work) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.metrics.Panics.Inc(1)
			ok, err = false, errors.Errorf("work panicked: %v", r)
		}
	}()
	return work(ctx)
}
