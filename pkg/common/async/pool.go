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
	"sync"

	"github.com/lorilorr/aurora/pkg/common/lifecycle"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/atomic"
)

const (
	// DefaultMaxWorkers of a Pool. See Pool.SetMaxWorkers for more info.
	DefaultMaxWorkers = 4
)

// PoolOptions for constructing a new Pool.
type PoolOptions struct {
	MaxWorkers int
}

// Pool structure for running up to a maximum number of jobs concurrently.
// The pool as an internal queue, such that all jobs added will be accepted
// but not run until it reached the front of the queue and a worker is free.
type Pool struct {
	sync.Mutex
	options    PoolOptions
	queue      Queue
	numWorkers int
	lifeCycle  lifecycle.LifeCycle
	ctx        context.Context
	cancel     context.CancelFunc

	// jobs tracks enqueued jobs not yet finished, workers the running
	// worker goroutines.
	jobs    sync.WaitGroup
	workers sync.WaitGroup

	active    *atomic.Int64
	completed *atomic.Int64
	// jobs enqueued and not finished, idle signalled as jobs finish
	pending *atomic.Int64
	idle    chan struct{}
}

// NewPool returns a new pool, provided the PoolOptions and the queue. A nil
// queue means an unbounded FIFO queue. The pool runs no job until Start.
func NewPool(o PoolOptions, queue Queue) *Pool {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}

	if queue == nil {
		queue = NewQueue()
	}

	return &Pool{
		options:   o,
		queue:     queue,
		lifeCycle: lifecycle.NewLifeCycle(),
		active:    atomic.NewInt64(0),
		completed: atomic.NewInt64(0),
		pending:   atomic.NewInt64(0),
		idle:      make(chan struct{}, 1),
	}
}

// SetMaxWorkers to the number provided. If smaller than the current value, it
// will lazily close existing workers once they finish their current job. If
// greater, new workers will be created. If 0 or less is given,
// DefaultMaxWorkers will be used instead.
func (p *Pool) SetMaxWorkers(num int) {
	if num <= 0 {
		num = DefaultMaxWorkers
	}

	p.Lock()
	defer p.Unlock()

	p.options.MaxWorkers = num
	if p.lifeCycle.IsRunning() {
		p.addWorkersLocked()
	}
}

// Enqueue a job in the pool.
func (p *Pool) Enqueue(job Job) {
	p.jobs.Add(1)
	p.pending.Inc()
	p.queue.Enqueue(job)
}

// WaitUntilProcessed will block until both the queue is empty and all workers
// are idle. This is useful for per-request Pools and in testing. Jobs left
// queued by Stop keep it blocked until the pool is started again.
func (p *Pool) WaitUntilProcessed() {
	p.jobs.Wait()
}

// Drain blocks until every enqueued job has run, the pool is stopped or
// ctx is done. It returns true if no job is left.
func (p *Pool) Drain(ctx context.Context) bool {
	for {
		if p.pending.Load() == 0 {
			return true
		}
		if !p.lifeCycle.IsRunning() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-p.idle:
		case <-p.lifeCycle.StopCh():
		}
	}
}

// ActiveWorkers returns the number of workers currently running a job.
func (p *Pool) ActiveWorkers() int64 {
	return p.active.Load()
}

// CompletedJobs returns the number of jobs run to completion.
func (p *Pool) CompletedJobs() int64 {
	return p.completed.Load()
}

// QueueLength returns the number of jobs waiting for a worker.
func (p *Pool) QueueLength() int {
	return p.queue.Length()
}

// Start the worker pool by initializing the stop channel
// and starting all the workers
func (p *Pool) Start() {
	p.Lock()
	defer p.Unlock()

	if !p.lifeCycle.Start() {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.addWorkersLocked()
}

// Stop terminates all workers and waits for the running jobs to return.
// The context given to running jobs is cancelled. Queued jobs are kept.
func (p *Pool) Stop() {
	p.Lock()
	if !p.lifeCycle.Stop() {
		p.Unlock()
		return
	}
	p.cancel()
	p.Unlock()

	p.workers.Wait()
	log.Debug("Worker pool stopped")
}

// addWorkersLocked adds workers up to the goal state of MaxWorkers.
func (p *Pool) addWorkersLocked() {
	stopChan := p.lifeCycle.StopCh()
	for p.numWorkers < p.options.MaxWorkers {
		p.numWorkers++
		p.workers.Add(1)
		go p.runWorker(p.ctx, stopChan)
	}
}

// retire returns true if this worker is above the goal state and exits.
func (p *Pool) retire(stopChan <-chan struct{}) bool {
	p.Lock()
	defer p.Unlock()

	select {
	case <-stopChan:
		p.numWorkers--
		return true
	default:
	}

	if p.numWorkers > p.options.MaxWorkers {
		p.numWorkers--
		return true
	}
	return false
}

// runWorker processes jobs from the FIFO queue until stopped or retired.
func (p *Pool) runWorker(ctx context.Context, stopChan <-chan struct{}) {
	defer p.workers.Done()

	for {
		if p.retire(stopChan) {
			return
		}

		job := p.queue.Dequeue(stopChan)
		if job == nil {
			// retire records the exit.
			continue
		}

		p.active.Inc()
		job.Run(ctx)
		p.active.Dec()
		p.completed.Inc()
		p.pending.Dec()
		p.jobs.Done()
		select {
		case p.idle <- struct{}{}:
		default:
		}
	}
}
