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

package lifecycle

import (
	"sync"
)

// LifeCycle tracks the runs of a component owning a background goroutine.
// Every Start begins a run which ends when the goroutine, told to stop
// through StopCh, calls StopComplete:
//
//	if !lc.Start() {
//		return
//	}
//	stopCh := lc.StopCh()
//	go func() {
//		defer lc.StopComplete()
//		<-stopCh
//	}()
//	...
//	if lc.Stop() {
//		lc.Wait()
//	}
type LifeCycle interface {
	// Start begins a run. It returns false if a run is in progress.
	Start() bool
	// Stop closes the stop channel of the current run. It returns false
	// if no run is in progress.
	Stop() bool
	// StopComplete marks the current run as finished, unblocking Wait.
	// Extra calls are ignored.
	StopComplete()
	// StopCh returns the channel closed when the current run is asked to
	// stop. It is closed if no run is in progress.
	StopCh() <-chan struct{}
	// Wait blocks until StopComplete is called for the latest run.
	Wait()
	// IsRunning returns true between Start and Stop.
	IsRunning() bool
}

// run is one Start to StopComplete cycle.
type run struct {
	stopCh chan struct{}
	doneCh chan struct{}
	done   bool
}

type lifeCycle struct {
	sync.Mutex

	running bool
	// latest run, nil before the first Start
	current *run
}

// NewLifeCycle creates a stopped LifeCycle.
func NewLifeCycle() LifeCycle {
	return &lifeCycle{}
}

func (l *lifeCycle) Start() bool {
	l.Lock()
	defer l.Unlock()

	if l.running {
		return false
	}
	l.running = true
	l.current = &run{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	return true
}

func (l *lifeCycle) Stop() bool {
	l.Lock()
	defer l.Unlock()

	if !l.running {
		return false
	}
	l.running = false
	close(l.current.stopCh)
	return true
}

func (l *lifeCycle) StopCh() <-chan struct{} {
	l.Lock()
	defer l.Unlock()

	if l.current == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.current.stopCh
}

func (l *lifeCycle) StopComplete() {
	l.Lock()
	defer l.Unlock()

	if l.current == nil || l.current.done {
		return
	}
	l.current.done = true
	close(l.current.doneCh)
}

func (l *lifeCycle) Wait() {
	l.Lock()
	current := l.current
	l.Unlock()

	if current == nil {
		return
	}
	<-current.doneCh
}

func (l *lifeCycle) IsRunning() bool {
	l.Lock()
	defer l.Unlock()

	return l.running
}
