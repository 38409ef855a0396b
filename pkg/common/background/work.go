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

// Package background runs named pieces of work periodically.
package background

import (
	"context"
	"sort"
	"time"

	"github.com/lorilorr/aurora/pkg/common/lifecycle"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Work is a piece of work run every Period, starting after InitialDelay.
// Func receives a context cancelled when the manager stops.
type Work struct {
	Name         string
	Func         func(ctx context.Context)
	Period       time.Duration
	InitialDelay time.Duration
}

// Manager starts and stops registered works together.
type Manager struct {
	clock   clockwork.Clock
	runners map[string]*runner
}

// NewManager returns a Manager without works. A nil clock means the wall
// clock.
func NewManager(clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		clock:   clock,
		runners: make(map[string]*runner),
	}
}

// RegisterWorks registers works. Names must be unique and periods
// positive.
func (m *Manager) RegisterWorks(works ...Work) error {
	for _, work := range works {
		if work.Name == "" {
			return errors.New("background work name cannot be empty")
		}
		if _, ok := m.runners[work.Name]; ok {
			return errors.Errorf("duplicate background work name %q", work.Name)
		}
		if work.Period <= 0 || work.Func == nil {
			return errors.Errorf(
				"background work %q needs a function and a positive period", work.Name)
		}
		m.runners[work.Name] = &runner{
			work:      work,
			clock:     m.clock,
			lifeCycle: lifecycle.NewLifeCycle(),
		}
	}
	return nil
}

// Start starts every registered work.
func (m *Manager) Start() {
	for _, name := range m.names() {
		m.runners[name].start()
	}
}

// Stop stops every registered work and waits for them to return.
func (m *Manager) Stop() {
	for _, name := range m.names() {
		m.runners[name].stop()
	}
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.runners))
	for name := range m.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type runner struct {
	work      Work
	clock     clockwork.Clock
	lifeCycle lifecycle.LifeCycle
	cancel    context.CancelFunc
}

func (r *runner) start() {
	if !r.lifeCycle.Start() {
		log.WithField("name", r.work.Name).
			Info("Background work is already running, no-op.")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	stopCh := r.lifeCycle.StopCh()

	go func() {
		defer r.lifeCycle.StopComplete()

		if r.work.InitialDelay > 0 {
			select {
			case <-stopCh:
				return
			case <-r.clock.After(r.work.InitialDelay):
			}
		}

		ticker := r.clock.NewTicker(r.work.Period)
		defer ticker.Stop()
		for {
			r.work.Func(ctx)

			select {
			case <-stopCh:
				return
			case <-ticker.Chan():
			}
		}
	}()
	log.WithFields(log.Fields{
		"name":   r.work.Name,
		"period": r.work.Period,
	}).Info("Background work started")
}

func (r *runner) stop() {
	if !r.lifeCycle.Stop() {
		log.WithField("name", r.work.Name).
			Warn("Background work is not running, no-op.")
		return
	}
	r.cancel()
	r.lifeCycle.Wait()
	log.WithField("name", r.work.Name).Info("Background work stopped")
}
