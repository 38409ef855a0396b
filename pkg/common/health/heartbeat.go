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

package health

import (
	"time"

	"github.com/lorilorr/aurora/pkg/common/lifecycle"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/atomic"
	"github.com/uber-go/tally"
)

const _defaultHeartbeatInterval = 10 * time.Second

// Config is the heartbeat configuration.
type Config struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Metrics emitted by the heartbeat.
type Metrics struct {
	Init      tally.Counter
	Heartbeat tally.Gauge
	Ready     tally.Gauge
}

// NewMetrics returns the heartbeat metrics in scope.
func NewMetrics(scope tally.Scope) *Metrics {
	return &Metrics{
		Init:      scope.Counter("init"),
		Heartbeat: scope.Gauge("heartbeat"),
		Ready:     scope.Gauge("ready"),
	}
}

// Heartbeat periodically emits a heartbeat gauge, and a ready gauge
// telling whether the process serves requests.
type Heartbeat struct {
	lifeCycle lifecycle.LifeCycle
	clock     clockwork.Clock
	interval  time.Duration
	metrics   *Metrics

	ready *atomic.Bool
}

// NewHeartbeat returns a stopped, not ready, Heartbeat. A nil clock means
// the wall clock.
func NewHeartbeat(
	parent tally.Scope,
	cfg Config,
	clock clockwork.Clock) *Heartbeat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = _defaultHeartbeatInterval
	}
	hb := &Heartbeat{
		lifeCycle: lifecycle.NewLifeCycle(),
		clock:     clock,
		interval:  interval,
		metrics:   NewMetrics(parent.SubScope("health")),
		ready:     atomic.NewBool(false),
	}
	hb.metrics.Init.Inc(1)
	return hb
}

// SetReady marks the process ready, or not.
func (h *Heartbeat) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Healthy returns whether the heartbeat runs and the process is ready.
func (h *Heartbeat) Healthy() bool {
	return h.lifeCycle.IsRunning() && h.ready.Load()
}

// Start starts emitting heartbeats.
func (h *Heartbeat) Start() {
	if !h.lifeCycle.Start() {
		log.Warn("Heartbeater is already running, no-op.")
		return
	}

	ticker := h.clock.NewTicker(h.interval)
	stopCh := h.lifeCycle.StopCh()
	go func() {
		defer h.lifeCycle.StopComplete()
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				log.Info("Heartbeater stopped.")
				return
			case t := <-ticker.Chan():
				log.WithField("tick", t).Debug("Emitting heartbeat.")
				h.emit()
			}
		}
	}()
	log.Info("Heartbeater started.")
}

// Stop stops emitting heartbeats and waits for the loop to exit.
func (h *Heartbeat) Stop() {
	if !h.lifeCycle.Stop() {
		log.Warn("Heartbeat is not running, no-op.")
		return
	}
	h.lifeCycle.Wait()
}

func (h *Heartbeat) emit() {
	h.metrics.Heartbeat.Update(1)
	if h.ready.Load() {
		h.metrics.Ready.Update(1)
	} else {
		h.metrics.Ready.Update(0)
	}
}
