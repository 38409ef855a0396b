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

package scheduler

import (
	"time"

	"github.com/lorilorr/aurora/pkg/scheduler/offer"
)

const (
	_defaultInitialScheduleBackoff = 1 * time.Second
	_defaultMaxScheduleBackoff     = 64 * time.Second
	_defaultAttemptTimeout         = 30 * time.Second
	_defaultMinOfferHold           = 5 * time.Minute
)

// Config is the scheduler specific configuration.
type Config struct {
	// Delay before the first scheduling attempt of a pending task, doubled
	// after every attempt finding no offer.
	InitialScheduleBackoff time.Duration `yaml:"initial_schedule_backoff"`

	// Cap of the delay between scheduling attempts.
	MaxScheduleBackoff time.Duration `yaml:"max_schedule_backoff"`

	// Timeout of one scheduling attempt.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// Minimum time an unused offer is held before being declined.
	MinOfferHold time.Duration `yaml:"min_offer_hold"`

	// Random extra hold time, below this window, added to every offer.
	OfferHoldJitterWindow time.Duration `yaml:"offer_hold_jitter_window"`
}

func (c Config) withDefaults() Config {
	if c.InitialScheduleBackoff <= 0 {
		c.InitialScheduleBackoff = _defaultInitialScheduleBackoff
	}
	if c.MaxScheduleBackoff <= 0 {
		c.MaxScheduleBackoff = _defaultMaxScheduleBackoff
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = _defaultAttemptTimeout
	}
	if c.MinOfferHold <= 0 {
		c.MinOfferHold = _defaultMinOfferHold
	}
	return c
}

// ReturnDelay returns how long received offers are held.
func (c Config) ReturnDelay() offer.ReturnDelay {
	c = c.withDefaults()
	if c.OfferHoldJitterWindow <= 0 {
		return offer.NewFixedReturnDelay(c.MinOfferHold)
	}
	return offer.NewJitterReturnDelay(c.MinOfferHold, c.OfferHoldJitterWindow)
}
