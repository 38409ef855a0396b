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

package offer

import (
	"github.com/uber-go/tally"
)

// Metrics tracks the offers going through the pool.
type Metrics struct {
	OutstandingOffers tally.Gauge

	Received   tally.Counter
	Duplicate  tally.Counter
	Compacted  tally.Counter
	Declined   tally.Counter
	Expired    tally.Counter
	Removed    tally.Counter
	Launched   tally.Counter
	LaunchFail tally.Counter
	Panics     tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized
// and rooted at the given tally.Scope
func NewMetrics(scope tally.Scope) *Metrics {
	return &Metrics{
		OutstandingOffers: scope.Gauge("outstanding_offers"),

		Received:   scope.Counter("offers_received"),
		Duplicate:  scope.Counter("offers_duplicate"),
		Compacted:  scope.Counter("offers_compacted"),
		Declined:   scope.Counter("offers_declined"),
		Expired:    scope.Counter("offers_expired"),
		Removed:    scope.Counter("offers_removed"),
		Launched:   scope.Counter("offers_launched"),
		LaunchFail: scope.Counter("launch_failed"),
		Panics:     scope.Counter("request_panics"),
	}
}
