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
	"math/rand"
	"sync"
	"time"
)

// ReturnDelay decides how long a received offer is held before it is
// declined. It is called once per received offer.
type ReturnDelay interface {
	Get() time.Duration
}

type fixedReturnDelay time.Duration

// NewFixedReturnDelay holds every offer for d.
func NewFixedReturnDelay(d time.Duration) ReturnDelay {
	return fixedReturnDelay(d)
}

func (d fixedReturnDelay) Get() time.Duration {
	return time.Duration(d)
}

// jitterReturnDelay spreads offer returns so that offers received together
// are not all declined together.
type jitterReturnDelay struct {
	sync.Mutex
	minHold time.Duration
	window  time.Duration
	rand    *rand.Rand
}

// NewJitterReturnDelay holds every offer for minHold plus a uniformly
// random duration below jitterWindow.
func NewJitterReturnDelay(minHold, jitterWindow time.Duration) ReturnDelay {
	return &jitterReturnDelay{
		minHold: minHold,
		window:  jitterWindow,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *jitterReturnDelay) Get() time.Duration {
	if d.window <= 0 {
		return d.minHold
	}

	d.Lock()
	defer d.Unlock()
	return d.minHold + time.Duration(d.rand.Int63n(int64(d.window)))
}
