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

package backoff

import (
	"time"

	"github.com/pkg/errors"
)

// Strategy computes the delay before the next attempt from the delay that
// preceded the previous one. A previous delay of zero means no attempt has
// been delayed yet. Implementations hold no state beyond their parameters,
// so a single Strategy can be shared by any number of goroutines.
type Strategy interface {
	NextBackoff(previous time.Duration) time.Duration
}

// truncatedBinaryBackoff doubles the previous delay, truncated at maxBackoff.
type truncatedBinaryBackoff struct {
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewTruncatedBinaryBackoff returns a Strategy that starts at initialBackoff
// and doubles on every call until maxBackoff is reached, after which
// maxBackoff is returned.
func NewTruncatedBinaryBackoff(
	initialBackoff time.Duration,
	maxBackoff time.Duration) (Strategy, error) {
	if initialBackoff <= 0 {
		return nil, errors.Errorf(
			"initial backoff must be positive, got %v", initialBackoff)
	}
	if maxBackoff < initialBackoff {
		return nil, errors.Errorf(
			"max backoff %v is less than initial backoff %v",
			maxBackoff, initialBackoff)
	}
	return &truncatedBinaryBackoff{
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}, nil
}

// NextBackoff implements Strategy.
func (b *truncatedBinaryBackoff) NextBackoff(previous time.Duration) time.Duration {
	if previous <= 0 {
		return b.initialBackoff
	}
	// previous*2 can overflow for very large durations.
	if previous > b.maxBackoff/2 {
		return b.maxBackoff
	}
	return previous * 2
}
