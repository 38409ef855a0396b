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
	"fmt"

	"github.com/lorilorr/aurora/pkg/api"

	"github.com/pkg/errors"
)

// ErrPoolStopped is returned by operations on a pool that is not running.
var ErrPoolStopped = errors.New("offer pool is not running")

// LaunchError is returned by LaunchFirst when the driver failed to launch
// a matched task. The offer is kept in the pool.
type LaunchError struct {
	OfferID api.OfferID
	TaskID  string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch task %s on offer %s: %v",
		e.TaskID, e.OfferID, e.Err)
}

// Unwrap returns the driver error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Cause returns the driver error, for errors.Cause.
func (e *LaunchError) Cause() error {
	return e.Err
}
