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

package driver

//go:generate mockgen -destination=mocks/mock_driver.go -package=mocks github.com/lorilorr/aurora/pkg/scheduler/driver Driver

import (
	"context"
	"time"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/common/async"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc"
	"go.uber.org/yarpc/yarpcerrors"
)

const (
	// LaunchTaskProcedure is the resource manager procedure launching a task.
	LaunchTaskProcedure = "ResourceManager::launchTask"
	// DeclineOfferProcedure is the resource manager procedure taking an
	// offer back.
	DeclineOfferProcedure = "ResourceManager::declineOffer"

	_defaultCallTimeout = 10 * time.Second
)

// Driver launches tasks on offers and returns offers to the resource
// manager.
type Driver interface {
	// LaunchTask launches the task using the offer.
	LaunchTask(ctx context.Context, offerID api.OfferID, task *api.TaskInfo) error
	// DeclineOffer returns the offer. It must not block for long, failures
	// are handled by the driver.
	DeclineOffer(ctx context.Context, offerID api.OfferID) error
}

// Caller makes json RPC calls. It is satisfied by a yarpc json.Client.
type Caller interface {
	Call(
		ctx context.Context,
		procedure string,
		reqBody interface{},
		resBodyOut interface{},
		opts ...yarpc.CallOption) error
}

// Config is the configuration of the resource manager driver.
type Config struct {
	// Name of the resource manager outbound.
	Outbound string `yaml:"outbound" validate:"nonzero"`

	// Timeout of one call to the resource manager.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Retries of failed declines.
	DeclineQueue async.WorkQueueConfig `yaml:"decline_queue"`
}

type metrics struct {
	launch      tally.Counter
	launchFail  tally.Counter
	decline     tally.Counter
	declineFail tally.Counter
	declineGone tally.Counter
}

// YARPCDriver is a Driver calling the resource manager over yarpc json.
// Launches are synchronous. Declines are queued and retried with backoff
// on the decline queue, and given up after its max retries.
type YARPCDriver struct {
	caller   Caller
	declines *async.WorkQueue
	timeout  time.Duration
	metrics  *metrics
}

// NewYARPCDriver returns a YARPCDriver. The decline queue must be started
// for declines to be sent.
func NewYARPCDriver(
	caller Caller,
	declines *async.WorkQueue,
	timeout time.Duration,
	parent tally.Scope) *YARPCDriver {
	if timeout <= 0 {
		timeout = _defaultCallTimeout
	}
	scope := parent.SubScope("driver")
	return &YARPCDriver{
		caller:   caller,
		declines: declines,
		timeout:  timeout,
		metrics: &metrics{
			launch:      scope.Counter("launch"),
			launchFail:  scope.Counter("launch_fail"),
			decline:     scope.Counter("decline"),
			declineFail: scope.Counter("decline_fail"),
			declineGone: scope.Counter("decline_offer_gone"),
		},
	}
}

// LaunchTask implements Driver.
func (d *YARPCDriver) LaunchTask(
	ctx context.Context,
	offerID api.OfferID,
	task *api.TaskInfo) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.metrics.launch.Inc(1)
	err := d.caller.Call(
		ctx,
		LaunchTaskProcedure,
		&api.LaunchTaskRequest{OfferID: offerID, Task: task},
		&api.LaunchTaskResponse{})
	if err != nil {
		d.metrics.launchFail.Inc(1)
		return errors.Wrapf(err, "failed to launch task %s on offer %s",
			task.TaskID, offerID)
	}
	return nil
}

// DeclineOffer implements Driver. It only queues the decline.
func (d *YARPCDriver) DeclineOffer(ctx context.Context, offerID api.OfferID) error {
	d.declines.Submit(func(ctx context.Context) (bool, error) {
		return d.decline(ctx, offerID)
	})
	return nil
}

func (d *YARPCDriver) decline(ctx context.Context, offerID api.OfferID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.metrics.decline.Inc(1)
	err := d.caller.Call(
		ctx,
		DeclineOfferProcedure,
		&api.DeclineOfferRequest{OfferID: offerID},
		&api.DeclineOfferResponse{})
	if err == nil {
		return true, nil
	}
	if yarpcerrors.IsNotFound(err) {
		// Rescinded or already used up, nothing to give back.
		d.metrics.declineGone.Inc(1)
		return true, nil
	}

	d.metrics.declineFail.Inc(1)
	log.WithError(err).
		WithField("offer_id", offerID).
		Warn("Failed to decline offer")
	return false, err
}
