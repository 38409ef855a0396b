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
	"context"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/common/lifecycle"
	"github.com/lorilorr/aurora/pkg/common/timer"
	"github.com/lorilorr/aurora/pkg/scheduler/driver"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/multierr"
)

// MatchFunc returns what to launch on the offer, or false if nothing
// should be launched on it. A nil payload counts as no match.
type MatchFunc func(offer *api.Offer) (*api.TaskInfo, bool)

// Pool holds the offers received from the resource manager until they are
// used to launch a task, rescinded, or returned.
type Pool interface {
	// Receive adds an offer, to be declined after the return delay unless
	// used before. An offer for an agent the pool already holds an offer
	// for is declined along with every held offer for that agent.
	Receive(offer *api.Offer)

	// Remove forgets an offer without declining it. Unknown IDs are
	// ignored.
	Remove(offerID api.OfferID)

	// Decline forgets an offer and returns it to the resource manager.
	Decline(offerID api.OfferID)

	// LaunchFirst calls match on the held offers in the order they were
	// received and launches on the first offer it accepts, which is then
	// removed. It returns false if no offer was accepted, and a
	// *LaunchError, keeping the offer, if the launch failed.
	LaunchFirst(ctx context.Context, match MatchFunc) (bool, error)

	// GetAll returns a copy of the held offers, in the order they were
	// received.
	GetAll() []*api.Offer

	// Start starts serving requests.
	Start()

	// Stop declines every held offer and stops serving requests.
	Stop()
}

// request runs on the pool goroutine, which exclusively owns the offers.
type request func()

// pool keeps the offers on a single goroutine, every operation being a
// request to it. Requests are served one at a time in arrival order.
type pool struct {
	requests  chan request
	lifeCycle lifecycle.LifeCycle

	driver      driver.Driver
	returnDelay ReturnDelay
	timer       timer.Scheduler
	metrics     *Metrics

	// offers in receipt order, only accessed by the pool goroutine.
	offers []*api.Offer
}

// NewPool returns a stopped pool declining offers through d and expiring
// them on the given timer.
func NewPool(
	d driver.Driver,
	returnDelay ReturnDelay,
	delay timer.Scheduler,
	parent tally.Scope) Pool {
	return &pool{
		requests:    make(chan request),
		lifeCycle:   lifecycle.NewLifeCycle(),
		driver:      d,
		returnDelay: returnDelay,
		timer:       delay,
		metrics:     NewMetrics(parent.SubScope("offer_pool")),
	}
}

// Start implements Pool.
func (p *pool) Start() {
	if !p.lifeCycle.Start() {
		log.Warn("Offer pool is already running, no action will be performed")
		return
	}

	started := make(chan struct{})
	go func() {
		defer p.lifeCycle.StopComplete()

		stopCh := p.lifeCycle.StopCh()
		close(started)
		for {
			select {
			case req := <-p.requests:
				req()
			case <-stopCh:
				p.declineAll()
				log.Info("Offer pool stopped")
				return
			}
		}
	}()
	<-started
	log.Info("Offer pool started")
}

// Stop implements Pool.
func (p *pool) Stop() {
	if !p.lifeCycle.Stop() {
		log.Warn("Offer pool is already stopped, no action will be performed")
		return
	}
	p.lifeCycle.Wait()
}

// do runs fn on the pool goroutine and waits for it. A panic in fn is
// returned as an error.
func (p *pool) do(fn func()) error {
	done := make(chan struct{})
	var panicErr error
	req := func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				p.metrics.Panics.Inc(1)
				panicErr = errors.Errorf("offer pool request panicked: %v", r)
			}
		}()
		fn()
	}

	select {
	case p.requests <- req:
	case <-p.lifeCycle.StopCh():
		return ErrPoolStopped
	}
	<-done
	return panicErr
}

// Receive implements Pool.
func (p *pool) Receive(offer *api.Offer) {
	if offer == nil {
		return
	}
	err := p.do(func() { p.receive(offer) })
	if err == ErrPoolStopped {
		log.WithField("offer_id", offer.ID).
			Info("Offer pool is not running, declining offer")
		p.declineWithDriver(offer.ID)
	}
}

// Remove implements Pool.
func (p *pool) Remove(offerID api.OfferID) {
	p.do(func() {
		if p.remove(offerID) {
			p.metrics.Removed.Inc(1)
		}
	})
}

// Decline implements Pool.
func (p *pool) Decline(offerID api.OfferID) {
	p.do(func() { p.decline(offerID) })
}

// LaunchFirst implements Pool.
func (p *pool) LaunchFirst(ctx context.Context, match MatchFunc) (bool, error) {
	var launched bool
	var launchErr error
	err := p.do(func() {
		launched, launchErr = p.launchFirst(ctx, match)
	})
	if err != nil {
		return false, err
	}
	return launched, launchErr
}

// GetAll implements Pool.
func (p *pool) GetAll() []*api.Offer {
	var result []*api.Offer
	p.do(func() {
		result = make([]*api.Offer, 0, len(p.offers))
		for _, o := range p.offers {
			c := *o
			result = append(result, &c)
		}
	})
	return result
}

// The methods below run on the pool goroutine.

func (p *pool) receive(offer *api.Offer) {
	p.metrics.Received.Inc(1)

	var sameAgent []api.OfferID
	for _, o := range p.offers {
		if o.ID == offer.ID {
			p.metrics.Duplicate.Inc(1)
			log.WithField("offer_id", offer.ID).Warn("Ignoring duplicate offer")
			return
		}
		if o.AgentID == offer.AgentID {
			sameAgent = append(sameAgent, o.ID)
		}
	}

	if len(sameAgent) == 0 {
		held := *offer
		p.offers = append(p.offers, &held)
		p.updateGauge()

		delay := p.returnDelay.Get()
		log.WithFields(log.Fields{
			"offer_id": offer.ID,
			"agent_id": offer.AgentID,
			"hold_for": delay,
		}).Debug("Holding offer")
		p.timer.Schedule(delay, func() { p.expire(offer.ID) })
		return
	}

	log.WithFields(log.Fields{
		"agent_id": offer.AgentID,
		"offers":   len(sameAgent) + 1,
	}).Info("Returning offers for compaction")
	p.metrics.Compacted.Inc(int64(len(sameAgent) + 1))
	p.decline(offer.ID)
	for _, id := range sameAgent {
		p.decline(id)
	}
}

// expire runs on the timer, and declines the offer if it is still held.
func (p *pool) expire(offerID api.OfferID) {
	p.do(func() {
		if !p.holds(offerID) {
			return
		}
		p.metrics.Expired.Inc(1)
		p.decline(offerID)
	})
}

func (p *pool) holds(offerID api.OfferID) bool {
	for _, o := range p.offers {
		if o.ID == offerID {
			return true
		}
	}
	return false
}

// remove returns true if the offer was held.
func (p *pool) remove(offerID api.OfferID) bool {
	for i, o := range p.offers {
		if o.ID != offerID {
			continue
		}
		offers := make([]*api.Offer, 0, len(p.offers)-1)
		offers = append(offers, p.offers[:i]...)
		p.offers = append(offers, p.offers[i+1:]...)
		p.updateGauge()
		return true
	}
	return false
}

func (p *pool) decline(offerID api.OfferID) {
	p.remove(offerID)
	p.declineWithDriver(offerID)
}

func (p *pool) declineWithDriver(offerID api.OfferID) error {
	log.WithField("offer_id", offerID).Debug("Declining offer")
	p.metrics.Declined.Inc(1)
	if err := p.driver.DeclineOffer(context.Background(), offerID); err != nil {
		log.WithError(err).
			WithField("offer_id", offerID).
			Warn("Failed to decline offer")
		return err
	}
	return nil
}

func (p *pool) declineAll() {
	var errs error
	for _, o := range p.offers {
		errs = multierr.Append(errs, p.declineWithDriver(o.ID))
	}
	if errs != nil {
		log.WithError(errs).Error("Failed to decline offers on stop")
	}
	p.offers = nil
	p.updateGauge()
}

func (p *pool) launchFirst(ctx context.Context, match MatchFunc) (bool, error) {
	for _, o := range p.offers {
		info, ok := match(o)
		if !ok || info == nil {
			continue
		}

		if err := p.driver.LaunchTask(ctx, o.ID, info); err != nil {
			p.metrics.LaunchFail.Inc(1)
			return false, &LaunchError{
				OfferID: o.ID,
				TaskID:  info.TaskID,
				Err:     err,
			}
		}

		p.metrics.Launched.Inc(1)
		log.WithFields(log.Fields{
			"offer_id": o.ID,
			"task_id":  info.TaskID,
		}).Info("Launched task")
		p.remove(o.ID)
		return true, nil
	}
	return false, nil
}

func (p *pool) updateGauge() {
	p.metrics.OutstandingOffers.Update(float64(len(p.offers)))
}
