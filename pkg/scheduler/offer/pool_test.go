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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/common/timer/timertest"
	driver_mocks "github.com/lorilorr/aurora/pkg/scheduler/driver/mocks"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"
	"go.uber.org/goleak"
)

const _returnDelay = 5 * time.Minute

type PoolTestSuite struct {
	suite.Suite

	ctx    context.Context
	ctrl   *gomock.Controller
	driver *driver_mocks.MockDriver
	timer  *timertest.ManualScheduler
	scope  tally.TestScope
	pool   Pool
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (s *PoolTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.driver = driver_mocks.NewMockDriver(s.ctrl)
	s.timer = timertest.NewManualScheduler()
	s.scope = tally.NewTestScope("", nil)
	s.pool = NewPool(s.driver, NewFixedReturnDelay(_returnDelay), s.timer, s.scope)
	s.pool.Start()
}

func (s *PoolTestSuite) TearDownTest() {
	// Offers still held are declined on stop.
	s.driver.EXPECT().DeclineOffer(gomock.Any(), gomock.Any()).AnyTimes()
	s.pool.Stop()
	s.ctrl.Finish()
	goleak.VerifyNone(s.T())
}

func newOffer(id, agent string) *api.Offer {
	return &api.Offer{
		ID:        api.OfferID(id),
		AgentID:   api.AgentID(agent),
		Hostname:  agent,
		Resources: api.Resources{CPUs: 1, MemMB: 1024},
	}
}

func offerIDs(offers []*api.Offer) []api.OfferID {
	ids := make([]api.OfferID, 0, len(offers))
	for _, o := range offers {
		ids = append(ids, o.ID)
	}
	return ids
}

func (s *PoolTestSuite) counter(name string) int64 {
	c, ok := s.scope.Snapshot().Counters()["offer_pool."+name+"+"]
	if !ok {
		return 0
	}
	return c.Value()
}

// matchOffer accepts only the given offer.
func matchOffer(id api.OfferID) MatchFunc {
	return func(o *api.Offer) (*api.TaskInfo, bool) {
		if o.ID != id {
			return nil, false
		}
		return &api.TaskInfo{TaskID: "t1", AgentID: o.AgentID}, true
	}
}

func (s *PoolTestSuite) TestReceiveKeepsReceiptOrder() {
	for i := 0; i < 5; i++ {
		s.pool.Receive(newOffer(fmt.Sprintf("o%d", i), fmt.Sprintf("agent-%d", i)))
	}

	s.Equal(
		[]api.OfferID{"o0", "o1", "o2", "o3", "o4"},
		offerIDs(s.pool.GetAll()))
	s.Equal(
		[]time.Duration{_returnDelay, _returnDelay, _returnDelay, _returnDelay, _returnDelay},
		s.timer.Delays())
	s.Equal(int64(5), s.counter("offers_received"))
}

func (s *PoolTestSuite) TestReceiveCompactsSameAgent() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o2", "agent-2"))

	gomock.InOrder(
		s.driver.EXPECT().DeclineOffer(gomock.Any(), api.OfferID("o3")),
		s.driver.EXPECT().DeclineOffer(gomock.Any(), api.OfferID("o1")),
	)
	s.pool.Receive(newOffer("o3", "agent-1"))

	s.Equal([]api.OfferID{"o2"}, offerIDs(s.pool.GetAll()))
	s.Equal(int64(2), s.counter("offers_compacted"))
}

func (s *PoolTestSuite) TestReceiveIgnoresDuplicate() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o1", "agent-1"))

	s.Equal([]api.OfferID{"o1"}, offerIDs(s.pool.GetAll()))
	s.Equal(1, s.timer.Len())
	s.Equal(int64(1), s.counter("offers_duplicate"))
}

func (s *PoolTestSuite) TestGetAllReturnsCopy() {
	s.pool.Receive(newOffer("o1", "agent-1"))

	offers := s.pool.GetAll()
	offers[0].ID = "changed"

	s.Equal([]api.OfferID{"o1"}, offerIDs(s.pool.GetAll()))
}

func (s *PoolTestSuite) TestRemoveIsIdempotent() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o2", "agent-2"))

	s.pool.Remove("o1")
	s.pool.Remove("o1")
	s.pool.Remove("unknown")

	s.Equal([]api.OfferID{"o2"}, offerIDs(s.pool.GetAll()))
	s.Equal(int64(1), s.counter("offers_removed"))
}

func (s *PoolTestSuite) TestDeclineRemovesThenDeclines() {
	s.pool.Receive(newOffer("o1", "agent-1"))

	s.driver.EXPECT().
		DeclineOffer(gomock.Any(), api.OfferID("o1")).
		Return(errors.New("driver down"))
	s.pool.Decline("o1")

	s.Empty(s.pool.GetAll())
}

func (s *PoolTestSuite) TestLaunchFirstNoOffers() {
	called := false
	launched, err := s.pool.LaunchFirst(s.ctx, func(*api.Offer) (*api.TaskInfo, bool) {
		called = true
		return nil, false
	})

	s.NoError(err)
	s.False(launched)
	s.False(called)
}

func (s *PoolTestSuite) TestLaunchFirstNoMatch() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o2", "agent-2"))

	var evaluated []api.OfferID
	launched, err := s.pool.LaunchFirst(s.ctx, func(o *api.Offer) (*api.TaskInfo, bool) {
		evaluated = append(evaluated, o.ID)
		return nil, false
	})

	s.NoError(err)
	s.False(launched)
	s.Equal([]api.OfferID{"o1", "o2"}, evaluated)
	s.Equal([]api.OfferID{"o1", "o2"}, offerIDs(s.pool.GetAll()))
}

func (s *PoolTestSuite) TestLaunchFirstNilPayloadIsNoMatch() {
	s.pool.Receive(newOffer("o1", "agent-1"))

	// No launch is expected by the mock.
	launched, err := s.pool.LaunchFirst(s.ctx, func(*api.Offer) (*api.TaskInfo, bool) {
		return nil, true
	})
	s.NoError(err)
	s.False(launched)
	s.Equal([]api.OfferID{"o1"}, offerIDs(s.pool.GetAll()))
	s.Equal(int64(0), s.counter("offers_launched"))
}

func (s *PoolTestSuite) TestLaunchFirstConsumesMatchedOffer() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o2", "agent-2"))
	s.pool.Receive(newOffer("o3", "agent-3"))

	s.driver.EXPECT().
		LaunchTask(gomock.Any(), api.OfferID("o2"), &api.TaskInfo{TaskID: "t1", AgentID: "agent-2"}).
		Return(nil)
	launched, err := s.pool.LaunchFirst(s.ctx, matchOffer("o2"))

	s.NoError(err)
	s.True(launched)
	s.Equal([]api.OfferID{"o1", "o3"}, offerIDs(s.pool.GetAll()))
	s.Equal(int64(1), s.counter("offers_launched"))
}

func (s *PoolTestSuite) TestLaunchFirstPrefersEarliestOffer() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o2", "agent-2"))

	s.driver.EXPECT().LaunchTask(gomock.Any(), api.OfferID("o1"), gomock.Any()).Return(nil)
	launched, err := s.pool.LaunchFirst(s.ctx, func(o *api.Offer) (*api.TaskInfo, bool) {
		return &api.TaskInfo{TaskID: "t1"}, true
	})

	s.NoError(err)
	s.True(launched)
	s.Equal([]api.OfferID{"o2"}, offerIDs(s.pool.GetAll()))
}

func (s *PoolTestSuite) TestLaunchFirstDriverFailureKeepsOffer() {
	s.pool.Receive(newOffer("o1", "agent-1"))

	driverErr := errors.New("launch rejected")
	s.driver.EXPECT().LaunchTask(gomock.Any(), api.OfferID("o1"), gomock.Any()).Return(driverErr)
	launched, err := s.pool.LaunchFirst(s.ctx, matchOffer("o1"))

	s.False(launched)
	var launchErr *LaunchError
	s.Require().True(errors.As(err, &launchErr))
	s.Equal(api.OfferID("o1"), launchErr.OfferID)
	s.Equal("t1", launchErr.TaskID)
	s.Equal(driverErr, errors.Cause(err))
	s.Equal([]api.OfferID{"o1"}, offerIDs(s.pool.GetAll()))
	s.Equal(int64(1), s.counter("launch_failed"))
}

func (s *PoolTestSuite) TestLaunchFirstMatchPanics() {
	s.pool.Receive(newOffer("o1", "agent-1"))

	launched, err := s.pool.LaunchFirst(s.ctx, func(*api.Offer) (*api.TaskInfo, bool) {
		panic("bad match")
	})
	s.False(launched)
	s.Error(err)
	var launchErr *LaunchError
	s.False(errors.As(err, &launchErr))

	// The pool keeps serving.
	s.Equal([]api.OfferID{"o1"}, offerIDs(s.pool.GetAll()))
}

func (s *PoolTestSuite) TestExpiryDeclinesHeldOffer() {
	s.pool.Receive(newOffer("o1", "agent-1"))

	s.driver.EXPECT().DeclineOffer(gomock.Any(), api.OfferID("o1"))
	delay, ok := s.timer.FireNext()
	s.True(ok)
	s.Equal(_returnDelay, delay)

	s.Empty(s.pool.GetAll())
	s.Equal(int64(1), s.counter("offers_expired"))
}

func (s *PoolTestSuite) TestExpiryOfUsedOfferIsNoop() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.driver.EXPECT().LaunchTask(gomock.Any(), api.OfferID("o1"), gomock.Any()).Return(nil)
	launched, err := s.pool.LaunchFirst(s.ctx, matchOffer("o1"))
	s.NoError(err)
	s.True(launched)

	// No decline is expected by the mock.
	s.timer.FireNext()
	s.Equal(int64(0), s.counter("offers_expired"))
}

func (s *PoolTestSuite) TestStopDeclinesHeldOffers() {
	s.pool.Receive(newOffer("o1", "agent-1"))
	s.pool.Receive(newOffer("o2", "agent-2"))

	gomock.InOrder(
		s.driver.EXPECT().DeclineOffer(gomock.Any(), api.OfferID("o1")),
		s.driver.EXPECT().DeclineOffer(gomock.Any(), api.OfferID("o2")),
	)
	s.pool.Stop()
	s.Empty(s.pool.GetAll())
}

func (s *PoolTestSuite) TestStoppedPool() {
	s.pool.Stop()

	s.driver.EXPECT().DeclineOffer(gomock.Any(), api.OfferID("o1"))
	s.pool.Receive(newOffer("o1", "agent-1"))

	launched, err := s.pool.LaunchFirst(s.ctx, matchOffer("o1"))
	s.False(launched)
	s.Equal(ErrPoolStopped, err)

	// Requests to a stopped pool are dropped.
	s.pool.Remove("o1")
	s.pool.Decline("o1")
	s.Nil(s.pool.GetAll())

	s.pool.Start()
	s.Empty(s.pool.GetAll())
}

func (s *PoolTestSuite) TestConcurrentReceive() {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.pool.Receive(newOffer(fmt.Sprintf("o%d", i), fmt.Sprintf("agent-%d", i)))
		}(i)
	}
	wg.Wait()

	s.Len(s.pool.GetAll(), 50)
	s.Equal(50, s.timer.Len())
}

func TestFixedReturnDelay(t *testing.T) {
	d := NewFixedReturnDelay(time.Minute)
	for i := 0; i < 3; i++ {
		if d.Get() != time.Minute {
			t.Fatalf("expected a fixed delay, got %v", d.Get())
		}
	}
}

func TestJitterReturnDelay(t *testing.T) {
	d := NewJitterReturnDelay(time.Minute, 10*time.Second)
	for i := 0; i < 100; i++ {
		got := d.Get()
		if got < time.Minute || got >= time.Minute+10*time.Second {
			t.Fatalf("delay %v out of range", got)
		}
	}

	if got := NewJitterReturnDelay(time.Minute, 0).Get(); got != time.Minute {
		t.Fatalf("expected no jitter, got %v", got)
	}
}
