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

package inbound

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/api/transport/transporttest"
	"golang.org/x/time/rate"
)

type RateLimiterTestSuite struct {
	suite.Suite

	ctrl  *gomock.Controller
	scope tally.TestScope
}

func TestRateLimiterTestSuite(t *testing.T) {
	suite.Run(t, new(RateLimiterTestSuite))
}

func (s *RateLimiterTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.scope = tally.NewTestScope("", nil)
}

func (s *RateLimiterTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RateLimiterTestSuite) newLimiter(cfg RateLimitConfig) *RateLimiter {
	r, err := NewRateLimiter(cfg, s.scope)
	s.Require().NoError(err)
	return r
}

func (s *RateLimiterTestSuite) TestFirstMatchApplies() {
	r := s.newLimiter(RateLimitConfig{
		Enabled: true,
		Procedures: []ProcedureLimit{
			{Procedure: "Scheduler::offers", Limit: Limit{Rate: rate.Inf, Burst: 1}},
			{Procedure: "Scheduler::get*", Limit: Limit{Rate: rate.Inf, Burst: 1}},
			{Procedure: "Scheduler::*", Limit: Limit{Rate: 0, Burst: 0}},
			{Procedure: "Health::*", Limit: Limit{Rate: -1}},
		},
		// anything else is rejected
		Default: &Limit{Rate: 0, Burst: 0},
	})

	tests := []struct {
		procedure string
		allow     bool
	}{
		{"Scheduler::offers", true},
		{"Scheduler::getOffers", true},
		{"Scheduler::getTasks", true},
		{"Scheduler::addTasks", false},
		{"Scheduler::rescind", false},
		{"Health::check", true},
		{"Other::offers", false},
	}
	for _, tt := range tests {
		s.Equal(tt.allow, r.allow(tt.procedure), tt.procedure)
	}

	counters := s.scope.Snapshot().Counters()
	s.Equal(int64(1),
		counters["rate_limit.rejected+procedure=Scheduler__addTasks"].Value())
	s.Equal(int64(1),
		counters["rate_limit.rejected+procedure=Other__offers"].Value())
}

func (s *RateLimiterTestSuite) TestNoDefaultMeansNoLimit() {
	r := s.newLimiter(RateLimitConfig{Enabled: true})
	for i := 0; i < 100; i++ {
		s.True(r.allow("Scheduler::offers"))
	}
}

func (s *RateLimiterTestSuite) TestDisabledAllowsAll() {
	r := s.newLimiter(RateLimitConfig{Default: &Limit{Rate: 0, Burst: 0}})
	s.True(r.allow("Scheduler::offers"))
}

func (s *RateLimiterTestSuite) TestInvalidProcedure() {
	for _, p := range []string{"", "Scheduler::*get", "*::*"} {
		_, err := NewRateLimiter(RateLimitConfig{
			Enabled:    true,
			Procedures: []ProcedureLimit{{Procedure: p}},
		}, s.scope)
		s.Error(err, p)
	}
}

func (s *RateLimiterTestSuite) TestHandle() {
	r := s.newLimiter(RateLimitConfig{
		Enabled: true,
		Default: &Limit{Rate: rate.Inf, Burst: 1},
		Procedures: []ProcedureLimit{
			{Procedure: "Scheduler::addTasks", Limit: Limit{Rate: 0, Burst: 0}},
		},
	})
	h := transporttest.NewMockUnaryHandler(s.ctrl)

	h.EXPECT().Handle(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.NoError(r.Handle(context.Background(),
		&transport.Request{Procedure: "Scheduler::offers"}, nil, h))

	s.Equal(ErrRateLimited, r.Handle(context.Background(),
		&transport.Request{Procedure: "Scheduler::addTasks"}, nil, h))
}

func (s *RateLimiterTestSuite) TestHandleOneway() {
	r := s.newLimiter(RateLimitConfig{
		Enabled: true,
		Default: &Limit{Rate: 0, Burst: 0},
	})
	h := transporttest.NewMockOnewayHandler(s.ctrl)

	s.Equal(ErrRateLimited, r.HandleOneway(context.Background(),
		&transport.Request{Procedure: "Scheduler::offers"}, h))
}
