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
	"context"
	"testing"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/scheduler/events"
	"github.com/lorilorr/aurora/pkg/scheduler/state"
	"github.com/lorilorr/aurora/pkg/storage/memdb"

	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/yarpcerrors"
)

type fakeOffers struct {
	offers    []*api.Offer
	cancelled []api.OfferID
}

func (f *fakeOffers) Offer(offers ...*api.Offer) {
	f.offers = append(f.offers, offers...)
}

func (f *fakeOffers) CancelOffer(offerID api.OfferID) {
	f.cancelled = append(f.cancelled, offerID)
}

func (f *fakeOffers) GetOffers() []*api.Offer {
	return f.offers
}

type procedureRecorder struct {
	names []string
}

func (r *procedureRecorder) Register(procedures []transport.Procedure) {
	for _, p := range procedures {
		r.names = append(r.names, p.Name)
	}
}

type HandlerTestSuite struct {
	suite.Suite

	ctx     context.Context
	offers  *fakeOffers
	store   *memdb.Store
	handler *ServiceHandler
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.offers = &fakeOffers{}

	scope := tally.NewTestScope("", nil)
	store, err := memdb.New(events.SubscriberFuncs{}, scope)
	s.Require().NoError(err)
	s.store = store

	manager := state.NewManager(s.store, state.Config{}, nil, scope)
	s.handler = NewServiceHandler(s.offers, manager, s.store, scope)
}

func (s *HandlerTestSuite) TestRegister() {
	r := &procedureRecorder{}
	s.handler.Register(r)
	s.ElementsMatch([]string{
		OffersProcedure,
		RescindProcedure,
		AddTasksProcedure,
		StatusUpdateProcedure,
		GetOffersProcedure,
		GetTasksProcedure,
	}, r.names)
}

func (s *HandlerTestSuite) TestOffers() {
	o := &api.Offer{ID: "o1", AgentID: "a1", Hostname: "h1"}
	_, err := s.handler.Offers(s.ctx, &api.OffersRequest{Offers: []*api.Offer{o}})
	s.NoError(err)

	res, err := s.handler.GetOffers(s.ctx, &api.GetOffersRequest{})
	s.NoError(err)
	s.Equal([]*api.Offer{o}, res.Offers)
}

func (s *HandlerTestSuite) TestOffersInvalid() {
	_, err := s.handler.Offers(s.ctx, &api.OffersRequest{
		Offers: []*api.Offer{{ID: "o1", AgentID: "a1"}, {ID: "o2"}},
	})
	s.True(yarpcerrors.IsInvalidArgument(err))
	s.Empty(s.offers.offers)

	_, err = s.handler.Offers(s.ctx, &api.OffersRequest{Offers: []*api.Offer{nil}})
	s.True(yarpcerrors.IsInvalidArgument(err))
}

func (s *HandlerTestSuite) TestRescind() {
	_, err := s.handler.Rescind(s.ctx, &api.RescindRequest{OfferID: "o1"})
	s.NoError(err)
	s.Equal([]api.OfferID{"o1"}, s.offers.cancelled)

	_, err = s.handler.Rescind(s.ctx, &api.RescindRequest{})
	s.True(yarpcerrors.IsInvalidArgument(err))
}

func (s *HandlerTestSuite) TestAddTasksAndStatusUpdate() {
	res, err := s.handler.AddTasks(s.ctx, &api.AddTasksRequest{
		Tasks: []*api.TaskConfig{
			{JobName: "a", Resources: api.Resources{CPUs: 1}},
			{JobName: "b", Resources: api.Resources{CPUs: 2}},
		},
	})
	s.Require().NoError(err)
	s.Require().Len(res.TaskIDs, 2)

	_, err = s.handler.StatusUpdate(s.ctx, &api.StatusUpdateRequest{
		TaskID:  res.TaskIDs[0],
		Status:  api.Running,
		Message: "started",
	})
	s.NoError(err)

	running, err := s.handler.GetTasks(s.ctx, &api.GetTasksRequest{
		Statuses: []api.ScheduleStatus{api.Running},
	})
	s.Require().NoError(err)
	s.Require().Len(running.Tasks, 1)
	s.Equal(res.TaskIDs[0], running.Tasks[0].TaskID)
	s.Equal("a", running.Tasks[0].Config.JobName)

	all, err := s.handler.GetTasks(s.ctx, &api.GetTasksRequest{})
	s.Require().NoError(err)
	s.Len(all.Tasks, 2)
}

func (s *HandlerTestSuite) TestAddTasksInvalid() {
	_, err := s.handler.AddTasks(s.ctx, &api.AddTasksRequest{})
	s.True(yarpcerrors.IsInvalidArgument(err))

	_, err = s.handler.AddTasks(s.ctx, &api.AddTasksRequest{
		Tasks: []*api.TaskConfig{nil},
	})
	s.True(yarpcerrors.IsInvalidArgument(err))
}

func (s *HandlerTestSuite) TestStatusUpdateErrors() {
	_, err := s.handler.StatusUpdate(s.ctx, &api.StatusUpdateRequest{
		TaskID: "t1",
		Status: "BOGUS",
	})
	s.True(yarpcerrors.IsInvalidArgument(err))

	_, err = s.handler.StatusUpdate(s.ctx, &api.StatusUpdateRequest{
		TaskID: "missing",
		Status: api.Running,
	})
	s.True(yarpcerrors.IsNotFound(err))
}
