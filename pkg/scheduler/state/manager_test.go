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

package state

import (
	"context"
	"testing"
	"time"

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/scheduler/events"
	"github.com/lorilorr/aurora/pkg/storage"
	"github.com/lorilorr/aurora/pkg/storage/memdb"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc/yarpcerrors"
)

type ManagerTestSuite struct {
	suite.Suite

	ctx     context.Context
	clock   clockwork.FakeClock
	bus     *events.Bus
	store   *memdb.Store
	manager *Manager
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (s *ManagerTestSuite) SetupTest() {
	s.setup(Config{})
}

func (s *ManagerTestSuite) setup(cfg Config) {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Unix(1000, 0))
	s.bus = events.NewBus(tally.NoopScope)

	var err error
	s.store, err = memdb.New(s.bus, tally.NoopScope)
	s.Require().NoError(err)
	s.manager = NewManager(s.store, cfg, s.clock, tally.NoopScope)
	s.bus.Register(s.manager)
}

func (s *ManagerTestSuite) fetch(query storage.TaskQuery) []*api.ScheduledTask {
	var tasks []*api.ScheduledTask
	s.Require().NoError(s.store.Read(s.ctx, func(p storage.StoreProvider) error {
		var err error
		tasks, err = p.TaskStore().FetchTasks(query)
		return err
	}))
	return tasks
}

func (s *ManagerTestSuite) insert(n int) []string {
	var configs []*api.TaskConfig
	for i := 0; i < n; i++ {
		configs = append(configs, &api.TaskConfig{
			JobName:   "job",
			Resources: api.Resources{CPUs: 1},
		})
	}
	ids, err := s.manager.InsertPendingTasks(s.ctx, configs)
	s.Require().NoError(err)
	s.Require().Len(ids, n)
	return ids
}

func (s *ManagerTestSuite) TestInsertPendingTasks() {
	ids := s.insert(2)
	s.NotEqual(ids[0], ids[1])

	tasks := s.fetch(storage.QueryByID(ids...))
	s.Require().Len(tasks, 2)
	for _, t := range tasks {
		s.Equal(api.Pending, t.Status)
		s.Equal("job", t.Config.JobName)
		s.Require().Len(t.Events, 1)
		s.Equal(s.clock.Now(), t.Events[0].Timestamp)
	}
}

func (s *ManagerTestSuite) TestInsertRejectsNilConfig() {
	_, err := s.manager.InsertPendingTasks(s.ctx, []*api.TaskConfig{{}, nil})
	s.True(yarpcerrors.IsInvalidArgument(err))
	s.Empty(s.fetch(storage.TaskQuery{}))
}

func (s *ManagerTestSuite) TestChangeState() {
	ids := s.insert(2)

	var changed int
	s.NoError(s.store.Write(s.ctx, func(p storage.MutableStoreProvider) error {
		var err error
		changed, err = s.manager.ChangeState(
			p, storage.QueryByID(ids[0]).WithStatuses(api.Pending), api.Lost, "lost it")
		return err
	}))
	s.Equal(1, changed)

	task := s.fetch(storage.QueryByID(ids[0]))[0]
	s.Equal(api.Lost, task.Status)
	s.Require().Len(task.Events, 2)
	s.Equal("lost it", task.Events[1].Message)

	s.Equal(api.Pending, s.fetch(storage.QueryByID(ids[1]))[0].Status)
}

func (s *ManagerTestSuite) TestChangeStateSkipsTerminalTasks() {
	ids := s.insert(1)
	s.NoError(s.manager.UpdateStatus(s.ctx, ids[0], api.Finished, ""))

	var changed int
	s.NoError(s.store.Write(s.ctx, func(p storage.MutableStoreProvider) error {
		var err error
		changed, err = s.manager.ChangeState(p, storage.QueryByID(ids[0]), api.Lost, "")
		return err
	}))
	s.Equal(0, changed)
	s.Equal(api.Finished, s.fetch(storage.QueryByID(ids[0]))[0].Status)
}

func (s *ManagerTestSuite) TestChangeStateInvalidStatus() {
	err := s.store.Write(s.ctx, func(p storage.MutableStoreProvider) error {
		_, err := s.manager.ChangeState(p, storage.TaskQuery{}, api.ScheduleStatus("BOGUS"), "")
		return err
	})
	s.True(yarpcerrors.IsInvalidArgument(err))
}

func (s *ManagerTestSuite) TestUpdateStatusNotFound() {
	err := s.manager.UpdateStatus(s.ctx, "missing", api.Running, "")
	s.True(yarpcerrors.IsNotFound(err))
}

func (s *ManagerTestSuite) TestNoReplacementByDefault() {
	ids := s.insert(1)
	s.NoError(s.manager.UpdateStatus(s.ctx, ids[0], api.Lost, ""))

	s.Len(s.fetch(storage.TaskQuery{}), 1)
}

func (s *ManagerTestSuite) TestLostTaskIsReplaced() {
	s.setup(Config{ReplaceLostTasks: true})
	ids := s.insert(1)

	s.NoError(s.manager.UpdateStatus(s.ctx, ids[0], api.Lost, ""))

	pending := s.fetch(storage.QueryByStatus(api.Pending))
	s.Require().Len(pending, 1)
	s.NotEqual(ids[0], pending[0].TaskID)
	s.Equal(ids[0], pending[0].AncestorID)
	s.Equal(0, pending[0].FailureCount)
	s.Equal("job", pending[0].Config.JobName)
}

func (s *ManagerTestSuite) TestFailedTaskReplacedUpToMaxFailures() {
	s.setup(Config{ReplaceLostTasks: true, MaxTaskFailures: 2})
	id := s.insert(1)[0]

	for i := 1; i <= 2; i++ {
		s.NoError(s.manager.UpdateStatus(s.ctx, id, api.Failed, ""))
		pending := s.fetch(storage.QueryByStatus(api.Pending))
		s.Require().Len(pending, 1)
		s.Equal(id, pending[0].AncestorID)
		s.Equal(i, pending[0].FailureCount)
		id = pending[0].TaskID
	}

	s.NoError(s.manager.UpdateStatus(s.ctx, id, api.Failed, ""))
	s.Empty(s.fetch(storage.QueryByStatus(api.Pending)))
}

func (s *ManagerTestSuite) TestReportTaskStats() {
	scope := tally.NewTestScope("", nil)
	s.manager = NewManager(s.store, Config{}, s.clock, scope)

	ids := s.insert(3)
	s.Require().NoError(s.manager.UpdateStatus(s.ctx, ids[0], api.Running, ""))

	s.manager.ReportTaskStats(s.ctx)

	gauges := scope.Snapshot().Gauges()
	s.Equal(2.0, gauges["state.tasks+status=pending"].Value())
	s.Equal(1.0, gauges["state.tasks+status=running"].Value())
	s.Equal(0.0, gauges["state.tasks+status=lost"].Value())
}
