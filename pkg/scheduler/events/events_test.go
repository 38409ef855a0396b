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

package events

import (
	"testing"

	"github.com/lorilorr/aurora/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/uber-go/tally"
)

type recorder struct {
	changes []TaskStateChange
	started int
}

func (r *recorder) TaskChangedState(e TaskStateChange) {
	r.changes = append(r.changes, e)
}

func (r *recorder) StorageStarted(e StorageStarted) {
	r.started++
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(tally.NoopScope)
	var order []string
	bus.Register(SubscriberFuncs{
		OnTaskChangedState: func(e TaskStateChange) { order = append(order, "first:"+e.TaskID) },
	})
	bus.Register(SubscriberFuncs{
		OnTaskChangedState: func(e TaskStateChange) { order = append(order, "second:"+e.TaskID) },
	})

	bus.TaskChangedState(TaskStateChange{TaskID: "t1", NewState: api.Pending})
	bus.TaskChangedState(TaskStateChange{TaskID: "t2", NewState: api.Pending})

	assert.Equal(t, []string{"first:t1", "second:t1", "first:t2", "second:t2"}, order)
}

func TestBusDeliversBothEvents(t *testing.T) {
	bus := NewBus(tally.NoopScope)
	r := &recorder{}
	bus.Register(r)

	bus.StorageStarted(StorageStarted{})
	bus.TaskChangedState(TaskStateChange{
		TaskID:   "t1",
		OldState: api.Pending,
		NewState: api.Lost,
	})

	assert.Equal(t, 1, r.started)
	assert.Len(t, r.changes, 1)
	assert.Equal(t, api.Lost, r.changes[0].NewState)
}

func TestBusSurvivesPanickingSubscriber(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	bus := NewBus(scope)
	r := &recorder{}
	bus.Register(SubscriberFuncs{
		OnStorageStarted: func(StorageStarted) { panic("boom") },
	})
	bus.Register(r)

	bus.StorageStarted(StorageStarted{})

	assert.Equal(t, 1, r.started)
	assert.Equal(t, int64(1), scope.Snapshot().Counters()["subscriber_panics+"].Value())
}

func TestSubscriberFuncsIgnoresNil(t *testing.T) {
	var s Subscriber = SubscriberFuncs{}
	s.TaskChangedState(TaskStateChange{})
	s.StorageStarted(StorageStarted{})
}
