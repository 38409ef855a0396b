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
	"sync"

	"github.com/lorilorr/aurora/pkg/api"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// TaskStateChange announces a committed task state transition. OldState
// is empty for a newly inserted task.
type TaskStateChange struct {
	TaskID   string
	OldState api.ScheduleStatus
	NewState api.ScheduleStatus
	// Task is a copy of the task after the transition.
	Task *api.ScheduledTask
}

// StorageStarted announces the task store is ready for use. It is
// published once per process.
type StorageStarted struct{}

// Subscriber receives events. Events are delivered synchronously on the
// publishing goroutine, in publishing order, so subscribers must not
// block.
type Subscriber interface {
	TaskChangedState(e TaskStateChange)
	StorageStarted(e StorageStarted)
}

// SubscriberFuncs adapts functions to a Subscriber. Nil functions ignore
// their event.
type SubscriberFuncs struct {
	OnTaskChangedState func(e TaskStateChange)
	OnStorageStarted   func(e StorageStarted)
}

// TaskChangedState implements Subscriber.
func (f SubscriberFuncs) TaskChangedState(e TaskStateChange) {
	if f.OnTaskChangedState != nil {
		f.OnTaskChangedState(e)
	}
}

// StorageStarted implements Subscriber.
func (f SubscriberFuncs) StorageStarted(e StorageStarted) {
	if f.OnStorageStarted != nil {
		f.OnStorageStarted(e)
	}
}

// Bus fans events out to every registered subscriber, in registration
// order. A panicking subscriber is logged and skipped.
type Bus struct {
	sync.RWMutex
	subscribers []Subscriber

	published tally.Counter
	panics    tally.Counter
}

// NewBus returns a Bus with no subscriber.
func NewBus(scope tally.Scope) *Bus {
	return &Bus{
		published: scope.Counter("published"),
		panics:    scope.Counter("subscriber_panics"),
	}
}

// Register adds a subscriber. Subscribers should be registered before
// events are published, they miss everything published before.
func (b *Bus) Register(s Subscriber) {
	b.Lock()
	defer b.Unlock()

	b.subscribers = append(b.subscribers, s)
}

// TaskChangedState implements Subscriber.
func (b *Bus) TaskChangedState(e TaskStateChange) {
	b.publish(func(s Subscriber) { s.TaskChangedState(e) })
}

// StorageStarted implements Subscriber.
func (b *Bus) StorageStarted(e StorageStarted) {
	b.publish(func(s Subscriber) { s.StorageStarted(e) })
}

func (b *Bus) publish(deliver func(Subscriber)) {
	b.RLock()
	subscribers := make([]Subscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.RUnlock()

	b.published.Inc(1)
	for _, s := range subscribers {
		b.deliver(s, deliver)
	}
}

func (b *Bus) deliver(s Subscriber, deliver func(Subscriber)) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Inc(1)
			log.WithField("panic", r).Error("Event subscriber panicked")
		}
	}()
	deliver(s)
}
