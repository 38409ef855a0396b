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

package api

import (
	"time"
)

// ScheduleStatus is the state of a task.
type ScheduleStatus string

// Task states.
const (
	Pending  ScheduleStatus = "PENDING"
	Assigned ScheduleStatus = "ASSIGNED"
	Starting ScheduleStatus = "STARTING"
	Running  ScheduleStatus = "RUNNING"
	Finished ScheduleStatus = "FINISHED"
	Failed   ScheduleStatus = "FAILED"
	Killed   ScheduleStatus = "KILLED"
	Lost     ScheduleStatus = "LOST"
)

// AllStatuses lists every task state.
var AllStatuses = []ScheduleStatus{
	Pending, Assigned, Starting, Running, Finished, Failed, Killed, Lost,
}

var _terminalStatuses = map[ScheduleStatus]bool{
	Finished: true,
	Failed:   true,
	Killed:   true,
	Lost:     true,
}

// IsTerminal returns true if no further transition is possible from s.
func (s ScheduleStatus) IsTerminal() bool {
	return _terminalStatuses[s]
}

// IsValid returns true for the known states.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case Pending, Assigned, Starting, Running:
		return true
	}
	return s.IsTerminal()
}

// TaskConfig describes what to run and what it needs.
type TaskConfig struct {
	JobName   string    `json:"jobName" yaml:"job_name"`
	Owner     string    `json:"owner" yaml:"owner"`
	Command   string    `json:"command" yaml:"command"`
	Resources Resources `json:"resources" yaml:"resources"`
	// Hostname, when set, restricts the task to offers from that host.
	Hostname string `json:"hostname,omitempty" yaml:"hostname"`
}

// TaskEvent records a state transition of a task.
type TaskEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    ScheduleStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
}

// ScheduledTask is a task as held by the task store.
type ScheduledTask struct {
	TaskID string         `json:"taskId"`
	Status ScheduleStatus `json:"status"`
	Config TaskConfig     `json:"config"`
	// AncestorID is the task this one replaced, if any.
	AncestorID   string      `json:"ancestorId,omitempty"`
	FailureCount int         `json:"failureCount"`
	Events       []TaskEvent `json:"events,omitempty"`
}

// Copy returns a deep copy of the task.
func (t *ScheduledTask) Copy() *ScheduledTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.Events != nil {
		c.Events = make([]TaskEvent, len(t.Events))
		copy(c.Events, t.Events)
	}
	return &c
}
