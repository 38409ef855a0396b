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

package assign

//go:generate mockgen -destination=mocks/mock_assigner.go -package=mocks github.com/lorilorr/aurora/pkg/scheduler/assign Assigner

import (
	"github.com/lorilorr/aurora/pkg/api"
)

// Assigner decides whether a task fits an offer.
type Assigner interface {
	// MaybeAssign returns what to launch for the task on the offer, or
	// false when the task does not fit. It has no side effect.
	MaybeAssign(offer *api.Offer, task *api.ScheduledTask) (*api.TaskInfo, bool)
}

// ResourceAssigner assigns a task to an offer holding enough resources,
// honoring the task's host constraint.
type ResourceAssigner struct{}

// NewResourceAssigner returns a ResourceAssigner.
func NewResourceAssigner() *ResourceAssigner {
	return &ResourceAssigner{}
}

// MaybeAssign implements Assigner.
func (a *ResourceAssigner) MaybeAssign(
	offer *api.Offer,
	task *api.ScheduledTask) (*api.TaskInfo, bool) {
	if offer == nil || task == nil {
		return nil, false
	}

	cfg := task.Config
	if cfg.Hostname != "" && cfg.Hostname != offer.Hostname {
		return nil, false
	}
	if !offer.Resources.Contains(cfg.Resources) {
		return nil, false
	}

	return &api.TaskInfo{
		TaskID:    task.TaskID,
		Name:      cfg.JobName,
		AgentID:   offer.AgentID,
		Resources: cfg.Resources,
		Command:   cfg.Command,
	}, true
}
