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

// Package api holds the types exchanged between the scheduler, the task
// store and the resource manager.
package api

// OfferID identifies a resource offer.
type OfferID string

// AgentID identifies the agent (host) an offer was made for.
type AgentID string

// Resources is an amount of resources, offered by an agent or required by
// a task.
type Resources struct {
	CPUs   float64 `json:"cpus" yaml:"cpus"`
	MemMB  float64 `json:"memMb" yaml:"mem_mb"`
	DiskMB float64 `json:"diskMb" yaml:"disk_mb"`
}

// Contains returns true if r has at least the resources in other.
func (r Resources) Contains(other Resources) bool {
	return r.CPUs >= other.CPUs &&
		r.MemMB >= other.MemMB &&
		r.DiskMB >= other.DiskMB
}

// Offer is a perishable grant of resources on one agent. Offers are never
// modified once received.
type Offer struct {
	ID        OfferID   `json:"id"`
	AgentID   AgentID   `json:"agentId"`
	Hostname  string    `json:"hostname"`
	Resources Resources `json:"resources"`
}

// TaskInfo is what the resource manager needs to launch a task on an
// offer.
type TaskInfo struct {
	TaskID    string    `json:"taskId"`
	Name      string    `json:"name"`
	AgentID   AgentID   `json:"agentId"`
	Resources Resources `json:"resources"`
	Command   string    `json:"command"`
}
