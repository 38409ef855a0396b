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

// Request and response bodies of the scheduler RPC procedures.

// OffersRequest carries new offers from the resource manager.
type OffersRequest struct {
	Offers []*Offer `json:"offers"`
}

// OffersResponse is empty.
type OffersResponse struct{}

// RescindRequest cancels a previously sent offer.
type RescindRequest struct {
	OfferID OfferID `json:"offerId"`
}

// RescindResponse is empty.
type RescindResponse struct{}

// AddTasksRequest adds pending tasks.
type AddTasksRequest struct {
	Tasks []*TaskConfig `json:"tasks"`
}

// AddTasksResponse returns the IDs given to the new tasks.
type AddTasksResponse struct {
	TaskIDs []string `json:"taskIds"`
}

// StatusUpdateRequest reports a task state change observed by the
// resource manager.
type StatusUpdateRequest struct {
	TaskID  string         `json:"taskId"`
	Status  ScheduleStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// StatusUpdateResponse is empty.
type StatusUpdateResponse struct{}

// GetOffersRequest is empty.
type GetOffersRequest struct{}

// GetOffersResponse lists the offers held by the scheduler.
type GetOffersResponse struct {
	Offers []*Offer `json:"offers"`
}

// GetTasksRequest filters tasks. Empty fields match everything.
type GetTasksRequest struct {
	TaskIDs  []string         `json:"taskIds,omitempty"`
	Statuses []ScheduleStatus `json:"statuses,omitempty"`
}

// GetTasksResponse lists the matching tasks.
type GetTasksResponse struct {
	Tasks []*ScheduledTask `json:"tasks"`
}

// LaunchTaskRequest asks the resource manager to launch a task.
type LaunchTaskRequest struct {
	OfferID OfferID   `json:"offerId"`
	Task    *TaskInfo `json:"task"`
}

// LaunchTaskResponse is empty.
type LaunchTaskResponse struct{}

// DeclineOfferRequest returns an offer to the resource manager.
type DeclineOfferRequest struct {
	OfferID OfferID `json:"offerId"`
}

// DeclineOfferResponse is empty.
type DeclineOfferResponse struct{}
