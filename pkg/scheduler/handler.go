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

	"github.com/lorilorr/aurora/pkg/api"
	"github.com/lorilorr/aurora/pkg/storage"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/encoding/json"
	"go.uber.org/yarpc/yarpcerrors"
)

// Procedures served by the scheduler.
const (
	OffersProcedure       = "Scheduler::offers"
	RescindProcedure      = "Scheduler::rescind"
	AddTasksProcedure     = "Scheduler::addTasks"
	StatusUpdateProcedure = "Scheduler::statusUpdate"
	GetOffersProcedure    = "Scheduler::getOffers"
	GetTasksProcedure     = "Scheduler::getTasks"
)

// Registrar registers procedures. It is satisfied by a yarpc.Dispatcher.
type Registrar interface {
	Register([]transport.Procedure)
}

// OfferHandler takes offers in and out of scheduling.
type OfferHandler interface {
	Offer(offers ...*api.Offer)
	CancelOffer(offerID api.OfferID)
	GetOffers() []*api.Offer
}

// TaskManager creates tasks and moves them between states.
type TaskManager interface {
	InsertPendingTasks(ctx context.Context, configs []*api.TaskConfig) ([]string, error)
	UpdateStatus(
		ctx context.Context,
		taskID string,
		status api.ScheduleStatus,
		message string) error
}

type handlerMetrics struct {
	apiOffers       tally.Counter
	apiRescind      tally.Counter
	apiAddTasks     tally.Counter
	addTasks        tally.Counter
	addTasksFail    tally.Counter
	apiStatusUpdate tally.Counter
	statusUpdate    tally.Counter
	statusFail      tally.Counter
	apiGetOffers    tally.Counter
	apiGetTasks     tally.Counter
	getTasksFail    tally.Counter
}

// ServiceHandler serves the scheduler procedures.
type ServiceHandler struct {
	offers  OfferHandler
	tasks   TaskManager
	storage storage.Storage
	metrics handlerMetrics
}

// NewServiceHandler returns a ServiceHandler.
func NewServiceHandler(
	offers OfferHandler,
	tasks TaskManager,
	store storage.Storage,
	parent tally.Scope) *ServiceHandler {
	apiScope := parent.SubScope("api")
	successScope := parent.Tagged(map[string]string{"result": "success"})
	failScope := parent.Tagged(map[string]string{"result": "fail"})

	return &ServiceHandler{
		offers:  offers,
		tasks:   tasks,
		storage: store,
		metrics: handlerMetrics{
			apiOffers:       apiScope.Counter("offers"),
			apiRescind:      apiScope.Counter("rescind"),
			apiAddTasks:     apiScope.Counter("add_tasks"),
			addTasks:        successScope.Counter("add_tasks"),
			addTasksFail:    failScope.Counter("add_tasks"),
			apiStatusUpdate: apiScope.Counter("status_update"),
			statusUpdate:    successScope.Counter("status_update"),
			statusFail:      failScope.Counter("status_update"),
			apiGetOffers:    apiScope.Counter("get_offers"),
			apiGetTasks:     apiScope.Counter("get_tasks"),
			getTasksFail:    failScope.Counter("get_tasks"),
		},
	}
}

// Register registers the procedures of h.
func (h *ServiceHandler) Register(r Registrar) {
	r.Register(json.Procedure(OffersProcedure, h.Offers))
	r.Register(json.Procedure(RescindProcedure, h.Rescind))
	r.Register(json.Procedure(AddTasksProcedure, h.AddTasks))
	r.Register(json.Procedure(StatusUpdateProcedure, h.StatusUpdate))
	r.Register(json.Procedure(GetOffersProcedure, h.GetOffers))
	r.Register(json.Procedure(GetTasksProcedure, h.GetTasks))
}

// Offers hands new offers to the scheduler.
func (h *ServiceHandler) Offers(
	ctx context.Context,
	req *api.OffersRequest) (*api.OffersResponse, error) {
	h.metrics.apiOffers.Inc(1)
	for _, o := range req.Offers {
		if o == nil || o.ID == "" || o.AgentID == "" {
			return nil, yarpcerrors.InvalidArgumentErrorf(
				"offers need an ID and an agent ID")
		}
	}
	h.offers.Offer(req.Offers...)
	return &api.OffersResponse{}, nil
}

// Rescind withdraws an offer.
func (h *ServiceHandler) Rescind(
	ctx context.Context,
	req *api.RescindRequest) (*api.RescindResponse, error) {
	h.metrics.apiRescind.Inc(1)
	if req.OfferID == "" {
		return nil, yarpcerrors.InvalidArgumentErrorf("offer ID is empty")
	}
	log.WithField("offer_id", req.OfferID).Info("Offer rescinded")
	h.offers.CancelOffer(req.OfferID)
	return &api.RescindResponse{}, nil
}

// AddTasks adds pending tasks.
func (h *ServiceHandler) AddTasks(
	ctx context.Context,
	req *api.AddTasksRequest) (*api.AddTasksResponse, error) {
	h.metrics.apiAddTasks.Inc(1)
	if len(req.Tasks) == 0 {
		h.metrics.addTasksFail.Inc(1)
		return nil, yarpcerrors.InvalidArgumentErrorf("no tasks to add")
	}

	ids, err := h.tasks.InsertPendingTasks(ctx, req.Tasks)
	if err != nil {
		h.metrics.addTasksFail.Inc(1)
		log.WithError(err).Error("Failed to add tasks")
		return nil, err
	}
	h.metrics.addTasks.Inc(1)
	return &api.AddTasksResponse{TaskIDs: ids}, nil
}

// StatusUpdate records a task state observed by the resource manager.
func (h *ServiceHandler) StatusUpdate(
	ctx context.Context,
	req *api.StatusUpdateRequest) (*api.StatusUpdateResponse, error) {
	h.metrics.apiStatusUpdate.Inc(1)
	if req.TaskID == "" || !req.Status.IsValid() {
		h.metrics.statusFail.Inc(1)
		return nil, yarpcerrors.InvalidArgumentErrorf(
			"invalid status update %q for task %q", req.Status, req.TaskID)
	}

	err := h.tasks.UpdateStatus(ctx, req.TaskID, req.Status, req.Message)
	if err != nil {
		h.metrics.statusFail.Inc(1)
		log.WithError(err).
			WithFields(log.Fields{
				"task_id": req.TaskID,
				"status":  req.Status,
			}).
			Warn("Failed to update task status")
		return nil, err
	}
	h.metrics.statusUpdate.Inc(1)
	return &api.StatusUpdateResponse{}, nil
}

// GetOffers lists the held offers.
func (h *ServiceHandler) GetOffers(
	ctx context.Context,
	req *api.GetOffersRequest) (*api.GetOffersResponse, error) {
	h.metrics.apiGetOffers.Inc(1)
	return &api.GetOffersResponse{Offers: h.offers.GetOffers()}, nil
}

// GetTasks lists the tasks matching the request.
func (h *ServiceHandler) GetTasks(
	ctx context.Context,
	req *api.GetTasksRequest) (*api.GetTasksResponse, error) {
	h.metrics.apiGetTasks.Inc(1)
	query := storage.QueryByID(req.TaskIDs...).WithStatuses(req.Statuses...)

	var tasks []*api.ScheduledTask
	err := h.storage.Read(ctx, func(store storage.StoreProvider) error {
		var err error
		tasks, err = store.TaskStore().FetchTasks(query)
		return err
	})
	if err != nil {
		h.metrics.getTasksFail.Inc(1)
		return nil, err
	}
	return &api.GetTasksResponse{Tasks: tasks}, nil
}
