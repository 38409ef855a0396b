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
	"strings"

	"github.com/uber-go/tally"
	"go.uber.org/net/metrics"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/yarpcerrors"
)

const _unknownError = "unknown"

// ProcedureMetrics is an inbound middleware counting calls and their
// errors, and timing calls, per procedure.
type ProcedureMetrics struct {
	scope tally.Scope
}

// NewProcedureMetrics returns a ProcedureMetrics reporting to the
// "inbound" subscope.
func NewProcedureMetrics(scope tally.Scope) *ProcedureMetrics {
	return &ProcedureMetrics{scope: scope.SubScope("inbound")}
}

// Handle implements transport.UnaryInboundMiddleware.
func (m *ProcedureMetrics) Handle(
	ctx context.Context,
	req *transport.Request,
	resw transport.ResponseWriter,
	h transport.UnaryHandler) error {
	scope := m.procedureScope(req.Procedure)
	scope.Counter("calls").Inc(1)
	sw := scope.Timer("latency").Start()
	err := h.Handle(ctx, req, resw)
	sw.Stop()
	m.record(scope, err)
	return err
}

// HandleOneway implements transport.OnewayInboundMiddleware.
func (m *ProcedureMetrics) HandleOneway(
	ctx context.Context,
	req *transport.Request,
	h transport.OnewayHandler) error {
	scope := m.procedureScope(req.Procedure)
	scope.Counter("calls").Inc(1)
	err := h.HandleOneway(ctx, req)
	m.record(scope, err)
	return err
}

func (m *ProcedureMetrics) procedureScope(procedure string) tally.Scope {
	return m.scope.Tagged(metrics.Tags{
		"procedure": metricsProcedure(procedure),
	})
}

func (m *ProcedureMetrics) record(scope tally.Scope, err error) {
	if err == nil {
		return
	}
	scope.Tagged(metrics.Tags{"error": errorCode(err)}).Counter("errors").Inc(1)
}

func errorCode(err error) string {
	if yarpcerrors.IsStatus(err) {
		return yarpcerrors.FromError(err).Code().String()
	}
	return _unknownError
}

// metricsProcedure replaces "::", which some metric backends reserve.
func metricsProcedure(procedure string) string {
	return strings.Replace(procedure, "::", "__", 1)
}
