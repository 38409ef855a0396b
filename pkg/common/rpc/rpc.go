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

package rpc

import (
	"fmt"
	"net"
	nethttp "net/http"

	"github.com/pkg/errors"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/transport/grpc"
	"go.uber.org/yarpc/transport/http"
)

const (
	// EndpointPath is the HTTP path serving RPCs. Other paths are served
	// by the inbound's mux.
	EndpointPath = "/api/v1"

	// MaxRecvMsgSize is the largest acceptable RPC message size.
	MaxRecvMsgSize = 64 * 1024 * 1024 // 64MB

	// HTTPTransport and GRPCTransport name the supported outbound
	// transports.
	HTTPTransport = "http"
	GRPCTransport = "grpc"
)

// OutboundConfig locates a remote service.
type OutboundConfig struct {
	// Transport is either http or grpc, http being the default.
	Transport string `yaml:"transport"`
	// Address is host:port for grpc, or a base URL for http, the
	// endpoint path being appended.
	Address string `yaml:"address" validate:"nonzero"`
}

// NewGRPCTransport returns a new gRPC transport.
func NewGRPCTransport() *grpc.Transport {
	return grpc.NewTransport(
		grpc.ClientMaxRecvMsgSize(MaxRecvMsgSize),
		grpc.ServerMaxRecvMsgSize(MaxRecvMsgSize),
	)
}

// NewInbounds creates both HTTP and gRPC inbounds for the given ports.
// The HTTP inbound serves RPCs on EndpointPath and everything else with
// mux.
func NewInbounds(
	httpPort int,
	grpcPort int,
	mux *nethttp.ServeMux) ([]transport.Inbound, error) {
	ht := http.NewTransport()
	gt := NewGRPCTransport()

	gl, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return nil, errors.Wrap(err, "failed to listen to gRPC port")
	}

	return []transport.Inbound{
		ht.NewInbound(
			fmt.Sprintf(":%d", httpPort),
			http.Mux(EndpointPath, mux),
		),
		gt.NewInbound(gl),
	}, nil
}

// NewOutbound creates the unary outbound described by cfg.
func NewOutbound(cfg OutboundConfig) (transport.UnaryOutbound, error) {
	switch cfg.Transport {
	case "", HTTPTransport:
		return http.NewTransport().NewSingleOutbound(cfg.Address + EndpointPath), nil
	case GRPCTransport:
		return NewGRPCTransport().NewSingleOutbound(cfg.Address), nil
	default:
		return nil, errors.Errorf("unknown outbound transport %q", cfg.Transport)
	}
}
