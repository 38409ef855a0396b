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

package main

import (
	"github.com/lorilorr/aurora/pkg/common/health"
	"github.com/lorilorr/aurora/pkg/common/logging"
	"github.com/lorilorr/aurora/pkg/common/metrics"
	"github.com/lorilorr/aurora/pkg/common/rpc"
	"github.com/lorilorr/aurora/pkg/middleware/inbound"
	"github.com/lorilorr/aurora/pkg/scheduler"
	"github.com/lorilorr/aurora/pkg/scheduler/driver"
	"github.com/lorilorr/aurora/pkg/scheduler/state"
)

// ServerConfig holds the ports the scheduler listens on.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" validate:"nonzero"`
	GRPCPort int `yaml:"grpc_port" validate:"nonzero"`
}

// Config is the configuration of the scheduler daemon.
type Config struct {
	Server          ServerConfig         `yaml:"server"`
	Scheduler       scheduler.Config     `yaml:"scheduler"`
	State           state.Config         `yaml:"state"`
	Driver          driver.Config        `yaml:"driver"`
	ResourceManager rpc.OutboundConfig   `yaml:"resource_manager"`
	Metrics         metrics.Config       `yaml:"metrics"`
	Health          health.Config        `yaml:"health"`
	SentryConfig    logging.SentryConfig `yaml:"sentry"`

	RateLimit inbound.RateLimitConfig `yaml:"rate_limit"`
}
