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

	"github.com/pkg/errors"
	"github.com/uber-go/tally"
	"go.uber.org/net/metrics"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/yarpcerrors"
	"golang.org/x/time/rate"
)

const _wildcard = "*"

// ErrRateLimited is returned for calls over their procedure's limit.
var ErrRateLimited = yarpcerrors.ResourceExhaustedErrorf(
	"rate limit reached for the procedure")

// Limit is a token bucket. A negative Rate or Burst means no limit.
type Limit struct {
	Rate  rate.Limit `yaml:"rate"`
	Burst int        `yaml:"burst"`
}

func (l Limit) limiter() *rate.Limiter {
	if l.Rate < 0 || l.Burst < 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(l.Rate, l.Burst)
}

// ProcedureLimit applies a Limit to the procedures matching Procedure,
// either a full name such as "Scheduler::offers" or a prefix ending in
// "*" such as "Scheduler::get*".
type ProcedureLimit struct {
	Procedure string `yaml:"procedure"`
	Limit     `yaml:",inline"`
}

// RateLimitConfig configures the RateLimiter.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Procedures are matched in order, the first match applies.
	Procedures []ProcedureLimit `yaml:"procedures"`

	// Default limits procedures matching no entry. Nil means no limit.
	Default *Limit `yaml:"default"`
}

type procedureLimiter struct {
	pattern string
	limiter *rate.Limiter
}

func (p *procedureLimiter) matches(procedure string) bool {
	if strings.HasSuffix(p.pattern, _wildcard) {
		return strings.HasPrefix(procedure, strings.TrimSuffix(p.pattern, _wildcard))
	}
	return p.pattern == procedure
}

// RateLimiter is an inbound middleware rejecting calls over the token
// bucket of their procedure with ErrRateLimited.
type RateLimiter struct {
	enabled    bool
	procedures []*procedureLimiter
	fallback   *rate.Limiter
	scope      tally.Scope
}

// NewRateLimiter returns a RateLimiter for the config. Rejected calls are
// counted in scope, tagged by procedure.
func NewRateLimiter(cfg RateLimitConfig, scope tally.Scope) (*RateLimiter, error) {
	r := &RateLimiter{
		enabled:  cfg.Enabled,
		fallback: rate.NewLimiter(rate.Inf, 0),
		scope:    scope.SubScope("rate_limit"),
	}
	if !cfg.Enabled {
		return r, nil
	}

	for _, p := range cfg.Procedures {
		if p.Procedure == "" || strings.Count(p.Procedure, _wildcard) > 1 ||
			(strings.Contains(p.Procedure, _wildcard) &&
				!strings.HasSuffix(p.Procedure, _wildcard)) {
			return nil, errors.Errorf("invalid rate limited procedure %q", p.Procedure)
		}
		r.procedures = append(r.procedures, &procedureLimiter{
			pattern: p.Procedure,
			limiter: p.limiter(),
		})
	}
	if cfg.Default != nil {
		r.fallback = cfg.Default.limiter()
	}
	return r, nil
}

// Handle implements transport.UnaryInboundMiddleware.
func (r *RateLimiter) Handle(
	ctx context.Context,
	req *transport.Request,
	resw transport.ResponseWriter,
	h transport.UnaryHandler) error {
	if !r.allow(req.Procedure) {
		return ErrRateLimited
	}
	return h.Handle(ctx, req, resw)
}

// HandleOneway implements transport.OnewayInboundMiddleware.
func (r *RateLimiter) HandleOneway(
	ctx context.Context,
	req *transport.Request,
	h transport.OnewayHandler) error {
	if !r.allow(req.Procedure) {
		return ErrRateLimited
	}
	return h.HandleOneway(ctx, req)
}

func (r *RateLimiter) allow(procedure string) bool {
	if !r.enabled {
		return true
	}

	limiter := r.fallback
	for _, p := range r.procedures {
		if p.matches(procedure) {
			limiter = p.limiter
			break
		}
	}
	if limiter.Allow() {
		return true
	}
	r.scope.Tagged(metrics.Tags{
		"procedure": metricsProcedure(procedure),
	}).Counter("rejected").Inc(1)
	return false
}
