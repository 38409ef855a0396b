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

package metrics

import (
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	tallyprom "github.com/uber-go/tally/prometheus"
	tallystatsd "github.com/uber-go/tally/statsd"
)

const (
	// HealthEndpoint answers liveness checks.
	HealthEndpoint = "/health"
	// MetricsEndpoint serves prometheus metrics when enabled.
	MetricsEndpoint = "/metrics"
)

// Config will be containing the metrics configuration
type Config struct {
	Prometheus *PrometheusConfig `yaml:"prometheus"`
	Statsd     *StatsdConfig     `yaml:"statsd"`
}

// PrometheusConfig enables the prometheus reporter.
type PrometheusConfig struct {
	Enable bool `yaml:"enable"`
}

// StatsdConfig enables the statsd reporter.
type StatsdConfig struct {
	Enable   bool   `yaml:"enable"`
	Endpoint string `yaml:"endpoint"`
}

// HealthFunc reports whether the process is healthy.
type HealthFunc func() bool

// InitMetricScope initializes a root scope and its closer, with a http
// server mux holding the metrics exposition and health endpoints.
func InitMetricScope(
	cfg *Config,
	rootMetricScope string,
	metricFlushInterval time.Duration,
	healthy HealthFunc) (tally.Scope, io.Closer, *nethttp.ServeMux, error) {
	mux := nethttp.NewServeMux()
	opts := tally.ScopeOptions{
		Tags:      map[string]string{},
		Separator: ".",
	}

	switch {
	case cfg != nil && cfg.Prometheus != nil && cfg.Prometheus.Enable:
		// tally panics if scope name contains "-", hence force convert to "_"
		rootMetricScope = strings.Replace(rootMetricScope, "-", "_", -1)
		opts.Separator = tallyprom.DefaultSeparator
		promReporter := tallyprom.NewReporter(tallyprom.Options{})
		opts.CachedReporter = promReporter
		log.Infof("Setting up prometheus metrics handler at %s", MetricsEndpoint)
		mux.Handle(MetricsEndpoint, promReporter.HTTPHandler())
	case cfg != nil && cfg.Statsd != nil && cfg.Statsd.Enable:
		log.Infof("Metrics configured with statsd endpoint %s", cfg.Statsd.Endpoint)
		c, err := statsd.NewClient(cfg.Statsd.Endpoint, "")
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "unable to setup statsd client")
		}
		opts.Reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	default:
		log.Warn("No metrics backends configured, using the statsd.NoopClient")
		c, _ := statsd.NewNoopClient()
		opts.Reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	}
	opts.Prefix = rootMetricScope

	mux.HandleFunc(HealthEndpoint, func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if healthy == nil || healthy() {
			w.WriteHeader(nethttp.StatusOK)
			fmt.Fprintln(w, `\(★ω★)/`)
		} else {
			w.WriteHeader(nethttp.StatusInternalServerError)
			fmt.Fprintln(w, `(╥﹏╥)`)
		}
	})

	metricScope, scopeCloser := tally.NewRootScope(opts, metricFlushInterval)
	return metricScope, scopeCloser, mux, nil
}
