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

package logging

import (
	"os"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ClusterEnv names the environment variable whose value, when set, tags
// every sentry event with the cluster.
const ClusterEnv = "CLUSTER"

// SentryConfig is sentry logging specific configuration.
type SentryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	// MinLevel is the least severe level reported, warning by default.
	MinLevel string `yaml:"min_level"`
	// Timeout of one report, the hook default when zero.
	Timeout time.Duration `yaml:"timeout"`
	// Tags filter sentry events.
	Tags map[string]string `yaml:"tags"`
}

// sentryLevels returns the levels at least as severe as min.
func sentryLevels(min string) ([]log.Level, error) {
	threshold := log.WarnLevel
	if min != "" {
		l, err := log.ParseLevel(min)
		if err != nil {
			return nil, errors.Wrap(err, "invalid sentry level")
		}
		threshold = l
	}

	var levels []log.Level
	for _, l := range log.AllLevels {
		if l <= threshold {
			levels = append(levels, l)
		}
	}
	return levels, nil
}

// ConfigureSentry adds a sentry hook, with stack traces, to the standard
// logger. Nothing is done when sentry is not enabled.
func ConfigureSentry(cfg *SentryConfig) error {
	if cfg == nil || !cfg.Enabled {
		log.Debug("Sentry is not enabled")
		return nil
	}

	levels, err := sentryLevels(cfg.MinLevel)
	if err != nil {
		return err
	}

	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	if cluster := os.Getenv(ClusterEnv); cluster != "" {
		tags[ClusterEnv] = cluster
	}

	hook, err := logrus_sentry.NewWithTagsSentryHook(cfg.DSN, tags, levels)
	if err != nil {
		return errors.Wrap(err, "failed to create sentry hook")
	}
	hook.StacktraceConfiguration.Enable = true
	if cfg.Timeout > 0 {
		hook.Timeout = cfg.Timeout
	}

	log.AddHook(hook)
	log.WithField("levels", levels).Info("Sentry hook added")
	return nil
}
