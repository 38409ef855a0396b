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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/atomic"
)

const (
	// LevelOverwrite is the default endpoint for overwrite level handler.
	LevelOverwrite = "/logging-level"

	_level    = "level"
	_duration = "duration"
	_usage    = "usage: GET `/logging-level?level=[info|debug]&duration=<duration>`"
)

// levelOverwrite remembers the configured level so that temporary
// overwrites can be reverted.
type levelOverwrite struct {
	initial *atomic.Int32
	// generation of the latest overwrite, only its timer resets the level
	generation *atomic.Int64
}

func requiredParams(r *http.Request, names ...string) (map[string]string, error) {
	result := make(map[string]string)
	values := r.URL.Query()
	var missing []string
	for _, name := range names {
		v := values.Get(name)
		if v == "" {
			missing = append(missing, name)
			continue
		}
		result[name] = v
	}
	if len(missing) > 0 {
		return nil, errors.Errorf(
			"Required params not set: %s", strings.Join(missing, ","))
	}
	return result, nil
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintln(w, err.Error())
	fmt.Fprintln(w, _usage)
}

// LevelOverwriteHandler returns a handler raising the logging level to
// info or debug for a duration, after which the initial level is restored.
// A later overwrite replaces an earlier one, including its duration.
func LevelOverwriteHandler(initialLevel log.Level) http.HandlerFunc {
	o := &levelOverwrite{
		initial:    atomic.NewInt32(int32(initialLevel)),
		generation: atomic.NewInt64(0),
	}
	log.SetLevel(initialLevel)
	return o.serveHTTP
}

func (o *levelOverwrite) serveHTTP(w http.ResponseWriter, r *http.Request) {
	params, err := requiredParams(r, _level, _duration)
	if err != nil {
		writeError(w, err)
		return
	}

	newLevel, err := log.ParseLevel(params[_level])
	if err != nil {
		writeError(w, err)
		return
	}
	if newLevel != log.InfoLevel && newLevel != log.DebugLevel {
		writeError(w, errors.Errorf(
			"New Level %s is not info or debug", params[_level]))
		return
	}

	duration, err := time.ParseDuration(params[_duration])
	if err != nil {
		writeError(w, err)
		return
	}

	log.WithFields(log.Fields{
		"new_level": newLevel,
		"duration":  duration,
	}).Info("Setting log level to new level")
	log.SetLevel(newLevel)

	gen := o.generation.Inc()
	time.AfterFunc(duration, func() {
		if o.generation.Load() != gen {
			return
		}
		level := log.Level(o.initial.Load())
		log.WithField("initial_level", level).
			Info("Resetting log level after timer")
		log.SetLevel(level)
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Level changed to %s for the next %v.\n", params[_level], duration)
}
