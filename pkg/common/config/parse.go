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

// Package config loads YAML configuration files into validated structs.
package config

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ValidationError lists the fields of a config failing validation.
type ValidationError struct {
	errorMap validator.ErrorMap
}

// Fields returns the invalid fields, sorted.
func (e ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.errorMap))
	for f := range e.errorMap {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// ErrForField returns the validation error of a field, nil if the field
// is valid.
func (e ValidationError) ErrForField(name string) error {
	if errs, ok := e.errorMap[name]; ok {
		return errs
	}
	return nil
}

// Error implements error.
func (e ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	for i, f := range e.Fields() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(e.errorMap[f].Error())
	}
	return b.String()
}

// Parse reads configFiles in order into config, then validates it. A
// value set by a file overrides the values of earlier files. ${VAR}
// references are expanded from the environment.
func Parse(config interface{}, configFiles ...string) error {
	if len(configFiles) == 0 {
		return errors.New("no files to load")
	}

	docs := make([][]byte, 0, len(configFiles))
	for _, fname := range configFiles {
		data, err := os.ReadFile(fname)
		if err != nil {
			return errors.Wrapf(err, "failed to read config file %s", fname)
		}
		docs = append(docs, data)
	}
	return errors.Wrapf(
		ParseBytes(config, docs...),
		"invalid config files %s", strings.Join(configFiles, ","))
}

// ParseBytes is Parse for documents already in memory.
func ParseBytes(config interface{}, docs ...[]byte) error {
	for i, doc := range docs {
		expanded := os.ExpandEnv(string(doc))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return errors.Wrapf(err, "failed to parse config document %d", i)
		}
	}

	err := validator.Validate(config)
	if err == nil {
		return nil
	}
	var errMap validator.ErrorMap
	if errors.As(err, &errMap) {
		return ValidationError{errorMap: errMap}
	}
	return errors.Wrap(err, "failed to validate config")
}
