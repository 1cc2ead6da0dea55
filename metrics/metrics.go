// Copyright 2023 Versity Software
// This file is licensed under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package metrics emits decision counters and timings to a statsd or
// dogstatsd collector. A zero-config manager is a no-op, so callers never
// need to guard their emission sites.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	dogstatsd "github.com/DataDog/datadog-go/v5/statsd"
	gostatsd "github.com/smira/go-statsd"
)

// Config holds the metrics emission configuration
type Config struct {
	// Service selects the backend: "statsd", "dogstatsd", or "" to disable
	Service string

	// Address is the collector host:port
	Address string

	// Namespace prefixes every metric name
	Namespace string
}

// Manager emits metrics to the configured backend
type Manager struct {
	statsd *gostatsd.Client
	dog    *dogstatsd.Client
}

// NewManager creates a metrics manager. An empty service disables
// emission without disabling call sites.
func NewManager(config Config) (*Manager, error) {
	if config.Namespace == "" {
		config.Namespace = "accessgate."
	}

	switch config.Service {
	case "":
		return &Manager{}, nil
	case "statsd":
		client := gostatsd.NewClient(config.Address,
			gostatsd.MetricPrefix(config.Namespace),
			gostatsd.TagStyle(gostatsd.TagFormatDatadog))
		return &Manager{statsd: client}, nil
	case "dogstatsd":
		client, err := dogstatsd.New(config.Address,
			dogstatsd.WithNamespace(config.Namespace))
		if err != nil {
			return nil, fmt.Errorf("failed to create dogstatsd client: %w", err)
		}
		return &Manager{dog: client}, nil
	default:
		return nil, fmt.Errorf("unknown metrics service %q", config.Service)
	}
}

// Send emits one decision counter tagged with the action and HTTP status
func (m *Manager) Send(err error, action string, count int64, status int) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}

	switch {
	case m.statsd != nil:
		m.statsd.Incr("decision", count,
			gostatsd.StringTag("action", action),
			gostatsd.StringTag("result", result),
			gostatsd.StringTag("status", strconv.Itoa(status)))
	case m.dog != nil:
		tags := []string{
			"action:" + action,
			"result:" + result,
			"status:" + strconv.Itoa(status),
		}
		_ = m.dog.Incr("decision", tags, 1)
	}
}

// Timing emits one latency measurement for the named pipeline stage
func (m *Manager) Timing(stage string, d time.Duration) {
	if m == nil {
		return
	}
	switch {
	case m.statsd != nil:
		m.statsd.PrecisionTiming("stage."+stage, d)
	case m.dog != nil:
		_ = m.dog.Timing("stage."+stage, d, nil, 1)
	}
}

// Close flushes and shuts down the backend client
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	if m.statsd != nil {
		return m.statsd.Close()
	}
	if m.dog != nil {
		return m.dog.Close()
	}
	return nil
}
