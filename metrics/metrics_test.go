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

package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestNewManagerDisabled(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	// disabled manager accepts every call
	m.Send(nil, "authenticated", 1, 200)
	m.Send(errors.New("denied"), "access_blocked", 1, 403)
	m.Timing("pipeline", time.Millisecond)
	if err := m.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestNewManagerUnknownService(t *testing.T) {
	if _, err := NewManager(Config{Service: "prometheus"}); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *Manager
	m.Send(nil, "authenticated", 1, 200)
	m.Timing("pipeline", time.Millisecond)
	if err := m.Close(); err != nil {
		t.Errorf("Close() on nil manager: %v", err)
	}
}

func TestNewManagerStatsd(t *testing.T) {
	// client creation is lazy; no collector needs to be listening
	m, err := NewManager(Config{Service: "statsd", Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	m.Send(nil, "authenticated", 1, 200)
	m.Timing("pipeline", time.Millisecond)
	m.Close()
}
