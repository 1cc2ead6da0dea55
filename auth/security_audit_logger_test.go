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

package auth

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestAuditLogger(config *SecurityAuditConfig) SecurityAuditLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSecurityAuditLogger(config, logger)
}

func TestAuditLoggerRecordAndQuery(t *testing.T) {
	audit := newTestAuditLogger(nil)
	defer audit.Close()

	if err := audit.LogSecurityEvent(nil); err == nil {
		t.Error("nil event accepted")
	}

	err := audit.LogSecurityEvent(&SecurityEvent{
		Type:     EventTypeAuthFailure,
		Severity: RiskSeverityMedium,
		UserID:   "user-1",
		Message:  "token verification failed",
	})
	if err != nil {
		t.Fatalf("LogSecurityEvent() error: %v", err)
	}
	err = audit.LogSecurityEvent(&SecurityEvent{
		Type:     EventTypeAccessBlocked,
		Severity: RiskSeverityCritical,
		UserID:   "user-2",
		Message:  "access blocked by risk policy",
	})
	if err != nil {
		t.Fatalf("LogSecurityEvent() error: %v", err)
	}

	all, err := audit.GetSecurityEvents(nil)
	if err != nil {
		t.Fatalf("GetSecurityEvents() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("events = %d, want 2", len(all))
	}
	if all[0].ID == "" || all[0].Timestamp.IsZero() {
		t.Error("event not stamped with ID and timestamp")
	}

	byUser, _ := audit.GetSecurityEvents(&SecurityEventFilter{UserID: "user-2"})
	if len(byUser) != 1 || byUser[0].Type != EventTypeAccessBlocked {
		t.Errorf("user filter returned %+v", byUser)
	}

	byType, _ := audit.GetSecurityEvents(&SecurityEventFilter{EventType: EventTypeAuthFailure})
	if len(byType) != 1 || byType[0].UserID != "user-1" {
		t.Errorf("type filter returned %+v", byType)
	}

	bySeverity, _ := audit.GetSecurityEvents(&SecurityEventFilter{Severity: RiskSeverityCritical})
	if len(bySeverity) != 1 {
		t.Errorf("severity filter returned %d events, want 1", len(bySeverity))
	}

	limited, _ := audit.GetSecurityEvents(&SecurityEventFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit filter returned %d events, want 1", len(limited))
	}
}

func TestAuditLoggerSinceFilter(t *testing.T) {
	audit := newTestAuditLogger(nil)
	defer audit.Close()

	old := time.Now().Add(-2 * time.Hour)
	audit.LogSecurityEvent(&SecurityEvent{
		Type:      EventTypeAuthSuccess,
		Timestamp: old,
		Message:   "old event",
	})
	audit.LogSecurityEvent(&SecurityEvent{
		Type:    EventTypeAuthSuccess,
		Message: "recent event",
	})

	since := time.Now().Add(-time.Hour)
	recent, err := audit.GetSecurityEvents(&SecurityEventFilter{Since: &since})
	if err != nil {
		t.Fatalf("GetSecurityEvents() error: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "recent event" {
		t.Errorf("since filter returned %+v", recent)
	}
}

func TestAuditLoggerEventCap(t *testing.T) {
	audit := newTestAuditLogger(&SecurityAuditConfig{
		MaxEvents:       5,
		RetentionPeriod: time.Hour,
	})
	defer audit.Close()

	for i := 0; i < 10; i++ {
		audit.LogSecurityEvent(&SecurityEvent{
			Type:    EventTypeAuthSuccess,
			Message: fmt.Sprintf("event %d", i),
		})
	}

	events, err := audit.GetSecurityEvents(nil)
	if err != nil {
		t.Fatalf("GetSecurityEvents() error: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	// the oldest events were dropped
	if events[0].Message != "event 5" {
		t.Errorf("oldest retained = %q, want %q", events[0].Message, "event 5")
	}
}

func TestAuditLoggerRetention(t *testing.T) {
	audit := newTestAuditLogger(&SecurityAuditConfig{
		MaxEvents:       100,
		RetentionPeriod: time.Hour,
	})
	defer audit.Close()

	audit.LogSecurityEvent(&SecurityEvent{
		Type:      EventTypeAuthSuccess,
		Timestamp: time.Now().Add(-2 * time.Hour),
		Message:   "expired",
	})
	audit.LogSecurityEvent(&SecurityEvent{
		Type:    EventTypeAuthSuccess,
		Message: "current",
	})

	events, _ := audit.GetSecurityEvents(nil)
	if len(events) != 1 || events[0].Message != "current" {
		t.Errorf("retention kept %+v", events)
	}
}
