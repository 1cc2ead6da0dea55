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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SecurityEventType represents the type of security event
type SecurityEventType string

const (
	EventTypeAuthSuccess    SecurityEventType = "auth_success"
	EventTypeAuthFailure    SecurityEventType = "auth_failure"
	EventTypeAccessBlocked  SecurityEventType = "access_blocked"
	EventTypeStepUpRequired SecurityEventType = "step_up_required"
	EventTypeSessionFailure SecurityEventType = "session_failure"
	EventTypeSessionTrusted SecurityEventType = "session_trusted"
	EventTypeHighRiskAccess SecurityEventType = "high_risk_access"
	EventTypeInternalError  SecurityEventType = "internal_error"
)

// SecurityEvent represents a security-relevant decision or observation
type SecurityEvent struct {
	ID        string                 `json:"id"`
	Type      SecurityEventType      `json:"type"`
	Severity  RiskSeverity           `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Success   bool                   `json:"success"`
	RiskScore int                    `json:"risk_score,omitempty"`
	RiskLevel RiskLevel              `json:"risk_level,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SecurityEventFilter selects security events for querying
type SecurityEventFilter struct {
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	EventType SecurityEventType `json:"event_type,omitempty"`
	Severity  RiskSeverity      `json:"severity,omitempty"`
	Since     *time.Time        `json:"since,omitempty"`
	Limit     int               `json:"limit,omitempty"`
}

// SecurityAuditLogger records security events for audit purposes.
// Recording is fire-and-forget from the caller's perspective; a failed
// record never fails the request that produced it.
type SecurityAuditLogger interface {
	LogSecurityEvent(event *SecurityEvent) error
	GetSecurityEvents(filter *SecurityEventFilter) ([]*SecurityEvent, error)
	Close() error
}

// SecurityAuditConfig contains configuration for the audit logger
type SecurityAuditConfig struct {
	// MaxEvents bounds the in-memory event ring
	MaxEvents int `json:"max_events"`

	// RetentionPeriod drops events older than this during appends
	RetentionPeriod time.Duration `json:"retention_period"`
}

// DefaultSecurityAuditConfig returns a default audit configuration
func DefaultSecurityAuditConfig() *SecurityAuditConfig {
	return &SecurityAuditConfig{
		MaxEvents:       10000,
		RetentionPeriod: 30 * 24 * time.Hour,
	}
}

// securityAuditLoggerImpl keeps a bounded in-memory ring of events and
// mirrors each one to the operational log.
type securityAuditLoggerImpl struct {
	mu     sync.RWMutex
	events []*SecurityEvent
	config *SecurityAuditConfig
	logger *logrus.Logger
}

// NewSecurityAuditLogger creates an in-memory security audit logger. A nil
// config selects the defaults.
func NewSecurityAuditLogger(config *SecurityAuditConfig, logger *logrus.Logger) SecurityAuditLogger {
	if config == nil {
		config = DefaultSecurityAuditConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &securityAuditLoggerImpl{
		events: make([]*SecurityEvent, 0),
		config: config,
		logger: logger,
	}
}

// LogSecurityEvent appends an event, assigning ID and timestamp when absent
func (s *securityAuditLoggerImpl) LogSecurityEvent(event *SecurityEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.trimLocked()
	s.mu.Unlock()

	entry := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"severity":   event.Severity,
		"user_id":    event.UserID,
		"session_id": event.SessionID,
		"ip_address": event.IPAddress,
		"risk_score": event.RiskScore,
	})

	switch event.Severity {
	case RiskSeverityCritical:
		entry.Error(event.Message)
	case RiskSeverityHigh:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	return nil
}

// GetSecurityEvents returns events matching the filter, oldest first
func (s *securityAuditLoggerImpl) GetSecurityEvents(filter *SecurityEventFilter) ([]*SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*SecurityEvent
	for _, event := range s.events {
		if filter != nil {
			if filter.UserID != "" && event.UserID != filter.UserID {
				continue
			}
			if filter.SessionID != "" && event.SessionID != filter.SessionID {
				continue
			}
			if filter.EventType != "" && event.Type != filter.EventType {
				continue
			}
			if filter.Severity != "" && event.Severity != filter.Severity {
				continue
			}
			if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
				continue
			}
		}
		matched = append(matched, event)
		if filter != nil && filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}
	return matched, nil
}

// Close releases the logger's resources
func (s *securityAuditLoggerImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

// trimLocked enforces retention and the event cap. Caller must hold the
// write lock.
func (s *securityAuditLoggerImpl) trimLocked() {
	if s.config.RetentionPeriod > 0 {
		cutoff := time.Now().Add(-s.config.RetentionPeriod)
		firstValid := 0
		for firstValid < len(s.events) && s.events[firstValid].Timestamp.Before(cutoff) {
			firstValid++
		}
		if firstValid > 0 {
			s.events = s.events[firstValid:]
		}
	}
	if s.config.MaxEvents > 0 && len(s.events) > s.config.MaxEvents {
		s.events = s.events[len(s.events)-s.config.MaxEvents:]
	}
}
