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

// Package authlog delivers access decisions to external audit sinks.
// Delivery is fire-and-forget: a sink failure is logged but never fails
// the request that produced the event.
package authlog

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// DecisionEvent is one access decision delivered to audit sinks
type DecisionEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Path      string    `json:"path,omitempty"`
	RiskScore int       `json:"risk_score"`
	RiskLevel string    `json:"risk_level,omitempty"`
	Factors   []string  `json:"factors,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// stamp assigns an ID and timestamp if the producer did not
func (e *DecisionEvent) stamp() {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
}

// Sink receives decision events
type Sink interface {
	Record(event *DecisionEvent) error
	Close() error
}

// LogrusSink writes decision events to the operational log
type LogrusSink struct {
	logger *logrus.Logger
}

// NewLogrusSink creates a sink backed by the given logger
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger}
}

// Record logs the decision event
func (s *LogrusSink) Record(event *DecisionEvent) error {
	event.stamp()
	s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"outcome":    event.Outcome,
		"user_id":    event.UserID,
		"session_id": event.SessionID,
		"ip_address": event.IPAddress,
		"path":       event.Path,
		"risk_score": event.RiskScore,
		"risk_level": event.RiskLevel,
	}).Info("access decision")
	return nil
}

// Close is a no-op for the log sink
func (s *LogrusSink) Close() error { return nil }
