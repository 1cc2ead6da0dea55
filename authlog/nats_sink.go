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

package authlog

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const defaultNATSSubject = "accessgate.decisions"

// NATSSink publishes decision events as JSON to a NATS subject
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the NATS server and returns a sink. An empty
// subject selects the default.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if subject == "" {
		subject = defaultNATSSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("accessgate-audit"),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Record publishes the event
func (s *NATSSink) Record(event *DecisionEvent) error {
	event.stamp()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish decision event: %w", err)
	}
	return nil
}

// Close drains and closes the connection
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
