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
	"context"
	"sync"
	"time"
)

// InMemorySessionStore is a SessionStore for standalone deployments and
// tests. Production deployments are expected to plug in an authoritative
// external store.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]time.Time // sessionID -> expiry
	ttl      time.Duration
}

// NewInMemorySessionStore creates an in-memory session store with the
// given session lifetime
func NewInMemorySessionStore(ttl time.Duration) *InMemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemorySessionStore{
		sessions: make(map[string]time.Time),
		ttl:      ttl,
	}
}

// Create registers a session
func (s *InMemorySessionStore) Create(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = time.Now().Add(s.ttl)
}

// Validate reports whether the session exists and has not expired
func (s *InMemorySessionStore) Validate(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	expiry, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Touch extends the session lifetime
func (s *InMemorySessionStore) Touch(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionInvalid
	}
	s.sessions[sessionID] = time.Now().Add(s.ttl)
	return nil
}

// Terminate removes a session
func (s *InMemorySessionStore) Terminate(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
