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
	"errors"
	"time"
)

var (
	ErrTokenInvalid   = errors.New("invalid access token")
	ErrTokenExpired   = errors.New("access token expired")
	ErrClaimsMissing  = errors.New("required token claims missing")
	ErrSessionInvalid = errors.New("session invalid or expired")
)

// TokenClaims are the principal claims extracted from a verified bearer
// credential. Subject and SessionID are required; the rest are optional.
type TokenClaims struct {
	Subject             string     `json:"sub"`
	Email               string     `json:"email,omitempty"`
	Roles               []string   `json:"roles,omitempty"`
	Permissions         []string   `json:"permissions,omitempty"`
	MFAEnabled          bool       `json:"mfa_enabled,omitempty"`
	SessionID           string     `json:"sid"`
	DeviceFingerprintID string     `json:"device_id,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
}

// TokenVerifier is the external, stateless bearer-token verification
// capability. Implementations return ErrTokenInvalid or ErrTokenExpired
// for rejected tokens; any other error is an infrastructure failure and is
// treated fail-closed by callers.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*TokenClaims, error)
}

// SessionStore is the authoritative external session existence check,
// consulted only on a trust-cache miss.
type SessionStore interface {
	Validate(ctx context.Context, sessionID string) (bool, error)
	Touch(ctx context.Context, sessionID string) error
}

// ThreatFeed answers whether an IP is on a known-malicious list. A static
// or no-op implementation is acceptable.
type ThreatFeed interface {
	IsKnownMaliciousIP(ip string) bool
}

// LoginHistory supplies recent login records for behavioral and location
// assessment. A nil provider simply skips those sub-assessments.
type LoginHistory interface {
	RecentLogins(ctx context.Context, userID string) ([]LoginHistoryEntry, error)
}

// GeoResolver resolves an IP address to a coarse location. Resolution is
// best effort; a nil result attaches no location to the context.
type GeoResolver interface {
	Resolve(ip string) *GeoLocation
}

// NoopThreatFeed is a ThreatFeed that flags nothing
type NoopThreatFeed struct{}

// IsKnownMaliciousIP always returns false
func (NoopThreatFeed) IsKnownMaliciousIP(string) bool { return false }
