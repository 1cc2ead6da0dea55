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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifierConfig holds configuration for the JWT token verifier
type JWTVerifierConfig struct {
	// Secret is the HMAC signing key shared with the token issuer
	Secret []byte

	// Issuer, when set, is required to match the token's iss claim
	Issuer string

	// Audience, when set, is required to match the token's aud claim
	Audience string

	// Leeway tolerates small clock skew when validating time claims
	Leeway time.Duration
}

// JWTVerifier implements TokenVerifier over HMAC-signed JWTs using the
// registered claims plus the accessgate principal claims.
type JWTVerifier struct {
	config JWTVerifierConfig
}

// NewJWTVerifier creates a JWT token verifier
func NewJWTVerifier(config JWTVerifierConfig) (*JWTVerifier, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("jwt verifier: empty signing secret")
	}
	if config.Leeway <= 0 {
		config.Leeway = 30 * time.Second
	}
	return &JWTVerifier{config: config}, nil
}

// VerifyAccessToken parses and validates the token and extracts principal
// claims. Missing required claims are treated as an invalid token.
func (v *JWTVerifier) VerifyAccessToken(_ context.Context, tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.config.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	claims := &TokenClaims{
		Subject:             stringClaim(mapClaims, "sub"),
		Email:               stringClaim(mapClaims, "email"),
		Roles:               stringSliceClaim(mapClaims, "roles"),
		Permissions:         stringSliceClaim(mapClaims, "permissions"),
		MFAEnabled:          boolClaim(mapClaims, "mfa_enabled"),
		SessionID:           stringClaim(mapClaims, "sid"),
		DeviceFingerprintID: stringClaim(mapClaims, "device_id"),
	}
	if ts, ok := mapClaims["last_login"].(float64); ok {
		t := time.Unix(int64(ts), 0)
		claims.LastLogin = &t
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrClaimsMissing
	}

	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func boolClaim(claims jwt.MapClaims, key string) bool {
	if v, ok := claims[key].(bool); ok {
		return v
	}
	return false
}

func stringSliceClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
