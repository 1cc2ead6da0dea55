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
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key")

func mintToken(t *testing.T, secret []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":         "user-1",
		"sid":         "sess-1",
		"email":       "user-1@example.com",
		"roles":       []interface{}{"reader", "writer"},
		"permissions": []interface{}{"objects:read"},
		"mfa_enabled": true,
		"device_id":   "fp-1",
		"last_login":  float64(time.Now().Add(-48 * time.Hour).Unix()),
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerifyAccessToken(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{Secret: testSecret})
	require.NoError(t, err)

	token := mintToken(t, testSecret, jwt.SigningMethodHS256, validClaims())
	claims, err := v.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "user-1@example.com", claims.Email)
	assert.Equal(t, []string{"reader", "writer"}, claims.Roles)
	assert.Equal(t, []string{"objects:read"}, claims.Permissions)
	assert.True(t, claims.MFAEnabled)
	assert.Equal(t, "fp-1", claims.DeviceFingerprintID)
	require.NotNil(t, claims.LastLogin)
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), *claims.LastLogin, time.Minute)
}

func TestVerifyAccessTokenRejections(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{Secret: testSecret})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		token := mintToken(t, []byte("other-secret"), jwt.SigningMethodHS256, validClaims())
		_, err := v.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		token := mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
		_, err := v.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("missing expiration", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "exp")
		token := mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
		_, err := v.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "sub")
		token := mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
		_, err := v.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrClaimsMissing)
	})

	t.Run("missing session id", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "sid")
		token := mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
		_, err := v.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrClaimsMissing)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.VerifyAccessToken(context.Background(), "not.a.token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestVerifyAccessTokenIssuerAudience(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{
		Secret:   testSecret,
		Issuer:   "accessgate-idp",
		Audience: "accessgate",
	})
	require.NoError(t, err)

	claims := validClaims()
	claims["iss"] = "accessgate-idp"
	claims["aud"] = "accessgate"
	token := mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
	_, err = v.VerifyAccessToken(context.Background(), token)
	assert.NoError(t, err)

	claims["iss"] = "someone-else"
	token = mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
	_, err = v.VerifyAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyAccessTokenLeeway(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{
		Secret: testSecret,
		Leeway: time.Minute,
	})
	require.NoError(t, err)

	// expired ten seconds ago, inside the leeway window
	claims := validClaims()
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()
	token := mintToken(t, testSecret, jwt.SigningMethodHS256, claims)
	_, err = v.VerifyAccessToken(context.Background(), token)
	assert.NoError(t, err)
}

func TestNewJWTVerifierEmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(JWTVerifierConfig{})
	if err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestVerifierErrorsAreSentinel(t *testing.T) {
	// the orchestrator distinguishes expiry from other failures
	if errors.Is(ErrTokenExpired, ErrTokenInvalid) {
		t.Error("sentinel errors must be distinct")
	}
}
