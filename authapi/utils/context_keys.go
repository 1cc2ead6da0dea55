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

package utils

import (
	"github.com/gofiber/fiber/v2"
)

// ContextKey is a typed key for fiber context locals
type ContextKey string

const (
	// ContextKeyPrincipal holds the *auth.AuthenticatedPrincipal after a
	// successful pipeline run
	ContextKeyPrincipal ContextKey = "accessgate-principal"

	// ContextKeyAssessment holds the *auth.RiskAssessment computed for
	// the request
	ContextKeyAssessment ContextKey = "accessgate-assessment"

	// ContextKeySkipped marks a request whose path was excluded from the
	// pipeline
	ContextKeySkipped ContextKey = "accessgate-skipped"
)

// Set stores a value under the key in the request context
func (k ContextKey) Set(ctx *fiber.Ctx, value interface{}) {
	ctx.Locals(string(k), value)
}

// Get returns the value stored under the key, or nil
func (k ContextKey) Get(ctx *fiber.Ctx) interface{} {
	return ctx.Locals(string(k))
}

// IsSet reports whether a value is stored under the key
func (k ContextKey) IsSet(ctx *fiber.Ctx) bool {
	return ctx.Locals(string(k)) != nil
}
