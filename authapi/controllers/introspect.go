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

package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/accessgate/accessgate/auth"
	"github.com/accessgate/accessgate/authapi/utils"
	"github.com/accessgate/accessgate/autherr"
)

// SessionTerminator is implemented by session stores that support
// explicit termination
type SessionTerminator interface {
	Terminate(ctx context.Context, sessionID string) error
}

// IntrospectController serves the authenticated introspection surface
type IntrospectController struct {
	auditLogger auth.SecurityAuditLogger
	trustCache  *auth.SessionTrustCache
	sessions    auth.SessionStore
	metrics     *MetaOpts
}

// NewIntrospectController creates the introspection controller
func NewIntrospectController(auditLogger auth.SecurityAuditLogger, trustCache *auth.SessionTrustCache, sessions auth.SessionStore) *IntrospectController {
	return &IntrospectController{
		auditLogger: auditLogger,
		trustCache:  trustCache,
		sessions:    sessions,
	}
}

// WhoAmI returns the authenticated principal and the risk assessment
// computed for this request
func (c *IntrospectController) WhoAmI(ctx *fiber.Ctx) error {
	principal, ok := utils.ContextKeyPrincipal.Get(ctx).(*auth.AuthenticatedPrincipal)
	if !ok || principal == nil {
		return SendError(ctx, autherr.GetAPIError(autherr.ErrSessionInvalid), nil)
	}
	assessment, _ := utils.ContextKeyAssessment.Get(ctx).(*auth.RiskAssessment)
	return ctx.JSON(fiber.Map{
		"principal":  principal,
		"assessment": assessment,
	})
}

// AuditEvents returns recent security events for the calling user
func (c *IntrospectController) AuditEvents(ctx *fiber.Ctx) error {
	principal, ok := utils.ContextKeyPrincipal.Get(ctx).(*auth.AuthenticatedPrincipal)
	if !ok || principal == nil {
		return SendError(ctx, autherr.GetAPIError(autherr.ErrSessionInvalid), nil)
	}
	if c.auditLogger == nil {
		return ctx.JSON(fiber.Map{"events": []*auth.SecurityEvent{}})
	}

	since := time.Now().Add(-24 * time.Hour)
	if raw := ctx.Query("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			since = parsed
		}
	}
	limit := ctx.QueryInt("limit", 100)

	events, err := c.auditLogger.GetSecurityEvents(&auth.SecurityEventFilter{
		UserID: principal.ID,
		Since:  &since,
		Limit:  limit,
	})
	if err != nil {
		return SendError(ctx, autherr.GetAPIError(autherr.ErrInternalError), c.metrics)
	}
	return ctx.JSON(fiber.Map{"events": events})
}

// Logout invalidates the caller's trust-cache entry and, when the store
// supports it, terminates the backing session
func (c *IntrospectController) Logout(ctx *fiber.Ctx) error {
	principal, ok := utils.ContextKeyPrincipal.Get(ctx).(*auth.AuthenticatedPrincipal)
	if !ok || principal == nil {
		return SendError(ctx, autherr.GetAPIError(autherr.ErrSessionInvalid), nil)
	}

	if c.trustCache != nil {
		c.trustCache.Delete(principal.SessionID)
	}
	if terminator, ok := c.sessions.(SessionTerminator); ok {
		if err := terminator.Terminate(ctx.UserContext(), principal.SessionID); err != nil {
			return SendError(ctx, autherr.GetAPIError(autherr.ErrInternalError), c.metrics)
		}
	}
	return ctx.JSON(fiber.Map{"status": "logged out"})
}
