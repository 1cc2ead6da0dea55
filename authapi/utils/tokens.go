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
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	bearerPrefix      = "Bearer "
	accessTokenCookie = "access_token"
	accessTokenQuery  = "access_token"

	// StepUpTokenHeader carries the step-up verification credential.
	// Validity beyond presence is delegated to the MFA subsystem.
	StepUpTokenHeader = "X-StepUp-Token"
)

// ExtractBearerToken pulls the bearer credential from its standard
// locations in priority order: authorization header, cookie, then query
// parameter. Query-parameter credentials leak into access logs, so their
// use is logged as a warning.
func ExtractBearerToken(ctx *fiber.Ctx, logger *logrus.Logger) string {
	authorization := ctx.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}

	if cookie := ctx.Cookies(accessTokenCookie); cookie != "" {
		return cookie
	}

	if token := ctx.Query(accessTokenQuery); token != "" {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"path": ctx.Path(),
				"ip":   ctx.IP(),
			}).Warn("bearer credential supplied via query parameter")
		}
		return token
	}

	return ""
}

// ExtractStepUpToken returns the step-up credential attached to the
// request, or empty when absent
func ExtractStepUpToken(ctx *fiber.Ctx) string {
	return strings.TrimSpace(ctx.Get(StepUpTokenHeader))
}

// PathExcluded reports whether the request path matches the exclusion
// list, either exactly or by prefix when a pattern ends with "*".
func PathExcluded(path string, excluded []string) bool {
	for _, pattern := range excluded {
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}
