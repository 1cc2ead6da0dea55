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
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/accessgate/accessgate/auth"
	"github.com/accessgate/accessgate/autherr"
	"github.com/accessgate/accessgate/metrics"
)

// MetaOpts carries the emission targets for response helpers
type MetaOpts struct {
	Metrics *metrics.Manager
	Action  string
}

// SendError writes the API error as JSON with its HTTP status
func SendError(ctx *fiber.Ctx, apiErr autherr.APIError, opts *MetaOpts) error {
	if opts != nil && opts.Metrics != nil {
		opts.Metrics.Send(apiErr, opts.Action, 1, apiErr.HTTPStatusCode)
	}
	return ctx.Status(apiErr.HTTPStatusCode).JSON(fiber.Map{
		"error": apiErr,
	})
}

// SendBlocked writes a policy-block response carrying the assessment's
// score, level, and recommendations for operator visibility
func SendBlocked(ctx *fiber.Ctx, assessment *auth.RiskAssessment, opts *MetaOpts) error {
	apiErr := autherr.GetAPIError(autherr.ErrAccessBlocked)
	if opts != nil && opts.Metrics != nil {
		opts.Metrics.Send(apiErr, opts.Action, 1, apiErr.HTTPStatusCode)
	}
	return ctx.Status(apiErr.HTTPStatusCode).JSON(fiber.Map{
		"error":           apiErr,
		"risk_score":      assessment.OverallScore,
		"risk_level":      assessment.Level,
		"recommendations": assessment.Recommendations,
	})
}

// StepUpChallenge describes the additional verification a caller must
// complete. It is an expected outcome, not a hard failure.
type StepUpChallenge struct {
	Type      string `json:"type"`
	Header    string `json:"header"`
	RiskScore int    `json:"risk_score"`
	RiskLevel string `json:"risk_level"`
}

// SendChallenge writes a step-up challenge descriptor
func SendChallenge(ctx *fiber.Ctx, challenge *StepUpChallenge, opts *MetaOpts) error {
	if opts != nil && opts.Metrics != nil {
		opts.Metrics.Send(nil, opts.Action, 1, http.StatusUnauthorized)
	}
	return ctx.Status(http.StatusUnauthorized).JSON(fiber.Map{
		"challenge": challenge,
	})
}
