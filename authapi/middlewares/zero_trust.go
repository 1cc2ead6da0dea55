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

package middlewares

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/accessgate/accessgate/auth"
	"github.com/accessgate/accessgate/authapi/controllers"
	"github.com/accessgate/accessgate/authapi/utils"
	"github.com/accessgate/accessgate/autherr"
	"github.com/accessgate/accessgate/authlog"
	"github.com/accessgate/accessgate/metrics"
)

// Outcome is the closed set of pipeline results. Callers handle every
// branch explicitly; expected policy outcomes such as a step-up demand are
// outcomes, never errors.
type Outcome string

const (
	OutcomeSkipped       Outcome = "SKIPPED"
	OutcomeAuthFailed    Outcome = "AUTH_FAILED"
	OutcomeBlocked       Outcome = "BLOCKED"
	OutcomeMFARequired   Outcome = "MFA_REQUIRED"
	OutcomeSessionFailed Outcome = "SESSION_FAILED"
	OutcomeAuthenticated Outcome = "AUTHENTICATED"
)

// Decision is the result of one pipeline run
type Decision struct {
	Outcome    Outcome
	Principal  *auth.AuthenticatedPrincipal
	Assessment *auth.RiskAssessment
	Challenge  *controllers.StepUpChallenge
	APIError   autherr.APIError

	// aborted marks a pipeline abandoned because the caller went away;
	// no response is written and no state is mutated
	aborted bool
}

// deviceCapabilitiesHeader optionally carries client capability probes as
// JSON: {"canvas":true,"webgl":true,"audio_context":true,"plugins":[...]}
const deviceCapabilitiesHeader = "X-Device-Capabilities"

// ZeroTrustConfig contains the collaborators and configuration for the
// zero-trust middleware
type ZeroTrustConfig struct {
	Config        *auth.ZeroTrustConfig
	Verifier      auth.TokenVerifier
	Sessions      auth.SessionStore
	ThreatFeed    auth.ThreatFeed
	LoginHistory  auth.LoginHistory
	GeoResolver   auth.GeoResolver
	AuditLogger   auth.SecurityAuditLogger
	Sink          authlog.Sink
	Logger        *logrus.Logger
	Metrics       *metrics.Manager
	Fingerprinter *auth.DeviceFingerprinter
	Assessor      *auth.RiskAssessor
	TrustCache    *auth.SessionTrustCache
}

// ZeroTrustMiddleware authenticates a bearer credential, builds a security
// context, runs risk assessment, and enforces the resulting policy for
// every request.
type ZeroTrustMiddleware struct {
	config        *auth.ZeroTrustConfig
	verifier      auth.TokenVerifier
	sessions      auth.SessionStore
	threatFeed    auth.ThreatFeed
	loginHistory  auth.LoginHistory
	geoResolver   auth.GeoResolver
	auditLogger   auth.SecurityAuditLogger
	sink          authlog.Sink
	logger        *logrus.Logger
	metrics       *metrics.Manager
	fingerprinter *auth.DeviceFingerprinter
	assessor      *auth.RiskAssessor
	trustCache    *auth.SessionTrustCache
}

// NewZeroTrustMiddleware creates the middleware. Nil optional
// collaborators (threat feed, login history, geo resolver, sink, metrics)
// degrade to skipped enrichment rather than failures.
func NewZeroTrustMiddleware(cfg *ZeroTrustConfig) (*ZeroTrustMiddleware, error) {
	if cfg == nil || cfg.Verifier == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("zero trust middleware requires a token verifier and session store")
	}
	conf := cfg.Config
	if conf == nil {
		conf = auth.StandardProfile()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fingerprinter := cfg.Fingerprinter
	if fingerprinter == nil {
		fingerprinter = auth.NewDeviceFingerprinter()
	}
	assessor := cfg.Assessor
	if assessor == nil {
		assessor = auth.NewRiskAssessor(conf.Risk)
	}
	trustCache := cfg.TrustCache
	if trustCache == nil {
		trustCache = auth.NewSessionTrustCache(conf.SessionTrust)
	}
	threatFeed := cfg.ThreatFeed
	if threatFeed == nil {
		threatFeed = auth.NoopThreatFeed{}
	}

	return &ZeroTrustMiddleware{
		config:        conf,
		verifier:      cfg.Verifier,
		sessions:      cfg.Sessions,
		threatFeed:    threatFeed,
		loginHistory:  cfg.LoginHistory,
		geoResolver:   cfg.GeoResolver,
		auditLogger:   cfg.AuditLogger,
		sink:          cfg.Sink,
		logger:        logger,
		metrics:       cfg.Metrics,
		fingerprinter: fingerprinter,
		assessor:      assessor,
		trustCache:    trustCache,
	}, nil
}

// TrustCache returns the middleware's session trust cache, e.g. for
// explicit invalidation on logout
func (m *ZeroTrustMiddleware) TrustCache() *auth.SessionTrustCache {
	return m.trustCache
}

// Handler returns the fiber handler enforcing the pipeline. Any panic
// inside the pipeline is converted to a generic internal error; the
// request is never left authenticated.
func (m *ZeroTrustMiddleware) Handler() fiber.Handler {
	return func(ctx *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.WithFields(logrus.Fields{
					"path":  ctx.Path(),
					"panic": r,
				}).Error("zero trust pipeline panic")
				m.audit(&auth.SecurityEvent{
					Type:      auth.EventTypeInternalError,
					Severity:  auth.RiskSeverityCritical,
					IPAddress: ctx.IP(),
					Path:      ctx.Path(),
					Message:   "internal error in decision pipeline",
				})
				err = controllers.SendError(ctx,
					autherr.GetAPIError(autherr.ErrInternalError),
					&controllers.MetaOpts{Metrics: m.metrics, Action: "pipeline_panic"})
			}
		}()

		decision := m.Authenticate(ctx)
		if decision.aborted {
			return nil
		}

		switch decision.Outcome {
		case OutcomeSkipped:
			utils.ContextKeySkipped.Set(ctx, true)
			return ctx.Next()

		case OutcomeAuthFailed:
			return controllers.SendError(ctx, decision.APIError,
				&controllers.MetaOpts{Metrics: m.metrics, Action: "auth_failed"})

		case OutcomeBlocked:
			return controllers.SendBlocked(ctx, decision.Assessment,
				&controllers.MetaOpts{Metrics: m.metrics, Action: "access_blocked"})

		case OutcomeMFARequired:
			return controllers.SendChallenge(ctx, decision.Challenge,
				&controllers.MetaOpts{Metrics: m.metrics, Action: "step_up_required"})

		case OutcomeSessionFailed:
			return controllers.SendError(ctx, decision.APIError,
				&controllers.MetaOpts{Metrics: m.metrics, Action: "session_failed"})

		case OutcomeAuthenticated:
			utils.ContextKeyPrincipal.Set(ctx, decision.Principal)
			utils.ContextKeyAssessment.Set(ctx, decision.Assessment)
			m.metrics.Send(nil, "authenticated", 1, fiber.StatusOK)
			return ctx.Next()

		default:
			// Unknown outcome is treated fail-closed
			return controllers.SendError(ctx,
				autherr.GetAPIError(autherr.ErrInternalError),
				&controllers.MetaOpts{Metrics: m.metrics, Action: "unknown_outcome"})
		}
	}
}

// Authenticate runs the per-request decision pipeline and returns the
// resulting decision without writing a response.
func (m *ZeroTrustMiddleware) Authenticate(ctx *fiber.Ctx) Decision {
	start := time.Now()
	defer func() {
		m.metrics.Timing("pipeline", time.Since(start))
	}()

	if utils.PathExcluded(ctx.Path(), m.config.ExcludedPaths) {
		return Decision{Outcome: OutcomeSkipped}
	}

	token := utils.ExtractBearerToken(ctx, m.logger)
	if token == "" {
		m.auditFailure(ctx, "", "missing bearer credential")
		return Decision{
			Outcome:  OutcomeAuthFailed,
			APIError: autherr.GetAPIError(autherr.ErrMissingCredential),
		}
	}

	reqCtx := ctx.UserContext()
	claims, err := m.verifier.VerifyAccessToken(reqCtx, token)
	if reqCtx.Err() != nil {
		return Decision{aborted: true}
	}
	if err != nil {
		m.auditFailure(ctx, "", "token verification failed")
		code := autherr.ErrInvalidToken
		if errors.Is(err, auth.ErrTokenExpired) {
			code = autherr.ErrExpiredToken
		}
		return Decision{Outcome: OutcomeAuthFailed, APIError: autherr.GetAPIError(code)}
	}

	sc := m.buildSecurityContext(ctx, claims)
	assessment := m.assessor.AssessRisk(sc)

	if !assessment.AllowAccess {
		m.logger.WithFields(logrus.Fields{
			"user_id":    claims.Subject,
			"session_id": claims.SessionID,
			"risk_score": assessment.OverallScore,
			"risk_level": assessment.Level,
		}).Error("access blocked by risk policy")
		m.audit(&auth.SecurityEvent{
			Type:      auth.EventTypeAccessBlocked,
			Severity:  auth.RiskSeverityCritical,
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			IPAddress: sc.IPAddress,
			UserAgent: sc.UserAgent,
			Path:      ctx.Path(),
			RiskScore: assessment.OverallScore,
			RiskLevel: assessment.Level,
			Message:   "access blocked by risk policy",
		})
		m.record(ctx, string(OutcomeBlocked), claims, assessment)
		return Decision{Outcome: OutcomeBlocked, Assessment: assessment}
	}

	if assessment.RequiresMFA && utils.ExtractStepUpToken(ctx) == "" {
		m.audit(&auth.SecurityEvent{
			Type:      auth.EventTypeStepUpRequired,
			Severity:  auth.RiskSeverityMedium,
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			IPAddress: sc.IPAddress,
			Path:      ctx.Path(),
			RiskScore: assessment.OverallScore,
			RiskLevel: assessment.Level,
			Message:   "step-up verification required",
		})
		m.record(ctx, string(OutcomeMFARequired), claims, assessment)
		return Decision{
			Outcome:    OutcomeMFARequired,
			Assessment: assessment,
			Challenge: &controllers.StepUpChallenge{
				Type:      "totp",
				Header:    utils.StepUpTokenHeader,
				RiskScore: assessment.OverallScore,
				RiskLevel: string(assessment.Level),
			},
		}
	}

	riskScore := assessment.OverallScore
	interval := m.trustCache.RevalidationInterval()

	if entry, ok := m.trustCache.Get(claims.SessionID); ok && m.trustCache.IsFresh(entry, interval) {
		// Fresh trust entry short-circuits the authoritative session
		// round trip; the cached score stands until revalidation.
		riskScore = entry.RiskScore
		m.audit(&auth.SecurityEvent{
			Type:      auth.EventTypeSessionTrusted,
			Severity:  auth.RiskSeverityLow,
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			Success:   true,
			Message:   "session validated from trust cache",
		})
	} else {
		valid, err := m.sessions.Validate(reqCtx, claims.SessionID)
		if reqCtx.Err() != nil {
			// Caller went away mid-validation: abandon without a cache
			// write or an authenticated outcome.
			return Decision{aborted: true}
		}
		if err != nil || !valid {
			if err != nil {
				m.logger.WithError(err).WithField("session_id", claims.SessionID).
					Warn("session store validation failed")
			}
			m.audit(&auth.SecurityEvent{
				Type:      auth.EventTypeSessionFailure,
				Severity:  auth.RiskSeverityMedium,
				UserID:    claims.Subject,
				SessionID: claims.SessionID,
				IPAddress: sc.IPAddress,
				Path:      ctx.Path(),
				Message:   "session validation failed",
			})
			m.record(ctx, string(OutcomeSessionFailed), claims, assessment)
			return Decision{
				Outcome:  OutcomeSessionFailed,
				APIError: autherr.GetAPIError(autherr.ErrSessionInvalid),
			}
		}
		if err := m.sessions.Touch(reqCtx, claims.SessionID); err != nil {
			m.logger.WithError(err).WithField("session_id", claims.SessionID).
				Debug("session touch failed")
		}
		m.trustCache.Put(claims.SessionID, assessment.OverallScore)
	}

	principal := &auth.AuthenticatedPrincipal{
		ID:                claims.Subject,
		Email:             claims.Email,
		Roles:             claims.Roles,
		Permissions:       claims.Permissions,
		MFAEnabled:        claims.MFAEnabled,
		RiskScore:         riskScore,
		DeviceFingerprint: sc.DeviceFingerprint,
		SessionID:         claims.SessionID,
	}

	if assessment.Level == auth.RiskLevelHigh || assessment.Level == auth.RiskLevelCritical {
		m.logger.WithFields(logrus.Fields{
			"user_id":    claims.Subject,
			"risk_score": assessment.OverallScore,
			"risk_level": assessment.Level,
		}).Warn("high risk access granted")
		m.audit(&auth.SecurityEvent{
			Type:      auth.EventTypeHighRiskAccess,
			Severity:  auth.RiskSeverityHigh,
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			IPAddress: sc.IPAddress,
			Path:      ctx.Path(),
			Success:   true,
			RiskScore: assessment.OverallScore,
			RiskLevel: assessment.Level,
			Message:   "access granted at elevated risk",
		})
	}

	m.record(ctx, string(OutcomeAuthenticated), claims, assessment)
	return Decision{
		Outcome:    OutcomeAuthenticated,
		Principal:  principal,
		Assessment: assessment,
	}
}

// buildSecurityContext assembles a fresh assessment input from the
// current request signals and verified claims
func (m *ZeroTrustMiddleware) buildSecurityContext(ctx *fiber.Ctx, claims *auth.TokenClaims) *auth.SecurityContext {
	signals := auth.DeviceSignals{
		UserAgent:      ctx.Get(fiber.HeaderUserAgent),
		IPAddress:      ctx.IP(),
		AcceptLanguage: ctx.Get(fiber.HeaderAcceptLanguage),
		AcceptEncoding: ctx.Get(fiber.HeaderAcceptEncoding),
	}
	if raw := ctx.Get(deviceCapabilitiesHeader); raw != "" {
		var caps struct {
			Canvas       bool     `json:"canvas"`
			WebGL        bool     `json:"webgl"`
			AudioContext bool     `json:"audio_context"`
			Plugins      []string `json:"plugins"`
		}
		if err := json.Unmarshal([]byte(raw), &caps); err == nil {
			signals.Canvas = caps.Canvas
			signals.WebGL = caps.WebGL
			signals.AudioContext = caps.AudioContext
			signals.Plugins = caps.Plugins
		}
	}

	now := time.Now()
	sc := &auth.SecurityContext{
		UserID:            claims.Subject,
		SessionID:         claims.SessionID,
		DeviceFingerprint: m.fingerprinter.Generate(signals),
		IPAddress:         signals.IPAddress,
		UserAgent:         signals.UserAgent,
		Timestamp:         now,
		KnownDeviceID:     claims.DeviceFingerprintID,
		KnownMaliciousIP:  m.threatFeed.IsKnownMaliciousIP(signals.IPAddress),
	}

	if claims.LastLogin != nil {
		age := now.Sub(*claims.LastLogin).Hours() / 24
		sc.AccountAgeDays = &age
	}
	if m.geoResolver != nil {
		sc.GeoLocation = m.geoResolver.Resolve(signals.IPAddress)
	}
	if m.loginHistory != nil {
		logins, err := m.loginHistory.RecentLogins(ctx.UserContext(), claims.Subject)
		if err != nil {
			m.logger.WithError(err).WithField("user_id", claims.Subject).
				Debug("login history unavailable")
		} else {
			sc.PreviousLogins = logins
		}
	}

	return sc
}

// audit records a security event, tolerating a nil or failing logger
func (m *ZeroTrustMiddleware) audit(event *auth.SecurityEvent) {
	if m.auditLogger == nil {
		return
	}
	if err := m.auditLogger.LogSecurityEvent(event); err != nil {
		m.logger.WithError(err).Debug("audit event dropped")
	}
}

func (m *ZeroTrustMiddleware) auditFailure(ctx *fiber.Ctx, userID, message string) {
	m.audit(&auth.SecurityEvent{
		Type:      auth.EventTypeAuthFailure,
		Severity:  auth.RiskSeverityMedium,
		UserID:    userID,
		IPAddress: ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Path:      ctx.Path(),
		Message:   message,
	})
}

// record delivers a decision event to the external audit sink
func (m *ZeroTrustMiddleware) record(ctx *fiber.Ctx, outcome string, claims *auth.TokenClaims, assessment *auth.RiskAssessment) {
	if m.sink == nil {
		return
	}
	event := &authlog.DecisionEvent{
		Outcome:   outcome,
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		IPAddress: ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Path:      ctx.Path(),
		RiskScore: assessment.OverallScore,
		RiskLevel: string(assessment.Level),
	}
	for _, factor := range assessment.Factors {
		event.Factors = append(event.Factors, factor.Description)
	}
	if err := m.sink.Record(event); err != nil {
		m.logger.WithError(err).Debug("decision event dropped")
	}
}
