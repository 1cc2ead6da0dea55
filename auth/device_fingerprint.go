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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// automationSignatures are user-agent substrings that indicate an automated
// client. Matching is case-insensitive.
var automationSignatures = []string{
	"headless",
	"phantom",
	"selenium",
	"webdriver",
	"automation",
	"bot",
	"crawler",
	"scraper",
}

const (
	// baseline trust for a device with a full, consistent signal set
	neutralTrustScore = 70

	// similarity cutoff above which two fingerprints are considered the
	// same physical device
	sameDeviceSimilarity = 80
)

// DeviceSignals are the raw request signals a fingerprint is derived from.
// Capability probes default to false when the client did not report them.
type DeviceSignals struct {
	UserAgent      string   `json:"user_agent"`
	IPAddress      string   `json:"ip_address"`
	AcceptLanguage string   `json:"accept_language,omitempty"`
	AcceptEncoding string   `json:"accept_encoding,omitempty"`
	Canvas         bool     `json:"canvas,omitempty"`
	WebGL          bool     `json:"webgl,omitempty"`
	AudioContext   bool     `json:"audio_context,omitempty"`
	Plugins        []string `json:"plugins,omitempty"`
}

// DeviceFingerprint is the derived identity of a calling device. A
// fingerprint is immutable once created; a changed device produces a new
// fingerprint rather than a mutation, and relationships between
// fingerprints are established through similarity scoring.
type DeviceFingerprint struct {
	ID           string    `json:"id"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
	TrustScore   int       `json:"trust_score"` // 0-100
	CreatedAt    time.Time `json:"created_at"`
	Canvas       bool      `json:"canvas"`
	WebGL        bool      `json:"webgl"`
	AudioContext bool      `json:"audio_context"`
	Plugins      []string  `json:"plugins,omitempty"`
}

// DeviceAnalysis is the descriptive output of Analyze, used for
// diagnostics and operator tooling.
type DeviceAnalysis struct {
	Fingerprint   *DeviceFingerprint `json:"fingerprint"`
	RiskFactors   []RiskFactor       `json:"risk_factors,omitempty"`
	TrustScore    int                `json:"trust_score"`
	IsBot         bool               `json:"is_bot"`
	DeviceType    string             `json:"device_type"`
	BrowserFamily string             `json:"browser_family"`
	OSFamily      string             `json:"os_family"`
}

// FingerprintComparison is the result of a field-wise fingerprint
// comparison.
type FingerprintComparison struct {
	Similarity      int      `json:"similarity"` // 0-100
	MatchingFields  []string `json:"matching_fields"`
	DifferentFields []string `json:"different_fields"`
	IsSameDevice    bool     `json:"is_same_device"`
}

// DeviceFingerprinter derives device identities and trust estimates from
// request signals. It is stateless and safe for concurrent use; identical
// signal sets always produce the same fingerprint ID.
type DeviceFingerprinter struct{}

// NewDeviceFingerprinter creates a new device fingerprinter
func NewDeviceFingerprinter() *DeviceFingerprinter {
	return &DeviceFingerprinter{}
}

// Generate derives a fingerprint and initial trust score from the given
// signals. The ID is a stable hash of the coarse signal set, so repeated
// requests from the same device converge to the same identity.
func (f *DeviceFingerprinter) Generate(signals DeviceSignals) *DeviceFingerprint {
	return &DeviceFingerprint{
		ID:           fingerprintID(signals),
		UserAgent:    signals.UserAgent,
		IPAddress:    signals.IPAddress,
		TrustScore:   f.trustScore(signals),
		CreatedAt:    time.Now(),
		Canvas:       signals.Canvas,
		WebGL:        signals.WebGL,
		AudioContext: signals.AudioContext,
		Plugins:      signals.Plugins,
	}
}

// Analyze produces a descriptive analysis of the signals alongside the
// fingerprint. IsBot derives strictly from the automation-signature match,
// independent of the trust score.
func (f *DeviceFingerprinter) Analyze(signals DeviceSignals) *DeviceAnalysis {
	fp := f.Generate(signals)
	isBot := MatchesAutomationSignature(signals.UserAgent)

	var factors []RiskFactor
	if isBot {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityCritical,
			Score:       95,
			Description: "automation detected in user agent",
			Details:     DeviceDetails{FingerprintID: fp.ID, TrustScore: fp.TrustScore},
			Metadata:    map[string]interface{}{"user_agent": signals.UserAgent},
		})
	}
	if missing := missingFeatureCount(signals); missing >= 3 {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityMedium,
			Score:       55,
			Description: fmt.Sprintf("%d expected browser features missing", missing),
			Details:     DeviceDetails{FingerprintID: fp.ID, MissingFeatures: missing},
		})
	}
	if signals.UserAgent == "" {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityMedium,
			Score:       50,
			Description: "empty user agent",
			Details:     DeviceDetails{FingerprintID: fp.ID},
		})
	}

	return &DeviceAnalysis{
		Fingerprint:   fp,
		RiskFactors:   factors,
		TrustScore:    fp.TrustScore,
		IsBot:         isBot,
		DeviceType:    deviceType(signals.UserAgent),
		BrowserFamily: browserFamily(signals.UserAgent),
		OSFamily:      osFamily(signals.UserAgent),
	}
}

// Compare performs a field-wise comparison of two fingerprints and reports
// whether they likely belong to the same device.
func (f *DeviceFingerprinter) Compare(a, b *DeviceFingerprint) *FingerprintComparison {
	cmp := &FingerprintComparison{}
	if a == nil || b == nil {
		cmp.DifferentFields = []string{"fingerprint"}
		return cmp
	}

	checks := []struct {
		field  string
		weight int
		match  bool
	}{
		{"user_agent", 35, a.UserAgent == b.UserAgent},
		{"ip_address", 25, a.IPAddress == b.IPAddress},
		{"canvas", 10, a.Canvas == b.Canvas},
		{"webgl", 10, a.WebGL == b.WebGL},
		{"audio_context", 10, a.AudioContext == b.AudioContext},
		{"plugins", 10, equalPlugins(a.Plugins, b.Plugins)},
	}

	for _, c := range checks {
		if c.match {
			cmp.Similarity += c.weight
			cmp.MatchingFields = append(cmp.MatchingFields, c.field)
		} else {
			cmp.DifferentFields = append(cmp.DifferentFields, c.field)
		}
	}

	cmp.IsSameDevice = cmp.Similarity >= sameDeviceSimilarity
	return cmp
}

// MatchesAutomationSignature reports whether the user agent matches a known
// automation signature.
func MatchesAutomationSignature(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// trustScore computes the initial trust estimate for a signal set,
// starting from the neutral baseline and applying penalties.
func (f *DeviceFingerprinter) trustScore(signals DeviceSignals) int {
	score := neutralTrustScore

	if signals.UserAgent == "" {
		score -= 15
	}
	if MatchesAutomationSignature(signals.UserAgent) {
		score -= 40
	}

	missing := missingFeatureCount(signals)
	if missing >= 3 {
		score -= 25
	} else {
		score -= 5 * missing
	}

	// A device that reports plugins but no rendering capabilities is an
	// inconsistent signal set.
	if len(signals.Plugins) > 0 && !signals.Canvas && !signals.WebGL {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// fingerprintID hashes the coarse signal set into a stable identity
func fingerprintID(signals DeviceSignals) string {
	h := sha256.New()
	h.Write([]byte(signals.UserAgent))
	h.Write([]byte{0})
	h.Write([]byte(signals.IPAddress))
	h.Write([]byte{0})
	h.Write([]byte(signals.AcceptLanguage))
	h.Write([]byte{0})
	h.Write([]byte(signals.AcceptEncoding))
	return hex.EncodeToString(h.Sum(nil))
}

// missingFeatureCount counts absent expected browser features among
// canvas, webgl, audio context, and a non-empty plugin list.
func missingFeatureCount(signals DeviceSignals) int {
	missing := 0
	if !signals.Canvas {
		missing++
	}
	if !signals.WebGL {
		missing++
	}
	if !signals.AudioContext {
		missing++
	}
	if len(signals.Plugins) == 0 {
		missing++
	}
	return missing
}

func equalPlugins(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func deviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	case userAgent == "":
		return "unknown"
	default:
		return "desktop"
	}
}

func browserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return "other"
	}
}

func osFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux"):
		return "linux"
	default:
		return "other"
	}
}
