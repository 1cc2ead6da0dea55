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
	"math"
	"testing"
	"time"
)

// a Tuesday at 11:00 UTC, inside business hours
var businessHours = time.Date(2025, time.June, 10, 11, 0, 0, 0, time.UTC)

func cleanContext(ts time.Time) *SecurityContext {
	fp := NewDeviceFingerprinter().Generate(fullSignals())
	fp.CreatedAt = ts.Add(-30 * 24 * time.Hour)

	newYork := &GeoLocation{Latitude: 40.7128, Longitude: -74.0060, Country: "US", City: "New York"}

	var logins []LoginHistoryEntry
	for i := 1; i <= 20; i++ {
		logins = append(logins, LoginHistoryEntry{
			Timestamp: ts.Add(-time.Duration(i) * 24 * time.Hour),
			Success:   true,
			Location:  newYork,
		})
	}

	age := 365.0
	return &SecurityContext{
		UserID:            "user-1",
		SessionID:         "sess-1",
		DeviceFingerprint: fp,
		IPAddress:         "203.0.113.10",
		UserAgent:         fp.UserAgent,
		Timestamp:         ts,
		GeoLocation:       newYork,
		PreviousLogins:    logins,
		AccountAgeDays:    &age,
	}
}

func TestAssessRiskNilContext(t *testing.T) {
	a := NewRiskAssessor(nil)
	assessment := a.AssessRisk(nil)

	if assessment.Level != RiskLevelLow {
		t.Errorf("level = %s, want %s", assessment.Level, RiskLevelLow)
	}
	if !assessment.AllowAccess {
		t.Error("nil context should be allowed")
	}
	if assessment.OverallScore != 0 {
		t.Errorf("score = %d, want 0", assessment.OverallScore)
	}
}

func TestAssessRiskCleanLogin(t *testing.T) {
	a := NewRiskAssessor(nil)
	assessment := a.AssessRisk(cleanContext(businessHours))

	if assessment.Level != RiskLevelLow {
		t.Errorf("level = %s, want %s (score %d, factors %v)",
			assessment.Level, RiskLevelLow, assessment.OverallScore, assessment.Factors)
	}
	if !assessment.AllowAccess {
		t.Error("clean login should be allowed")
	}
	if assessment.RequiresMFA {
		t.Error("clean login should not require step-up")
	}
}

func TestAssessRiskScoreRange(t *testing.T) {
	a := NewRiskAssessor(nil)

	// stack every adverse signal at once; the score must stay clamped
	sc := cleanContext(businessHours)
	sc.IsVPN = true
	sc.IsTor = true
	sc.IsProxy = true
	sc.KnownMaliciousIP = true
	sc.FailedAttempts = 20
	sc.UserAgent = "selenium webdriver bot"
	sc.DeviceFingerprint = NewDeviceFingerprinter().Generate(DeviceSignals{
		UserAgent: sc.UserAgent,
		IPAddress: sc.IPAddress,
	})

	assessment := a.AssessRisk(sc)
	if assessment.OverallScore < 0 || assessment.OverallScore > 100 {
		t.Errorf("score %d outside [0,100]", assessment.OverallScore)
	}
	if assessment.AllowAccess {
		t.Error("maximally adverse context should be blocked")
	}
}

func TestImpossibleTravel(t *testing.T) {
	a := NewRiskAssessor(nil)

	// last login in New York one hour ago, current request from Tokyo
	sc := cleanContext(businessHours)
	sc.PreviousLogins = append(sc.PreviousLogins, LoginHistoryEntry{
		Timestamp: businessHours.Add(-time.Hour),
		Success:   true,
		Location:  &GeoLocation{Latitude: 40.7128, Longitude: -74.0060, Country: "US", City: "New York"},
	})
	sc.GeoLocation = &GeoLocation{Latitude: 35.6762, Longitude: 139.6503, Country: "JP", City: "Tokyo"}

	assessment := a.AssessRisk(sc)

	var travel *RiskFactor
	for i := range assessment.Factors {
		if assessment.Factors[i].Severity == RiskSeverityCritical &&
			assessment.Factors[i].Type == RiskFactorLocation {
			travel = &assessment.Factors[i]
		}
	}
	if travel == nil {
		t.Fatalf("no critical location factor, got %+v", assessment.Factors)
	}
	if travel.Score != 90 {
		t.Errorf("impossible travel score = %d, want 90", travel.Score)
	}
	if assessment.AllowAccess {
		t.Error("impossible travel must block access")
	}
	if !assessment.RequiresMFA {
		t.Error("critical factor must demand step-up")
	}
}

func TestFastTravel(t *testing.T) {
	a := NewRiskAssessor(nil)

	// New York to Los Angeles (~3940 km) in 6 hours: ~660 km/h, fast but
	// not impossible
	sc := cleanContext(businessHours)
	sc.PreviousLogins = append(sc.PreviousLogins, LoginHistoryEntry{
		Timestamp: businessHours.Add(-6 * time.Hour),
		Success:   true,
		Location:  &GeoLocation{Latitude: 40.7128, Longitude: -74.0060, Country: "US", City: "New York"},
	})
	sc.GeoLocation = &GeoLocation{Latitude: 34.0522, Longitude: -118.2437, Country: "US", City: "Los Angeles"}

	assessment := a.AssessRisk(sc)

	found := false
	for _, f := range assessment.Factors {
		if f.Type == RiskFactorLocation && f.Severity == RiskSeverityHigh && f.Score == 70 {
			found = true
		}
	}
	if !found {
		t.Errorf("no high fast-travel factor, got %+v", assessment.Factors)
	}
	if !assessment.AllowAccess {
		t.Error("fast travel alone should not block access")
	}
}

func TestStaleHistoryIgnoredForVelocity(t *testing.T) {
	a := NewRiskAssessor(nil)

	// the only located login is 25 hours old, outside the velocity window
	sc := cleanContext(businessHours)
	sc.PreviousLogins = []LoginHistoryEntry{{
		Timestamp: businessHours.Add(-25 * time.Hour),
		Success:   true,
		Location:  &GeoLocation{Latitude: 40.7128, Longitude: -74.0060, Country: "US", City: "New York"},
	}}
	sc.GeoLocation = &GeoLocation{Latitude: 35.6762, Longitude: 139.6503, Country: "JP", City: "Tokyo"}

	assessment := a.AssessRisk(sc)
	for _, f := range assessment.Factors {
		if f.Severity == RiskSeverityCritical {
			t.Errorf("stale history produced critical factor: %+v", f)
		}
	}
}

func TestKnownMaliciousIPBlocks(t *testing.T) {
	a := NewRiskAssessor(nil)

	sc := cleanContext(businessHours)
	sc.KnownMaliciousIP = true

	assessment := a.AssessRisk(sc)
	if assessment.AllowAccess {
		t.Error("known malicious IP must block access regardless of weighted score")
	}
}

func TestAutomationBlocks(t *testing.T) {
	a := NewRiskAssessor(nil)

	sc := cleanContext(businessHours)
	sc.DeviceFingerprint = NewDeviceFingerprinter().Generate(DeviceSignals{
		UserAgent: "Mozilla/5.0 HeadlessChrome/126.0",
		IPAddress: sc.IPAddress,
	})

	assessment := a.AssessRisk(sc)
	if assessment.AllowAccess {
		t.Error("automation signature must block access")
	}
}

func TestBlockAtThreshold(t *testing.T) {
	a := NewRiskAssessor(nil)

	tests := []struct {
		score int
		allow bool
	}{
		{89, true},
		{90, false},
		{100, false},
	}
	for _, tt := range tests {
		assessment := &RiskAssessment{OverallScore: tt.score}
		if got := a.allowAccess(assessment); got != tt.allow {
			t.Errorf("allowAccess(score=%d) = %v, want %v", tt.score, got, tt.allow)
		}
	}
}

func TestTwoCriticalFactorsBlock(t *testing.T) {
	a := NewRiskAssessor(nil)

	assessment := &RiskAssessment{
		OverallScore: 50,
		Factors: []RiskFactor{
			{Type: RiskFactorDevice, Severity: RiskSeverityCritical, Score: 95, Description: "x"},
			{Type: RiskFactorNetwork, Severity: RiskSeverityCritical, Score: 95, Description: "y"},
		},
	}
	if a.allowAccess(assessment) {
		t.Error("two critical factors must block access")
	}

	assessment.Factors = assessment.Factors[:1]
	if !a.allowAccess(assessment) {
		t.Error("a single critical factor without a hard-block signature should not block")
	}
}

func TestRequiresMFA(t *testing.T) {
	a := NewRiskAssessor(nil)

	tests := []struct {
		name       string
		assessment *RiskAssessment
		want       bool
	}{
		{
			name:       "low score no factors",
			assessment: &RiskAssessment{OverallScore: 10},
			want:       false,
		},
		{
			name:       "score at medium boundary",
			assessment: &RiskAssessment{OverallScore: 30},
			want:       true,
		},
		{
			name: "single critical factor",
			assessment: &RiskAssessment{
				OverallScore: 15,
				Factors:      []RiskFactor{{Severity: RiskSeverityCritical}},
			},
			want: true,
		},
		{
			name: "two high factors",
			assessment: &RiskAssessment{
				OverallScore: 15,
				Factors: []RiskFactor{
					{Severity: RiskSeverityHigh},
					{Severity: RiskSeverityHigh},
				},
			},
			want: true,
		},
		{
			name: "single high factor",
			assessment: &RiskAssessment{
				OverallScore: 15,
				Factors:      []RiskFactor{{Severity: RiskSeverityHigh}},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.requiresMFA(tt.assessment); got != tt.want {
				t.Errorf("requiresMFA() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("mandatory override", func(t *testing.T) {
		mandatory := NewRiskAssessor(&RiskConfig{MFAMandatory: true})
		if !mandatory.requiresMFA(&RiskAssessment{OverallScore: 0}) {
			t.Error("MFAMandatory config must always demand step-up")
		}
	})
}

func TestClassify(t *testing.T) {
	a := NewRiskAssessor(nil)

	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLevelLow},
		{29, RiskLevelLow},
		{30, RiskLevelMedium},
		{59, RiskLevelMedium},
		{60, RiskLevelHigh},
		{84, RiskLevelHigh},
		{85, RiskLevelCritical},
		{100, RiskLevelCritical},
	}
	for _, tt := range tests {
		if got := a.classify(tt.score); got != tt.want {
			t.Errorf("classify(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestAggregateWeights(t *testing.T) {
	a := NewRiskAssessor(nil)

	// one factor per category at score 100: weights sum to 1.0
	factors := []RiskFactor{
		{Type: RiskFactorLocation, Score: 100},
		{Type: RiskFactorDevice, Score: 100},
		{Type: RiskFactorBehavior, Score: 100},
		{Type: RiskFactorTemporal, Score: 100},
		{Type: RiskFactorNetwork, Score: 100},
	}
	if got := a.aggregate(factors); got != 100 {
		t.Errorf("aggregate(all 100) = %d, want 100", got)
	}

	// a category's factors are averaged, not summed
	factors = []RiskFactor{
		{Type: RiskFactorNetwork, Score: 80},
		{Type: RiskFactorNetwork, Score: 40},
	}
	want := int(math.Round(60 * 0.15))
	if got := a.aggregate(factors); got != want {
		t.Errorf("aggregate(network 80,40) = %d, want %d", got, want)
	}

	if got := a.aggregate(nil); got != 0 {
		t.Errorf("aggregate(nil) = %d, want 0", got)
	}
}

func TestHighRiskCountry(t *testing.T) {
	a := NewRiskAssessor(&RiskConfig{HighRiskCountries: []string{"XX"}})

	sc := cleanContext(businessHours)
	sc.GeoLocation = &GeoLocation{Latitude: 1, Longitude: 1, Country: "XX", City: "Test"}

	assessment := a.AssessRisk(sc)
	found := false
	for _, f := range assessment.Factors {
		if f.Type == RiskFactorLocation && f.Severity == RiskSeverityHigh && f.Score == 75 {
			found = true
		}
	}
	if !found {
		t.Errorf("no high-risk country factor, got %+v", assessment.Factors)
	}
}

func TestFirstLoginLocationFactor(t *testing.T) {
	a := NewRiskAssessor(nil)

	// a brand-new user with a resolved location and no history at all still
	// gets the first-login factor
	sc := cleanContext(businessHours)
	sc.PreviousLogins = nil

	assessment := a.AssessRisk(sc)
	var first *RiskFactor
	for i := range assessment.Factors {
		if assessment.Factors[i].Type == RiskFactorLocation {
			if first != nil {
				t.Fatalf("multiple location factors: %+v", assessment.Factors)
			}
			first = &assessment.Factors[i]
		}
	}
	if first == nil {
		t.Fatalf("no location factor for empty history, got %+v", assessment.Factors)
	}
	if first.Severity != RiskSeverityMedium || first.Score != 40 {
		t.Errorf("first-login factor = %+v, want medium score 40", *first)
	}
	if first.Description != "first login from this location" {
		t.Errorf("description = %q", first.Description)
	}

	// history with no located entries is treated the same way
	sc = cleanContext(businessHours)
	for i := range sc.PreviousLogins {
		sc.PreviousLogins[i].Location = nil
	}
	assessment = a.AssessRisk(sc)
	found := false
	for _, f := range assessment.Factors {
		if f.Type == RiskFactorLocation && f.Score == 40 {
			found = true
		}
	}
	if !found {
		t.Errorf("no first-login factor for unlocated history, got %+v", assessment.Factors)
	}
}

func TestDeviceChangeSinceLastLogin(t *testing.T) {
	a := NewRiskAssessor(nil)

	sc := cleanContext(businessHours)
	sc.KnownDeviceID = "other-device"

	assessment := a.AssessRisk(sc)
	found := false
	for _, f := range assessment.Factors {
		if f.Type == RiskFactorDevice && f.Severity == RiskSeverityMedium && f.Score == 50 {
			found = true
		}
	}
	if !found {
		t.Errorf("no device-change factor, got %+v", assessment.Factors)
	}

	// a claim matching the regenerated fingerprint produces no factor
	sc = cleanContext(businessHours)
	sc.KnownDeviceID = sc.DeviceFingerprint.ID
	assessment = a.AssessRisk(sc)
	for _, f := range assessment.Factors {
		if f.Type == RiskFactorDevice {
			t.Errorf("unexpected device factor %+v", f)
		}
	}
}

func TestFailedAttemptsFactor(t *testing.T) {
	a := NewRiskAssessor(nil)

	tests := []struct {
		attempts int
		score    int
		severity RiskSeverity
	}{
		{1, 30, RiskSeverityLow},
		{3, 50, RiskSeverityMedium},
		{6, 80, RiskSeverityHigh},
		{10, 90, RiskSeverityHigh},
	}
	for _, tt := range tests {
		sc := &SecurityContext{
			UserID:         "user-1",
			Timestamp:      businessHours,
			FailedAttempts: tt.attempts,
		}
		assessment := a.AssessRisk(sc)

		var factor *RiskFactor
		for i := range assessment.Factors {
			if assessment.Factors[i].Type == RiskFactorBehavior {
				factor = &assessment.Factors[i]
			}
		}
		if factor == nil {
			t.Fatalf("attempts=%d: no behavior factor", tt.attempts)
		}
		if factor.Score != tt.score || factor.Severity != tt.severity {
			t.Errorf("attempts=%d: score=%d severity=%s, want %d %s",
				tt.attempts, factor.Score, factor.Severity, tt.score, tt.severity)
		}
	}
}

func TestHaversine(t *testing.T) {
	// New York to London is roughly 5570 km
	distance := haversineKM(40.7128, -74.0060, 51.5074, -0.1278)
	if distance < 5500 || distance > 5600 {
		t.Errorf("NYC-London distance = %.0f km, want ~5570", distance)
	}

	if d := haversineKM(40.7128, -74.0060, 40.7128, -74.0060); d != 0 {
		t.Errorf("zero distance = %f, want 0", d)
	}
}

func TestRecommendationsPresent(t *testing.T) {
	a := NewRiskAssessor(nil)

	sc := cleanContext(businessHours)
	sc.KnownMaliciousIP = true
	assessment := a.AssessRisk(sc)

	if len(assessment.Recommendations) == 0 {
		t.Fatal("blocked assessment carries no recommendations")
	}
	if assessment.Recommendations[0] != "block access and alert the security team" {
		t.Errorf("first recommendation = %q", assessment.Recommendations[0])
	}
}

func TestDeterministicAssessment(t *testing.T) {
	a := NewRiskAssessor(nil)
	sc := cleanContext(businessHours)

	first := a.AssessRisk(sc)
	second := a.AssessRisk(sc)
	if first.OverallScore != second.OverallScore || first.Level != second.Level {
		t.Errorf("identical context produced different assessments: %d/%s vs %d/%s",
			first.OverallScore, first.Level, second.OverallScore, second.Level)
	}
}
