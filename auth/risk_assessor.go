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
	"strings"
	"time"
)

// RiskConfig holds the calibration constants for risk assessment.
// The level boundaries (30/60/85) and the hard-block score (90) are fixed
// calibration values carried over from production tuning.
type RiskConfig struct {
	// Level boundaries: a score at or above each value maps to that level
	MediumAt   int `json:"medium_at"`
	HighAt     int `json:"high_at"`
	CriticalAt int `json:"critical_at"`

	// BlockAt is the score at or above which access is always denied
	BlockAt int `json:"block_at"`

	// Category weights applied to per-category mean factor scores
	LocationWeight float64 `json:"location_weight"`
	DeviceWeight   float64 `json:"device_weight"`
	BehaviorWeight float64 `json:"behavior_weight"`
	TemporalWeight float64 `json:"temporal_weight"`
	NetworkWeight  float64 `json:"network_weight"`

	// Travel speed thresholds in km/h
	ImpossibleTravelSpeedKPH float64 `json:"impossible_travel_speed_kph"`
	FastTravelSpeedKPH       float64 `json:"fast_travel_speed_kph"`

	// HighRiskCountries are country codes that always contribute a high
	// location factor
	HighRiskCountries []string `json:"high_risk_countries,omitempty"`

	// MFAMandatory requires step-up verification regardless of score
	MFAMandatory bool `json:"mfa_mandatory"`
}

// DefaultRiskConfig returns the standard risk calibration
func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		MediumAt:                 30,
		HighAt:                   60,
		CriticalAt:               85,
		BlockAt:                  90,
		LocationWeight:           0.25,
		DeviceWeight:             0.25,
		BehaviorWeight:           0.20,
		TemporalWeight:           0.15,
		NetworkWeight:            0.15,
		ImpossibleTravelSpeedKPH: 1000,
		FastTravelSpeedKPH:       500,
	}
}

// Validate repairs zero values so a partially specified config still
// behaves sanely.
func (c *RiskConfig) Validate() error {
	def := DefaultRiskConfig()
	if c.MediumAt <= 0 {
		c.MediumAt = def.MediumAt
	}
	if c.HighAt <= 0 {
		c.HighAt = def.HighAt
	}
	if c.CriticalAt <= 0 {
		c.CriticalAt = def.CriticalAt
	}
	if c.BlockAt <= 0 {
		c.BlockAt = def.BlockAt
	}
	if c.LocationWeight <= 0 {
		c.LocationWeight = def.LocationWeight
	}
	if c.DeviceWeight <= 0 {
		c.DeviceWeight = def.DeviceWeight
	}
	if c.BehaviorWeight <= 0 {
		c.BehaviorWeight = def.BehaviorWeight
	}
	if c.TemporalWeight <= 0 {
		c.TemporalWeight = def.TemporalWeight
	}
	if c.NetworkWeight <= 0 {
		c.NetworkWeight = def.NetworkWeight
	}
	if c.ImpossibleTravelSpeedKPH <= 0 {
		c.ImpossibleTravelSpeedKPH = def.ImpossibleTravelSpeedKPH
	}
	if c.FastTravelSpeedKPH <= 0 {
		c.FastTravelSpeedKPH = def.FastTravelSpeedKPH
	}
	return nil
}

// hardBlockSignatures are factor description fragments that force a denial
// regardless of the weighted score.
var hardBlockSignatures = []string{
	"known malicious",
	"impossible travel",
	"automation detected",
}

// RiskAssessor combines location, device, behavioral, temporal, and
// network signals into a single weighted risk assessment. It holds no
// mutable state; AssessRisk is deterministic for identical context and
// configuration and is safe to invoke with maximum concurrency.
type RiskAssessor struct {
	config *RiskConfig
}

// NewRiskAssessor creates a risk assessor with the given calibration.
// A nil config selects the default calibration.
func NewRiskAssessor(config *RiskConfig) *RiskAssessor {
	if config == nil {
		config = DefaultRiskConfig()
	}
	config.Validate()
	return &RiskAssessor{config: config}
}

// Config returns the assessor's calibration
func (a *RiskAssessor) Config() *RiskConfig {
	return a.config
}

// AssessRisk runs all applicable sub-assessments over the context and
// combines them into one assessment. Sub-assessments whose required
// context fields are absent are skipped rather than failed; malformed but
// present input degrades to "no factor contributed" and never errors.
func (a *RiskAssessor) AssessRisk(sc *SecurityContext) *RiskAssessment {
	assessment := &RiskAssessment{
		Factors:         []RiskFactor{},
		Recommendations: []string{},
		Timestamp:       time.Now(),
	}
	if sc == nil {
		assessment.Level = RiskLevelLow
		assessment.AllowAccess = true
		return assessment
	}

	assessment.Factors = append(assessment.Factors, a.assessLocation(sc)...)
	assessment.Factors = append(assessment.Factors, a.assessDevice(sc)...)
	assessment.Factors = append(assessment.Factors, a.assessBehavior(sc)...)
	assessment.Factors = append(assessment.Factors, a.assessTemporal(sc)...)
	assessment.Factors = append(assessment.Factors, a.assessNetwork(sc)...)

	assessment.OverallScore = a.aggregate(assessment.Factors)
	assessment.Level = a.classify(assessment.OverallScore)
	assessment.RequiresMFA = a.requiresMFA(assessment)
	assessment.AllowAccess = a.allowAccess(assessment)
	assessment.Recommendations = a.recommendations(assessment)

	return assessment
}

// aggregate takes the arithmetic mean of each category's factor scores,
// applies the category weight, sums across categories, and clamps the
// result to [0,100].
func (a *RiskAssessor) aggregate(factors []RiskFactor) int {
	sums := make(map[RiskFactorType]int)
	counts := make(map[RiskFactorType]int)
	for _, f := range factors {
		sums[f.Type] += f.Score
		counts[f.Type]++
	}

	weights := map[RiskFactorType]float64{
		RiskFactorLocation: a.config.LocationWeight,
		RiskFactorDevice:   a.config.DeviceWeight,
		RiskFactorBehavior: a.config.BehaviorWeight,
		RiskFactorTemporal: a.config.TemporalWeight,
		RiskFactorNetwork:  a.config.NetworkWeight,
	}

	total := 0.0
	for typ, count := range counts {
		if count == 0 {
			continue
		}
		mean := float64(sums[typ]) / float64(count)
		total += mean * weights[typ]
	}

	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// classify maps an overall score to a risk level
func (a *RiskAssessor) classify(score int) RiskLevel {
	switch {
	case score >= a.config.CriticalAt:
		return RiskLevelCritical
	case score >= a.config.HighAt:
		return RiskLevelHigh
	case score >= a.config.MediumAt:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// requiresMFA decides whether step-up verification is demanded: mandatory
// configuration, a score at or above the medium boundary, any critical
// factor, or two or more high factors.
func (a *RiskAssessor) requiresMFA(assessment *RiskAssessment) bool {
	if a.config.MFAMandatory {
		return true
	}
	if assessment.OverallScore >= a.config.MediumAt {
		return true
	}
	high := 0
	for _, f := range assessment.Factors {
		switch f.Severity {
		case RiskSeverityCritical:
			return true
		case RiskSeverityHigh:
			high++
		}
	}
	return high >= 2
}

// allowAccess decides whether the request may proceed at all: denied at or
// above the block score, with two or more critical factors, or when any
// factor carries a hard-block signature.
func (a *RiskAssessor) allowAccess(assessment *RiskAssessment) bool {
	if assessment.OverallScore >= a.config.BlockAt {
		return false
	}
	critical := 0
	for _, f := range assessment.Factors {
		if f.Severity == RiskSeverityCritical {
			critical++
		}
		desc := strings.ToLower(f.Description)
		for _, sig := range hardBlockSignatures {
			if strings.Contains(desc, sig) {
				return false
			}
		}
	}
	return critical < 2
}

// recommendations assembles operator guidance from the risk level and the
// factor categories present.
func (a *RiskAssessor) recommendations(assessment *RiskAssessment) []string {
	recs := []string{}

	switch {
	case !assessment.AllowAccess:
		recs = append(recs, "block access and alert the security team")
	case assessment.RequiresMFA:
		recs = append(recs, "require step-up verification before granting access")
	case assessment.Level == RiskLevelMedium:
		recs = append(recs, "allow access and monitor the session")
	default:
		recs = append(recs, "allow access")
	}

	seen := make(map[RiskFactorType]bool)
	for _, f := range assessment.Factors {
		if seen[f.Type] {
			continue
		}
		seen[f.Type] = true
		switch f.Type {
		case RiskFactorLocation:
			recs = append(recs, "verify location via a secondary channel")
		case RiskFactorDevice:
			recs = append(recs, "request device verification")
		case RiskFactorBehavior:
			recs = append(recs, "review recent account activity")
		case RiskFactorTemporal:
			recs = append(recs, "confirm the login time is expected for this user")
		case RiskFactorNetwork:
			recs = append(recs, "verify the network origin of the request")
		}
	}

	return recs
}
