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
	"time"
)

// RiskLevel classifies an overall risk score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskSeverity represents the severity of an individual risk factor
type RiskSeverity string

const (
	RiskSeverityLow      RiskSeverity = "low"
	RiskSeverityMedium   RiskSeverity = "medium"
	RiskSeverityHigh     RiskSeverity = "high"
	RiskSeverityCritical RiskSeverity = "critical"
)

// RiskFactorType identifies the category a risk factor belongs to
type RiskFactorType string

const (
	RiskFactorLocation RiskFactorType = "location"
	RiskFactorDevice   RiskFactorType = "device"
	RiskFactorBehavior RiskFactorType = "behavior"
	RiskFactorTemporal RiskFactorType = "temporal"
	RiskFactorNetwork  RiskFactorType = "network"
)

// GeoLocation holds a resolved request location
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
}

// LoginHistoryEntry is one historical login record for a user. Entries are
// append-only; the assessor orders them itself and never mutates them.
type LoginHistoryEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Success   bool         `json:"success"`
	Location  *GeoLocation `json:"location,omitempty"`
}

// SecurityContext is the per-request input to risk assessment. It is
// assembled fresh for every request and never persisted as-is.
type SecurityContext struct {
	UserID            string              `json:"user_id"`
	SessionID         string              `json:"session_id"`
	DeviceFingerprint *DeviceFingerprint  `json:"device_fingerprint,omitempty"`
	IPAddress         string              `json:"ip_address"`
	UserAgent         string              `json:"user_agent"`
	Timestamp         time.Time           `json:"timestamp"`
	GeoLocation       *GeoLocation        `json:"geo_location,omitempty"`
	PreviousLogins    []LoginHistoryEntry `json:"previous_logins,omitempty"`
	FailedAttempts    int                 `json:"failed_attempts,omitempty"`
	AccountAgeDays    *float64            `json:"account_age_days,omitempty"`
	IsVPN             bool                `json:"is_vpn,omitempty"`
	IsTor             bool                `json:"is_tor,omitempty"`
	IsProxy           bool                `json:"is_proxy,omitempty"`

	// KnownDeviceID is the fingerprint id carried in the verified token
	// claims, when present. A mismatch with the regenerated fingerprint is
	// a device-continuity signal.
	KnownDeviceID string `json:"known_device_id,omitempty"`

	// KnownMaliciousIP is resolved by the caller against a threat feed before
	// assessment so the assessor itself stays a pure function.
	KnownMaliciousIP bool `json:"known_malicious_ip,omitempty"`
}

// FactorDetails carries the strongly typed fields relevant to one factor
// category. Diagnostics that policy logic does not need go into the
// free-form Metadata map on the factor instead.
type FactorDetails interface {
	FactorType() RiskFactorType
}

// LocationDetails holds typed details for location factors
type LocationDetails struct {
	Country         string  `json:"country,omitempty"`
	City            string  `json:"city,omitempty"`
	DistanceKM      float64 `json:"distance_km,omitempty"`
	ImpliedSpeedKPH float64 `json:"implied_speed_kph,omitempty"`
}

func (LocationDetails) FactorType() RiskFactorType { return RiskFactorLocation }

// DeviceDetails holds typed details for device factors
type DeviceDetails struct {
	FingerprintID   string        `json:"fingerprint_id,omitempty"`
	TrustScore      int           `json:"trust_score,omitempty"`
	FingerprintAge  time.Duration `json:"fingerprint_age,omitempty"`
	MissingFeatures int           `json:"missing_features,omitempty"`
}

func (DeviceDetails) FactorType() RiskFactorType { return RiskFactorDevice }

// BehaviorDetails holds typed details for behavioral factors
type BehaviorDetails struct {
	LoginsToday    int     `json:"logins_today,omitempty"`
	FailedAttempts int     `json:"failed_attempts,omitempty"`
	SuccessRate    float64 `json:"success_rate,omitempty"`
	HourShare      float64 `json:"hour_share,omitempty"`
}

func (BehaviorDetails) FactorType() RiskFactorType { return RiskFactorBehavior }

// TemporalDetails holds typed details for temporal factors
type TemporalDetails struct {
	Hour           int     `json:"hour"`
	Weekend        bool    `json:"weekend,omitempty"`
	AccountAgeDays float64 `json:"account_age_days,omitempty"`
}

func (TemporalDetails) FactorType() RiskFactorType { return RiskFactorTemporal }

// NetworkDetails holds typed details for network factors
type NetworkDetails struct {
	IPAddress      string `json:"ip_address"`
	VPN            bool   `json:"vpn,omitempty"`
	Tor            bool   `json:"tor,omitempty"`
	Proxy          bool   `json:"proxy,omitempty"`
	PrivateRange   bool   `json:"private_range,omitempty"`
	KnownMalicious bool   `json:"known_malicious,omitempty"`
}

func (NetworkDetails) FactorType() RiskFactorType { return RiskFactorNetwork }

// RiskFactor is one detected signal contributing to the overall score
type RiskFactor struct {
	Type        RiskFactorType         `json:"type"`
	Severity    RiskSeverity           `json:"severity"`
	Score       int                    `json:"score"` // 0-100
	Description string                 `json:"description"`
	Details     FactorDetails          `json:"details,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// RiskAssessment is the immutable output of one risk assessment run. A new
// assessment is produced per request and never updated in place.
type RiskAssessment struct {
	OverallScore    int          `json:"overall_score"` // 0-100
	Level           RiskLevel    `json:"level"`
	Factors         []RiskFactor `json:"factors"`
	Recommendations []string     `json:"recommendations"`
	RequiresMFA     bool         `json:"requires_mfa"`
	AllowAccess     bool         `json:"allow_access"`
	Timestamp       time.Time    `json:"timestamp"`
}

// AuthenticatedPrincipal is the successful output of the zero-trust
// pipeline, built fresh per request from verified token claims plus the
// current risk score.
type AuthenticatedPrincipal struct {
	ID                string             `json:"id"`
	Email             string             `json:"email,omitempty"`
	Roles             []string           `json:"roles,omitempty"`
	Permissions       []string           `json:"permissions,omitempty"`
	MFAEnabled        bool               `json:"mfa_enabled"`
	RiskScore         int                `json:"risk_score"`
	DeviceFingerprint *DeviceFingerprint `json:"device_fingerprint,omitempty"`
	SessionID         string             `json:"session_id"`
}
