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
	"fmt"
	"math"
	"net"
	"sort"
	"time"
)

const earthRadiusKM = 6371.0

// assessLocation evaluates geo-velocity and location novelty. Requires a
// resolved location; absent that, no factors are produced. A user with no
// located login on record, including one with an entirely empty history,
// gets the first-login factor.
func (a *RiskAssessor) assessLocation(sc *SecurityContext) []RiskFactor {
	if sc.GeoLocation == nil {
		return nil
	}

	var located []LoginHistoryEntry
	for _, login := range sc.PreviousLogins {
		if login.Location != nil {
			located = append(located, login)
		}
	}

	if len(located) == 0 {
		return []RiskFactor{{
			Type:        RiskFactorLocation,
			Severity:    RiskSeverityMedium,
			Score:       40,
			Description: "first login from this location",
			Details: LocationDetails{
				Country: sc.GeoLocation.Country,
				City:    sc.GeoLocation.City,
			},
		}}
	}

	var factors []RiskFactor

	if f := a.checkTravelVelocity(sc, located); f != nil {
		factors = append(factors, *f)
	}

	countries := make(map[string]bool)
	cities := make(map[string]bool)
	for _, login := range located {
		countries[login.Location.Country] = true
		cities[login.Location.Country+"/"+login.Location.City] = true
	}

	if !countries[sc.GeoLocation.Country] {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorLocation,
			Severity:    RiskSeverityMedium,
			Score:       50,
			Description: fmt.Sprintf("login from new country %s", sc.GeoLocation.Country),
			Details:     LocationDetails{Country: sc.GeoLocation.Country},
		})
	}

	for _, c := range a.config.HighRiskCountries {
		if c == sc.GeoLocation.Country {
			factors = append(factors, RiskFactor{
				Type:        RiskFactorLocation,
				Severity:    RiskSeverityHigh,
				Score:       75,
				Description: fmt.Sprintf("login from high-risk country %s", c),
				Details:     LocationDetails{Country: c},
			})
			break
		}
	}

	if countries[sc.GeoLocation.Country] && !cities[sc.GeoLocation.Country+"/"+sc.GeoLocation.City] {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorLocation,
			Severity:    RiskSeverityMedium,
			Score:       45,
			Description: fmt.Sprintf("login from new city %s", sc.GeoLocation.City),
			Details: LocationDetails{
				Country: sc.GeoLocation.Country,
				City:    sc.GeoLocation.City,
			},
		})
	}

	return factors
}

// checkTravelVelocity computes the implied travel speed from the most
// recent located login within the last 24 hours. Above 1000 km/h travel is
// physically impossible; above 500 km/h it is suspiciously fast.
func (a *RiskAssessor) checkTravelVelocity(sc *SecurityContext, located []LoginHistoryEntry) *RiskFactor {
	cutoff := sc.Timestamp.Add(-24 * time.Hour)

	var last *LoginHistoryEntry
	for i := range located {
		login := &located[i]
		if login.Timestamp.Before(cutoff) || !login.Timestamp.Before(sc.Timestamp) {
			continue
		}
		if last == nil || login.Timestamp.After(last.Timestamp) {
			last = login
		}
	}
	if last == nil {
		return nil
	}

	distance := haversineKM(
		last.Location.Latitude, last.Location.Longitude,
		sc.GeoLocation.Latitude, sc.GeoLocation.Longitude,
	)
	elapsed := sc.Timestamp.Sub(last.Timestamp).Hours()
	if elapsed <= 0 {
		return nil
	}
	speed := distance / elapsed

	details := LocationDetails{
		Country:         sc.GeoLocation.Country,
		City:            sc.GeoLocation.City,
		DistanceKM:      distance,
		ImpliedSpeedKPH: speed,
	}

	switch {
	case speed > a.config.ImpossibleTravelSpeedKPH:
		return &RiskFactor{
			Type:        RiskFactorLocation,
			Severity:    RiskSeverityCritical,
			Score:       90,
			Description: fmt.Sprintf("impossible travel detected: %.0f km at %.0f km/h", distance, speed),
			Details:     details,
			Metadata: map[string]interface{}{
				"previous_timestamp": last.Timestamp,
			},
		}
	case speed > a.config.FastTravelSpeedKPH:
		return &RiskFactor{
			Type:        RiskFactorLocation,
			Severity:    RiskSeverityHigh,
			Score:       70,
			Description: fmt.Sprintf("very fast travel: %.0f km at %.0f km/h", distance, speed),
			Details:     details,
		}
	}
	return nil
}

// assessDevice evaluates fingerprint trust, age, automation signatures,
// capability coverage, and continuity against the device recorded in the
// token claims. An automation match short-circuits the remaining device
// checks.
func (a *RiskAssessor) assessDevice(sc *SecurityContext) []RiskFactor {
	fp := sc.DeviceFingerprint
	if fp == nil {
		return nil
	}

	if MatchesAutomationSignature(fp.UserAgent) {
		return []RiskFactor{{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityCritical,
			Score:       95,
			Description: "automation detected in user agent",
			Details:     DeviceDetails{FingerprintID: fp.ID, TrustScore: fp.TrustScore},
			Metadata:    map[string]interface{}{"user_agent": fp.UserAgent},
		}}
	}

	var factors []RiskFactor

	switch {
	case fp.TrustScore < 30:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityHigh,
			Score:       80,
			Description: fmt.Sprintf("very low device trust score %d", fp.TrustScore),
			Details:     DeviceDetails{FingerprintID: fp.ID, TrustScore: fp.TrustScore},
		})
	case fp.TrustScore < 50:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityMedium,
			Score:       50,
			Description: fmt.Sprintf("low device trust score %d", fp.TrustScore),
			Details:     DeviceDetails{FingerprintID: fp.ID, TrustScore: fp.TrustScore},
		})
	}

	if !fp.CreatedAt.IsZero() {
		age := sc.Timestamp.Sub(fp.CreatedAt)
		switch {
		case age < 24*time.Hour:
			factors = append(factors, RiskFactor{
				Type:        RiskFactorDevice,
				Severity:    RiskSeverityMedium,
				Score:       60,
				Description: "device fingerprint first seen within the last day",
				Details:     DeviceDetails{FingerprintID: fp.ID, FingerprintAge: age},
			})
		case age < 7*24*time.Hour:
			factors = append(factors, RiskFactor{
				Type:        RiskFactorDevice,
				Severity:    RiskSeverityLow,
				Score:       30,
				Description: "device fingerprint first seen within the last week",
				Details:     DeviceDetails{FingerprintID: fp.ID, FingerprintAge: age},
			})
		}
	}

	missing := 0
	if !fp.Canvas {
		missing++
	}
	if !fp.WebGL {
		missing++
	}
	if !fp.AudioContext {
		missing++
	}
	if len(fp.Plugins) == 0 {
		missing++
	}
	if missing >= 3 {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityMedium,
			Score:       55,
			Description: fmt.Sprintf("%d expected browser features missing", missing),
			Details:     DeviceDetails{FingerprintID: fp.ID, MissingFeatures: missing},
		})
	}

	if sc.KnownDeviceID != "" && sc.KnownDeviceID != fp.ID {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorDevice,
			Severity:    RiskSeverityMedium,
			Score:       50,
			Description: "device fingerprint changed since last login",
			Details:     DeviceDetails{FingerprintID: fp.ID, TrustScore: fp.TrustScore},
			Metadata:    map[string]interface{}{"known_device_id": sc.KnownDeviceID},
		})
	}

	return factors
}

// assessBehavior evaluates login frequency, failure streaks, hour-of-day
// anomalies, and success rate over a 30 day window. Requires login
// history except for the failed-attempts check.
func (a *RiskAssessor) assessBehavior(sc *SecurityContext) []RiskFactor {
	var factors []RiskFactor

	if sc.FailedAttempts > 0 {
		score := 20 + 10*sc.FailedAttempts
		if score > 90 {
			score = 90
		}
		severity := RiskSeverityLow
		switch {
		case sc.FailedAttempts > 5:
			severity = RiskSeverityHigh
		case sc.FailedAttempts > 2:
			severity = RiskSeverityMedium
		}
		factors = append(factors, RiskFactor{
			Type:        RiskFactorBehavior,
			Severity:    severity,
			Score:       score,
			Description: fmt.Sprintf("%d recent failed login attempts", sc.FailedAttempts),
			Details:     BehaviorDetails{FailedAttempts: sc.FailedAttempts},
		})
	}

	if len(sc.PreviousLogins) == 0 {
		return factors
	}

	cutoff := sc.Timestamp.Add(-30 * 24 * time.Hour)
	var window []LoginHistoryEntry
	for _, login := range sc.PreviousLogins {
		if login.Timestamp.After(cutoff) && login.Timestamp.Before(sc.Timestamp) {
			window = append(window, login)
		}
	}
	if len(window) == 0 {
		return factors
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	year, month, day := sc.Timestamp.Date()
	today := 0
	for _, login := range window {
		ly, lm, ld := login.Timestamp.Date()
		if ly == year && lm == month && ld == day {
			today++
		}
	}
	switch {
	case today > 20:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorBehavior,
			Severity:    RiskSeverityHigh,
			Score:       75,
			Description: fmt.Sprintf("excessive login frequency: %d logins today", today),
			Details:     BehaviorDetails{LoginsToday: today},
		})
	case today > 10:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorBehavior,
			Severity:    RiskSeverityMedium,
			Score:       45,
			Description: fmt.Sprintf("elevated login frequency: %d logins today", today),
			Details:     BehaviorDetails{LoginsToday: today},
		})
	}

	// Hour-of-day anomaly is only meaningful once enough history exists.
	if len(window) >= 10 {
		hourCounts := make(map[int]int)
		for _, login := range window {
			hourCounts[login.Timestamp.Hour()]++
		}
		share := float64(hourCounts[sc.Timestamp.Hour()]) / float64(len(window))
		if share < 0.05 {
			factors = append(factors, RiskFactor{
				Type:        RiskFactorBehavior,
				Severity:    RiskSeverityMedium,
				Score:       40,
				Description: "unusual time of day for this user",
				Details:     BehaviorDetails{HourShare: share},
			})
		}
	}

	successes := 0
	for _, login := range window {
		if login.Success {
			successes++
		}
	}
	rate := float64(successes) / float64(len(window))
	switch {
	case rate < 0.5:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorBehavior,
			Severity:    RiskSeverityHigh,
			Score:       70,
			Description: fmt.Sprintf("low login success rate %.0f%%", rate*100),
			Details:     BehaviorDetails{SuccessRate: rate},
		})
	case rate < 0.8:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorBehavior,
			Severity:    RiskSeverityMedium,
			Score:       45,
			Description: fmt.Sprintf("reduced login success rate %.0f%%", rate*100),
			Details:     BehaviorDetails{SuccessRate: rate},
		})
	}

	return factors
}

// assessTemporal evaluates the wall-clock timing of the request and the
// account age.
func (a *RiskAssessor) assessTemporal(sc *SecurityContext) []RiskFactor {
	var factors []RiskFactor
	ts := sc.Timestamp
	hour := ts.Hour()

	if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorTemporal,
			Severity:    RiskSeverityLow,
			Score:       25,
			Description: "weekend login",
			Details:     TemporalDetails{Hour: hour, Weekend: true},
		})
	}

	switch {
	case hour >= 2 && hour < 5:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorTemporal,
			Severity:    RiskSeverityMedium,
			Score:       45,
			Description: "late-night login",
			Details:     TemporalDetails{Hour: hour},
		})
	case hour < 9 || hour >= 17:
		factors = append(factors, RiskFactor{
			Type:        RiskFactorTemporal,
			Severity:    RiskSeverityLow,
			Score:       20,
			Description: "login outside business hours",
			Details:     TemporalDetails{Hour: hour},
		})
	}

	if sc.AccountAgeDays != nil {
		age := *sc.AccountAgeDays
		switch {
		case age < 1:
			factors = append(factors, RiskFactor{
				Type:        RiskFactorTemporal,
				Severity:    RiskSeverityMedium,
				Score:       50,
				Description: "account created within the last day",
				Details:     TemporalDetails{Hour: hour, AccountAgeDays: age},
			})
		case age < 7:
			factors = append(factors, RiskFactor{
				Type:        RiskFactorTemporal,
				Severity:    RiskSeverityLow,
				Score:       30,
				Description: "account created within the last week",
				Details:     TemporalDetails{Hour: hour, AccountAgeDays: age},
			})
		}
	}

	return factors
}

// assessNetwork evaluates the request's network origin: anonymizing
// infrastructure, private ranges, and threat-feed hits.
func (a *RiskAssessor) assessNetwork(sc *SecurityContext) []RiskFactor {
	var factors []RiskFactor

	details := NetworkDetails{
		IPAddress:      sc.IPAddress,
		VPN:            sc.IsVPN,
		Tor:            sc.IsTor,
		Proxy:          sc.IsProxy,
		KnownMalicious: sc.KnownMaliciousIP,
	}

	if sc.IsVPN {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorNetwork,
			Severity:    RiskSeverityMedium,
			Score:       50,
			Description: "request via VPN",
			Details:     details,
		})
	}
	if sc.IsTor {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorNetwork,
			Severity:    RiskSeverityHigh,
			Score:       80,
			Description: "request via Tor exit node",
			Details:     details,
		})
	}
	if sc.IsProxy {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorNetwork,
			Severity:    RiskSeverityMedium,
			Score:       45,
			Description: "request via anonymizing proxy",
			Details:     details,
		})
	}

	if isPrivateIP(sc.IPAddress) {
		details.PrivateRange = true
		factors = append(factors, RiskFactor{
			Type:        RiskFactorNetwork,
			Severity:    RiskSeverityLow,
			Score:       20,
			Description: "request from private address range",
			Details:     details,
		})
	}

	if sc.KnownMaliciousIP {
		factors = append(factors, RiskFactor{
			Type:        RiskFactorNetwork,
			Severity:    RiskSeverityCritical,
			Score:       95,
			Description: fmt.Sprintf("known malicious IP %s", sc.IPAddress),
			Details:     details,
		})
	}

	return factors
}

// haversineKM computes the great-circle distance between two coordinates
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// isPrivateIP reports whether the address is loopback or in a private range
func isPrivateIP(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
