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
	"time"
)

// ZeroTrustConfig is the deployment configuration for the zero-trust
// decision pipeline. Configuration is passed explicitly at construction;
// there is no mutable package-level default.
type ZeroTrustConfig struct {
	// Profile is the name of the deployment profile this config was
	// derived from, for logging
	Profile string `json:"profile"`

	// Risk is the risk assessor calibration
	Risk *RiskConfig `json:"risk"`

	// SessionTrust configures the session trust cache
	SessionTrust *SessionTrustConfig `json:"session_trust"`

	// ExcludedPaths are request paths that bypass the pipeline entirely.
	// A path matches exactly, or by prefix when it ends with "*".
	ExcludedPaths []string `json:"excluded_paths,omitempty"`
}

// Validate repairs zero values in the configuration
func (c *ZeroTrustConfig) Validate() error {
	if c.Risk == nil {
		c.Risk = DefaultRiskConfig()
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.SessionTrust == nil {
		c.SessionTrust = DefaultSessionTrustConfig()
	}
	return c.SessionTrust.Validate()
}

// StandardProfile returns the default deployment configuration
func StandardProfile() *ZeroTrustConfig {
	return &ZeroTrustConfig{
		Profile:      "standard",
		Risk:         DefaultRiskConfig(),
		SessionTrust: DefaultSessionTrustConfig(),
		ExcludedPaths: []string{
			"/health",
			"/metrics",
		},
	}
}

// StrictProfile returns a configuration with tighter thresholds and a
// shorter trust window
func StrictProfile() *ZeroTrustConfig {
	risk := DefaultRiskConfig()
	risk.MediumAt = 20
	risk.HighAt = 45
	risk.CriticalAt = 70
	risk.BlockAt = 75

	return &ZeroTrustConfig{
		Profile: "strict",
		Risk:    risk,
		SessionTrust: &SessionTrustConfig{
			RevalidationInterval: time.Minute,
			SweepInterval:        30 * time.Second,
			MaxEntries:           100000,
		},
		ExcludedPaths: []string{"/health"},
	}
}

// AdminProfile returns the configuration for administrative surfaces:
// step-up verification is mandatory regardless of score
func AdminProfile() *ZeroTrustConfig {
	risk := DefaultRiskConfig()
	risk.MFAMandatory = true
	risk.BlockAt = 75

	return &ZeroTrustConfig{
		Profile: "admin",
		Risk:    risk,
		SessionTrust: &SessionTrustConfig{
			RevalidationInterval: time.Minute,
			SweepInterval:        30 * time.Second,
			MaxEntries:           10000,
		},
	}
}

// ProfileConfig maps a profile name to its fixed configuration
func ProfileConfig(name string) (*ZeroTrustConfig, error) {
	switch name {
	case "", "standard":
		return StandardProfile(), nil
	case "strict":
		return StrictProfile(), nil
	case "admin":
		return AdminProfile(), nil
	default:
		return nil, fmt.Errorf("unknown deployment profile %q", name)
	}
}
