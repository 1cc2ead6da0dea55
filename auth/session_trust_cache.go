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
	"sync"
	"time"
)

// SessionTrustEntry records the last successful validation of a session
// together with the risk score computed at that time. Entries are written
// as whole records, so a reader never observes a partial update.
type SessionTrustEntry struct {
	SessionID     string    `json:"session_id"`
	RiskScore     int       `json:"risk_score"`
	LastValidated time.Time `json:"last_validated"`
}

// SessionTrustConfig holds configuration for the session trust cache
type SessionTrustConfig struct {
	// RevalidationInterval is how long a validated session is trusted
	// before a fresh risk assessment is required
	RevalidationInterval time.Duration `json:"revalidation_interval"`

	// SweepInterval is how often the background sweep runs
	SweepInterval time.Duration `json:"sweep_interval"`

	// MaxEntries bounds the cache; the oldest entry is evicted when the
	// bound is reached. Zero means unbounded.
	MaxEntries int `json:"max_entries"`
}

// DefaultSessionTrustConfig returns a default cache configuration
func DefaultSessionTrustConfig() *SessionTrustConfig {
	return &SessionTrustConfig{
		RevalidationInterval: 5 * time.Minute,
		SweepInterval:        time.Minute,
		MaxEntries:           100000,
	}
}

// Validate repairs zero values in the configuration
func (c *SessionTrustConfig) Validate() error {
	if c.RevalidationInterval <= 0 {
		c.RevalidationInterval = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return nil
}

// SessionTrustStats provides statistics about cache effectiveness
type SessionTrustStats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Evictions  int64     `json:"evictions"`
	Swept      int64     `json:"swept"`
	SweepRuns  int64     `json:"sweep_runs"`
	Size       int       `json:"size"`
	LastSweep  time.Time `json:"last_sweep"`
}

// HitRate returns the cache hit rate as a percentage
func (s SessionTrustStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// SessionTrustCache is a bounded, TTL-based cache that avoids re-running
// risk assessment on every request for an already-validated session. It is
// an explicit, injectable store rather than a package-level singleton, so
// it can be swapped for a distributed cache without touching orchestrator
// logic. The cache is process-local; multi-instance deployments accept
// eventual staleness of at most one revalidation interval per instance.
type SessionTrustCache struct {
	mu      sync.RWMutex
	entries map[string]SessionTrustEntry
	config  *SessionTrustConfig
	stats   SessionTrustStats
	stopCh  chan struct{}
	stopped sync.Once

	// now is replaceable for tests
	now func() time.Time
}

// NewSessionTrustCache creates a session trust cache. A nil config selects
// the default configuration. The background sweep does not run until
// Start is called.
func NewSessionTrustCache(config *SessionTrustConfig) *SessionTrustCache {
	if config == nil {
		config = DefaultSessionTrustConfig()
	}
	config.Validate()

	return &SessionTrustCache{
		entries: make(map[string]SessionTrustEntry),
		config:  config,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Get returns the cached trust entry for a session, if present. Only a
// still-fresh entry counts as a hit; a stale one is returned but recorded
// as a miss, so HitRate reflects actual revalidation short-circuits.
func (c *SessionTrustCache) Get(sessionID string) (SessionTrustEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if ok && c.now().Sub(entry.LastValidated) < c.config.RevalidationInterval {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return entry, ok
}

// Put stores a whole-record trust entry for a session, stamped with the
// current time. Concurrent writers race last-writer-wins; both writes
// reflect a valid recent risk score.
func (c *SessionTrustCache) Put(sessionID string, riskScore int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[sessionID]; !exists &&
		c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}

	c.entries[sessionID] = SessionTrustEntry{
		SessionID:     sessionID,
		RiskScore:     riskScore,
		LastValidated: c.now(),
	}
}

// Delete removes a session's trust entry, e.g. on logout or termination
func (c *SessionTrustCache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// IsFresh reports whether an entry is still within the revalidation
// interval. An expired entry must trigger a fresh risk assessment, never
// be trusted as-is.
func (c *SessionTrustCache) IsFresh(entry SessionTrustEntry, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	return c.now().Sub(entry.LastValidated) < interval
}

// Sweep removes entries older than twice the revalidation interval and
// returns the number removed. Keys are snapshotted first so the store is
// not held locked for the duration of a large sweep.
func (c *SessionTrustCache) Sweep() int {
	horizon := 2 * c.config.RevalidationInterval

	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	removed := 0
	now := c.now()
	for _, key := range keys {
		c.mu.Lock()
		if entry, ok := c.entries[key]; ok && now.Sub(entry.LastValidated) >= horizon {
			delete(c.entries, key)
			removed++
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.stats.Swept += int64(removed)
	c.stats.SweepRuns++
	c.stats.LastSweep = now
	c.mu.Unlock()

	return removed
}

// Start launches the background sweep loop, decoupled from request
// handling.
func (c *SessionTrustCache) Start() {
	go c.sweepLoop()
}

// Stop terminates the background sweep loop
func (c *SessionTrustCache) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
	})
}

// Stats returns a snapshot of cache statistics
func (c *SessionTrustCache) Stats() SessionTrustStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

// RevalidationInterval returns the configured trust window
func (c *SessionTrustCache) RevalidationInterval() time.Duration {
	return c.config.RevalidationInterval
}

func (c *SessionTrustCache) sweepLoop() {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// evictOldestLocked drops the entry with the oldest validation stamp.
// Caller must hold the write lock.
func (c *SessionTrustCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.LastValidated.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastValidated
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}
