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
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// StaticThreatFeed is a ThreatFeed backed by a fixed set of addresses and
// CIDR ranges.
type StaticThreatFeed struct {
	addrs map[string]bool
	nets  []*net.IPNet
}

// NewStaticThreatFeed builds a feed from address and CIDR strings.
// Unparseable entries are skipped.
func NewStaticThreatFeed(entries []string) *StaticThreatFeed {
	feed := &StaticThreatFeed{addrs: make(map[string]bool)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			feed.nets = append(feed.nets, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			feed.addrs[ip.String()] = true
		}
	}
	return feed
}

// IsKnownMaliciousIP reports whether the address is in the feed
func (f *StaticThreatFeed) IsKnownMaliciousIP(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if f.addrs[ip.String()] {
		return true
	}
	for _, network := range f.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// FileThreatFeed is a ThreatFeed loaded from a newline-delimited file of
// IP addresses and CIDR ranges ('#' starts a comment). The file is
// hot-reloaded when it changes on disk.
type FileThreatFeed struct {
	mu      sync.RWMutex
	path    string
	current *StaticThreatFeed
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewFileThreatFeed loads the feed file and returns the feed. Watching
// does not begin until StartWatching is called.
func NewFileThreatFeed(path string, logger *logrus.Logger) (*FileThreatFeed, error) {
	feed := &FileThreatFeed{path: path, logger: logger}
	if err := feed.Reload(); err != nil {
		return nil, err
	}
	return feed, nil
}

// IsKnownMaliciousIP reports whether the address is in the current feed
func (f *FileThreatFeed) IsKnownMaliciousIP(addr string) bool {
	f.mu.RLock()
	current := f.current
	f.mu.RUnlock()
	return current.IsKnownMaliciousIP(addr)
}

// Reload re-reads the feed file and swaps in the new set atomically
func (f *FileThreatFeed) Reload() error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open threat feed %s: %w", f.path, err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read threat feed %s: %w", f.path, err)
	}

	feed := NewStaticThreatFeed(entries)

	f.mu.Lock()
	f.current = feed
	f.mu.Unlock()

	if f.logger != nil {
		f.logger.WithFields(logrus.Fields{
			"path":    f.path,
			"entries": len(entries),
		}).Info("threat feed loaded")
	}
	return nil
}

// StartWatching watches the feed file's directory and reloads on change
func (f *FileThreatFeed) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create feed watcher: %w", err)
	}

	// Watch the directory rather than the file so editors that replace
	// the file still trigger events.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch feed directory: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	f.watcher = watcher
	f.cancel = cancel

	go f.watchLoop(watchCtx)
	return nil
}

// StopWatching stops the file watcher
func (f *FileThreatFeed) StopWatching() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.watcher != nil {
		f.watcher.Close()
	}
}

func (f *FileThreatFeed) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := f.Reload(); err != nil && f.logger != nil {
				f.logger.WithError(err).Warn("threat feed reload failed, keeping previous set")
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			if f.logger != nil {
				f.logger.WithError(err).Warn("threat feed watcher error")
			}
		}
	}
}
