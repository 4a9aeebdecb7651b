// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
)

// DefaultCleanupRules returns rules for temporary files, logs and cache
// entries under dir.
func DefaultCleanupRules(dir string) []CleanupRule {
	dir = filepath.ToSlash(dir)
	return []CleanupRule{
		{
			ID:       "temp-files",
			Name:     "Temporary files",
			Pattern:  dir + "/**/*.tmp",
			MaxAge:   time.Hour,
			Priority: 3,
		},
		{
			ID:       "log-files",
			Name:     "Old log files",
			Pattern:  dir + "/**/*.log",
			MaxAge:   7 * 24 * time.Hour,
			MaxSize:  100 << 20,
			Priority: 2,
		},
		{
			ID:       "cache-files",
			Name:     "Cache entries",
			Pattern:  dir + "/cache/**/*",
			MaxAge:   24 * time.Hour,
			Priority: 1,
		},
	}
}

// AddCleanupRule registers rule, replacing any rule with the same id.
func (m *Monitor) AddCleanupRule(rule CleanupRule) error {
	if err := errdefs.Validate("cleanup rule", rule); err != nil {
		return err
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(rule.Pattern)) {
		return errdefs.NewConfigurationError("cleanup rule", "pattern %q is malformed", rule.Pattern)
	}

	m.rulesMu.Lock()
	defer m.rulesMu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

// RemoveCleanupRule reports whether a rule was removed.
func (m *Monitor) RemoveCleanupRule(id string) bool {
	m.rulesMu.Lock()
	defer m.rulesMu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return false
	}
	delete(m.rules, id)
	return true
}

// CleanupRules returns the rules in execution order: highest priority first.
func (m *Monitor) CleanupRules() []CleanupRule {
	m.rulesMu.RLock()
	rules := make([]CleanupRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	m.rulesMu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// ExecuteCleanup applies every rule. A rule that fails adds to Errors and the
// pass moves on. Concurrent calls with the same dryRun share one pass.
func (m *Monitor) ExecuteCleanup(ctx context.Context, dryRun bool) CleanupResult {
	key := "cleanup"
	if dryRun {
		key = "dry-run"
	}

	v, _, _ := m.cleanupGroup.Do(key, func() (any, error) {
		return m.runCleanup(ctx, dryRun), nil
	})
	result := v.(CleanupResult)

	if !dryRun {
		m.mu.Lock()
		m.lastCleanup = &result
		m.cleanupRuns++
		m.mu.Unlock()
		m.metrics.cleanup(result)
	}
	return result
}

func (m *Monitor) runCleanup(ctx context.Context, dryRun bool) CleanupResult {
	start := m.clock.Now()
	result := CleanupResult{
		DryRun:       dryRun,
		RemovedFiles: []string{},
		Errors:       []string{},
		StartedAt:    start,
	}

	for _, rule := range m.CleanupRules() {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cleanup interrupted before rule %s: %v", rule.ID, err))
			break
		}
		m.applyRule(rule, start, &result)
		result.RulesApplied++
	}

	result.Duration = m.clock.Since(start)
	return result
}

func (m *Monitor) applyRule(rule CleanupRule, now time.Time, result *CleanupResult) {
	fail := func(err error) {
		ierr := &errdefs.IntegrationError{Target: "cleanup rule " + rule.ID, Err: err}
		log.Warn("%v", ierr)
		result.Errors = append(result.Errors, ierr.Error())
	}

	base, pattern := doublestar.SplitPattern(filepath.ToSlash(rule.Pattern))
	base = filepath.FromSlash(base)
	fsys := os.DirFS(base)
	if _, err := fs.ReadDir(fsys, "."); err != nil {
		fail(fmt.Errorf("read directory %s: %w", base, err))
		return
	}

	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		fail(fmt.Errorf("match %s: %w", rule.Pattern, err))
		return
	}

	for _, rel := range matches {
		path := filepath.Join(base, filepath.FromSlash(rel))
		info, err := os.Lstat(path)
		if err != nil {
			fail(err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		expired := rule.MaxAge > 0 && now.Sub(info.ModTime()) > rule.MaxAge
		oversized := rule.MaxSize > 0 && info.Size() > rule.MaxSize
		if !expired && !oversized {
			continue
		}

		if !result.DryRun {
			if err := os.Remove(path); err != nil {
				fail(err)
				continue
			}
		}
		result.RemovedFiles = append(result.RemovedFiles, path)
		result.FreedSpace += info.Size()
	}
}
