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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func cleanupFixture(t *testing.T) (string, *Monitor) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.tmp"), 10, 2*time.Hour)
	writeFile(t, filepath.Join(dir, "fresh.tmp"), 10, time.Minute)
	writeFile(t, filepath.Join(dir, "nested", "deep", "stale.tmp"), 20, 3*time.Hour)
	writeFile(t, filepath.Join(dir, "logs", "big.log"), 2048, time.Minute)
	writeFile(t, filepath.Join(dir, "logs", "small.log"), 16, time.Minute)

	m, _ := newTestMonitor(t, testConfig())
	require.NoError(t, m.AddCleanupRule(CleanupRule{
		ID: "tmp", Name: "temp", Pattern: filepath.ToSlash(dir) + "/**/*.tmp", MaxAge: time.Hour, Priority: 2,
	}))
	require.NoError(t, m.AddCleanupRule(CleanupRule{
		ID: "logs", Name: "logs", Pattern: filepath.ToSlash(dir) + "/logs/*.log", MaxSize: 1024, Priority: 1,
	}))
	return dir, m
}

func TestExecuteCleanupDryRun(t *testing.T) {
	dir, m := cleanupFixture(t)

	result := m.ExecuteCleanup(context.Background(), true)
	assert.True(t, result.DryRun)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.RulesApplied)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "old.tmp"),
		filepath.Join(dir, "nested", "deep", "stale.tmp"),
		filepath.Join(dir, "logs", "big.log"),
	}, result.RemovedFiles)
	assert.Equal(t, int64(10+20+2048), result.FreedSpace)

	for _, f := range result.RemovedFiles {
		_, err := os.Stat(f)
		assert.NoError(t, err, "dry run must not delete %s", f)
	}
	assert.Nil(t, m.GetStatistics().LastCleanup)
}

func TestExecuteCleanupRemovesFiles(t *testing.T) {
	dir, m := cleanupFixture(t)

	result := m.ExecuteCleanup(context.Background(), false)
	require.Empty(t, result.Errors)
	require.Len(t, result.RemovedFiles, 3)

	for _, f := range result.RemovedFiles {
		_, err := os.Stat(f)
		assert.True(t, os.IsNotExist(err), "%s should be removed", f)
	}
	for _, kept := range []string{"fresh.tmp", filepath.Join("logs", "small.log")} {
		_, err := os.Stat(filepath.Join(dir, kept))
		assert.NoError(t, err)
	}

	stats := m.GetStatistics()
	assert.Equal(t, 1, stats.CleanupRuns)
	require.NotNil(t, stats.LastCleanup)
	assert.Equal(t, int64(2078), stats.LastCleanup.FreedSpace)

	again := m.ExecuteCleanup(context.Background(), false)
	assert.Empty(t, again.RemovedFiles)
}

func TestExecuteCleanupContinuesAfterRuleError(t *testing.T) {
	dir, m := cleanupFixture(t)
	require.NoError(t, m.AddCleanupRule(CleanupRule{
		ID: "missing", Pattern: filepath.ToSlash(filepath.Join(dir, "does-not-exist")) + "/*.tmp", MaxAge: time.Second, Priority: 10,
	}))

	result := m.ExecuteCleanup(context.Background(), false)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "missing")
	assert.Len(t, result.RemovedFiles, 3)
	assert.Equal(t, 3, result.RulesApplied)
}

func TestCleanupRuleRegistry(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig())

	for _, r := range DefaultCleanupRules("/var/tmp/adaptd") {
		require.NoError(t, m.AddCleanupRule(r))
	}
	rules := m.CleanupRules()
	require.Len(t, rules, 3)
	assert.Equal(t, "temp-files", rules[0].ID)
	assert.Equal(t, "cache-files", rules[2].ID)

	replaced := rules[2]
	replaced.Priority = 100
	require.NoError(t, m.AddCleanupRule(replaced))
	rules = m.CleanupRules()
	require.Len(t, rules, 3)
	assert.Equal(t, "cache-files", rules[0].ID)

	assert.True(t, m.RemoveCleanupRule("cache-files"))
	assert.False(t, m.RemoveCleanupRule("cache-files"))
	assert.Len(t, m.CleanupRules(), 2)

	assert.Error(t, m.AddCleanupRule(CleanupRule{ID: "", Pattern: "/tmp/*"}))
	assert.Error(t, m.AddCleanupRule(CleanupRule{ID: "bad", Pattern: "/tmp/[a-"}))
}

func TestConcurrentCleanupPasses(t *testing.T) {
	_, m := cleanupFixture(t)

	var wg sync.WaitGroup
	results := make([]CleanupResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.ExecuteCleanup(context.Background(), false)
		}(i)
	}
	wg.Wait()

	removed := 0
	for _, r := range results {
		assert.Empty(t, r.Errors)
		removed += len(r.RemovedFiles)
	}
	assert.GreaterOrEqual(t, removed, 3)
}

func TestPressureTriggersCleanup(t *testing.T) {
	dir, m := cleanupFixture(t)
	m.cfg.EnableAutoCleanup = true

	m.HandleMemoryPressure(context.Background(), ResourceUsage{Memory: MemoryUsage{Percentage: 99}})
	_, err := os.Stat(filepath.Join(dir, "old.tmp"))
	assert.True(t, os.IsNotExist(err))
}
