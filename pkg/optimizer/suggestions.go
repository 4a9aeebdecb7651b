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

package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
)

const (
	breakerFailureRate   = 0.2
	severeFailureRate    = 0.5
	cacheHitTarget       = 0.9
	strictCacheHitTarget = 0.99
	poorCacheHitRate     = 0.7
	memorySuggestion     = 85.0
)

// GetOptimizationSuggestions inspects recent failures, cache efficiency and
// host memory. The result is ordered by priority, then confidence.
func (e *Engine) GetOptimizationSuggestions(ctx context.Context) []Suggestion {
	var out []Suggestion
	out = append(out, e.circuitBreakerSuggestions()...)

	if e.cache != nil {
		stats, err := e.cache.GetStats(ctx)
		if err != nil {
			log.Warn("cache stats unavailable for suggestions: %v", err)
		} else if s, ok := e.cacheSuggestion(stats, cacheHitTarget); ok {
			out = append(out, s)
		}
	}

	if s, ok := e.memorySuggestion(); ok {
		out = append(out, s)
	}

	sortSuggestions(out)
	return out
}

// AnalyzeCachePerformance applies the stricter 99% hit-rate target.
func (e *Engine) AnalyzeCachePerformance(ctx context.Context) ([]Suggestion, error) {
	if e.cache == nil {
		return nil, nil
	}
	stats, err := e.cache.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := e.cacheSuggestion(stats, strictCacheHitTarget)
	if !ok {
		return nil, nil
	}
	return []Suggestion{s}, nil
}

func (e *Engine) circuitBreakerSuggestions() []Suggestion {
	var out []Suggestion
	e.breakers.each(func(endpoint string, _ *resilience.CircuitBreaker) {
		rate, n := e.metrics.recentFailureRate(endpoint)
		if n == 0 || rate <= breakerFailureRate {
			return
		}

		change, priority := -10.0, PriorityMedium
		if rate > severeFailureRate {
			change, priority = -20.0, PriorityHigh
		}
		out = append(out, Suggestion{
			ID:                  uuid.NewString(),
			Type:                TypeCircuitBreaker,
			Target:              endpoint,
			Description:         fmt.Sprintf("Lower the failure threshold of %s: %.0f%% of the last %d calls failed", endpoint, rate*100, n),
			Priority:            priority,
			Confidence:          0.8,
			ExpectedImprovement: math.Min(rate*0.5, 0.3),
			ChangePercentage:    change,
			CanAutoApply:        true,
			Metrics:             map[string]float64{"failureRate": rate, "samples": float64(n)},
			CreatedAt:           e.clock.Now(),
		})
	})
	return out
}

func (e *Engine) cacheSuggestion(stats CacheStats, target float64) (Suggestion, bool) {
	if stats.Hits+stats.Misses == 0 {
		return Suggestion{}, false
	}
	hit := stats.HitRate()
	if hit >= target {
		return Suggestion{}, false
	}

	confidence, change, priority := 0.7, 25.0, PriorityMedium
	if hit < poorCacheHitRate {
		confidence, change, priority = 0.8, 50.0, PriorityHigh
	}
	return Suggestion{
		ID:                  uuid.NewString(),
		Type:                TypeCacheSize,
		Target:              "cache",
		Description:         fmt.Sprintf("Grow the cache by %.0f%%: hit rate %.1f%% is below %.0f%%", change, hit*100, target*100),
		Priority:            priority,
		Confidence:          confidence,
		ExpectedImprovement: (target - hit) * 0.5,
		ChangePercentage:    change,
		Metrics: map[string]float64{
			"hitRate":     hit,
			"memoryUsage": float64(stats.MemoryUsage),
			"totalKeys":   float64(stats.TotalKeys),
		},
		CreatedAt: e.clock.Now(),
	}, true
}

func (e *Engine) memorySuggestion() (Suggestion, bool) {
	if e.resources == nil {
		return Suggestion{}, false
	}
	usage, ok := e.resources.LatestUsage()
	if !ok || usage.Memory.Percentage < memorySuggestion {
		return Suggestion{}, false
	}
	return Suggestion{
		ID:                  uuid.NewString(),
		Type:                TypeMemory,
		Target:              "system",
		Description:         fmt.Sprintf("Reduce memory footprint: host memory at %.1f%%", usage.Memory.Percentage),
		Priority:            PriorityHigh,
		Confidence:          0.7,
		ExpectedImprovement: 0.1,
		ChangePercentage:    -10,
		Metrics:             map[string]float64{"memoryPercentage": usage.Memory.Percentage},
		CreatedAt:           e.clock.Now(),
	}, true
}

func sortSuggestions(s []Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Priority.rank() != s[j].Priority.rank() {
			return s[i].Priority.rank() < s[j].Priority.rank()
		}
		return s[i].Confidence > s[j].Confidence
	})
}
