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
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
)

const (
	minRetrySamples = 5

	healthySuccessRate  = 0.9
	healthyResponseTime = time.Second
	degradedSuccessRate = 0.7
	degradedRespTime    = 2 * time.Second

	minAdaptiveAttempts = 2
	maxAdaptiveAttempts = 5
	minAdaptiveDelay    = 100 * time.Millisecond
	maxAdaptiveDelay    = 3 * time.Second
)

// AnalyzeAndOptimize runs one optimization cycle. Each stage has its own
// failure boundary: a failing stage is reported and the next one still runs.
func (e *Engine) AnalyzeAndOptimize(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: e.clock.Now()}

	stage := func(name string, fn func() error) {
		var err error
		if !safego.Run(func() { err = fn() }) {
			err = errors.New("stage panicked")
		}
		if err != nil {
			log.Error("optimization stage %s failed: %v", name, err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
		}
	}

	stage("collect metrics", func() error {
		return e.collectSystemMetrics(ctx)
	})
	stage("adapt retry strategies", func() error {
		report.Adaptations = len(e.AdaptRetryStrategies())
		return nil
	})
	stage("rebalance", func() error {
		var firstErr error
		e.balancers.each(func(service string, _ *resilience.LoadBalancer) {
			if _, err := e.OptimizeLoadBalancerWeights(service); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			report.Rebalanced++
		})
		return firstErr
	})
	stage("suggest", func() error {
		report.Suggestions = e.GetOptimizationSuggestions(ctx)
		return nil
	})
	stage("auto apply", func() error {
		for _, s := range report.Suggestions {
			if !e.shouldAutoApply(s) {
				continue
			}
			result, err := e.ApplyOptimization(ctx, s.Optimization(), true)
			if err != nil {
				log.Warn("automatic %s optimization of %s failed: %v", s.Type, s.Target, err)
				continue
			}
			report.Applied = append(report.Applied, result)
		}
		return nil
	})

	report.Duration = e.clock.Since(report.StartedAt)

	e.runMu.Lock()
	e.cycles++
	last := report
	e.lastCycle = &last
	e.runMu.Unlock()

	log.Debug("optimization cycle: %d adaptations, %d suggestions, %d applied, %d errors",
		report.Adaptations, len(report.Suggestions), len(report.Applied), len(report.Errors))
	return report
}

// shouldAutoApply compares Confidence against a fraction and
// ChangePercentage against MaxAutomaticChange scaled to percent.
func (e *Engine) shouldAutoApply(s Suggestion) bool {
	return s.CanAutoApply &&
		s.Confidence > e.cfg.AutoOptimizationThreshold &&
		math.Abs(s.ChangePercentage) <= e.cfg.MaxAutomaticChange*100
}

func (e *Engine) collectSystemMetrics(ctx context.Context) error {
	sample := SystemMetrics{Timestamp: e.clock.Now()}

	if e.resources != nil {
		if usage, ok := e.resources.LatestUsage(); ok {
			sample.MemoryPercentage = usage.Memory.Percentage
			sample.CPUPercentage = usage.CPU.Percentage
		}
	}

	var err error
	if e.cache != nil {
		stats, statsErr := e.cache.GetStats(ctx)
		if statsErr != nil {
			err = fmt.Errorf("read cache stats: %w", statsErr)
		} else {
			sample.CacheHitRate = stats.HitRate()
			sample.CacheMemoryUsage = stats.MemoryUsage
			sample.CacheKeys = stats.TotalKeys
		}
	}

	e.historyMu.Lock()
	e.system.Push(sample)
	e.historyMu.Unlock()
	return err
}

// AdaptRetryStrategies tunes every retry strategy whose endpoint has enough
// samples: fewer, quicker retries for healthy endpoints and more, slower ones
// for degraded endpoints.
func (e *Engine) AdaptRetryStrategies() []resilience.AdaptationRecord {
	now := e.clock.Now()
	var all []resilience.AdaptationRecord

	e.retries.each(func(endpoint string, policy *resilience.RetryPolicy) {
		perf := e.metrics.performance(endpoint, now)
		if perf.Samples < minRetrySamples {
			return
		}

		cur := policy.Config()
		next := cur
		switch {
		case perf.AvgSuccessRate > healthySuccessRate && perf.AvgResponseTime < healthyResponseTime:
			if next.MaxAttempts > minAdaptiveAttempts {
				next.MaxAttempts--
			}
			next.BaseDelay = max(scale(cur.BaseDelay, 0.8), minAdaptiveDelay)
		case perf.AvgSuccessRate < degradedSuccessRate || perf.AvgResponseTime > degradedRespTime:
			if next.MaxAttempts < maxAdaptiveAttempts {
				next.MaxAttempts++
			}
			if cur.BaseDelay < maxAdaptiveDelay {
				next.BaseDelay = min(scale(cur.BaseDelay, 1.5), maxAdaptiveDelay, cur.MaxDelay)
			}
		default:
			return
		}

		reason := fmt.Sprintf("successRate=%.3f avgResponseTime=%s samples=%d",
			perf.AvgSuccessRate, perf.AvgResponseTime, perf.Samples)
		records, err := policy.Adapt(next, reason)
		if err != nil {
			log.Warn("skipped retry adaptation for %s: %v", endpoint, err)
			return
		}
		for _, r := range records {
			log.Info("retry strategy %s: %s %s -> %s (%s)", endpoint, r.Parameter, r.OldValue, r.NewValue, r.Reason)
		}
		all = append(all, records...)
	})
	return all
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(math.Round(float64(d) * factor))
}

// OptimizeLoadBalancerWeights recomputes the service's weights from the
// recorded performance of each endpoint.
func (e *Engine) OptimizeLoadBalancerWeights(service string) (map[string]float64, error) {
	lb, err := e.balancers.get(service)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	endpoints := lb.Endpoints()
	perf := make(map[string]resilience.EndpointPerformance, len(endpoints))
	for _, ep := range endpoints {
		perf[ep] = e.metrics.performance(ep, now)
	}

	weights := resilience.PerformanceWeights(endpoints, perf)
	if err := lb.SetWeights(weights); err != nil {
		return nil, err
	}
	return weights, nil
}
