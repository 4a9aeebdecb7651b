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
	"fmt"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/health"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
)

// GetHealthStatus is CRITICAL when the engine is stopped or more than half of
// its circuit breakers are open, WARNING when any breaker is not closed.
func (e *Engine) GetHealthStatus() health.Report {
	states := e.CircuitBreakers()
	open, halfOpen := 0, 0
	for _, s := range states {
		switch s.State {
		case resilience.StateOpen:
			open++
		case resilience.StateHalfOpen:
			halfOpen++
		}
	}

	report := health.Report{
		Status:  health.StatusHealthy,
		Message: "optimization engine is healthy",
		Metrics: map[string]any{
			"circuitBreakers":  len(states),
			"openBreakers":     open,
			"halfOpenBreakers": halfOpen,
			"trackedEndpoints": len(e.metrics.endpoints()),
		},
		CheckedAt: e.clock.Now(),
	}

	switch {
	case !e.Running():
		report.Status = health.StatusCritical
		report.Message = "optimization engine is not running"
	case open*2 > len(states):
		report.Status = health.StatusCritical
		report.Message = fmt.Sprintf("%d of %d circuit breakers are open", open, len(states))
	case open+halfOpen > 0:
		report.Status = health.StatusWarning
		report.Message = fmt.Sprintf("%d circuit breakers open, %d half-open", open, halfOpen)
	}
	return report
}

func (e *Engine) IsHealthy() bool {
	return e.GetHealthStatus().Status != health.StatusCritical
}

type Statistics struct {
	Running                bool                     `json:"running"`
	Uptime                 time.Duration            `json:"uptime"`
	Cycles                 int                      `json:"cycles"`
	LastCycle              *CycleReport             `json:"lastCycle,omitempty"`
	CircuitBreakers        map[resilience.State]int `json:"circuitBreakers"`
	RetryStrategies        int                      `json:"retryStrategies"`
	LoadBalancers          int                      `json:"loadBalancers"`
	TrackedEndpoints       int                      `json:"trackedEndpoints"`
	MetricSamples          int                      `json:"metricSamples"`
	SystemSamples          int                      `json:"systemSamples"`
	OptimizationsApplied   int                      `json:"optimizationsApplied"`
	AutomaticOptimizations int                      `json:"automaticOptimizations"`
	OptimizationsByType    map[string]int           `json:"optimizationsByType"`
	Learnings              []Learning               `json:"learnings"`
}

func (e *Engine) GetStatistics() Statistics {
	now := e.clock.Now()

	e.runMu.Lock()
	stats := Statistics{
		Running: e.running,
		Cycles:  e.cycles,
	}
	if e.running {
		stats.Uptime = since(now, e.startedAt)
	}
	if e.lastCycle != nil {
		last := *e.lastCycle
		stats.LastCycle = &last
	}
	e.runMu.Unlock()

	stats.CircuitBreakers = map[resilience.State]int{}
	for _, s := range e.CircuitBreakers() {
		stats.CircuitBreakers[s.State]++
	}
	stats.RetryStrategies = e.retries.len()
	stats.LoadBalancers = e.balancers.len()
	stats.TrackedEndpoints = len(e.metrics.endpoints())
	stats.MetricSamples = e.metrics.total()
	stats.SystemSamples = len(e.SystemMetrics(0))

	stats.OptimizationsByType = map[string]int{}
	for t, results := range e.historyByType() {
		stats.OptimizationsByType[t] = len(results)
		stats.OptimizationsApplied += len(results)
		for _, r := range results {
			if r.Automatic {
				stats.AutomaticOptimizations++
			}
		}
	}
	stats.Learnings = e.GetLearnings()
	return stats
}
