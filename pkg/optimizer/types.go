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
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
)

const (
	TypeCircuitBreaker = "circuit_breaker"
	TypeCacheSize      = "cache_size"
	TypeMemory         = "memory"
)

// PerformanceMetric is one observation of an endpoint.
type PerformanceMetric struct {
	Endpoint     string        `json:"endpoint"`
	ResponseTime time.Duration `json:"responseTime"`
	MemoryUsage  float64       `json:"memoryUsage,omitempty"`
	CPUUsage     float64       `json:"cpuUsage,omitempty"`
	SuccessRate  float64       `json:"successRate"`
	ErrorRate    float64       `json:"errorRate"`
	Timestamp    time.Time     `json:"timestamp"`
}

// EndpointMetrics is an aggregated report for an endpoint.
type EndpointMetrics struct {
	ResponseTime time.Duration `json:"responseTime"`
	SuccessRate  float64       `json:"successRate"`
	ErrorRate    float64       `json:"errorRate"`
	MemoryUsage  float64       `json:"memoryUsage,omitempty"`
	CPUUsage     float64       `json:"cpuUsage,omitempty"`
}

// SystemMetrics is sampled at the start of every optimization cycle.
type SystemMetrics struct {
	Timestamp        time.Time `json:"timestamp"`
	MemoryPercentage float64   `json:"memoryPercentage"`
	CPUPercentage    float64   `json:"cpuPercentage"`
	CacheHitRate     float64   `json:"cacheHitRate"`
	CacheMemoryUsage int64     `json:"cacheMemoryUsage"`
	CacheKeys        int64     `json:"cacheKeys"`
}

type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	MemoryUsage int64 `json:"memoryUsage"`
	TotalKeys   int64 `json:"totalKeys"`
}

// HitRate is zero when the cache has not been used yet.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type CacheStatsProvider interface {
	GetStats(ctx context.Context) (CacheStats, error)
}

type CacheStatsFunc func(ctx context.Context) (CacheStats, error)

func (f CacheStatsFunc) GetStats(ctx context.Context) (CacheStats, error) { return f(ctx) }

// ResourceProvider is satisfied by *resource.Monitor.
type ResourceProvider interface {
	LatestUsage() (resource.ResourceUsage, bool)
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Suggestion is a proposed change. ChangePercentage is in percent.
type Suggestion struct {
	ID                  string             `json:"id"`
	Type                string             `json:"type"`
	Target              string             `json:"target"`
	Description         string             `json:"description"`
	Priority            Priority           `json:"priority"`
	Confidence          float64            `json:"confidence"`
	ExpectedImprovement float64            `json:"expectedImprovement"`
	ChangePercentage    float64            `json:"changePercentage"`
	CanAutoApply        bool               `json:"canAutoApply"`
	Metrics             map[string]float64 `json:"metrics,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
}

// Optimization converts the suggestion into an applicable change.
func (s Suggestion) Optimization() Optimization {
	return Optimization{
		Type:                s.Type,
		Target:              s.Target,
		Change:              s.ChangePercentage / 100,
		ExpectedImprovement: s.ExpectedImprovement,
		Description:         s.Description,
	}
}

// Optimization is a change request. Change is a signed fraction.
type Optimization struct {
	Type                string   `json:"type"`
	Target              string   `json:"target"`
	Change              float64  `json:"change"`
	ExpectedImprovement float64  `json:"expectedImprovement"`
	ActualImprovement   *float64 `json:"actualImprovement,omitempty"`
	Description         string   `json:"description,omitempty"`
}

type OptimizationResult struct {
	Type                string    `json:"type"`
	Target              string    `json:"target"`
	Change              float64   `json:"change"`
	ExpectedImprovement float64   `json:"expectedImprovement"`
	ActualImprovement   float64   `json:"actualImprovement"`
	Timestamp           time.Time `json:"timestamp"`
	Automatic           bool      `json:"automatic"`
}

type Learning struct {
	Type               string    `json:"type"`
	Samples            int       `json:"samples"`
	AverageImprovement float64   `json:"averageImprovement"`
	SuccessRate        float64   `json:"successRate"`
	LastApplied        time.Time `json:"lastApplied"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type ImpactPrediction struct {
	EstimatedImprovement float64   `json:"estimatedImprovement"`
	Confidence           float64   `json:"confidence"`
	RiskLevel            RiskLevel `json:"riskLevel"`
	SimilarSamples       int       `json:"similarSamples"`
}

// CycleReport summarises one AnalyzeAndOptimize run.
type CycleReport struct {
	StartedAt   time.Time            `json:"startedAt"`
	Duration    time.Duration        `json:"duration"`
	Adaptations int                  `json:"adaptations"`
	Rebalanced  int                  `json:"rebalanced"`
	Suggestions []Suggestion         `json:"suggestions"`
	Applied     []OptimizationResult `json:"applied"`
	Errors      []string             `json:"errors,omitempty"`
}
