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

import "time"

type MemoryUsage struct {
	Total      uint64  `json:"total"`
	Free       uint64  `json:"free"`
	Used       uint64  `json:"used"`
	Percentage float64 `json:"percentage"`
	// Process is the resident set size of this process.
	Process uint64 `json:"process"`
}

type CPUUsage struct {
	Cores             int       `json:"cores"`
	LoadAverage       []float64 `json:"loadAverage"`
	Percentage        float64   `json:"percentage"`
	ProcessPercentage float64   `json:"processPercentage"`
}

type DiskUsage struct {
	Total      uint64  `json:"total"`
	Free       uint64  `json:"free"`
	Used       uint64  `json:"used"`
	Percentage float64 `json:"percentage"`
}

// ResourceUsage is one sample of host and process usage.
type ResourceUsage struct {
	Timestamp time.Time   `json:"timestamp"`
	Memory    MemoryUsage `json:"memory"`
	CPU       CPUUsage    `json:"cpu"`
	Disk      DiskUsage   `json:"disk"`
}

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type ResourceType string

const (
	ResourceMemory ResourceType = "memory"
	ResourceCPU    ResourceType = "cpu"
	ResourceDisk   ResourceType = "disk"
)

type ResourceAlert struct {
	ID        string       `json:"id"`
	Type      ResourceType `json:"type"`
	Level     AlertLevel   `json:"level"`
	Message   string       `json:"message"`
	Value     float64      `json:"value"`
	Threshold float64      `json:"threshold"`
	Timestamp time.Time    `json:"timestamp"`
}

// CleanupRule removes files matching Pattern that are older than MaxAge or
// larger than MaxSize. A zero MaxAge or MaxSize disables that check.
type CleanupRule struct {
	ID       string        `json:"id" yaml:"id" validate:"required"`
	Name     string        `json:"name" yaml:"name"`
	Pattern  string        `json:"pattern" yaml:"pattern" validate:"required"`
	MaxAge   time.Duration `json:"maxAge" yaml:"maxAge" validate:"min=0"`
	MaxSize  int64         `json:"maxSize" yaml:"maxSize" validate:"min=0"`
	Priority int           `json:"priority" yaml:"priority"`
}

type CleanupResult struct {
	DryRun       bool          `json:"dryRun"`
	RemovedFiles []string      `json:"removedFiles"`
	FreedSpace   int64         `json:"freedSpace"`
	Errors       []string      `json:"errors"`
	RulesApplied int           `json:"rulesApplied"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

type Trend struct {
	Direction  TrendDirection `json:"direction"`
	Rate       float64        `json:"rate"`
	Confidence float64        `json:"confidence"`
}

type Trends struct {
	Memory Trend `json:"memory"`
	CPU    Trend `json:"cpu"`
	Disk   Trend `json:"disk"`
}
