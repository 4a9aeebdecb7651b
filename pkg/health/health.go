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

// Package health defines the capability interfaces through which the
// coordinator layer drives and inspects control-plane components.
package health

import (
	"context"
	"sort"
	"time"
)

type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Report is the result of a health probe.
type Report struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// HealthCheckable is implemented by every component the coordinator polls.
type HealthCheckable interface {
	IsHealthy() bool
	GetHealthStatus() Report
}

// Startable components own background loops.
type Startable interface {
	Start() error
	Stop()
}

// Restartable components can be bounced by the coordinator.
type Restartable interface {
	Restart(ctx context.Context) error
}

// Restart stops and starts c, preferring its own Restart when it has one.
func Restart(ctx context.Context, c Startable) error {
	if r, ok := c.(Restartable); ok {
		return r.Restart(ctx)
	}
	c.Stop()
	return c.Start()
}

// Summary aggregates the reports of named components.
type Summary struct {
	Status     Status            `json:"status"`
	Components map[string]Report `json:"components"`
	Unhealthy  []string          `json:"unhealthy,omitempty"`
}

// Aggregate probes every component; the overall status is the worst one.
func Aggregate(components map[string]HealthCheckable) Summary {
	summary := Summary{
		Status:     StatusHealthy,
		Components: make(map[string]Report, len(components)),
	}
	for name, c := range components {
		report := c.GetHealthStatus()
		summary.Components[name] = report
		summary.Status = Worse(summary.Status, report.Status)
		if report.Status != StatusHealthy {
			summary.Unhealthy = append(summary.Unhealthy, name)
		}
	}
	sort.Strings(summary.Unhealthy)
	return summary
}
