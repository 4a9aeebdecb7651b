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
	"fmt"
	"strings"

	"github.com/alibaba/opensandbox/adaptd/pkg/health"
)

// GetHealthStatus is CRITICAL when the monitor is stopped or any resource is
// over its critical threshold, WARNING when one is over its warning threshold.
func (m *Monitor) GetHealthStatus() health.Report {
	report := health.Report{
		Status:    health.StatusHealthy,
		Message:   "resource usage is within thresholds",
		Metrics:   map[string]any{},
		CheckedAt: m.clock.Now(),
	}

	if !m.Running() {
		report.Status = health.StatusCritical
		report.Message = "resource monitor is not running"
		return report
	}

	usage, ok := m.LatestUsage()
	if !ok {
		report.Message = "no resource samples collected yet"
		return report
	}
	report.Metrics["memory"] = usage.Memory.Percentage
	report.Metrics["cpu"] = usage.CPU.Percentage
	report.Metrics["disk"] = usage.Disk.Percentage
	report.Metrics["memoryPressure"] = m.MemoryPressure(usage)

	var problems []string
	for _, alert := range m.CheckThresholds(usage) {
		level := health.StatusWarning
		if alert.Level == AlertCritical {
			level = health.StatusCritical
		}
		report.Status = health.Worse(report.Status, level)
		problems = append(problems, fmt.Sprintf("%s %s", alert.Type, alert.Level))
	}
	if len(problems) > 0 {
		report.Message = "resource usage over threshold: " + strings.Join(problems, ", ")
	}
	return report
}

func (m *Monitor) IsHealthy() bool {
	return m.GetHealthStatus().Status != health.StatusCritical
}
