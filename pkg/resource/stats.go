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
	"encoding/json"
	"time"
)

type UsageSummary struct {
	Memory float64 `json:"memory"`
	CPU    float64 `json:"cpu"`
	Disk   float64 `json:"disk"`
}

type Statistics struct {
	Running        bool                 `json:"running"`
	Uptime         time.Duration        `json:"uptime"`
	Samples        int                  `json:"samples"`
	HistoryRecords int                  `json:"historyRecords"`
	Alerts         int                  `json:"alerts"`
	AlertsByLevel  map[AlertLevel]int   `json:"alertsByLevel"`
	AlertsByType   map[ResourceType]int `json:"alertsByType"`
	CleanupRules   int                  `json:"cleanupRules"`
	CleanupRuns    int                  `json:"cleanupRuns"`
	LastCleanup    *CleanupResult       `json:"lastCleanup,omitempty"`
	Average        UsageSummary         `json:"average"`
	Peak           UsageSummary         `json:"peak"`
	Trends         Trends               `json:"trends"`
}

func (m *Monitor) GetStatistics() Statistics {
	m.runMu.Lock()
	running, startedAt := m.running, m.startedAt
	m.runMu.Unlock()

	m.mu.RLock()
	history := m.history.Items()
	alerts := m.alerts.Items()
	stats := Statistics{
		Running:        running,
		Samples:        m.samples,
		HistoryRecords: len(history),
		Alerts:         len(alerts),
		AlertsByLevel:  map[AlertLevel]int{},
		AlertsByType:   map[ResourceType]int{},
		CleanupRuns:    m.cleanupRuns,
	}
	if m.lastCleanup != nil {
		last := *m.lastCleanup
		stats.LastCleanup = &last
	}
	m.mu.RUnlock()

	if running {
		stats.Uptime = m.clock.Since(startedAt)
	}
	for _, a := range alerts {
		stats.AlertsByLevel[a.Level]++
		stats.AlertsByType[a.Type]++
	}
	stats.CleanupRules = len(m.CleanupRules())

	if len(history) > 0 {
		for _, u := range history {
			stats.Average.Memory += u.Memory.Percentage
			stats.Average.CPU += u.CPU.Percentage
			stats.Average.Disk += u.Disk.Percentage
			stats.Peak.Memory = max(stats.Peak.Memory, u.Memory.Percentage)
			stats.Peak.CPU = max(stats.Peak.CPU, u.CPU.Percentage)
			stats.Peak.Disk = max(stats.Peak.Disk, u.Disk.Percentage)
		}
		n := float64(len(history))
		stats.Average.Memory /= n
		stats.Average.CPU /= n
		stats.Average.Disk /= n
	}
	stats.Trends = m.GetResourceTrends()
	return stats
}

type exportDocument struct {
	ExportedAt   time.Time       `json:"exportedAt"`
	Config       Config          `json:"config"`
	Statistics   Statistics      `json:"statistics"`
	History      []ResourceUsage `json:"history"`
	Alerts       []ResourceAlert `json:"alerts"`
	CleanupRules []CleanupRule   `json:"cleanupRules"`
}

// ExportData serialises configuration, history, alerts and statistics as JSON.
func (m *Monitor) ExportData() ([]byte, error) {
	doc := exportDocument{
		ExportedAt:   m.clock.Now(),
		Config:       m.Config(),
		Statistics:   m.GetStatistics(),
		History:      m.History(0),
		Alerts:       m.Alerts(0),
		CleanupRules: m.CleanupRules(),
	}
	return json.MarshalIndent(doc, "", "  ")
}
