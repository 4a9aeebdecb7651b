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
	"strings"

	"github.com/google/uuid"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/notify"
)

func (m *Monitor) Thresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// SetThresholds replaces the alert thresholds. Invalid thresholds are rejected
// and the current ones stay in place.
func (m *Monitor) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.thresholds = t
	m.mu.Unlock()
	log.Info("resource thresholds updated: memory=%v/%v cpu=%v/%v disk=%v/%v",
		t.Memory.Warning, t.Memory.Critical, t.CPU.Warning, t.CPU.Critical, t.Disk.Warning, t.Disk.Critical)
	return nil
}

// CheckThresholds returns at most one alert per resource; critical wins over warning.
func (m *Monitor) CheckThresholds(usage ResourceUsage) []ResourceAlert {
	t := m.Thresholds()

	var alerts []ResourceAlert
	check := func(kind ResourceType, value float64, pair ThresholdPair) {
		var (
			level     AlertLevel
			threshold float64
		)
		switch {
		case value >= pair.Critical:
			level, threshold = AlertCritical, pair.Critical
		case value >= pair.Warning:
			level, threshold = AlertWarning, pair.Warning
		default:
			return
		}
		alerts = append(alerts, ResourceAlert{
			ID:        uuid.NewString(),
			Type:      kind,
			Level:     level,
			Message:   fmt.Sprintf("%s usage %.1f%% reached %s threshold %.1f%%", titleCase(string(kind)), value, level, threshold),
			Value:     value,
			Threshold: threshold,
			Timestamp: usage.Timestamp,
		})
	}

	check(ResourceMemory, usage.Memory.Percentage, t.Memory)
	check(ResourceCPU, usage.CPU.Percentage, t.CPU)
	check(ResourceDisk, usage.Disk.Percentage, t.Disk)
	return alerts
}

type alertNotification struct {
	Alert     ResourceAlert `json:"alert"`
	Timestamp int64         `json:"timestamp"`
}

// SendAlert records and logs the alert, then posts it to the notifier in the
// background.
func (m *Monitor) SendAlert(_ context.Context, alert ResourceAlert) {
	m.mu.Lock()
	m.alerts.Push(alert)
	m.mu.Unlock()
	m.metrics.alert(alert)

	if alert.Level == AlertCritical {
		log.Error("resource alert: %s", alert.Message)
	} else {
		log.Warn("resource alert: %s", alert.Message)
	}

	notify.Dispatch(m.notifier, "resource alert", alertNotification{
		Alert:     alert,
		Timestamp: m.clock.Now().UnixMilli(),
	})
}

func titleCase(s string) string {
	if s == "cpu" {
		return "CPU"
	}
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
