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
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type promMetrics struct {
	registry *prometheus.Registry

	memoryUsage      *prometheus.GaugeVec
	memoryPercentage prometheus.Gauge
	cpuUsage         prometheus.Gauge
	cpuCores         prometheus.Gauge
	diskUsage        *prometheus.GaugeVec
	diskPercentage   prometheus.Gauge
	alerts           *prometheus.CounterVec
	freedBytes       prometheus.Counter
}

func newPromMetrics() *promMetrics {
	pm := &promMetrics{
		registry: prometheus.NewRegistry(),
		memoryUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_memory_usage",
			Help: "System memory usage in bytes",
		}, []string{"type"}),
		memoryPercentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_percentage",
			Help: "System memory usage percentage",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_usage",
			Help: "System CPU usage percentage",
		}),
		cpuCores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_cores",
			Help: "Number of CPU cores",
		}),
		diskUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "system_disk_usage",
			Help: "Disk usage in bytes",
		}, []string{"type"}),
		diskPercentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_disk_percentage",
			Help: "Disk usage percentage",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_alerts_total",
			Help: "Resource alerts raised",
		}, []string{"type", "level"}),
		freedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resource_cleanup_freed_bytes_total",
			Help: "Bytes freed by cleanup passes",
		}),
	}
	pm.registry.MustRegister(
		pm.memoryUsage, pm.memoryPercentage,
		pm.cpuUsage, pm.cpuCores,
		pm.diskUsage, pm.diskPercentage,
		pm.alerts, pm.freedBytes,
	)
	return pm
}

func (pm *promMetrics) observe(u ResourceUsage) {
	pm.memoryUsage.WithLabelValues("total").Set(float64(u.Memory.Total))
	pm.memoryUsage.WithLabelValues("used").Set(float64(u.Memory.Used))
	pm.memoryUsage.WithLabelValues("free").Set(float64(u.Memory.Free))
	pm.memoryUsage.WithLabelValues("process").Set(float64(u.Memory.Process))
	pm.memoryPercentage.Set(u.Memory.Percentage)
	pm.cpuUsage.Set(u.CPU.Percentage)
	pm.cpuCores.Set(float64(u.CPU.Cores))
	pm.diskUsage.WithLabelValues("total").Set(float64(u.Disk.Total))
	pm.diskUsage.WithLabelValues("used").Set(float64(u.Disk.Used))
	pm.diskUsage.WithLabelValues("free").Set(float64(u.Disk.Free))
	pm.diskPercentage.Set(u.Disk.Percentage)
}

func (pm *promMetrics) alert(a ResourceAlert) {
	pm.alerts.WithLabelValues(string(a.Type), string(a.Level)).Inc()
}

func (pm *promMetrics) cleanup(r CleanupResult) {
	pm.freedBytes.Add(float64(r.FreedSpace))
}

// Registry exposes the monitor's collectors, e.g. to promhttp.HandlerFor.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.metrics.registry
}

// GetPrometheusMetrics renders the latest recorded sample in the Prometheus
// text exposition format.
func (m *Monitor) GetPrometheusMetrics() (string, error) {
	if latest, ok := m.LatestUsage(); ok {
		m.metrics.observe(latest)
	}

	families, err := m.metrics.registry.Gather()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}
