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

// Package resource watches host memory, CPU and disk usage, raises threshold
// alerts, mitigates memory pressure and removes stale files.
package resource

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/notify"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/ring"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
)

// PressureCallback is invoked when memory pressure is detected.
type PressureCallback func(ctx context.Context, usage ResourceUsage)

type Option func(*Monitor)

func WithCollector(c Collector) Option {
	return func(m *Monitor) { m.collector = c }
}

func WithClock(c clock.WithTicker) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

type Monitor struct {
	cfg       Config
	collector Collector
	clock     clock.WithTicker
	notifier  notify.Notifier
	metrics   *promMetrics

	mu          sync.RWMutex
	thresholds  Thresholds
	history     *ring.Ring[ResourceUsage]
	alerts      *ring.Ring[ResourceAlert]
	samples     int
	lastCleanup *CleanupResult
	cleanupRuns int

	rulesMu sync.RWMutex
	rules   map[string]CleanupRule

	callbacksMu sync.RWMutex
	callbacks   []PressureCallback

	cleanupGroup singleflight.Group

	runMu     sync.Mutex
	running   bool
	stopCh    chan struct{}
	startedAt time.Time
}

func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:        cfg,
		clock:      clock.RealClock{},
		thresholds: cfg.Thresholds,
		history:    ring.New[ResourceUsage](cfg.MaxHistoryRecords),
		alerts:     ring.New[ResourceAlert](cfg.MaxHistoryRecords),
		rules:      make(map[string]CleanupRule, len(cfg.CleanupRules)),
		metrics:    newPromMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.collector == nil {
		m.collector = NewSystemCollector(cfg.DiskPath)
	}
	if m.notifier == nil {
		if cfg.WebhookURL != "" {
			m.notifier = notify.NewWebhook(cfg.WebhookURL)
		} else {
			m.notifier = notify.Nop{}
		}
	}
	for _, rule := range cfg.CleanupRules {
		m.rules[rule.ID] = rule
	}
	return m, nil
}

func (m *Monitor) Config() Config {
	cfg := m.cfg
	cfg.Thresholds = m.Thresholds()
	cfg.CleanupRules = m.CleanupRules()
	return cfg
}

// Start arms the sampling ticker and, with auto cleanup, the cleanup ticker.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.startedAt = m.clock.Now()

	safego.Every(m.clock, m.cfg.MonitoringInterval, m.stopCh, m.tick)
	if m.cfg.EnableAutoCleanup {
		safego.Every(m.clock, m.cfg.CleanupInterval, m.stopCh, m.cleanupTick)
	}
	log.Info("resource monitor started: interval=%s, cleanup=%t every %s",
		m.cfg.MonitoringInterval, m.cfg.EnableAutoCleanup, m.cfg.CleanupInterval)
	return nil
}

// Stop prevents future ticks. Work already running is left to finish.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	close(m.stopCh)
	m.running = false
	log.Info("resource monitor stopped")
}

func (m *Monitor) Restart(context.Context) error {
	m.Stop()
	return m.Start()
}

func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

func (m *Monitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.MonitoringInterval)
	defer cancel()

	if _, err := m.Sample(ctx); err != nil {
		log.Warn("failed to sample resource usage: %v", err)
	}
}

func (m *Monitor) cleanupTick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CleanupInterval)
	defer cancel()

	result := m.ExecuteCleanup(ctx, false)
	if len(result.RemovedFiles) > 0 || len(result.Errors) > 0 {
		log.Info("scheduled cleanup removed %d files (%d bytes), %d errors",
			len(result.RemovedFiles), result.FreedSpace, len(result.Errors))
	}
}

// Sample runs one monitoring cycle: collect, record, alert and relieve
// memory pressure.
func (m *Monitor) Sample(ctx context.Context) (ResourceUsage, error) {
	usage, err := m.GetResourceUsage(ctx)
	if err != nil {
		return usage, err
	}

	m.mu.Lock()
	m.history.Push(usage)
	m.samples++
	m.mu.Unlock()

	for _, alert := range m.CheckThresholds(usage) {
		m.SendAlert(ctx, alert)
	}
	if m.CheckMemoryPressure(usage) {
		m.HandleMemoryPressure(ctx, usage)
	}
	return usage, nil
}

// GetResourceUsage reads a fresh sample without recording it.
func (m *Monitor) GetResourceUsage(ctx context.Context) (ResourceUsage, error) {
	usage, err := m.collector.Collect(ctx)
	if err != nil {
		return usage, err
	}
	usage.Timestamp = m.clock.Now()
	m.metrics.observe(usage)
	return usage, nil
}

// LatestUsage returns the most recent recorded sample.
func (m *Monitor) LatestUsage() (ResourceUsage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Newest()
}

// History returns up to limit recorded samples, oldest first. A limit <= 0
// returns everything.
func (m *Monitor) History(limit int) []ResourceUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return m.history.Items()
	}
	return m.history.Last(limit)
}

// Alerts returns up to limit alerts, oldest first.
func (m *Monitor) Alerts(limit int) []ResourceAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return m.alerts.Items()
	}
	return m.alerts.Last(limit)
}
