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

// Package optimizer adapts retry, circuit breaker and load balancing
// configuration from observed endpoint performance, and learns from the
// outcome of the changes it applies.
package optimizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/notify"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/ring"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
)

const (
	maxHistoryPerType    = 100
	maxSystemMetrics     = 1000
	defaultCycleDeadline = time.Minute
)

type Option func(*Engine)

func WithClock(c clock.WithTicker) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier replaces the webhook built from WebhookURL. Applied
// optimizations are sent to it when NotifyOnOptimization is set.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithCacheStats(p CacheStatsProvider) Option {
	return func(e *Engine) { e.cache = p }
}

func WithResourceProvider(p ResourceProvider) Option {
	return func(e *Engine) { e.resources = p }
}

// WithApplier registers the applier for an optimization type, replacing any
// built-in one.
func WithApplier(optType string, a Applier) Option {
	return func(e *Engine) { e.appliers[optType] = a }
}

type Engine struct {
	cfg       Config
	clock     clock.WithTicker
	notifier  notify.Notifier
	cache     CacheStatsProvider
	resources ResourceProvider
	appliers  map[string]Applier

	breakers  *registry[*resilience.CircuitBreaker]
	retries   *registry[*resilience.RetryPolicy]
	balancers *registry[*resilience.LoadBalancer]
	metrics   *metricStore

	historyMu sync.RWMutex
	history   map[string]*ring.Ring[OptimizationResult]
	system    *ring.Ring[SystemMetrics]

	runMu     sync.Mutex
	running   bool
	stopCh    chan struct{}
	startedAt time.Time
	cycles    int
	lastCycle *CycleReport
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		clock:     clock.RealClock{},
		appliers:  make(map[string]Applier),
		breakers:  newRegistry[*resilience.CircuitBreaker]("circuit breaker"),
		retries:   newRegistry[*resilience.RetryPolicy]("retry strategy"),
		balancers: newRegistry[*resilience.LoadBalancer]("load balancer"),
		metrics:   newMetricStore(cfg.MetricsWindow, cfg.MaxMetricsPerEndpoint),
		history:   make(map[string]*ring.Ring[OptimizationResult]),
		system:    ring.New[SystemMetrics](maxSystemMetrics),
	}
	e.appliers[TypeCircuitBreaker] = ApplierFunc(e.applyCircuitBreaker)

	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil && cfg.WebhookURL != "" {
		e.notifier = notify.NewWebhook(cfg.WebhookURL)
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Start arms the optimization ticker when auto optimization is enabled.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.startedAt = e.clock.Now()

	if e.cfg.EnableAutoOptimization {
		safego.Every(e.clock, e.cfg.AdaptationInterval, e.stopCh, func() {
			ctx, cancel := context.WithTimeout(context.Background(), max(e.cfg.AdaptationInterval, defaultCycleDeadline))
			defer cancel()
			e.AnalyzeAndOptimize(ctx)
		})
	}
	log.Info("optimization engine started: auto=%t interval=%s", e.cfg.EnableAutoOptimization, e.cfg.AdaptationInterval)
	return nil
}

// Stop prevents future cycles; a cycle already running completes.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.running {
		return
	}
	close(e.stopCh)
	e.running = false
	log.Info("optimization engine stopped")
}

func (e *Engine) Restart(context.Context) error {
	e.Stop()
	return e.Start()
}

func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// CreateCircuitBreaker registers a breaker for endpoint, replacing an existing one.
func (e *Engine) CreateCircuitBreaker(endpoint string, cfg resilience.CircuitBreakerConfig) (*resilience.CircuitBreaker, error) {
	cb, err := resilience.NewCircuitBreaker(endpoint, cfg, resilience.WithClock(e.clock))
	if err != nil {
		return nil, err
	}
	if e.breakers.put(endpoint, cb) {
		log.Info("replaced circuit breaker for %s", endpoint)
	}
	return cb, nil
}

func (e *Engine) GetCircuitBreaker(endpoint string) (*resilience.CircuitBreaker, error) {
	return e.breakers.get(endpoint)
}

func (e *Engine) CircuitBreakers() map[string]resilience.CircuitBreakerState {
	out := make(map[string]resilience.CircuitBreakerState, e.breakers.len())
	e.breakers.each(func(id string, cb *resilience.CircuitBreaker) {
		out[id] = cb.Snapshot()
	})
	return out
}

func (e *Engine) ConfigureRetryStrategy(endpoint string, cfg resilience.RetryConfig) (*resilience.RetryPolicy, error) {
	policy, err := resilience.NewRetryPolicy(endpoint, cfg, resilience.WithClock(e.clock))
	if err != nil {
		return nil, err
	}
	e.retries.put(endpoint, policy)
	return policy, nil
}

func (e *Engine) GetRetryStrategy(endpoint string) (*resilience.RetryPolicy, error) {
	return e.retries.get(endpoint)
}

func (e *Engine) ConfigureLoadBalancer(service string, cfg resilience.LoadBalancerConfig) (*resilience.LoadBalancer, error) {
	lb, err := resilience.NewLoadBalancer(service, cfg)
	if err != nil {
		return nil, err
	}
	e.balancers.put(service, lb)
	return lb, nil
}

func (e *Engine) GetLoadBalancer(service string) (*resilience.LoadBalancer, error) {
	return e.balancers.get(service)
}

func (e *Engine) SelectEndpoint(service string) (string, error) {
	lb, err := e.balancers.get(service)
	if err != nil {
		return "", err
	}
	return lb.SelectEndpoint()
}

// UpdateEndpointHealth forwards to the service's balancer. A health context
// is also recorded as a metric sample for the next weight pass.
func (e *Engine) UpdateEndpointHealth(service, url string, healthy bool, hc *resilience.HealthContext) error {
	lb, err := e.balancers.get(service)
	if err != nil {
		return err
	}
	if err := lb.UpdateEndpointHealth(url, healthy, hc); err != nil {
		return err
	}
	if hc != nil {
		e.addMetric(PerformanceMetric{
			Endpoint:     url,
			ResponseTime: hc.ResponseTime,
			SuccessRate:  1 - hc.ErrorRate,
			ErrorRate:    hc.ErrorRate,
		})
	}
	return nil
}

// RecordEndpointResult records the outcome of a single call and feeds the
// endpoint's circuit breaker, if any.
func (e *Engine) RecordEndpointResult(endpoint string, success bool, responseTime time.Duration) {
	e.recordOutcome(endpoint, success, responseTime)

	if cb, ok := e.breakers.lookup(endpoint); ok {
		if success {
			cb.OnSuccess()
		} else {
			cb.OnFailure()
		}
	}
}

func (e *Engine) recordOutcome(endpoint string, success bool, responseTime time.Duration) {
	m := PerformanceMetric{Endpoint: endpoint, ResponseTime: responseTime}
	if success {
		m.SuccessRate = 1
	} else {
		m.ErrorRate = 1
	}
	e.addMetric(m)
	e.metrics.recordResult(endpoint, success)

	e.balancers.each(func(_ string, lb *resilience.LoadBalancer) {
		if success {
			lb.RecordSuccess(endpoint)
		} else {
			lb.RecordFailure(endpoint)
		}
	})
}

func (e *Engine) RecordEndpointMetrics(endpoint string, m EndpointMetrics) {
	e.addMetric(PerformanceMetric{
		Endpoint:     endpoint,
		ResponseTime: m.ResponseTime,
		MemoryUsage:  m.MemoryUsage,
		CPUUsage:     m.CPUUsage,
		SuccessRate:  m.SuccessRate,
		ErrorRate:    m.ErrorRate,
	})
}

func (e *Engine) RecordPerformanceMetric(m PerformanceMetric) error {
	if m.Endpoint == "" {
		return errdefs.NewConfigurationError("performance metric", "endpoint is required")
	}
	e.addMetric(m)
	return nil
}

func (e *Engine) addMetric(m PerformanceMetric) {
	now := e.clock.Now()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	e.metrics.add(m, now)
}

// Metrics returns the samples of endpoint inside the metrics window.
func (e *Engine) Metrics(endpoint string) []PerformanceMetric {
	return e.metrics.samples(endpoint, e.clock.Now())
}

// ExecuteWithResilience runs fn behind the endpoint's circuit breaker and
// retries it with the endpoint's retry strategy. Either may be absent.
func (e *Engine) ExecuteWithResilience(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	cb, hasBreaker := e.breakers.lookup(endpoint)

	call := func(ctx context.Context) error {
		start := e.clock.Now()
		var err error
		if hasBreaker {
			err = cb.Execute(ctx, fn)
			if errors.Is(err, errdefs.ErrCircuitOpen) {
				return err
			}
		} else {
			err = fn(ctx)
		}
		e.recordOutcome(endpoint, err == nil, e.clock.Since(start))
		return err
	}

	policy, ok := e.retries.lookup(endpoint)
	if !ok {
		return call(ctx)
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		err := call(ctx)
		if errors.Is(err, errdefs.ErrCircuitOpen) {
			return resilience.Permanent(err)
		}
		return err
	})
}

// SystemMetrics returns up to limit system samples, oldest first.
func (e *Engine) SystemMetrics(limit int) []SystemMetrics {
	e.historyMu.RLock()
	defer e.historyMu.RUnlock()
	if limit <= 0 {
		return e.system.Items()
	}
	return e.system.Last(limit)
}
