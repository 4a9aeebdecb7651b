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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/health"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testingclock.FakeClock) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Unix(1_700_000_000, 0))
	e, err := New(DefaultConfig(), append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return e, clk
}

type staticResources struct {
	usage resource.ResourceUsage
}

func (s staticResources) LatestUsage() (resource.ResourceUsage, bool) { return s.usage, true }

func TestNewValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptationInterval = 999 * time.Millisecond
	_, err := New(cfg)
	assert.ErrorContains(t, err, "AdaptationInterval must be at least 1s")

	cfg = DefaultConfig()
	cfg.LearningRate = 0.001
	_, err = New(cfg)
	assert.ErrorContains(t, err, "LearningRate must be at least 0.01")
	assert.True(t, errdefs.IsConfiguration(err))

	cfg = DefaultConfig()
	cfg.LearningRate = 1.5
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestCircuitBreakerRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)

	cfg := resilience.CircuitBreakerConfig{FailureThreshold: 7, RecoveryTimeout: 30 * time.Second, HalfOpenMaxCalls: 2}
	_, err := e.CreateCircuitBreaker("orders", cfg)
	require.NoError(t, err)

	cb, err := e.GetCircuitBreaker("orders")
	require.NoError(t, err)
	assert.Equal(t, resilience.StateClosed, cb.State())
	assert.Equal(t, 7, cb.Config().FailureThreshold)

	_, err = e.CreateCircuitBreaker("orders", resilience.CircuitBreakerConfig{FailureThreshold: 0, RecoveryTimeout: time.Second, HalfOpenMaxCalls: 1})
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestRegistryLookupsFailForUnknownIDs(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.GetCircuitBreaker("nope")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.ErrorContains(t, err, "circuit breaker not found for id nope")

	_, err = e.GetRetryStrategy("nope")
	assert.ErrorContains(t, err, "retry strategy not found for id nope")

	_, err = e.GetLoadBalancer("nope")
	assert.ErrorContains(t, err, "load balancer not found for id nope")

	_, err = e.SelectEndpoint("nope")
	assert.True(t, errdefs.IsOperational(err))
}

func TestEnginesDoNotShareRegistries(t *testing.T) {
	a, _ := newTestEngine(t)
	b, _ := newTestEngine(t)

	_, err := a.CreateCircuitBreaker("shared", resilience.DefaultCircuitBreakerConfig())
	require.NoError(t, err)
	_, err = b.GetCircuitBreaker("shared")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRecordEndpointResultFeedsBreaker(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateCircuitBreaker("api", resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1})
	require.NoError(t, err)

	e.RecordEndpointResult("api", false, 100*time.Millisecond)
	e.RecordEndpointResult("api", false, 120*time.Millisecond)

	cb, err := e.GetCircuitBreaker("api")
	require.NoError(t, err)
	assert.Equal(t, resilience.StateOpen, cb.State())
	assert.Len(t, e.Metrics("api"), 2)
}

func TestMetricsWindowAndCapacity(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1_700_000_000, 0))
	cfg := DefaultConfig()
	cfg.MaxMetricsPerEndpoint = 5
	cfg.MetricsWindow = time.Hour
	e, err := New(cfg, WithClock(clk))
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		e.RecordEndpointMetrics("api", EndpointMetrics{ResponseTime: time.Duration(i) * time.Millisecond, SuccessRate: 1})
	}
	samples := e.Metrics("api")
	require.Len(t, samples, 5)
	assert.Equal(t, 3*time.Millisecond, samples[0].ResponseTime)

	clk.Step(2 * time.Hour)
	assert.Empty(t, e.Metrics("api"))

	assert.Error(t, e.RecordPerformanceMetric(PerformanceMetric{}))
	require.NoError(t, e.RecordPerformanceMetric(PerformanceMetric{Endpoint: "api", SuccessRate: 1}))
	assert.Len(t, e.Metrics("api"), 1)
}

func TestLoadBalancerWeightsFollowPerformance(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.ConfigureLoadBalancer("api", resilience.LoadBalancerConfig{
		Strategy:  resilience.PerformanceWeighted,
		Endpoints: []string{"fast-api.com", "slow-api.com", "medium-api.com"},
	})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		e.RecordEndpointMetrics("fast-api.com", EndpointMetrics{ResponseTime: 100 * time.Millisecond, SuccessRate: 0.98, ErrorRate: 0.02})
		e.RecordEndpointMetrics("slow-api.com", EndpointMetrics{ResponseTime: 800 * time.Millisecond, SuccessRate: 0.85, ErrorRate: 0.15})
	}

	weights, err := e.OptimizeLoadBalancerWeights("api")
	require.NoError(t, err)
	if weights["fast-api.com"] <= weights["slow-api.com"] {
		t.Fatalf("expected fast-api.com to outweigh slow-api.com, got %v", weights)
	}
	assert.Equal(t, 1.0, weights["medium-api.com"])

	lb, err := e.GetLoadBalancer("api")
	require.NoError(t, err)
	assert.Equal(t, weights, lb.Weights())
}

func TestUpdateEndpointHealthRecordsContext(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.ConfigureLoadBalancer("api", resilience.LoadBalancerConfig{Strategy: resilience.Failover, Endpoints: []string{"a", "b"}})
	require.NoError(t, err)

	require.NoError(t, e.UpdateEndpointHealth("api", "a", false, &resilience.HealthContext{ResponseTime: 3 * time.Second, ErrorRate: 0.4}))
	ep, err := e.SelectEndpoint("api")
	require.NoError(t, err)
	assert.Equal(t, "b", ep)

	samples := e.Metrics("a")
	require.Len(t, samples, 1)
	assert.InDelta(t, 0.6, samples[0].SuccessRate, 1e-9)

	assert.ErrorIs(t, e.UpdateEndpointHealth("api", "c", true, nil), errdefs.ErrNotFound)
}

func TestExecuteWithResilience(t *testing.T) {
	e, clk := newTestEngine(t)
	_, err := e.CreateCircuitBreaker("api", resilience.CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1})
	require.NoError(t, err)
	_, err = e.ConfigureRetryStrategy("api", resilience.RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2})
	require.NoError(t, err)

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- e.ExecuteWithResilience(context.Background(), "api", func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("flaky")
			}
			return nil
		})
	}()
	for i := 0; i < 2; i++ {
		require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
		clk.Step(time.Second)
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("call did not complete")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, e.Metrics("api"), 3)

	cb, err := e.GetCircuitBreaker("api")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		cb.OnFailure()
	}
	calls.Store(0)
	err = e.ExecuteWithResilience(context.Background(), "api", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, errdefs.ErrCircuitOpen)
	assert.Equal(t, int32(0), calls.Load())

	assert.NoError(t, e.ExecuteWithResilience(context.Background(), "plain", func(context.Context) error { return nil }))
}

func TestExecuteWithOpenBreakerAndNoRetryPolicy(t *testing.T) {
	e, _ := newTestEngine(t)
	cb, err := e.CreateCircuitBreaker("solo", resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1})
	require.NoError(t, err)
	cb.OnFailure()

	err = e.ExecuteWithResilience(context.Background(), "solo", func(context.Context) error {
		t.Fatalf("fn must not run while the circuit is open")
		return nil
	})
	_, ok := err.(*errdefs.OperationalError)
	assert.True(t, ok, "expected *errdefs.OperationalError, got %T", err)
	assert.ErrorIs(t, err, errdefs.ErrCircuitOpen)
	assert.Empty(t, e.Metrics("solo"))
}

func TestAdaptRetryStrategies(t *testing.T) {
	e, _ := newTestEngine(t)
	base := resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2}
	for _, id := range []string{"healthy", "degraded", "sparse", "middling"} {
		_, err := e.ConfigureRetryStrategy(id, base)
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		e.RecordEndpointMetrics("healthy", EndpointMetrics{ResponseTime: 200 * time.Millisecond, SuccessRate: 0.99})
		e.RecordEndpointMetrics("degraded", EndpointMetrics{ResponseTime: 500 * time.Millisecond, SuccessRate: 0.5})
		e.RecordEndpointMetrics("middling", EndpointMetrics{ResponseTime: 1500 * time.Millisecond, SuccessRate: 0.8})
	}
	for i := 0; i < 4; i++ {
		e.RecordEndpointMetrics("sparse", EndpointMetrics{ResponseTime: time.Second, SuccessRate: 0.1})
	}

	records := e.AdaptRetryStrategies()
	assert.Len(t, records, 4)

	healthy, _ := e.GetRetryStrategy("healthy")
	assert.Equal(t, 2, healthy.Config().MaxAttempts)
	assert.Equal(t, 800*time.Millisecond, healthy.Config().BaseDelay)

	degraded, _ := e.GetRetryStrategy("degraded")
	assert.Equal(t, 4, degraded.Config().MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, degraded.Config().BaseDelay)
	require.Len(t, degraded.Adaptations(), 2)
	assert.Contains(t, degraded.Adaptations()[0].Reason, "successRate=0.500")

	sparse, _ := e.GetRetryStrategy("sparse")
	assert.Equal(t, base, sparse.Config())
	middling, _ := e.GetRetryStrategy("middling")
	assert.Equal(t, base, middling.Config())

	for i := 0; i < 5; i++ {
		e.AdaptRetryStrategies()
	}
	assert.Equal(t, 2, healthy.Config().MaxAttempts)
	assert.GreaterOrEqual(t, healthy.Config().BaseDelay, 100*time.Millisecond)
	assert.Equal(t, 5, degraded.Config().MaxAttempts)
	assert.Equal(t, 3*time.Second, degraded.Config().BaseDelay)
}

func TestStartIsIdempotent(t *testing.T) {
	var cacheCalls atomic.Int32
	e, clk := newTestEngine(t, WithCacheStats(CacheStatsFunc(func(context.Context) (CacheStats, error) {
		cacheCalls.Add(1)
		return CacheStats{Hits: 99, Misses: 1}, nil
	})))

	e.Stop()
	require.NoError(t, e.Start())
	require.NoError(t, e.Start())

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(30 * time.Second)
	require.Eventually(t, func() bool { return e.GetStatistics().Cycles == 1 }, time.Second, time.Millisecond)
	require.Never(t, func() bool { return e.GetStatistics().Cycles > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	e.Stop()
	e.Stop()
	clk.Step(30 * time.Second)
	require.Never(t, func() bool { return e.GetStatistics().Cycles > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, len(e.SystemMetrics(0)))
}

func TestStartWithoutAutoOptimization(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	cfg := DefaultConfig()
	cfg.EnableAutoOptimization = false
	e, err := New(cfg, WithClock(clk))
	require.NoError(t, err)

	require.NoError(t, e.Start())
	defer e.Stop()
	assert.True(t, e.Running())
	assert.False(t, clk.HasWaiters())
}

func TestHealthStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Equal(t, health.StatusCritical, e.GetHealthStatus().Status)
	assert.False(t, e.IsHealthy())

	require.NoError(t, e.Start())
	defer e.Stop()
	assert.Equal(t, health.StatusHealthy, e.GetHealthStatus().Status)

	cfg := resilience.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1}
	for _, id := range []string{"a", "b", "c"} {
		_, err := e.CreateCircuitBreaker(id, cfg)
		require.NoError(t, err)
	}

	e.RecordEndpointResult("a", false, time.Millisecond)
	report := e.GetHealthStatus()
	assert.Equal(t, health.StatusWarning, report.Status)
	assert.Equal(t, 1, report.Metrics["openBreakers"])
	assert.True(t, e.IsHealthy())

	e.RecordEndpointResult("b", false, time.Millisecond)
	assert.Equal(t, health.StatusCritical, e.GetHealthStatus().Status)
	assert.False(t, e.IsHealthy())

	var _ health.HealthCheckable = e
	var _ health.Startable = e
}

func TestSystemMetricsCollection(t *testing.T) {
	usage := resource.ResourceUsage{}
	usage.Memory.Percentage = 42
	usage.CPU.Percentage = 12
	e, _ := newTestEngine(t,
		WithResourceProvider(staticResources{usage: usage}),
		WithCacheStats(CacheStatsFunc(func(context.Context) (CacheStats, error) {
			return CacheStats{Hits: 3, Misses: 1, MemoryUsage: 2048, TotalKeys: 7}, nil
		})),
	)

	report := e.AnalyzeAndOptimize(context.Background())
	assert.Empty(t, report.Errors)

	samples := e.SystemMetrics(0)
	require.Len(t, samples, 1)
	assert.Equal(t, 42.0, samples[0].MemoryPercentage)
	assert.Equal(t, 0.75, samples[0].CacheHitRate)
	assert.Equal(t, int64(7), samples[0].CacheKeys)
}
