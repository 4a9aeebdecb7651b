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

package resilience

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
)

func newTestBalancer(t *testing.T, strategy Strategy, endpoints ...string) *LoadBalancer {
	t.Helper()
	lb, err := NewLoadBalancer("svc", LoadBalancerConfig{Strategy: strategy, Endpoints: endpoints}, WithRand(rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, err)
	return lb
}

func TestNewLoadBalancerValidation(t *testing.T) {
	_, err := NewLoadBalancer("svc", LoadBalancerConfig{Strategy: "random", Endpoints: []string{"a"}})
	assert.ErrorContains(t, err, "Strategy must be one of")

	_, err = NewLoadBalancer("svc", LoadBalancerConfig{Strategy: RoundRobin})
	assert.ErrorContains(t, err, "Endpoints is required")

	_, err = NewLoadBalancer("svc", LoadBalancerConfig{Strategy: RoundRobin, Endpoints: []string{"a", "a"}})
	assert.ErrorContains(t, err, "must not contain duplicates")

	_, err = NewLoadBalancer("", LoadBalancerConfig{Strategy: RoundRobin, Endpoints: []string{"a"}})
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestRoundRobinSkipsUnhealthy(t *testing.T) {
	lb := newTestBalancer(t, RoundRobin, "a", "b", "c")

	var got []string
	for i := 0; i < 3; i++ {
		ep, err := lb.SelectEndpoint()
		require.NoError(t, err)
		got = append(got, ep)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	require.NoError(t, lb.UpdateEndpointHealth("b", false, nil))
	for i := 0; i < 6; i++ {
		ep, err := lb.SelectEndpoint()
		require.NoError(t, err)
		assert.NotEqual(t, "b", ep)
	}
}

func TestFailoverPrefersFirstHealthy(t *testing.T) {
	lb := newTestBalancer(t, Failover, "primary", "secondary")
	ep, err := lb.SelectEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "primary", ep)

	require.NoError(t, lb.UpdateEndpointHealth("primary", false, nil))
	ep, err = lb.SelectEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "secondary", ep)
}

func TestSelectEndpointNoneHealthy(t *testing.T) {
	for _, s := range []Strategy{RoundRobin, WeightedRoundRobin, PerformanceWeighted, HealthAware, Failover} {
		lb := newTestBalancer(t, s, "a")
		require.NoError(t, lb.UpdateEndpointHealth("a", false, nil))
		_, err := lb.SelectEndpoint()
		if !assert.ErrorIs(t, err, errdefs.ErrNoHealthyEndpoints, string(s)) {
			continue
		}
		assert.True(t, errdefs.IsOperational(err))
	}
}

func TestWeightedDrawFollowsWeights(t *testing.T) {
	lb := newTestBalancer(t, WeightedRoundRobin, "heavy", "light")
	require.NoError(t, lb.SetWeights(map[string]float64{"heavy": 5, "light": 0.1}))

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		ep, err := lb.SelectEndpoint()
		require.NoError(t, err)
		counts[ep]++
	}
	assert.Greater(t, counts["heavy"], counts["light"]*10)
}

func TestHealthAwareSkipsFailingEndpoints(t *testing.T) {
	lb := newTestBalancer(t, HealthAware, "a", "b")
	for i := 0; i < 3; i++ {
		lb.RecordFailure("a")
	}
	for i := 0; i < 50; i++ {
		ep, err := lb.SelectEndpoint()
		require.NoError(t, err)
		assert.Equal(t, "b", ep)
	}

	for i := 0; i < 3; i++ {
		lb.RecordFailure("b")
	}
	ep, err := lb.SelectEndpoint()
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b"}, ep)

	lb.RecordSuccess("a")
	require.NoError(t, lb.UpdateEndpointHealth("b", false, nil))
	ep, err = lb.SelectEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "a", ep)
}

func TestUpdateEndpointHealthContext(t *testing.T) {
	lb := newTestBalancer(t, PerformanceWeighted, "a")
	err := lb.UpdateEndpointHealth("a", true, &HealthContext{ResponseTime: 120 * time.Millisecond, ErrorRate: 0.02})
	require.NoError(t, err)

	hc, ok := lb.HealthContext("a")
	require.True(t, ok)
	assert.Equal(t, 120*time.Millisecond, hc.ResponseTime)

	err = lb.UpdateEndpointHealth("missing", true, nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestSetWeightsRejectsInvalid(t *testing.T) {
	lb := newTestBalancer(t, WeightedRoundRobin, "a", "b")
	assert.Error(t, lb.SetWeights(map[string]float64{"a": 0}))
	assert.Error(t, lb.SetWeights(map[string]float64{"c": 1}))
	assert.Equal(t, map[string]float64{"a": 1, "b": 1}, lb.Weights())

	weights := lb.Weights()
	weights["a"] = 42
	assert.Equal(t, 1.0, lb.Weights()["a"])
}

func TestPerformanceWeights(t *testing.T) {
	endpoints := []string{"fast", "slow", "new"}
	weights := PerformanceWeights(endpoints, map[string]EndpointPerformance{
		"fast": {Samples: 50, AvgSuccessRate: 0.98, AvgResponseTime: 100 * time.Millisecond},
		"slow": {Samples: 50, AvgSuccessRate: 0.85, AvgResponseTime: 800 * time.Millisecond},
		"new":  {Samples: 9, AvgSuccessRate: 1, AvgResponseTime: 10 * time.Millisecond},
	})

	assert.Equal(t, 5.0, weights["fast"])
	assert.Equal(t, 0.5, weights["slow"])
	assert.Equal(t, 1.0, weights["new"])
}
