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
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
)

type Strategy string

const (
	RoundRobin          Strategy = "round_robin"
	WeightedRoundRobin  Strategy = "weighted_round_robin"
	PerformanceWeighted Strategy = "performance_weighted"
	HealthAware         Strategy = "health_aware"
	Failover            Strategy = "failover"
)

const (
	// health_aware skips endpoints with this many consecutive failures.
	maxConsecutiveFailures = 3

	minWeightSamples = 10
	minWeight        = 0.1
	maxWeight        = 5.0
	neutralWeight    = 1.0
)

type LoadBalancerConfig struct {
	Strategy  Strategy `json:"strategy" yaml:"strategy" validate:"required,oneof=round_robin weighted_round_robin performance_weighted health_aware failover"`
	Endpoints []string `json:"endpoints" yaml:"endpoints" validate:"required,min=1,unique,dive,required"`
}

// HealthContext is the last measured condition of an endpoint.
type HealthContext struct {
	ResponseTime time.Duration `json:"responseTime"`
	ErrorRate    float64       `json:"errorRate"`
}

type LoadBalancer struct {
	service   string
	strategy  Strategy
	endpoints []string

	mu       sync.Mutex
	rand     *rand.Rand
	next     int
	weights  map[string]float64
	health   map[string]bool
	failures map[string]int
	contexts map[string]HealthContext
}

func NewLoadBalancer(service string, cfg LoadBalancerConfig, opts ...Option) (*LoadBalancer, error) {
	if service == "" {
		return nil, errdefs.NewConfigurationError("load balancer", "service name is required")
	}
	if err := errdefs.Validate("load balancer", cfg); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	lb := &LoadBalancer{
		service:   service,
		strategy:  cfg.Strategy,
		endpoints: slices.Clone(cfg.Endpoints),
		rand:      o.rand,
		weights:   make(map[string]float64, len(cfg.Endpoints)),
		health:    make(map[string]bool, len(cfg.Endpoints)),
		failures:  make(map[string]int, len(cfg.Endpoints)),
		contexts:  make(map[string]HealthContext),
	}
	for _, ep := range cfg.Endpoints {
		lb.weights[ep] = neutralWeight
		lb.health[ep] = true
	}
	return lb, nil
}

func (lb *LoadBalancer) Service() string    { return lb.service }
func (lb *LoadBalancer) Strategy() Strategy { return lb.strategy }
func (lb *LoadBalancer) Endpoints() []string {
	return slices.Clone(lb.endpoints)
}

// SelectEndpoint picks an endpoint among the healthy ones according to the strategy.
func (lb *LoadBalancer) SelectEndpoint() (string, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	healthy := make([]string, 0, len(lb.endpoints))
	for _, ep := range lb.endpoints {
		if lb.health[ep] {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		return "", &errdefs.OperationalError{Op: "select endpoint", ID: lb.service, Err: errdefs.ErrNoHealthyEndpoints}
	}

	switch lb.strategy {
	case RoundRobin:
		ep := healthy[lb.next%len(healthy)]
		lb.next++
		return ep, nil
	case Failover:
		return healthy[0], nil
	case HealthAware:
		candidates := make([]string, 0, len(healthy))
		for _, ep := range healthy {
			if lb.failures[ep] < maxConsecutiveFailures {
				candidates = append(candidates, ep)
			}
		}
		if len(candidates) == 0 {
			candidates = healthy
		}
		return lb.weightedDraw(candidates), nil
	default:
		return lb.weightedDraw(healthy), nil
	}
}

func (lb *LoadBalancer) weightedDraw(candidates []string) string {
	var total float64
	for _, ep := range candidates {
		total += lb.weights[ep]
	}
	if total <= 0 {
		return candidates[0]
	}

	r := lb.rand.Float64() * total
	for _, ep := range candidates {
		r -= lb.weights[ep]
		if r < 0 {
			return ep
		}
	}
	return candidates[len(candidates)-1]
}

// UpdateEndpointHealth sets the health flag of url and, when hc is not nil,
// remembers the measured context. A healthy report clears the failure streak.
func (lb *LoadBalancer) UpdateEndpointHealth(url string, healthy bool, hc *HealthContext) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if _, ok := lb.health[url]; !ok {
		return errdefs.NotFound("endpoint", url)
	}
	lb.health[url] = healthy
	if healthy {
		lb.failures[url] = 0
	}
	if hc != nil {
		lb.contexts[url] = *hc
	}
	return nil
}

func (lb *LoadBalancer) RecordSuccess(url string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if _, ok := lb.health[url]; ok {
		lb.failures[url] = 0
	}
}

func (lb *LoadBalancer) RecordFailure(url string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if _, ok := lb.health[url]; ok {
		lb.failures[url]++
	}
}

// SetWeights replaces the weights of the given endpoints. Every weight must
// be positive and belong to a known endpoint.
func (lb *LoadBalancer) SetWeights(weights map[string]float64) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	for url, w := range weights {
		if _, ok := lb.weights[url]; !ok {
			return errdefs.NotFound("endpoint", url)
		}
		if !(w > 0) || math.IsInf(w, 0) {
			return errdefs.NewConfigurationError("load balancer", "weight of %s must be positive (got %v)", url, w)
		}
	}
	for url, w := range weights {
		lb.weights[url] = w
	}
	return nil
}

func (lb *LoadBalancer) Weights() map[string]float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return cloneMap(lb.weights)
}

func (lb *LoadBalancer) Health() map[string]bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return cloneMap(lb.health)
}

func (lb *LoadBalancer) HealthContext(url string) (HealthContext, bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	hc, ok := lb.contexts[url]
	return hc, ok
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EndpointPerformance summarises the samples recorded for one endpoint.
type EndpointPerformance struct {
	Samples         int
	AvgSuccessRate  float64
	AvgResponseTime time.Duration
}

// PerformanceWeights turns per-endpoint performance into balancer weights.
// Endpoints with fewer than ten samples stay neutral at 1; the others get
// their score relative to the best one scaled into [0.1, 5].
func PerformanceWeights(endpoints []string, perf map[string]EndpointPerformance) map[string]float64 {
	scores := make(map[string]float64, len(endpoints))
	var best float64
	for _, ep := range endpoints {
		p, ok := perf[ep]
		if !ok || p.Samples < minWeightSamples {
			continue
		}
		seconds := math.Max(p.AvgResponseTime.Seconds(), 0.1)
		score := p.AvgSuccessRate / seconds
		scores[ep] = score
		best = math.Max(best, score)
	}

	weights := make(map[string]float64, len(endpoints))
	for _, ep := range endpoints {
		score, ok := scores[ep]
		if !ok || best <= 0 {
			weights[ep] = neutralWeight
			continue
		}
		w := math.Min(math.Max(score/best*maxWeight, minWeight), maxWeight)
		weights[ep] = math.Round(w*10) / 10
	}
	return weights
}
