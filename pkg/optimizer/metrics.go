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
	"sort"
	"sync"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/ring"
)

const recentResultsWindow = 10

// metricStore keeps a bounded, time-windowed series per endpoint plus the
// outcome of its last few calls.
type metricStore struct {
	window   time.Duration
	capacity int

	mu      sync.RWMutex
	series  map[string]*ring.Ring[PerformanceMetric]
	results map[string]*ring.Ring[bool]
}

func newMetricStore(window time.Duration, capacity int) *metricStore {
	return &metricStore{
		window:   window,
		capacity: capacity,
		series:   make(map[string]*ring.Ring[PerformanceMetric]),
		results:  make(map[string]*ring.Ring[bool]),
	}
}

func (s *metricStore) add(m PerformanceMetric, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.series[m.Endpoint]
	if !ok {
		r = ring.New[PerformanceMetric](s.capacity)
		s.series[m.Endpoint] = r
	}
	r.Push(m)
	cutoff := now.Add(-s.window)
	r.DropWhile(func(p PerformanceMetric) bool { return p.Timestamp.Before(cutoff) })
}

func (s *metricStore) recordResult(endpoint string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[endpoint]
	if !ok {
		r = ring.New[bool](recentResultsWindow)
		s.results[endpoint] = r
	}
	r.Push(success)
}

// samples returns the endpoint's metrics inside the window, oldest first.
func (s *metricStore) samples(endpoint string, now time.Time) []PerformanceMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.series[endpoint]
	if !ok {
		return nil
	}
	cutoff := now.Add(-s.window)
	out := make([]PerformanceMetric, 0, r.Len())
	for _, m := range r.Items() {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

func (s *metricStore) performance(endpoint string, now time.Time) resilience.EndpointPerformance {
	samples := s.samples(endpoint, now)
	perf := resilience.EndpointPerformance{Samples: len(samples)}
	if len(samples) == 0 {
		return perf
	}

	var success float64
	var rt time.Duration
	for _, m := range samples {
		success += m.SuccessRate
		rt += m.ResponseTime
	}
	perf.AvgSuccessRate = success / float64(len(samples))
	perf.AvgResponseTime = rt / time.Duration(len(samples))
	return perf
}

// recentFailureRate is computed over the last ten recorded results.
func (s *metricStore) recentFailureRate(endpoint string) (rate float64, n int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[endpoint]
	if !ok || r.Len() == 0 {
		return 0, 0
	}
	failures := 0
	for _, ok := range r.Items() {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(r.Len()), r.Len()
}

func (s *metricStore) endpoints() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.series))
	for id := range s.series {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *metricStore) total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.series {
		n += r.Len()
	}
	return n
}
