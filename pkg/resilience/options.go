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

// Package resilience holds the per-endpoint building blocks of the control
// plane: circuit breakers, retry policies and load balancers. Every value
// guards its own state with a mutex and hands out copies.
package resilience

import (
	"math/rand/v2"

	"k8s.io/utils/clock"
)

type Option func(*options)

type options struct {
	clock clock.Clock
	rand  *rand.Rand
}

// WithClock replaces the real clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRand seeds the weighted draws of a load balancer.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rand = r }
}

func buildOptions(opts []Option) *options {
	o := &options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}
