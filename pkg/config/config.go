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

// Package config loads the adaptd YAML configuration and turns it into a
// running engine and monitor.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/optimizer"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
)

type File struct {
	Optimizer       optimizer.Config                           `yaml:"optimizer"`
	Monitor         resource.Config                            `yaml:"monitor"`
	CircuitBreakers map[string]resilience.CircuitBreakerConfig `yaml:"circuitBreakers"`
	RetryStrategies map[string]resilience.RetryConfig          `yaml:"retryStrategies"`
	LoadBalancers   map[string]resilience.LoadBalancerConfig   `yaml:"loadBalancers"`
}

func Default() File {
	return File{
		Optimizer: optimizer.DefaultConfig(),
		Monitor:   resource.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (File, error) {
	f := Default()
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, &errdefs.ConfigurationError{Component: "config file", Err: err}
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, &errdefs.ConfigurationError{Component: "config file", Err: err}
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func (f *File) applyDefaults() {
	cbDefault := resilience.DefaultCircuitBreakerConfig()
	for id, cfg := range f.CircuitBreakers {
		if cfg.FailureThreshold == 0 {
			cfg.FailureThreshold = cbDefault.FailureThreshold
		}
		if cfg.RecoveryTimeout == 0 {
			cfg.RecoveryTimeout = cbDefault.RecoveryTimeout
		}
		if cfg.HalfOpenMaxCalls == 0 {
			cfg.HalfOpenMaxCalls = cbDefault.HalfOpenMaxCalls
		}
		f.CircuitBreakers[id] = cfg
	}

	retryDefault := resilience.DefaultRetryConfig()
	for id, cfg := range f.RetryStrategies {
		if cfg.MaxAttempts == 0 {
			cfg.MaxAttempts = retryDefault.MaxAttempts
		}
		if cfg.BaseDelay == 0 {
			cfg.BaseDelay = retryDefault.BaseDelay
		}
		if cfg.MaxDelay == 0 {
			cfg.MaxDelay = retryDefault.MaxDelay
		}
		if cfg.BackoffMultiplier == 0 {
			cfg.BackoffMultiplier = retryDefault.BackoffMultiplier
		}
		f.RetryStrategies[id] = cfg
	}
}

// Validate checks every section and reports all failures together.
func (f File) Validate() error {
	var errs []error
	if err := f.Optimizer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := f.Monitor.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, id := range sortedKeys(f.CircuitBreakers) {
		if err := errdefs.Validate("circuit breaker "+id, f.CircuitBreakers[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range sortedKeys(f.RetryStrategies) {
		if err := errdefs.Validate("retry strategy "+id, f.RetryStrategies[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range sortedKeys(f.LoadBalancers) {
		if err := errdefs.Validate("load balancer "+id, f.LoadBalancers[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the monitor and an engine that reads resource usage from it,
// then registers every configured breaker, retry strategy and balancer.
func Build(f File, monitorOpts ...resource.Option) (*optimizer.Engine, *resource.Monitor, error) {
	monitor, err := resource.NewMonitor(f.Monitor, monitorOpts...)
	if err != nil {
		return nil, nil, err
	}

	engine, err := optimizer.New(f.Optimizer, optimizer.WithResourceProvider(monitor))
	if err != nil {
		return nil, nil, err
	}

	for _, id := range sortedKeys(f.CircuitBreakers) {
		if _, err := engine.CreateCircuitBreaker(id, f.CircuitBreakers[id]); err != nil {
			return nil, nil, fmt.Errorf("circuit breaker %s: %w", id, err)
		}
	}
	for _, id := range sortedKeys(f.RetryStrategies) {
		if _, err := engine.ConfigureRetryStrategy(id, f.RetryStrategies[id]); err != nil {
			return nil, nil, fmt.Errorf("retry strategy %s: %w", id, err)
		}
	}
	for _, id := range sortedKeys(f.LoadBalancers) {
		if _, err := engine.ConfigureLoadBalancer(id, f.LoadBalancers[id]); err != nil {
			return nil, nil, fmt.Errorf("load balancer %s: %w", id, err)
		}
	}

	log.Info("built control plane: %d circuit breakers, %d retry strategies, %d load balancers, %d cleanup rules",
		len(f.CircuitBreakers), len(f.RetryStrategies), len(f.LoadBalancers), len(f.Monitor.CleanupRules))
	return engine, monitor, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
