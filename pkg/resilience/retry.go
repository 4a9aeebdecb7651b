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
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/ring"
)

const (
	maxAdaptationRecords = 50
	retryJitterFactor    = 0.1
)

type RetryConfig struct {
	MaxAttempts       int           `json:"maxAttempts" yaml:"maxAttempts" validate:"min=1,max=10"`
	BaseDelay         time.Duration `json:"baseDelay" yaml:"baseDelay" validate:"min=100ms,max=10s,ltefield=MaxDelay"`
	MaxDelay          time.Duration `json:"maxDelay" yaml:"maxDelay" validate:"min=1s,max=60s"`
	BackoffMultiplier float64       `json:"backoffMultiplier" yaml:"backoffMultiplier" validate:"min=1,max=5"`
	Jitter            bool          `json:"jitter" yaml:"jitter"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// AdaptationRecord describes one parameter change made to a retry policy.
type AdaptationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Parameter string    `json:"parameter"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	Reason    string    `json:"reason"`
}

// CalculateRetryDelay returns the wait before retry number attempt (1-based).
func CalculateRetryDelay(cfg RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	raw := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if math.IsInf(raw, 0) || math.IsNaN(raw) || raw >= float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}

	delay := time.Duration(raw)
	if cfg.Jitter {
		delay = wait.Jitter(delay, retryJitterFactor)
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

type RetryPolicy struct {
	endpoint string
	clock    clock.Clock

	mu          sync.Mutex
	cfg         RetryConfig
	adaptations *ring.Ring[AdaptationRecord]
}

func NewRetryPolicy(endpoint string, cfg RetryConfig, opts ...Option) (*RetryPolicy, error) {
	if endpoint == "" {
		return nil, errdefs.NewConfigurationError("retry strategy", "endpoint id is required")
	}
	if err := errdefs.Validate("retry strategy", cfg); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &RetryPolicy{
		endpoint:    endpoint,
		clock:       o.clock,
		cfg:         cfg,
		adaptations: ring.New[AdaptationRecord](maxAdaptationRecords),
	}, nil
}

func (p *RetryPolicy) Endpoint() string { return p.endpoint }

func (p *RetryPolicy) Config() RetryConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *RetryPolicy) Delay(attempt int) time.Duration {
	return CalculateRetryDelay(p.Config(), attempt)
}

// Adapt replaces the configuration and records one AdaptationRecord per
// parameter that actually changed. An invalid config leaves the policy untouched.
func (p *RetryPolicy) Adapt(next RetryConfig, reason string) ([]AdaptationRecord, error) {
	if err := errdefs.Validate("retry strategy", next); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	prev := p.cfg
	var records []AdaptationRecord
	add := func(param string, oldValue, newValue any) {
		records = append(records, AdaptationRecord{
			Timestamp: now,
			Parameter: param,
			OldValue:  fmt.Sprint(oldValue),
			NewValue:  fmt.Sprint(newValue),
			Reason:    reason,
		})
	}

	if prev.MaxAttempts != next.MaxAttempts {
		add("maxAttempts", prev.MaxAttempts, next.MaxAttempts)
	}
	if prev.BaseDelay != next.BaseDelay {
		add("baseDelay", prev.BaseDelay, next.BaseDelay)
	}
	if prev.MaxDelay != next.MaxDelay {
		add("maxDelay", prev.MaxDelay, next.MaxDelay)
	}
	if prev.BackoffMultiplier != next.BackoffMultiplier {
		add("backoffMultiplier", prev.BackoffMultiplier, next.BackoffMultiplier)
	}
	if prev.Jitter != next.Jitter {
		add("jitter", prev.Jitter, next.Jitter)
	}

	p.cfg = next
	for _, r := range records {
		p.adaptations.Push(r)
	}
	return records, nil
}

// Adaptations returns the recorded changes, oldest first.
func (p *RetryPolicy) Adaptations() []AdaptationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adaptations.Items()
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, MaxAttempts is
// reached or ctx is done.
func (p *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	cfg := p.Config()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= cfg.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(CalculateRetryDelay(cfg, attempt)):
		}
	}
}
