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
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failureThreshold" yaml:"failureThreshold" validate:"min=1,max=100"`
	RecoveryTimeout  time.Duration `json:"recoveryTimeout" yaml:"recoveryTimeout" validate:"min=1s,max=300s"`
	HalfOpenMaxCalls int           `json:"halfOpenMaxCalls" yaml:"halfOpenMaxCalls" validate:"min=1,max=10"`
}

// DefaultCircuitBreakerConfig trips after five failures and probes again after a minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreakerState is a point-in-time copy of a breaker.
type CircuitBreakerState struct {
	State           State     `json:"state"`
	FailureCount    int       `json:"failureCount"`
	SuccessCount    int       `json:"successCount"`
	LastFailureTime time.Time `json:"lastFailureTime,omitempty"`
}

type CircuitBreaker struct {
	id    string
	clock clock.PassiveClock

	mu    sync.Mutex
	cfg   CircuitBreakerConfig
	state CircuitBreakerState
}

func NewCircuitBreaker(id string, cfg CircuitBreakerConfig, opts ...Option) (*CircuitBreaker, error) {
	if id == "" {
		return nil, errdefs.NewConfigurationError("circuit breaker", "endpoint id is required")
	}
	if err := errdefs.Validate("circuit breaker", cfg); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &CircuitBreaker{
		id:    id,
		clock: o.clock,
		cfg:   cfg,
		state: CircuitBreakerState{State: StateClosed},
	}, nil
}

func (cb *CircuitBreaker) ID() string { return cb.id }

// CanAttemptCall reports whether a call may proceed. An open breaker whose
// recovery timeout has elapsed moves to half-open as a side effect.
func (cb *CircuitBreaker) CanAttemptCall() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state.State {
	case StateClosed, StateHalfOpen:
		return true
	default:
		if cb.clock.Since(cb.state.LastFailureTime) < cb.cfg.RecoveryTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		return true
	}
}

func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state.State {
	case StateClosed:
		cb.state.FailureCount = 0
	case StateHalfOpen:
		cb.state.SuccessCount++
		if cb.state.SuccessCount >= cb.cfg.HalfOpenMaxCalls {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state.FailureCount++
	cb.state.LastFailureTime = cb.clock.Now()

	switch cb.state.State {
	case StateClosed:
		if cb.state.FailureCount >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// Execute runs fn unless the breaker is open. fn's own error is returned
// unchanged after being counted as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.CanAttemptCall() {
		return &errdefs.OperationalError{Op: "circuit breaker", ID: cb.id, Err: errdefs.ErrCircuitOpen}
	}
	if err := fn(ctx); err != nil {
		cb.OnFailure()
		return err
	}
	cb.OnSuccess()
	return nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.State
}

func (cb *CircuitBreaker) Snapshot() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.cfg
}

// UpdateConfig swaps the configuration without touching the current state.
func (cb *CircuitBreaker) UpdateConfig(cfg CircuitBreakerConfig) error {
	if err := errdefs.Validate("circuit breaker", cfg); err != nil {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.cfg = cfg
	if cb.state.State == StateClosed && cb.state.FailureCount >= cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
	return nil
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitBreakerState{State: StateClosed}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state.State
	cb.state.State = to
	cb.state.SuccessCount = 0
	if to == StateClosed {
		cb.state.FailureCount = 0
	}

	if to == StateOpen {
		log.Warn("circuit breaker %s moved from %s to %s after %d failures", cb.id, from, to, cb.state.FailureCount)
	} else {
		log.Info("circuit breaker %s moved from %s to %s", cb.id, from, to)
	}
}
