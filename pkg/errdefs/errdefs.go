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

// Package errdefs defines the error taxonomy shared by the control plane:
// configuration errors fail fast at construction, operational errors are
// returned to callers without touching state, and integration errors are
// logged or collected at the boundary where they occur.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned when a breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrNoHealthyEndpoints is returned when a balancer has nothing to route to.
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints available")
	// ErrNotFound is returned for lookups of unknown ids.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError reports invalid constructor or setter arguments.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid %s configuration: %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError builds a ConfigurationError from a message.
func NewConfigurationError(component, format string, args ...any) error {
	return &ConfigurationError{Component: component, Err: fmt.Errorf(format, args...)}
}

// OperationalError reports a runtime refusal such as an open circuit.
type OperationalError struct {
	Op  string
	ID  string
	Err error
}

func (e *OperationalError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *OperationalError) Unwrap() error { return e.Err }

// NotFound returns the error used by registry lookups.
func NotFound(kind, id string) error {
	return &OperationalError{
		Op:  "lookup",
		ID:  id,
		Err: fmt.Errorf("%s not found for id %s: %w", kind, id, ErrNotFound),
	}
}

// IntegrationError wraps failures of external side effects (webhooks, filesystem).
type IntegrationError struct {
	Target string
	Err    error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration with %s failed: %v", e.Target, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsOperational(err error) bool {
	var target *OperationalError
	return errors.As(err, &target)
}

func IsIntegration(err error) bool {
	var target *IntegrationError
	return errors.As(err, &target)
}
