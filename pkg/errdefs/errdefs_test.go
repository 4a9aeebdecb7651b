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

package errdefs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Threshold int           `validate:"min=1,max=100"`
	Timeout   time.Duration `validate:"min=1s"`
	Mode      string        `validate:"oneof=fast slow"`
}

func TestValidateNamesViolatedConstraint(t *testing.T) {
	err := Validate("sample", sampleConfig{Threshold: 150, Timeout: time.Second, Mode: "fast"})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "invalid sample configuration")
	assert.Contains(t, err.Error(), "Threshold must be at most 100")
}

func TestValidateCollectsEveryField(t *testing.T) {
	err := Validate("sample", sampleConfig{Threshold: 0, Timeout: time.Millisecond, Mode: "medium"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Threshold must be at least 1")
	assert.Contains(t, err.Error(), "Timeout must be at least 1s")
	assert.Contains(t, err.Error(), "Mode must be one of [fast slow]")
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	assert.NoError(t, Validate("sample", sampleConfig{Threshold: 5, Timeout: time.Minute, Mode: "slow"}))
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("circuit breaker", "payments")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsOperational(err))
	assert.Contains(t, err.Error(), "circuit breaker not found for id payments")
}

func TestIntegrationErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("notify: %w", &IntegrationError{Target: "webhook", Err: cause})
	assert.True(t, IsIntegration(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsConfiguration(err))
}
