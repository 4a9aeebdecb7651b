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

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubComponent struct {
	status   Status
	starts   int
	stops    int
	startErr error
}

func (s *stubComponent) IsHealthy() bool { return s.status != StatusCritical }

func (s *stubComponent) GetHealthStatus() Report {
	return Report{Status: s.status, Message: string(s.status)}
}

func (s *stubComponent) Start() error {
	s.starts++
	return s.startErr
}

func (s *stubComponent) Stop() { s.stops++ }

type restartableComponent struct {
	stubComponent
	restarts int
}

func (r *restartableComponent) Restart(context.Context) error {
	r.restarts++
	return nil
}

func TestAggregatePicksWorstStatus(t *testing.T) {
	summary := Aggregate(map[string]HealthCheckable{
		"optimizer": &stubComponent{status: StatusHealthy},
		"monitor":   &stubComponent{status: StatusWarning},
	})
	assert.Equal(t, StatusWarning, summary.Status)
	assert.Equal(t, []string{"monitor"}, summary.Unhealthy)

	summary = Aggregate(map[string]HealthCheckable{
		"optimizer": &stubComponent{status: StatusCritical},
		"monitor":   &stubComponent{status: StatusWarning},
	})
	assert.Equal(t, StatusCritical, summary.Status)
	assert.Equal(t, []string{"monitor", "optimizer"}, summary.Unhealthy)
}

func TestAggregateEmptyIsHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, Aggregate(nil).Status)
}

func TestRestartFallsBackToStopStart(t *testing.T) {
	c := &stubComponent{status: StatusHealthy}
	assert.NoError(t, Restart(context.Background(), c))
	assert.Equal(t, 1, c.stops)
	assert.Equal(t, 1, c.starts)

	c.startErr = errors.New("port in use")
	assert.Error(t, Restart(context.Background(), c))
}

func TestRestartPrefersRestartable(t *testing.T) {
	c := &restartableComponent{stubComponent: stubComponent{status: StatusHealthy}}
	assert.NoError(t, Restart(context.Background(), c))
	assert.Equal(t, 1, c.restarts)
	assert.Equal(t, 0, c.stops)
}
