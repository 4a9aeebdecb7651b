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

package model

import (
	"github.com/alibaba/opensandbox/adaptd/pkg/health"
	"github.com/alibaba/opensandbox/adaptd/pkg/optimizer"
	"github.com/alibaba/opensandbox/adaptd/pkg/resilience"
)

// ApplyOptimizationRequest asks the engine to apply one optimization.
type ApplyOptimizationRequest struct {
	Optimization optimizer.Optimization `json:"optimization"`
	Automatic    bool                   `json:"automatic"`
}

// EndpointResultRequest reports the outcome of one call to an endpoint.
type EndpointResultRequest struct {
	Success        bool  `json:"success"`
	ResponseTimeMs int64 `json:"responseTimeMs"`
}

type OptimizerStatus struct {
	Health     health.Report        `json:"health"`
	Statistics optimizer.Statistics `json:"statistics"`
}

type CircuitBreakerStatus struct {
	ID     string                          `json:"id"`
	State  resilience.CircuitBreakerState  `json:"state"`
	Config resilience.CircuitBreakerConfig `json:"config"`
}

type SelectedEndpoint struct {
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
}
