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
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
)

type Config struct {
	AdaptationInterval        time.Duration `json:"adaptationInterval" yaml:"adaptationInterval" validate:"min=1s"`
	LearningRate              float64       `json:"learningRate" yaml:"learningRate" validate:"min=0.01,max=1"`
	EnableAutoOptimization    bool          `json:"enableAutoOptimization" yaml:"enableAutoOptimization"`
	AutoOptimizationThreshold float64       `json:"autoOptimizationThreshold" yaml:"autoOptimizationThreshold" validate:"min=0,max=1"`
	// MaxAutomaticChange is a fraction; suggestions carry percentages.
	MaxAutomaticChange float64 `json:"maxAutomaticChange" yaml:"maxAutomaticChange" validate:"min=0,max=1"`
	// RollbackOnFailure is advertised to callers of ApplyOptimization; the
	// engine itself never rolls back.
	RollbackOnFailure     bool          `json:"rollbackOnFailure" yaml:"rollbackOnFailure"`
	WebhookURL            string        `json:"webhookUrl,omitempty" yaml:"webhookUrl" validate:"omitempty,url"`
	NotifyOnOptimization  bool          `json:"notifyOnOptimization" yaml:"notifyOnOptimization"`
	MetricsWindow         time.Duration `json:"metricsWindow" yaml:"metricsWindow" validate:"min=1m"`
	MaxMetricsPerEndpoint int           `json:"maxMetricsPerEndpoint" yaml:"maxMetricsPerEndpoint" validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		AdaptationInterval:        30 * time.Second,
		LearningRate:              0.1,
		EnableAutoOptimization:    true,
		AutoOptimizationThreshold: 0.6,
		MaxAutomaticChange:        0.2,
		RollbackOnFailure:         true,
		MetricsWindow:             24 * time.Hour,
		MaxMetricsPerEndpoint:     1000,
	}
}

func (c Config) Validate() error {
	return errdefs.Validate("optimizer", c)
}
