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

package resource

import (
	"errors"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
)

// ErrThresholdOrder is returned when a warning threshold is not below its critical one.
var ErrThresholdOrder = errors.New("Warning threshold cannot be greater than critical threshold") //nolint:staticcheck

type ThresholdPair struct {
	Warning  float64 `json:"warning" yaml:"warning" validate:"min=0,max=100"`
	Critical float64 `json:"critical" yaml:"critical" validate:"min=0,max=100"`
}

// Thresholds are usage percentages at which alerts fire.
type Thresholds struct {
	Memory ThresholdPair `json:"memory" yaml:"memory"`
	CPU    ThresholdPair `json:"cpu" yaml:"cpu"`
	Disk   ThresholdPair `json:"disk" yaml:"disk"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Memory: ThresholdPair{Warning: 80, Critical: 90},
		CPU:    ThresholdPair{Warning: 80, Critical: 95},
		Disk:   ThresholdPair{Warning: 85, Critical: 95},
	}
}

// Validate checks ranges and that every warning threshold sits below its critical one.
func (t Thresholds) Validate() error {
	if err := errdefs.Validate("resource thresholds", t); err != nil {
		return err
	}
	for _, pair := range []ThresholdPair{t.Memory, t.CPU, t.Disk} {
		if pair.Warning >= pair.Critical {
			return &errdefs.ConfigurationError{Component: "resource thresholds", Err: ErrThresholdOrder}
		}
	}
	return nil
}

type Config struct {
	MonitoringInterval time.Duration `json:"monitoringInterval" yaml:"monitoringInterval" validate:"min=1s"`
	CleanupInterval    time.Duration `json:"cleanupInterval" yaml:"cleanupInterval" validate:"min=1s"`
	EnableAutoCleanup  bool          `json:"enableAutoCleanup" yaml:"enableAutoCleanup"`
	EnableGC           bool          `json:"enableGC" yaml:"enableGC"`
	MaxHistoryRecords  int           `json:"maxHistoryRecords" yaml:"maxHistoryRecords" validate:"min=1"`
	// MemoryPressureThreshold is a fraction of the memory budget.
	MemoryPressureThreshold float64 `json:"memoryPressureThreshold" yaml:"memoryPressureThreshold" validate:"gt=0,max=1"`
	// MaxMemorySize, when set, is the process memory budget in bytes. Otherwise
	// pressure is measured against system memory.
	MaxMemorySize uint64        `json:"maxMemorySize" yaml:"maxMemorySize"`
	DiskPath      string        `json:"diskPath" yaml:"diskPath" validate:"required"`
	WebhookURL    string        `json:"webhookUrl,omitempty" yaml:"webhookUrl" validate:"omitempty,url"`
	Thresholds    Thresholds    `json:"thresholds" yaml:"thresholds"`
	CleanupRules  []CleanupRule `json:"cleanupRules,omitempty" yaml:"cleanupRules" validate:"dive"`
}

func DefaultConfig() Config {
	return Config{
		MonitoringInterval:      30 * time.Second,
		CleanupInterval:         time.Hour,
		EnableAutoCleanup:       true,
		EnableGC:                true,
		MaxHistoryRecords:       1000,
		MemoryPressureThreshold: 0.85,
		DiskPath:                "/",
		Thresholds:              DefaultThresholds(),
	}
}

func (c Config) Validate() error {
	if err := errdefs.Validate("resource monitor", c); err != nil {
		return err
	}
	return c.Thresholds.Validate()
}
