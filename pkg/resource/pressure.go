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
	"context"
	"runtime"
	"runtime/debug"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
)

// OnMemoryPressure registers a callback run by HandleMemoryPressure.
func (m *Monitor) OnMemoryPressure(cb PressureCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// MemoryPressure returns the used fraction of the memory budget: process RSS
// over MaxMemorySize when a budget is configured, system memory otherwise.
func (m *Monitor) MemoryPressure(usage ResourceUsage) float64 {
	if m.cfg.MaxMemorySize > 0 {
		return float64(usage.Memory.Process) / float64(m.cfg.MaxMemorySize)
	}
	return usage.Memory.Percentage / 100
}

func (m *Monitor) CheckMemoryPressure(usage ResourceUsage) bool {
	return m.MemoryPressure(usage) >= m.cfg.MemoryPressureThreshold
}

// HandleMemoryPressure frees memory: GC when enabled, every registered
// callback once, then a forced cleanup pass when auto cleanup is on. A
// panicking callback is logged and does not stop the others.
func (m *Monitor) HandleMemoryPressure(ctx context.Context, usage ResourceUsage) {
	log.Warn("memory pressure detected: %.1f%% of budget", m.MemoryPressure(usage)*100)

	if m.cfg.EnableGC {
		runtime.GC()
		debug.FreeOSMemory()
	}

	m.callbacksMu.RLock()
	callbacks := append([]PressureCallback(nil), m.callbacks...)
	m.callbacksMu.RUnlock()

	for i, cb := range callbacks {
		if !safego.Run(func() { cb(ctx, usage) }) {
			log.Error("memory pressure callback %d failed", i)
		}
	}

	if m.cfg.EnableAutoCleanup {
		result := m.ExecuteCleanup(ctx, false)
		log.Info("pressure cleanup removed %d files, freed %d bytes", len(result.RemovedFiles), result.FreedSpace)
	}
}
