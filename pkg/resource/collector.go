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
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
)

// Collector reads one usage sample. The monitor stamps the timestamp.
type Collector interface {
	Collect(ctx context.Context) (ResourceUsage, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context) (ResourceUsage, error)

func (f CollectorFunc) Collect(ctx context.Context) (ResourceUsage, error) {
	return f(ctx)
}

// SystemCollector samples the host through gopsutil.
type SystemCollector struct {
	diskPath    string
	cpuInterval time.Duration
	proc        *process.Process
}

func NewSystemCollector(diskPath string) *SystemCollector {
	c := &SystemCollector{diskPath: diskPath, cpuInterval: 200 * time.Millisecond}

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec
	if err != nil {
		log.Warn("process metrics unavailable: %v", err)
	} else {
		c.proc = proc
	}
	return c
}

func (c *SystemCollector) Collect(ctx context.Context) (ResourceUsage, error) {
	var usage ResourceUsage

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("failed to get memory info: %w", err)
	}
	usage.Memory = MemoryUsage{
		Total:      vmStat.Total,
		Free:       vmStat.Available,
		Used:       vmStat.Used,
		Percentage: vmStat.UsedPercent,
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, c.cpuInterval, false)
	if err != nil {
		return usage, fmt.Errorf("failed to get CPU percent: %w", err)
	}
	if len(cpuPercent) > 0 {
		usage.CPU.Percentage = cpuPercent[0]
	}
	usage.CPU.Cores = runtime.NumCPU()

	// load average is missing on some platforms
	if avg, err := load.AvgWithContext(ctx); err == nil {
		usage.CPU.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	} else {
		usage.CPU.LoadAverage = []float64{0, 0, 0}
	}

	diskStat, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return usage, fmt.Errorf("failed to get disk usage of %s: %w", c.diskPath, err)
	}
	usage.Disk = DiskUsage{
		Total:      diskStat.Total,
		Free:       diskStat.Free,
		Used:       diskStat.Used,
		Percentage: diskStat.UsedPercent,
	}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfoWithContext(ctx); err == nil {
			usage.Memory.Process = info.RSS
		}
		if pct, err := c.proc.CPUPercentWithContext(ctx); err == nil {
			usage.CPU.ProcessPercentage = pct
		}
	}

	return usage, nil
}
