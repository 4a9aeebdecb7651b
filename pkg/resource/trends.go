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

import "math"

const (
	trendWindow     = 20
	trendStableBand = 1.0
)

// GetResourceTrends compares the older and newer halves of the last twenty
// samples. With fewer samples every trend is stable.
func (m *Monitor) GetResourceTrends() Trends {
	samples := m.History(trendWindow)
	if len(samples) < trendWindow {
		stable := Trend{Direction: TrendStable}
		return Trends{Memory: stable, CPU: stable, Disk: stable}
	}

	older, recent := samples[:trendWindow/2], samples[trendWindow/2:]
	return Trends{
		Memory: trendOf(older, recent, func(u ResourceUsage) float64 { return u.Memory.Percentage }),
		CPU:    trendOf(older, recent, func(u ResourceUsage) float64 { return u.CPU.Percentage }),
		Disk:   trendOf(older, recent, func(u ResourceUsage) float64 { return u.Disk.Percentage }),
	}
}

func trendOf(older, recent []ResourceUsage, value func(ResourceUsage) float64) Trend {
	rate := mean(recent, value) - mean(older, value)

	direction := TrendStable
	switch {
	case math.Abs(rate) < trendStableBand:
	case rate > 0:
		direction = TrendIncreasing
	default:
		direction = TrendDecreasing
	}
	return Trend{
		Direction:  direction,
		Rate:       rate,
		Confidence: math.Min(math.Abs(rate)/10, 1),
	}
}

func mean(samples []ResourceUsage, value func(ResourceUsage) float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += value(s)
	}
	return sum / float64(len(samples))
}
