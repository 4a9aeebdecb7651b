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
	"math"
	"sort"
)

const (
	minLearningSamples   = 2
	effectiveImprovement = 0.05
	minPredictionSamples = 3
	similarChangeBand    = 0.2
	minChangeTolerance   = 0.01
)

var defaultPrediction = ImpactPrediction{
	EstimatedImprovement: 0.05,
	Confidence:           0.3,
	RiskLevel:            RiskMedium,
}

// GetLearnings lists optimization types that have paid off: at least two
// results with a mean actual improvement above 5%.
func (e *Engine) GetLearnings() []Learning {
	var learnings []Learning
	for optType, results := range e.historyByType() {
		if len(results) < minLearningSamples {
			continue
		}

		var sum float64
		positive := 0
		l := Learning{Type: optType, Samples: len(results)}
		for _, r := range results {
			sum += r.ActualImprovement
			if r.ActualImprovement > 0 {
				positive++
			}
			if r.Timestamp.After(l.LastApplied) {
				l.LastApplied = r.Timestamp
			}
		}
		l.AverageImprovement = sum / float64(len(results))
		if l.AverageImprovement <= effectiveImprovement {
			continue
		}
		l.SuccessRate = float64(positive) / float64(len(results))
		learnings = append(learnings, l)
	}

	sort.Slice(learnings, func(i, j int) bool {
		if learnings[i].AverageImprovement != learnings[j].AverageImprovement {
			return learnings[i].AverageImprovement > learnings[j].AverageImprovement
		}
		return learnings[i].Type < learnings[j].Type
	})
	return learnings
}

// PredictOptimizationImpact estimates the improvement of a change from past
// changes of the same type whose magnitude is within 20% of it, or within
// 0.01 for changes close to zero.
func (e *Engine) PredictOptimizationImpact(optType string, change float64) ImpactPrediction {
	e.historyMu.RLock()
	var results []OptimizationResult
	if h, ok := e.history[optType]; ok {
		results = h.Items()
	}
	e.historyMu.RUnlock()

	if len(results) < minPredictionSamples {
		return defaultPrediction
	}

	tolerance := max(similarChangeBand*math.Abs(change), minChangeTolerance)
	var similar []float64
	for _, r := range results {
		if math.Abs(r.Change-change) <= tolerance {
			similar = append(similar, r.ActualImprovement)
		}
	}
	if len(similar) == 0 {
		return defaultPrediction
	}

	var sum float64
	for _, v := range similar {
		sum += v
	}
	mean := sum / float64(len(similar))

	var variance float64
	for _, v := range similar {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(similar))

	risk := RiskLow
	switch {
	case variance > 0.1:
		risk = RiskHigh
	case variance > 0.05:
		risk = RiskMedium
	}

	return ImpactPrediction{
		EstimatedImprovement: mean,
		Confidence:           math.Min(math.Max(1-variance, 0.1), 0.9),
		RiskLevel:            risk,
		SimilarSamples:       len(similar),
	}
}
