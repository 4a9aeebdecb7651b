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
	"context"
	"math"
	"sort"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/notify"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/ring"
)

// Applier carries out an optimization of one type.
type Applier interface {
	Apply(ctx context.Context, opt Optimization) error
}

type ApplierFunc func(ctx context.Context, opt Optimization) error

func (f ApplierFunc) Apply(ctx context.Context, opt Optimization) error { return f(ctx, opt) }

func validateOptimization(opt Optimization) error {
	switch {
	case opt.Type == "":
		return errdefs.NewConfigurationError("optimization", "type must be a non-empty string")
	case opt.Target == "":
		return errdefs.NewConfigurationError("optimization", "target must be a non-empty string")
	case math.IsNaN(opt.Change) || math.IsInf(opt.Change, 0):
		return errdefs.NewConfigurationError("optimization", "change must be a finite number (got %v)", opt.Change)
	case math.Abs(opt.Change) > 1:
		return errdefs.NewConfigurationError("optimization", "change must be within [-1, 1] (got %v)", opt.Change)
	case math.IsNaN(opt.ExpectedImprovement) || opt.ExpectedImprovement < 0 || opt.ExpectedImprovement > 1:
		return errdefs.NewConfigurationError("optimization", "expectedImprovement must be within [0, 1] (got %v)", opt.ExpectedImprovement)
	case opt.ActualImprovement != nil && (math.IsNaN(*opt.ActualImprovement) || math.IsInf(*opt.ActualImprovement, 0)):
		return errdefs.NewConfigurationError("optimization", "actualImprovement must be a finite number")
	}
	return nil
}

type optimizationNotification struct {
	Type         string             `json:"type"`
	Optimization OptimizationResult `json:"optimization"`
	Timestamp    int64              `json:"timestamp"`
}

// ApplyOptimization validates opt, runs the applier registered for its type
// and appends the result to the type's history. Nothing is recorded when
// validation or the applier fails. Types without an applier are recorded as
// advisory changes.
func (e *Engine) ApplyOptimization(ctx context.Context, opt Optimization, automatic bool) (OptimizationResult, error) {
	if err := validateOptimization(opt); err != nil {
		return OptimizationResult{}, err
	}

	if applier, ok := e.appliers[opt.Type]; ok {
		if err := applier.Apply(ctx, opt); err != nil {
			return OptimizationResult{}, err
		}
	}

	actual := 0.0
	if opt.ActualImprovement != nil {
		actual = *opt.ActualImprovement
	} else {
		predicted := e.PredictOptimizationImpact(opt.Type, opt.Change).EstimatedImprovement
		actual = predicted + e.cfg.LearningRate*(opt.ExpectedImprovement-predicted)
	}

	result := OptimizationResult{
		Type:                opt.Type,
		Target:              opt.Target,
		Change:              opt.Change,
		ExpectedImprovement: opt.ExpectedImprovement,
		ActualImprovement:   actual,
		Timestamp:           e.clock.Now(),
		Automatic:           automatic,
	}

	e.historyMu.Lock()
	h, ok := e.history[opt.Type]
	if !ok {
		h = ring.New[OptimizationResult](maxHistoryPerType)
		e.history[opt.Type] = h
	}
	h.Push(result)
	e.historyMu.Unlock()

	log.Info("applied %s optimization to %s: change=%+.2f expected=%.3f automatic=%t",
		opt.Type, opt.Target, opt.Change, opt.ExpectedImprovement, automatic)

	if e.cfg.NotifyOnOptimization && e.notifier != nil {
		notify.Dispatch(e.notifier, "optimization", optimizationNotification{
			Type:         "optimization_applied",
			Optimization: result,
			Timestamp:    result.Timestamp.UnixMilli(),
		})
	}
	return result, nil
}

// applyCircuitBreaker scales the target breaker's failure threshold by 1+Change.
func (e *Engine) applyCircuitBreaker(_ context.Context, opt Optimization) error {
	cb, err := e.breakers.get(opt.Target)
	if err != nil {
		return err
	}

	cfg := cb.Config()
	threshold := int(math.Round(float64(cfg.FailureThreshold) * (1 + opt.Change)))
	cfg.FailureThreshold = min(max(threshold, 1), 100)
	return cb.UpdateConfig(cfg)
}

// OptimizationHistory returns up to limit results, oldest first. An empty
// optType merges every type by timestamp.
func (e *Engine) OptimizationHistory(optType string, limit int) []OptimizationResult {
	e.historyMu.RLock()
	var out []OptimizationResult
	if optType != "" {
		if h, ok := e.history[optType]; ok {
			out = h.Items()
		}
	} else {
		for _, h := range e.history {
			out = append(out, h.Items()...)
		}
	}
	e.historyMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (e *Engine) historyByType() map[string][]OptimizationResult {
	e.historyMu.RLock()
	defer e.historyMu.RUnlock()
	out := make(map[string][]OptimizationResult, len(e.history))
	for t, h := range e.history {
		out[t] = h.Items()
	}
	return out
}

func since(now, t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return now.Sub(t)
}
