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

package controller

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/adaptd/pkg/web/model"
)

// OptimizerController exposes the optimization engine and its registries.
type OptimizerController struct {
	*basicController
}

func NewOptimizerController(ctx *gin.Context) *OptimizerController {
	return &OptimizerController{basicController: newBasicController(ctx)}
}

func (c *OptimizerController) GetStatus() {
	c.RespondSuccess(model.OptimizerStatus{
		Health:     engine.GetHealthStatus(),
		Statistics: engine.GetStatistics(),
	})
}

func (c *OptimizerController) GetSuggestions() {
	c.RespondSuccess(engine.GetOptimizationSuggestions(c.ctx.Request.Context()))
}

func (c *OptimizerController) GetLearnings() {
	c.RespondSuccess(engine.GetLearnings())
}

// PredictImpact answers ?type=<optimization type>&change=<fraction>.
func (c *OptimizerController) PredictImpact() {
	optType := c.ctx.Query("type")
	if optType == "" {
		c.RespondError(http.StatusBadRequest, model.ErrorCodeMissingQuery, "missing query parameter 'type'")
		return
	}
	change, err := strconv.ParseFloat(c.ctx.Query("change"), 64)
	if err != nil {
		c.RespondError(
			http.StatusBadRequest,
			model.ErrorCodeMissingQuery,
			fmt.Sprintf("invalid query parameter 'change'. %v", err),
		)
		return
	}
	c.RespondSuccess(engine.PredictOptimizationImpact(optType, change))
}

func (c *OptimizerController) ApplyOptimization() {
	var request model.ApplyOptimizationRequest
	if err := c.bindJSON(&request); err != nil {
		c.RespondError(
			http.StatusBadRequest,
			model.ErrorCodeInvalidRequest,
			fmt.Sprintf("error parsing request, MAYBE invalid body format. %v", err),
		)
		return
	}

	result, err := engine.ApplyOptimization(c.ctx.Request.Context(), request.Optimization, request.Automatic)
	if err != nil {
		c.RespondFailure(err)
		return
	}
	c.RespondSuccess(result)
}

func (c *OptimizerController) GetHistory() {
	c.RespondSuccess(engine.OptimizationHistory(c.ctx.Query("type"), int(c.QueryInt64(c.ctx.Query("limit"), 0))))
}

// RunCycle triggers one analysis cycle outside the periodic loop.
func (c *OptimizerController) RunCycle() {
	c.RespondSuccess(engine.AnalyzeAndOptimize(c.ctx.Request.Context()))
}

func (c *OptimizerController) ListCircuitBreakers() {
	c.RespondSuccess(engine.CircuitBreakers())
}

func (c *OptimizerController) GetCircuitBreaker() {
	id := c.ctx.Param("id")
	cb, err := engine.GetCircuitBreaker(id)
	if err != nil {
		c.RespondFailure(err)
		return
	}
	c.RespondSuccess(model.CircuitBreakerStatus{
		ID:     cb.ID(),
		State:  cb.Snapshot(),
		Config: cb.Config(),
	})
}

// RecordEndpointResult feeds one call outcome into metrics, balancers and
// the endpoint's breaker.
func (c *OptimizerController) RecordEndpointResult() {
	id := c.ctx.Param("id")
	var request model.EndpointResultRequest
	if err := c.bindJSON(&request); err != nil {
		c.RespondError(
			http.StatusBadRequest,
			model.ErrorCodeInvalidRequest,
			fmt.Sprintf("error parsing request, MAYBE invalid body format. %v", err),
		)
		return
	}
	if request.ResponseTimeMs < 0 {
		c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, "responseTimeMs must not be negative")
		return
	}

	engine.RecordEndpointResult(id, request.Success, time.Duration(request.ResponseTimeMs)*time.Millisecond)
	c.ctx.Status(http.StatusNoContent)
	c.ctx.Writer.WriteHeaderNow()
}

// SelectEndpoint picks the next endpoint of a load-balanced service.
func (c *OptimizerController) SelectEndpoint() {
	service := c.ctx.Param("service")
	endpoint, err := engine.SelectEndpoint(service)
	if err != nil {
		c.RespondFailure(err)
		return
	}
	c.RespondSuccess(model.SelectedEndpoint{Service: service, Endpoint: endpoint})
}
