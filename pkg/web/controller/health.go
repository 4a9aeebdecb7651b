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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/adaptd/pkg/health"
)

// PingHandler answers liveness probes.
func PingHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, "pong")
}

type HealthController struct {
	*basicController
}

func NewHealthController(ctx *gin.Context) *HealthController {
	return &HealthController{basicController: newBasicController(ctx)}
}

// GetHealth aggregates component health. Any critical component turns the
// reply into 503.
func (c *HealthController) GetHealth() {
	summary := health.Aggregate(map[string]health.HealthCheckable{
		"optimizer":       engine,
		"resourceMonitor": monitor,
	})
	if summary.Status == health.StatusCritical {
		c.ctx.JSON(http.StatusServiceUnavailable, summary)
		return
	}
	c.RespondSuccess(summary)
}
