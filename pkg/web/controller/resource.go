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
)

// ResourceController exposes the resource monitor.
type ResourceController struct {
	*basicController
}

func NewResourceController(ctx *gin.Context) *ResourceController {
	return &ResourceController{basicController: newBasicController(ctx)}
}

// GetUsage takes a fresh sample without recording it.
func (c *ResourceController) GetUsage() {
	usage, err := monitor.GetResourceUsage(c.ctx.Request.Context())
	if err != nil {
		c.RespondFailure(err)
		return
	}
	c.RespondSuccess(usage)
}

func (c *ResourceController) GetHistory() {
	c.RespondSuccess(monitor.History(int(c.QueryInt64(c.ctx.Query("limit"), 0))))
}

func (c *ResourceController) GetTrends() {
	c.RespondSuccess(monitor.GetResourceTrends())
}

func (c *ResourceController) GetAlerts() {
	c.RespondSuccess(monitor.Alerts(int(c.QueryInt64(c.ctx.Query("limit"), 0))))
}

func (c *ResourceController) GetStatistics() {
	c.RespondSuccess(monitor.GetStatistics())
}

// ExportData returns the full monitor snapshot as a JSON document.
func (c *ResourceController) ExportData() {
	data, err := monitor.ExportData()
	if err != nil {
		c.RespondFailure(err)
		return
	}
	c.ctx.Header("Content-Disposition", `attachment; filename="resources.json"`)
	c.ctx.Data(http.StatusOK, "application/json", data)
}

// ExecuteCleanup runs one cleanup pass; ?dryRun=true only reports candidates.
func (c *ResourceController) ExecuteCleanup() {
	dryRun := c.QueryBool(c.ctx.Query("dryRun"), false)
	c.RespondSuccess(monitor.ExecuteCleanup(c.ctx.Request.Context(), dryRun))
}

func (c *ResourceController) ListCleanupRules() {
	c.RespondSuccess(monitor.CleanupRules())
}
