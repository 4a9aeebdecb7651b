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

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/web/controller"
	"github.com/alibaba/opensandbox/adaptd/pkg/web/model"
)

// NewRouter builds a Gin engine with all adaptd routes.
func NewRouter(accessToken string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Probes and scrapes stay outside the token check.
	r.GET("/ping", controller.PingHandler)
	r.GET("/health", withHealth(func(c *controller.HealthController) { c.GetHealth() }))
	r.GET("/metrics", withMetric(func(c *controller.MetricController) { c.GetMetrics() }))

	api := r.Group("", logMiddleware(), accessTokenMiddleware(accessToken))

	resources := api.Group("/resources")
	{
		resources.GET("", withResource(func(c *controller.ResourceController) { c.GetUsage() }))
		resources.GET("/history", withResource(func(c *controller.ResourceController) { c.GetHistory() }))
		resources.GET("/trends", withResource(func(c *controller.ResourceController) { c.GetTrends() }))
		resources.GET("/alerts", withResource(func(c *controller.ResourceController) { c.GetAlerts() }))
		resources.GET("/statistics", withResource(func(c *controller.ResourceController) { c.GetStatistics() }))
		resources.GET("/export", withResource(func(c *controller.ResourceController) { c.ExportData() }))
		resources.GET("/cleanup/rules", withResource(func(c *controller.ResourceController) { c.ListCleanupRules() }))
		resources.POST("/cleanup", withResource(func(c *controller.ResourceController) { c.ExecuteCleanup() }))
		resources.GET("/watch", withMetric(func(c *controller.MetricController) { c.WatchResources() }))
	}

	optimizer := api.Group("/optimizer")
	{
		optimizer.GET("/status", withOptimizer(func(c *controller.OptimizerController) { c.GetStatus() }))
		optimizer.GET("/suggestions", withOptimizer(func(c *controller.OptimizerController) { c.GetSuggestions() }))
		optimizer.GET("/learnings", withOptimizer(func(c *controller.OptimizerController) { c.GetLearnings() }))
		optimizer.GET("/predict", withOptimizer(func(c *controller.OptimizerController) { c.PredictImpact() }))
		optimizer.POST("/apply", withOptimizer(func(c *controller.OptimizerController) { c.ApplyOptimization() }))
		optimizer.GET("/history", withOptimizer(func(c *controller.OptimizerController) { c.GetHistory() }))
		optimizer.POST("/cycle", withOptimizer(func(c *controller.OptimizerController) { c.RunCycle() }))
	}

	breakers := api.Group("/circuit-breakers")
	{
		breakers.GET("", withOptimizer(func(c *controller.OptimizerController) { c.ListCircuitBreakers() }))
		breakers.GET("/:id", withOptimizer(func(c *controller.OptimizerController) { c.GetCircuitBreaker() }))
	}

	api.POST("/endpoints/:id/results", withOptimizer(func(c *controller.OptimizerController) { c.RecordEndpointResult() }))
	api.GET("/services/:service/endpoint", withOptimizer(func(c *controller.OptimizerController) { c.SelectEndpoint() }))

	return r
}

func withHealth(fn func(*controller.HealthController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewHealthController(ctx))
	}
}

func withMetric(fn func(*controller.MetricController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewMetricController(ctx))
	}
}

func withResource(fn func(*controller.ResourceController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewResourceController(ctx))
	}
}

func withOptimizer(fn func(*controller.OptimizerController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewOptimizerController(ctx))
	}
}

func accessTokenMiddleware(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" {
			ctx.Next()
			return
		}

		requestedToken := ctx.GetHeader(model.ApiAccessTokenHeader)
		if requestedToken == "" || requestedToken != token {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				Code:    model.ErrorCodeInvalidRequest,
				Message: "Unauthorized: invalid or missing header " + model.ApiAccessTokenHeader,
			})
			return
		}

		ctx.Next()
	}
}

func logMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		log.Info("Requested: %v - %v", ctx.Request.Method, ctx.Request.URL.String())
		ctx.Next()
	}
}
