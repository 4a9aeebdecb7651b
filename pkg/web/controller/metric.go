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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
	"github.com/alibaba/opensandbox/adaptd/pkg/web/model"
)

const (
	defaultWatchInterval = time.Second
	minWatchInterval     = 100 * time.Millisecond
	watchWriteTimeout    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// MetricController handles Prometheus scrapes and the resource watch stream
type MetricController struct {
	*basicController
}

func NewMetricController(ctx *gin.Context) *MetricController {
	return &MetricController{basicController: newBasicController(ctx)}
}

// GetMetrics serves the monitor registry in Prometheus text format
func (c *MetricController) GetMetrics() {
	if _, err := monitor.GetResourceUsage(c.ctx.Request.Context()); err != nil {
		log.Warn("refreshing resource gauges before scrape: %v", err)
	}
	promhttp.HandlerFor(monitor.Registry(), promhttp.HandlerOpts{}).ServeHTTP(c.ctx.Writer, c.ctx.Request)
}

// WatchResources streams resource frames over a websocket until the client
// goes away. The period comes from ?interval= and defaults to one second.
func (c *MetricController) WatchResources() {
	interval := defaultWatchInterval
	if raw := c.ctx.Query("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < minWatchInterval {
			c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, "interval must be a duration of at least 100ms")
			return
		}
		interval = d
	}

	conn, err := upgrader.Upgrade(c.ctx.Writer, c.ctx.Request, nil)
	if err != nil {
		log.Error("WatchResources upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed.
	closed := make(chan struct{})
	safego.Go(func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	reqCtx := c.ctx.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			frame := model.NewResourceFrame()
			usage, err := monitor.GetResourceUsage(reqCtx)
			if err != nil {
				frame.Error = err.Error()
			} else {
				frame.Usage = &usage
				frame.Alerts = monitor.CheckThresholds(usage)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				log.Error("WatchResources write error: %v", err)
				return
			}
		}
	}
}
