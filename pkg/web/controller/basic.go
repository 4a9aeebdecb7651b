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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/optimizer"
	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
	"github.com/alibaba/opensandbox/adaptd/pkg/web/model"
)

var (
	engine  *optimizer.Engine
	monitor *resource.Monitor
)

// InitControlPlane binds the controllers to the running engine and monitor.
func InitControlPlane(e *optimizer.Engine, m *resource.Monitor) {
	engine = e
	monitor = m
}

type basicController struct {
	ctx *gin.Context
}

func newBasicController(ctx *gin.Context) *basicController {
	return &basicController{ctx: ctx}
}

func (c *basicController) RespondError(status int, code model.ErrorCode, message ...string) {
	resp := model.ErrorResponse{
		Code:    code,
		Message: "",
	}
	if len(message) > 0 {
		resp.Message = message[0]
	}
	c.ctx.JSON(status, resp)
}

func (c *basicController) RespondSuccess(data any) {
	if data == nil {
		c.ctx.Status(http.StatusOK)
		return
	}
	c.ctx.JSON(http.StatusOK, data)
}

// RespondFailure maps the error taxonomy onto HTTP status codes.
func (c *basicController) RespondFailure(err error) {
	switch {
	case errdefs.IsConfiguration(err):
		c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, errdefs.ErrNotFound):
		c.RespondError(http.StatusNotFound, model.ErrorCodeNotFound, err.Error())
	case errors.Is(err, errdefs.ErrCircuitOpen), errors.Is(err, errdefs.ErrNoHealthyEndpoints):
		c.RespondError(http.StatusServiceUnavailable, model.ErrorCodeUnavailable, err.Error())
	default:
		c.RespondError(http.StatusInternalServerError, model.ErrorCodeRuntimeError, err.Error())
	}
}

func (c *basicController) QueryInt64(query string, defaultValue int64) int64 {
	val, err := strconv.ParseInt(query, 10, 64)
	if err != nil {
		return defaultValue
	}
	return val
}

func (c *basicController) QueryBool(query string, defaultValue bool) bool {
	val, err := strconv.ParseBool(query)
	if err != nil {
		return defaultValue
	}
	return val
}

func (c *basicController) bindJSON(target any) error {
	decoder := json.NewDecoder(c.ctx.Request.Body)
	return decoder.Decode(target)
}
