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
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/opensandbox/adaptd/pkg/optimizer"
	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
)

func newTestContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	ctx.Request = req
	return ctx, w
}

type stubCollector struct {
	mu    sync.Mutex
	usage resource.ResourceUsage
}

func (s *stubCollector) Collect(context.Context) (resource.ResourceUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, nil
}

func (s *stubCollector) set(memPct, cpuPct, diskPct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Memory.Percentage = memPct
	s.usage.Memory.Total = 16 << 30
	s.usage.CPU.Percentage = cpuPct
	s.usage.CPU.Cores = 4
	s.usage.Disk.Percentage = diskPct
}

// setupControlPlane wires a fresh engine and monitor into the controllers.
func setupControlPlane(t *testing.T) (*optimizer.Engine, *resource.Monitor, *stubCollector) {
	t.Helper()
	collector := &stubCollector{}
	collector.set(40, 30, 50)

	cfg := resource.DefaultConfig()
	cfg.EnableAutoCleanup = false
	cfg.EnableGC = false
	m, err := resource.NewMonitor(cfg, resource.WithCollector(collector))
	require.NoError(t, err)

	e, err := optimizer.New(optimizer.DefaultConfig(), optimizer.WithResourceProvider(m))
	require.NoError(t, err)

	InitControlPlane(e, m)
	t.Cleanup(func() {
		e.Stop()
		m.Stop()
	})
	return e, m, collector
}
