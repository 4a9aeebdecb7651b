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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/alibaba/opensandbox/adaptd/pkg/config"
	"github.com/alibaba/opensandbox/adaptd/pkg/flag"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
	_ "github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
	"github.com/alibaba/opensandbox/adaptd/pkg/web"
	"github.com/alibaba/opensandbox/adaptd/pkg/web/controller"
)

// main initializes and starts the adaptd server.
func main() {
	flag.InitFlags()

	log.SetLevel(flag.ServerLogLevel)

	if err := run(); err != nil {
		log.Error("adaptd exited: %v", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := config.Load(flag.ConfigPath)
	if err != nil {
		return err
	}
	if flag.CleanupDir != "" {
		file.Monitor.CleanupRules = append(file.Monitor.CleanupRules, resource.DefaultCleanupRules(flag.CleanupDir)...)
	}

	optimizer, monitor, err := config.Build(file)
	if err != nil {
		return err
	}
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()
	if err := optimizer.Start(); err != nil {
		return err
	}
	defer optimizer.Stop()

	if flag.ConfigPath != "" && flag.WatchConfig {
		if err := config.Watch(ctx, flag.ConfigPath, monitor); err != nil {
			log.Warn("config hot reload disabled: %v", err)
		}
	}

	controller.InitControlPlane(optimizer, monitor)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", flag.ServerPort),
		Handler: web.NewRouter(flag.ServerAccessToken),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("adaptd listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start adaptd server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down, draining for up to %s", flag.ApiGracefulShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), flag.ApiGracefulShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
