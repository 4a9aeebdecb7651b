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

package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
)

// ThresholdSetter receives reloaded resource thresholds.
type ThresholdSetter interface {
	SetThresholds(resource.Thresholds) error
}

// Watch reloads path whenever it changes and pushes the monitor thresholds
// into target. Invalid files are logged and skipped. The watch ends with ctx.
func Watch(ctx context.Context, path string, target ThresholdSetter) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return err
	}

	safego.Go(func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				reload(abs, target)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error: %v", err)
			}
		}
	})
	return nil
}

func reload(path string, target ThresholdSetter) {
	f, err := Load(path)
	if err != nil {
		log.Warn("ignoring config reload of %s: %v", path, err)
		return
	}
	if err := target.SetThresholds(f.Monitor.Thresholds); err != nil {
		log.Warn("rejected reloaded thresholds: %v", err)
		return
	}
	log.Info("reloaded thresholds from %s", path)
}
