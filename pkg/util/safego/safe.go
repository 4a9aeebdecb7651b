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

package safego

import (
	"context"
	"net/http"
	"runtime"
	"time"

	runtimeutil "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/utils/clock"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
)

func init() {
	runtimeutil.ReallyCrash = false
	runtimeutil.PanicHandlers = []func(context.Context, any){logPanic}
}

func logPanic(_ context.Context, r any) {
	if r == http.ErrAbortHandler { // nolint:errorlint
		return
	}

	const size = 64 << 10
	stacktrace := make([]byte, size)
	stacktrace = stacktrace[:runtime.Stack(stacktrace, false)]
	if _, ok := r.(string); ok {
		log.Error("Observed a panic: %s\n%s", r, stacktrace)
	} else {
		log.Error("Observed a panic: %#v (%v)\n%s", r, r, stacktrace)
	}
}

// Go runs f in a goroutine whose panics are logged instead of crashing the process.
func Go(f func()) {
	go func() {
		defer runtimeutil.HandleCrash()

		f()
	}()
}

// Run calls f and recovers a panic into a logged event, reporting whether f
// completed normally. Pipeline stages use it as their error boundary.
func Run(f func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(context.Background(), r)
			ok = false
		}
	}()
	f()
	return true
}

// Every starts a goroutine calling f on each tick of a ticker from clk until
// stopCh is closed. Unlike wait.Until the first call happens after one period.
// A panicking tick is logged and the loop keeps running.
func Every(clk clock.WithTicker, period time.Duration, stopCh <-chan struct{}, f func()) {
	Go(func() {
		ticker := clk.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C():
				select {
				case <-stopCh:
					return
				default:
				}
				Run(f)
			}
		}
	})
}
