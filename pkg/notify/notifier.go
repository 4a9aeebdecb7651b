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

// Package notify delivers best-effort notifications. Components receive a
// Notifier so their core logic stays testable without network I/O.
package notify

import (
	"context"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
	"github.com/alibaba/opensandbox/adaptd/pkg/util/safego"
)

// Notifier delivers a JSON-serialisable payload somewhere.
type Notifier interface {
	Notify(ctx context.Context, payload any) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, payload any) error

func (f NotifierFunc) Notify(ctx context.Context, payload any) error {
	return f(ctx, payload)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, any) error { return nil }

const defaultDispatchTimeout = 10 * time.Second

// Dispatch sends payload in the background. Failures are logged and never
// reach the caller.
func Dispatch(n Notifier, kind string, payload any) {
	if n == nil {
		return
	}
	if _, ok := n.(Nop); ok {
		return
	}
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultDispatchTimeout)
		defer cancel()

		if err := n.Notify(ctx, payload); err != nil {
			log.Warn("failed to deliver %s notification: %v", kind, err)
		}
	})
}
