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

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
	"github.com/alibaba/opensandbox/adaptd/pkg/log"
)

// ErrRateLimited is returned when a webhook send is dropped by the limiter.
var ErrRateLimited = errors.New("webhook rate limit exceeded")

var defaultWebhookBackoff = wait.Backoff{
	Steps:    3,
	Duration: 200 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
}

// StatusError is returned for non-2xx webhook responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", e.Code)
}

// Webhook POSTs JSON payloads to a URL. Deliveries are retried with backoff,
// throttled by a token bucket, and short-circuited by a breaker once the
// receiver keeps failing.
type Webhook struct {
	url     string
	client  *http.Client
	backoff wait.Backoff
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type WebhookOption func(*webhookOptions)

type webhookOptions struct {
	client        *http.Client
	backoff       wait.Backoff
	limit         rate.Limit
	burst         int
	tripAfter     uint32
	breakerPeriod time.Duration
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(o *webhookOptions) { o.client = c }
}

// WithBackoff replaces the retry schedule; Steps is the total number of attempts.
func WithBackoff(b wait.Backoff) WebhookOption {
	return func(o *webhookOptions) { o.backoff = b }
}

// WithRateLimit caps deliveries per second.
func WithRateLimit(limit rate.Limit, burst int) WebhookOption {
	return func(o *webhookOptions) {
		o.limit = limit
		o.burst = burst
	}
}

// WithBreaker opens the delivery breaker after n consecutive failed
// deliveries and keeps it open for period.
func WithBreaker(n uint32, period time.Duration) WebhookOption {
	return func(o *webhookOptions) {
		o.tripAfter = n
		o.breakerPeriod = period
	}
}

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	o := &webhookOptions{
		client:        &http.Client{Timeout: 10 * time.Second},
		backoff:       defaultWebhookBackoff,
		limit:         rate.Limit(5),
		burst:         10,
		tripAfter:     5,
		breakerPeriod: time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}

	tripAfter := o.tripAfter
	return &Webhook{
		url:     url,
		client:  o.client,
		backoff: o.backoff,
		limiter: rate.NewLimiter(o.limit, o.burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook " + url,
			MaxRequests: 1,
			Timeout:     o.breakerPeriod,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfter
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("%s breaker moved from %s to %s", name, from, to)
			},
		}),
	}
}

// URL returns the delivery target.
func (w *Webhook) URL() string { return w.url }

// Notify delivers payload. Every failure is returned as an IntegrationError.
func (w *Webhook) Notify(ctx context.Context, payload any) error {
	if !w.limiter.Allow() {
		return &errdefs.IntegrationError{Target: w.url, Err: ErrRateLimited}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &errdefs.IntegrationError{Target: w.url, Err: fmt.Errorf("encode payload: %w", err)}
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		return nil, retry.OnError(w.backoff, retriable(ctx), func() error {
			return w.post(ctx, body)
		})
	})
	if err != nil {
		return &errdefs.IntegrationError{Target: w.url, Err: err}
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func retriable(ctx context.Context) func(error) bool {
	return func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
		}
		return true
	}
}
