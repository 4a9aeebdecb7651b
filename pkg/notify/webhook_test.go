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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
)

var fastBackoff = wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 1}

func TestWebhookPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithBackoff(fastBackoff))
	err := hook.Notify(context.Background(), map[string]any{"type": "optimization_applied"})
	require.NoError(t, err)
	assert.Equal(t, "optimization_applied", got["type"])
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithBackoff(fastBackoff))
	require.NoError(t, hook.Notify(context.Background(), "payload"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithBackoff(fastBackoff))
	err := hook.Notify(context.Background(), "payload")
	require.Error(t, err)
	assert.True(t, errdefs.IsIntegration(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL,
		WithBackoff(wait.Backoff{Steps: 1, Duration: time.Millisecond}),
		WithBreaker(2, time.Minute),
	)
	for i := 0; i < 2; i++ {
		assert.Error(t, hook.Notify(context.Background(), i))
	}
	err := hook.Notify(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithRateLimit(rate.Every(time.Hour), 1))
	require.NoError(t, hook.Notify(context.Background(), 1))
	err := hook.Notify(context.Background(), 2)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDispatchDeliversInBackground(t *testing.T) {
	delivered := make(chan any, 1)
	Dispatch(NotifierFunc(func(_ context.Context, payload any) error {
		delivered <- payload
		return errors.New("ignored")
	}), "test", "hello")

	select {
	case got := <-delivered:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatalf("notification was not dispatched")
	}
}
