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

package optimizer

import (
	"sort"
	"sync"

	"github.com/alibaba/opensandbox/adaptd/pkg/errdefs"
)

// registry maps ids to components of one kind. Each engine owns its own.
type registry[T any] struct {
	kind  string
	mu    sync.RWMutex
	items map[string]T
}

func newRegistry[T any](kind string) *registry[T] {
	return &registry[T]{kind: kind, items: make(map[string]T)}
}

// put stores v and reports whether it replaced an existing entry.
func (r *registry[T]) put(id string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.items[id]
	r.items[id] = v
	return existed
}

func (r *registry[T]) get(id string) (T, error) {
	v, ok := r.lookup(id)
	if !ok {
		return v, errdefs.NotFound(r.kind, id)
	}
	return v, nil
}

func (r *registry[T]) lookup(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	return v, ok
}

func (r *registry[T]) ids() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// each calls fn in id order without holding the lock.
func (r *registry[T]) each(fn func(id string, v T)) {
	for _, id := range r.ids() {
		if v, ok := r.lookup(id); ok {
			fn(id, v)
		}
	}
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
