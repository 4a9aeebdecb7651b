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

package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushEvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		assert.False(t, r.Push(i))
	}
	assert.True(t, r.Push(4))
	assert.Equal(t, []int{2, 3, 4}, r.Items())
	assert.Equal(t, 3, r.Len())

	newest, ok := r.Newest()
	assert.True(t, ok)
	assert.Equal(t, 4, newest)
}

func TestLast(t *testing.T) {
	r := New[int](5)
	for i := 0; i < 7; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{4, 5, 6}, r.Last(3))
	assert.Equal(t, []int{2, 3, 4, 5, 6}, r.Last(10))
	assert.Empty(t, r.Last(0))
}

func TestDropWhile(t *testing.T) {
	r := New[int](4)
	for _, v := range []int{1, 2, 5, 6, 7} {
		r.Push(v)
	}
	dropped := r.DropWhile(func(v int) bool { return v < 6 })
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []int{6, 7}, r.Items())

	r.Push(8)
	r.Push(9)
	r.Push(10)
	assert.Equal(t, []int{7, 8, 9, 10}, r.Items())
}

func TestEmptyRing(t *testing.T) {
	r := New[string](0)
	assert.Equal(t, 1, r.Cap())
	_, ok := r.Newest()
	assert.False(t, ok)
	assert.Empty(t, r.Items())

	r.Push("a")
	r.Clear()
	assert.Equal(t, 0, r.Len())
}
