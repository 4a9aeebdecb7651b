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

package model

import (
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/resource"
)

// ResourceFrame is one message of the resource watch stream.
type ResourceFrame struct {
	Usage     *resource.ResourceUsage  `json:"usage,omitempty"`
	Alerts    []resource.ResourceAlert `json:"alerts,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Timestamp int64                    `json:"timestamp"`
}

func NewResourceFrame() *ResourceFrame {
	return &ResourceFrame{Timestamp: time.Now().UnixMilli()}
}
