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

package flag

import "time"

var (
	// ServerPort controls the HTTP listener port.
	ServerPort int

	// ServerLogLevel controls the server log verbosity.
	ServerLogLevel int

	// ServerAccessToken guards API entrypoints when set.
	ServerAccessToken string

	// ConfigPath points to the YAML configuration file. Empty means defaults.
	ConfigPath string

	// CleanupDir adds the default cleanup rules for this directory.
	CleanupDir string

	// WatchConfig reloads resource thresholds when the config file changes.
	WatchConfig bool

	// ApiGracefulShutdownTimeout bounds how long the server drains on exit.
	ApiGracefulShutdownTimeout time.Duration
)
