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

import (
	"flag"
	stdlog "log"
	"os"
	"time"

	"github.com/alibaba/opensandbox/adaptd/pkg/log"
)

const (
	configPathEnv              = "ADAPTD_CONFIG"
	accessTokenEnv             = "ADAPTD_ACCESS_TOKEN"
	cleanupDirEnv              = "ADAPTD_CLEANUP_DIR"
	gracefulShutdownTimeoutEnv = "ADAPTD_API_GRACE_SHUTDOWN"
)

// InitFlags registers CLI flags and env overrides.
func InitFlags() {
	InitFlagSet(flag.CommandLine, os.Args[1:])
}

// InitFlagSet is InitFlags over an explicit flag set and arguments.
func InitFlagSet(fs *flag.FlagSet, args []string) {
	// Set default values
	ServerPort = 44780
	ServerLogLevel = 6
	ServerAccessToken = ""
	ConfigPath = ""
	CleanupDir = ""
	WatchConfig = true
	ApiGracefulShutdownTimeout = time.Second * 3

	// First, set default values from environment variables
	if v := os.Getenv(configPathEnv); v != "" {
		ConfigPath = v
	}
	if v := os.Getenv(accessTokenEnv); v != "" {
		ServerAccessToken = v
	}
	if v := os.Getenv(cleanupDirEnv); v != "" {
		CleanupDir = v
	}
	if v := os.Getenv(gracefulShutdownTimeoutEnv); v != "" {
		duration, err := time.ParseDuration(v)
		if err != nil {
			stdlog.Panicf("Failed to parse graceful shutdown timeout from env: %v", err)
		}
		ApiGracefulShutdownTimeout = duration
	}

	// Then define flags with current values as defaults
	fs.IntVar(&ServerPort, "port", ServerPort, "Server listening port (default: 44780)")
	fs.IntVar(&ServerLogLevel, "log-level", ServerLogLevel, "Server log level (0=LevelEmergency, 1=LevelAlert, 2=LevelCritical, 3=LevelError, 4=LevelWarning, 5=LevelNotice, 6=LevelInformational, 7=LevelDebug, default: 6)")
	fs.StringVar(&ServerAccessToken, "access-token", ServerAccessToken, "Server access token for API authentication")
	fs.StringVar(&ConfigPath, "config", ConfigPath, "Path to the YAML configuration file")
	fs.StringVar(&CleanupDir, "cleanup-dir", CleanupDir, "Directory covered by the default cleanup rules")
	fs.BoolVar(&WatchConfig, "watch-config", WatchConfig, "Reload resource thresholds when the configuration file changes")
	fs.DurationVar(&ApiGracefulShutdownTimeout, "graceful-shutdown-timeout", ApiGracefulShutdownTimeout, "API graceful shutdown timeout duration (default: 3s)")

	// Parse flags - these will override environment variables if provided
	if err := fs.Parse(args); err != nil {
		stdlog.Panicf("Failed to parse flags: %v", err)
	}

	// Log final values
	log.Info("adaptd config file is: %q", ConfigPath)
	log.Info("adaptd cleanup dir is: %q", CleanupDir)
}
