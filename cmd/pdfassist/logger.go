// Copyright 2025 Kadir Pekel
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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/pdfassist/pkg/config"
	"github.com/kadirpekel/pdfassist/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

// logSettings records which logger fields came from a flag or the
// environment, so config file values only fill the rest.
type logSettings struct {
	level, file, format string
	fromCLI             [3]bool
}

var current logSettings

// pick returns the first non-empty value and whether one was found.
func pick(values ...string) (string, bool) {
	for _, v := range values {
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// initLoggerFromCLI installs the logger from flags and environment.
// Priority: CLI flags > env vars > defaults
func initLoggerFromCLI(cliLevel, cliFile, cliFormat string) (func(), error) {
	var s logSettings
	s.level, s.fromCLI[0] = pick(cliLevel, os.Getenv(LogLevelEnvVar))
	s.file, s.fromCLI[1] = pick(cliFile, os.Getenv(LogFileEnvVar))
	s.format, s.fromCLI[2] = pick(cliFormat, os.Getenv(LogFormatEnvVar))
	current = s
	return apply(s)
}

// applyLoggerConfig re-installs the logger with config file values for
// every field not set by a flag or the environment.
func applyLoggerConfig(cfg config.LoggerConfig) (func(), error) {
	s := current
	if !s.fromCLI[0] {
		s.level = cfg.Level
	}
	if !s.fromCLI[1] {
		s.file = cfg.File
	}
	if !s.fromCLI[2] {
		s.format = cfg.Format
	}
	if s == current {
		return func() {}, nil
	}
	current = s
	return apply(s)
}

func apply(s logSettings) (func(), error) {
	level, err := logger.ParseLevel(s.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format := s.format
	if format == "" {
		format = logger.FormatSimple
	}

	var output io.Writer = os.Stderr
	cleanup := func() {}
	if s.file != "" {
		file, closeFn, err := logger.OpenLogFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = file, closeFn
	}

	logger.Init(level, output, format)
	return cleanup, nil
}
