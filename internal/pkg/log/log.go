// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the engine's leveled logger. The engine has no fatal
// conditions; Debugf/Infof/Warnf record soft-failure and
// fixpoint-progress diagnostics, never findings -- those go through
// config.HandleResults instead.
package log

import (
	"log"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	logger  = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
	verbose = os.Getenv("TAINTFLOW_VERBOSE") == "1"
)

// SetVerbose enables or disables Debugf/Infof output at runtime.
func SetVerbose(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enabled
}

// SetOutput redirects the logger's output, primarily for tests.
func SetOutput(w *os.File) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func isVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...interface{}) {
	if isVerbose() {
		logger.Printf("[DEBUG] "+format, args...)
	}
}

// Infof logs an info message when verbose logging is enabled.
func Infof(format string, args ...interface{}) {
	if isVerbose() {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Warnf always logs a warning. The engine uses this for a fixpoint
// timeout, a signature l-value that cannot be resolved at a call site,
// a sink precondition that cannot be decided, and an unrecognized
// bySideEffect value in a rule file.
func Warnf(format string, args ...interface{}) {
	logger.Printf("[WARN] "+format, args...)
}

// Errorf always logs an error.
func Errorf(format string, args ...interface{}) {
	logger.Printf("[ERROR] "+format, args...)
}
