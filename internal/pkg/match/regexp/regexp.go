// Copyright 2020 Google LLC
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

// Package regexp wraps the standard library's regexp.Regexp so that a
// pattern can be embedded directly as a JSON/YAML string value in a
// rule file, instead of requiring a separate "pattern" field plus a
// compile step at load time.
package regexp

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Regexp is a regexp.Regexp that unmarshals itself from a bare JSON
// string. An empty pattern is rejected: a rule author who leaves a
// field blank almost certainly meant to omit the matcher entirely
// rather than match everything.
type Regexp struct {
	re *regexp.Regexp
}

// MustCompile panics if pattern does not compile, for use with
// compile-time-known patterns in built-in signature tables.
func MustCompile(pattern string) Regexp {
	return Regexp{re: regexp.MustCompile(pattern)}
}

// MatchString reports whether s matches the wrapped pattern. A zero
// Regexp (nil re) matches nothing.
func (r Regexp) MatchString(s string) bool {
	if r.re == nil {
		return false
	}
	return r.re.MatchString(s)
}

// String returns the original pattern, or "" for a zero Regexp.
func (r Regexp) String() string {
	if r.re == nil {
		return ""
	}
	return r.re.String()
}

// UnmarshalJSON implements json.Unmarshaler, compiling the pattern
// carried as a bare JSON string.
func (r *Regexp) UnmarshalJSON(data []byte) error {
	var pattern string
	if err := json.Unmarshal(data, &pattern); err != nil {
		return fmt.Errorf("regexp: %w", err)
	}
	if pattern == "" {
		return fmt.Errorf("regexp: empty pattern")
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("regexp: %w", err)
	}
	r.re = compiled
	return nil
}

// MarshalJSON implements json.Marshaler, so a loaded config round-trips
// back to its source pattern string.
func (r Regexp) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}
