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

package regexp

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalJSON(t *testing.T) {
	testCases := []struct {
		desc      string
		in        []byte
		wantMatch string
		wantErr   bool
	}{
		{desc: "valid regex", in: []byte(`"^hello$"`), wantMatch: "hello"},
		{desc: "empty regex", in: []byte(`""`), wantErr: true},
		{desc: "invalid regex", in: []byte(`"["`), wantErr: true},
	}

	for _, tt := range testCases {
		t.Run(tt.desc, func(t *testing.T) {
			got := &Regexp{}
			err := json.Unmarshal(tt.in, got)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s) = nil error, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) = %v, want no error", tt.in, err)
			}
			if !got.MatchString(tt.wantMatch) {
				t.Fatalf("MatchString(%q) = false, want true", tt.wantMatch)
			}
		})
	}
}

func TestZeroRegexpMatchesNothing(t *testing.T) {
	var r Regexp
	if r.MatchString("") {
		t.Fatalf("zero Regexp matched the empty string")
	}
}

func TestMarshalRoundTrips(t *testing.T) {
	r := MustCompile("^a.*z$")
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var r2 Regexp
	if err := json.Unmarshal(data, &r2); err != nil {
		t.Fatalf("Unmarshal round-trip: %v", err)
	}
	if !r2.MatchString("abz") {
		t.Fatalf("round-tripped regexp lost its pattern")
	}
}
