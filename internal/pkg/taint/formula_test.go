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

package taint

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestSolvePrecondition(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]bool
		f      Formula
		want   *bool
	}{
		{"true", nil, True(), boolPtr(true)},
		{"false", nil, False(), boolPtr(false)},
		{"label present", map[string]bool{"a": true}, Label("a"), boolPtr(true)},
		{"label absent is known-false", map[string]bool{}, Label("a"), boolPtr(false)},
		{"and short-circuits false", map[string]bool{"a": true}, And(Label("a"), Label("b")), boolPtr(false)},
		{"and both present", map[string]bool{"a": true, "b": true}, And(Label("a"), Label("b")), boolPtr(true)},
		{"or short-circuits true", map[string]bool{"a": true}, Or(Label("a"), Label("b")), boolPtr(true)},
		{"not", map[string]bool{"a": true}, Not(Label("a")), boolPtr(false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SolvePrecondition(tt.labels, tt.f)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("SolvePrecondition() = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Fatalf("SolvePrecondition() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func TestMapPreconditionsSubstitutesAndCollapses(t *testing.T) {
	subst := map[string]Formula{
		"callerSafe": False(),
		"callerTrue": True(),
	}

	got, ok := MapPreconditions(subst, Label("callerSafe"))
	if ok || got.Kind != FFalse {
		t.Fatalf("Label(callerSafe) => (%v, %v), want (False, false)", got, ok)
	}

	got, ok = MapPreconditions(subst, Not(Label("callerSafe")))
	if !ok || got.Kind != FTrue {
		t.Fatalf("Not(callerSafe) => (%v, %v), want (True, true)", got, ok)
	}

	got, ok = MapPreconditions(subst, And(Label("callerSafe"), Label("other")))
	if ok || got.Kind != FFalse {
		t.Fatalf("And(callerSafe, other) => (%v, %v), want (False, false)", got, ok)
	}

	got, ok = MapPreconditions(subst, Or(Label("callerSafe"), Label("other")))
	if !ok || got.Kind != FLabel || got.Label != "other" {
		t.Fatalf("Or(callerSafe, other) => (%v, %v), want (Label(other), true)", got, ok)
	}

	got, ok = MapPreconditions(subst, Or(Label("callerSafe"), Label("callerTrue")))
	if !ok || got.Kind != FTrue {
		t.Fatalf("Or(callerSafe, callerTrue) => (%v, %v), want (True, true)", got, ok)
	}
}

func TestConjoinCollapsesTrivialTrue(t *testing.T) {
	lbl := Label("x")
	if got := Conjoin(True(), lbl); got.Kind != FLabel {
		t.Fatalf("Conjoin(True, x) = %v, want Label(x)", got)
	}
	if got := Conjoin(lbl, True()); got.Kind != FLabel {
		t.Fatalf("Conjoin(x, True) = %v, want Label(x)", got)
	}
	got := Conjoin(lbl, Label("y"))
	if got.Kind != FAnd || len(got.Args) != 2 {
		t.Fatalf("Conjoin(x, y) = %v, want And(x, y)", got)
	}
}
