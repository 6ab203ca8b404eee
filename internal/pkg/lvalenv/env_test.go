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

package lvalenv

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/shape"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

func v(name string) il.VarID { return il.VarID{Name: name} }

func lval(name string, offs ...il.Offset) il.Lval {
	return il.NewLval(il.Base{Kind: il.BVar, Var: v(name)}, offs...)
}

func someTaint(label string) taint.Set {
	return taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: label}, label, taint.True()))
}

func TestAddCreatesIntermediateCells(t *testing.T) {
	e := Empty()
	e = Add(e, lval("x", il.Ofld("a"), il.Ofld("b")), someTaint("s"))

	c, ok := FindLval(e, lval("x", il.Ofld("a"), il.Ofld("b")))
	if !ok || c.XTaint.Taints().IsEmpty() {
		t.Fatalf("Add did not create a tainted cell at x.a.b")
	}
	if _, ok := FindLval(e, lval("x", il.Ofld("a"))); !ok {
		t.Fatalf("Add did not create the intermediate cell at x.a")
	}
}

func TestCleanDropsSubtree(t *testing.T) {
	e := Empty()
	e = Add(e, lval("x", il.Ofld("a"), il.Ofld("b")), someTaint("s"))
	e = Clean(e, lval("x", il.Ofld("a")))

	c, ok := FindLval(e, lval("x", il.Ofld("a")))
	if !ok || c.XTaint.Kind != shape.XClean {
		t.Fatalf("Clean did not mark x.a as Clean: %+v", c)
	}
	if _, ok := FindLval(e, lval("x", il.Ofld("a"), il.Ofld("b"))); ok {
		t.Fatalf("Clean did not drop the subtree under x.a")
	}
}

func TestUnionCleanJoinedWithTaintedYieldsTainted(t *testing.T) {
	a := Empty()
	a = Clean(a, lval("x"))

	b := Empty()
	b = Add(b, lval("x"), someTaint("s"))

	joined := Union(a, b)
	c, ok := FindLval(joined, lval("x"))
	if !ok || c.XTaint.Kind != shape.XTainted {
		t.Fatalf("Union(Clean, Tainted) = %+v, want Tainted (MAY-analysis, clean not dominant)", c)
	}
}

func TestUnionIsCommutativeOnEquality(t *testing.T) {
	a := Add(Empty(), lval("x"), someTaint("s1"))
	b := Add(Empty(), lval("y"), someTaint("s2"))

	if !Equal(Union(a, b), Union(b, a)) {
		t.Fatalf("Union(a,b) != Union(b,a)")
	}
}

func TestControlTaintsAccumulate(t *testing.T) {
	e := Empty()
	e = AddControlTaints(e, someTaint("c1"))
	e = AddControlTaints(e, someTaint("c2"))
	if len(GetControlTaints(e)) != 2 {
		t.Fatalf("control taints = %d, want 2", len(GetControlTaints(e)))
	}
}

func TestPropagateToFromRoundTrip(t *testing.T) {
	e := Empty()
	e = PropagateTo(e, "p1", someTaint("s"))

	got, ok, e2 := PropagateFrom(e, "p1")
	if !ok || got.IsEmpty() {
		t.Fatalf("PropagateFrom did not return deposited taint")
	}
	if _, ok2, _ := PropagateFrom(e2, "p1"); ok2 {
		t.Fatalf("PropagateFrom should consume the deposit")
	}
}

func TestPendingPropagationDrainsInOrder(t *testing.T) {
	e := Empty()
	e = PendingPropagation(e, "p1", lval("a"))
	e = PendingPropagation(e, "p1", lval("b"))

	lvals, e2 := DrainPending(e, "p1")
	want := []il.Lval{lval("a"), lval("b")}
	if diff := cmp.Diff(want, lvals); diff != "" {
		t.Fatalf("DrainPending order mismatch (-want +got):\n%s", diff)
	}
	if more, _ := DrainPending(e2, "p1"); more != nil {
		t.Fatalf("DrainPending did not consume the queue")
	}
}

func TestEqualByLvalRestrictsComparison(t *testing.T) {
	a := Add(Empty(), lval("x"), someTaint("s"))
	b := Add(Empty(), lval("y"), someTaint("s2"))

	if !EqualByLval(a, b, v("z")) {
		t.Fatalf("two envs agreeing that z is absent should be EqualByLval")
	}
	if EqualByLval(a, b, v("x")) {
		t.Fatalf("a has x tainted, b does not: should not be EqualByLval")
	}
}
