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

package result

import (
	"testing"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

type fakeHandler struct {
	got []Result
}

func (h *fakeHandler) HandleResults(fnName string, rs []Result, env *lvalenv.Env) {
	h.got = rs
}

func sourceTaint(label string, requires taint.Formula) taint.Set {
	return taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: label}, label, requires))
}

func TestEmitDropsUnsatisfiedPrecondition(t *testing.T) {
	taints := sourceTaint("A", taint.True())
	r := NewToSink(taints, taint.Label("B"), SinkRef{RuleKey: "sink1"}, false)

	h := &fakeHandler{}
	Emit(h, "f", []Result{r}, nil)

	if len(h.got) != 0 {
		t.Fatalf("expected ToSink result to be dropped, got %v", h.got)
	}
}

func TestEmitKeepsSatisfiedPrecondition(t *testing.T) {
	taints := sourceTaint("A", taint.True())
	r := NewToSink(taints, taint.Label("A"), SinkRef{RuleKey: "sink1"}, false)

	h := &fakeHandler{}
	Emit(h, "f", []Result{r}, nil)

	if len(h.got) != 1 || len(h.got[0].Taints) != 1 {
		t.Fatalf("expected one surviving ToSink result, got %v", h.got)
	}
}

func nodeAt(line int) il.Node {
	return il.NewGotoNode(0, il.Range{Start: il.Position{Line: line}, End: il.Position{Line: line}})
}

// Without unify_mvars, a metavariable the sink and source disagree on
// keeps the sink's value (sink-biased union) and the taint still reaches.
func TestNewToSinkSinkBiasedUnionOnConflict(t *testing.T) {
	src := taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: "s", Bindings: map[string]il.Node{"$X": nodeAt(1)}}, "", taint.True()))
	sink := SinkRef{RuleKey: "sink1", Bindings: map[string]il.Node{"$X": nodeAt(2)}}

	r := NewToSink(src, taint.True(), sink, false)
	if len(r.Taints) != 1 {
		t.Fatalf("expected the conflicting taint to still be reported, got %v", r.Taints)
	}
	if r.Sink.Bindings["$X"].Pos().Start.Line != 2 {
		t.Fatalf("expected sink's binding to win the collision, got %v", r.Sink.Bindings["$X"])
	}
}

// Under unify_mvars, a source/sink metavariable collision drops that
// taint from the result entirely (spec §7's "no ToSink for that pair").
func TestNewToSinkUnifyMvarsDropsConflictingTaint(t *testing.T) {
	src := taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: "s", Bindings: map[string]il.Node{"$X": nodeAt(1)}}, "", taint.True()))
	sink := SinkRef{RuleKey: "sink1", Bindings: map[string]il.Node{"$X": nodeAt(2)}}

	r := NewToSink(src, taint.True(), sink, true)
	if len(r.Taints) != 0 {
		t.Fatalf("expected unify_mvars to drop the conflicting taint, got %v", r.Taints)
	}
}

// Two sources disagreeing on the same metavariable drop it from the
// merged bindings, but a key only one source sets survives.
func TestNewToSinkMergeDropsOnlyConflictingSourceKeys(t *testing.T) {
	a := taint.SourceOrigin(taint.MatchRef{ID: "a", Bindings: map[string]il.Node{"$X": nodeAt(1), "$Y": nodeAt(5)}}, "", taint.True())
	b := taint.SourceOrigin(taint.MatchRef{ID: "b", Bindings: map[string]il.Node{"$X": nodeAt(2)}}, "", taint.True())
	taints := taint.Union(taint.Singleton(a), taint.Singleton(b))

	r := NewToSink(taints, taint.True(), SinkRef{RuleKey: "sink1"}, false)
	if _, ok := r.Sink.Bindings["$X"]; ok {
		t.Fatalf("expected disagreeing source binding $X to be dropped, got %v", r.Sink.Bindings)
	}
	if got, ok := r.Sink.Bindings["$Y"]; !ok || got.Pos().Start.Line != 5 {
		t.Fatalf("expected single-source binding $Y to survive, got %v", r.Sink.Bindings)
	}
}

func TestEmitReversesTokenTrace(t *testing.T) {
	p1 := il.Position{File: "a.go", Line: 1}
	p2 := il.Position{File: "a.go", Line: 2}
	tok := taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: "pm"}, "A", taint.True()))
	for k, v := range tok {
		v.Tokens = []il.Position{p2, p1}
		tok[k] = v
	}
	r := NewToReturn("ret0", tok)

	h := &fakeHandler{}
	Emit(h, "f", []Result{r}, nil)

	if len(h.got) != 1 {
		t.Fatalf("expected one ToReturn result, got %v", h.got)
	}
	for _, v := range h.got[0].ReturnTaints {
		if len(v.Tokens) != 2 || v.Tokens[0] != p1 || v.Tokens[1] != p2 {
			t.Fatalf("trace not reversed: %v", v.Tokens)
		}
	}
}
