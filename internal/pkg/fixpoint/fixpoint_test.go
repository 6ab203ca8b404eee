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

package fixpoint

import (
	"testing"

	"github.com/taintpath/taintflow/internal/pkg/checker"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

type noopConfig struct{}

func (noopConfig) IsSource(nodes []il.AnyNode) []match.SourceMatch         { return nil }
func (noopConfig) IsSink(nodes []il.AnyNode) []match.SinkMatch             { return nil }
func (noopConfig) IsSanitizer(nodes []il.AnyNode) []match.SanitizerMatch   { return nil }
func (noopConfig) IsPropagator(nodes []il.AnyNode) []match.PropagatorMatch { return nil }
func (noopConfig) HandleResults(fnName string, rs []result.Result, env *lvalenv.Env)  {}

func xvar(name string) il.Lval { return il.NewLval(il.VarBase(il.VarID{Name: name})) }

// A straight-line Enter -> Instr -> Exit CFG must propagate the taint
// assigned at Instr through to Exit's Out environment.
func TestRunPropagatesThroughLinearCFG(t *testing.T) {
	x := xvar("x")
	cfg := &il.CFG{FuncName: "f"}
	enter := il.NewEnterNode(0, il.Range{})
	instr := il.NewInstrNode(1, il.Range{}, x, il.NewLvalExpr(il.Range{}, xvar("src")))
	exit := il.NewExitNode(2, il.Range{})
	cfg.AddNode(enter)
	cfg.AddNode(instr)
	cfg.AddNode(exit)
	cfg.AddEdge(0, 1)
	cfg.AddEdge(1, 2)
	cfg.Entry, cfg.Exit = 0, 2
	cfg.Order = []il.NodeID{0, 1, 2}

	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	srcEnv := lvalenv.Add(lvalenv.Empty(), xvar("src"), sourceTaint())

	states, timedOut := Run(ctx, cfg, srcEnv, 0)
	if timedOut {
		t.Fatalf("unexpected timeout on a 3-node CFG")
	}
	exitState, ok := states[2]
	if !ok {
		t.Fatalf("expected Exit's state to be recorded")
	}
	cell, ok := lvalenv.FindLval(exitState.Out, x)
	if !ok || cell.XTaint.Taints().IsEmpty() {
		t.Fatalf("expected x to carry src's taint at Exit")
	}
}

// A diamond (Enter -> {L,R} -> Join -> Exit) must join the two
// branches' Out environments at the join node: taint set on only one
// branch still reaches Join because Union, not Clean, combines them.
func TestRunJoinsDivergentBranches(t *testing.T) {
	x := xvar("x")
	cfg := &il.CFG{FuncName: "f"}
	enter := il.NewEnterNode(0, il.Range{})
	left := il.NewInstrNode(1, il.Range{}, x, il.NewLvalExpr(il.Range{}, xvar("src")))
	right := il.NewOtherNode(2, il.Range{})
	join := il.NewJoinNode(3, il.Range{})
	exit := il.NewExitNode(4, il.Range{})
	for _, n := range []il.Node{enter, left, right, join, exit} {
		cfg.AddNode(n)
	}
	cfg.AddEdge(0, 1)
	cfg.AddEdge(0, 2)
	cfg.AddEdge(1, 3)
	cfg.AddEdge(2, 3)
	cfg.AddEdge(3, 4)
	cfg.Entry, cfg.Exit = 0, 4
	cfg.Order = []il.NodeID{0, 1, 2, 3, 4}

	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	srcEnv := lvalenv.Add(lvalenv.Empty(), xvar("src"), sourceTaint())

	states, timedOut := Run(ctx, cfg, srcEnv, 0)
	if timedOut {
		t.Fatalf("unexpected timeout on a diamond CFG")
	}
	joinState := states[3]
	cell, ok := lvalenv.FindLval(joinState.Out, x)
	if !ok || cell.XTaint.Taints().IsEmpty() {
		t.Fatalf("expected x's taint from the left branch to survive the join")
	}
}

// SideEffects must report only storage tainted at Exit but not already
// tainted at Enter -- a function that merely reads an already-tainted
// parameter without changing it reports nothing.
func TestSideEffectsReportsOnlyNewTaint(t *testing.T) {
	p := xvar("p")
	enter := lvalenv.Add(lvalenv.Empty(), p, sourceTaint())
	exit := enter // unchanged

	if got := SideEffects(enter, exit); len(got) != 0 {
		t.Fatalf("expected no side effects for an unmodified tainted param, got %+v", got)
	}

	q := xvar("q")
	exit2 := lvalenv.Add(enter, q, sourceTaint())
	got := SideEffects(enter, exit2)
	if len(got) != 1 || got[0].Kind != result.ToLval {
		t.Fatalf("expected exactly one ToLval side effect for newly tainted q, got %+v", got)
	}
}

func sourceTaint() taint.Set {
	return taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: "s"}, "", taint.True()))
}
