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

package handler

import (
	"testing"

	"github.com/taintpath/taintflow/internal/pkg/checker"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/options"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// noopConfig classifies nothing; handler-level tests drive taint purely
// by seeding the incoming environment, not via the oracle.
type noopConfig struct{}

func (noopConfig) IsSource(nodes []il.AnyNode) []match.SourceMatch         { return nil }
func (noopConfig) IsSink(nodes []il.AnyNode) []match.SinkMatch             { return nil }
func (noopConfig) IsSanitizer(nodes []il.AnyNode) []match.SanitizerMatch   { return nil }
func (noopConfig) IsPropagator(nodes []il.AnyNode) []match.PropagatorMatch { return nil }
func (noopConfig) HandleResults(fnName string, rs []result.Result, env *lvalenv.Env) {}

func xvar(name string) il.Lval { return il.NewLval(il.VarBase(il.VarID{Name: name})) }

func taintedEnv(l il.Lval) lvalenv.Env {
	return lvalenv.Add(lvalenv.Empty(), l, taint.Singleton(taint.SourceOrigin(taint.MatchRef{ID: "s"}, "", taint.True())))
}

// handleInstr must strong-update its destination: assigning an untainted
// expression to a previously-tainted l-value clears it, it does not join.
func TestHandleInstrStrongUpdate(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	x := xvar("x")
	env := taintedEnv(x)

	n := il.NewInstrNode(1, il.Range{}, x, il.ConstExpr{Kind: il.KindString, Value: "lit"})
	env2 := Handle(ctx, env, n)

	cell, ok := lvalenv.FindLval(env2, x)
	if ok && !cell.XTaint.Taints().IsEmpty() {
		t.Fatalf("expected strong update to clear x's prior taint, got %v", cell.XTaint.Taints())
	}
}

// handleInstr must carry a freshly tainted RHS into the destination.
func TestHandleInstrCarriesFreshTaint(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	x, y := xvar("x"), xvar("y")
	env := taintedEnv(y)

	n := il.NewInstrNode(1, il.Range{}, x, il.NewLvalExpr(il.Range{}, y))
	env2 := Handle(ctx, env, n)

	cell, ok := lvalenv.FindLval(env2, x)
	if !ok || cell.XTaint.Taints().IsEmpty() {
		t.Fatalf("expected x to carry y's taint after assignment")
	}
}

// A Cond's own taint only folds into env.Control when TrackControl is set.
func TestHandleBranchLikeFoldsControlWhenTrackControl(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Opts: options.Options{TrackControl: true}, Results: &results}

	c := xvar("c")
	env := taintedEnv(c)
	n := il.NewCondNode(1, il.Range{}, il.NewLvalExpr(il.Range{}, c))

	env2 := Handle(ctx, env, n)
	if env2.Control.IsEmpty() {
		t.Fatalf("expected tainted condition to fold into control when TrackControl is set")
	}
}

func TestHandleBranchLikeLeavesControlWhenDisabled(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Opts: options.Options{TrackControl: false}, Results: &results}

	c := xvar("c")
	env := taintedEnv(c)
	n := il.NewCondNode(1, il.Range{}, il.NewLvalExpr(il.Range{}, c))

	env2 := Handle(ctx, env, n)
	if !env2.Control.IsEmpty() {
		t.Fatalf("TrackControl disabled: env.Control should remain empty, got %v", env2.Control)
	}
}

func TestHandleReturnEmitsToReturn(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	x := xvar("x")
	env := taintedEnv(x)
	n := il.NewReturnNode(1, il.Range{}, "ret0", il.NewLvalExpr(il.Range{}, x))

	Handle(ctx, env, n)

	if len(results) != 1 || results[0].Kind != result.ToReturn {
		t.Fatalf("expected exactly one ToReturn result, got %+v", results)
	}
}

func TestHandleReturnBareReturnEmitsNothing(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	n := il.NewReturnNode(1, il.Range{}, "ret0", nil)
	Handle(ctx, lvalenv.Empty(), n)

	if len(results) != 0 {
		t.Fatalf("bare return should emit nothing, got %+v", results)
	}
}

// A Lambda's formal parameters must be reset so a previous loop
// iteration's taint does not leak into the next one.
func TestHandleLambdaResetsStaleParamTaint(t *testing.T) {
	var results []result.Result
	ctx := &checker.Context{Cfg: noopConfig{}, Results: &results}

	p := xvar("p")
	env := taintedEnv(p)
	n := il.NewLambdaNode(1, il.Range{}, []il.Lval{p})

	env2 := Handle(ctx, env, n)
	cell, ok := lvalenv.FindLval(env2, p)
	if ok && !cell.XTaint.Taints().IsEmpty() {
		t.Fatalf("expected lambda param to be reset, got %v", cell.XTaint.Taints())
	}
}
