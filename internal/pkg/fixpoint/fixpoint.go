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

// Package fixpoint drives the monotone forward dataflow iteration of
// spec §4.8: a FIFO worklist of CFG nodes, each popped node's IN joined
// from its predecessors' OUT, its OUT computed by handler.Handle, and
// its successors re-enqueued whenever OUT changed, until the worklist
// drains or a wall-clock timeout elapses.
package fixpoint

import (
	"time"

	"github.com/eapache/queue"

	"github.com/taintpath/taintflow/internal/pkg/checker"
	"github.com/taintpath/taintflow/internal/pkg/handler"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/log"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/shape"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// NodeState is the IN/OUT environment recorded at one CFG node.
type NodeState struct {
	In, Out lvalenv.Env
}

// Run iterates cfg to a fixpoint starting from inEnv at cfg.Entry.
// The second return is true if the timeout elapsed before the
// worklist drained -- spec §4.8 requires the caller still use
// whatever partial result was reached rather than discard it.
func Run(ctx *checker.Context, cfg *il.CFG, inEnv lvalenv.Env, timeout time.Duration) (map[il.NodeID]NodeState, bool) {
	states := map[il.NodeID]NodeState{cfg.Entry: {In: inEnv, Out: inEnv}}

	q := queue.New()
	queued := map[il.NodeID]bool{}
	visited := map[il.NodeID]bool{}
	enqueue := func(id il.NodeID) {
		if !queued[id] {
			queued[id] = true
			q.Add(id)
		}
	}
	if len(cfg.Order) > 0 {
		for _, id := range cfg.Order {
			enqueue(id)
		}
	} else {
		enqueue(cfg.Entry)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for q.Length() > 0 {
		if timeout > 0 && time.Now().After(deadline) {
			log.Warnf("%s: fixpoint timed out before reaching a stable state", ctx.FnName)
			return states, true
		}

		id := q.Remove().(il.NodeID)
		queued[id] = false

		in := joinPreds(states, cfg, id)
		node, ok := cfg.Nodes[id]
		if !ok {
			continue
		}
		out := handler.Handle(ctx, in, node)

		if id == cfg.Exit {
			out = checkExitSinks(ctx, out, node)
		}

		prev := states[id]
		seenBefore := visited[id]
		visited[id] = true
		states[id] = NodeState{In: in, Out: out}
		if seenBefore && lvalenv.Equal(prev.Out, out) {
			continue
		}
		for _, succ := range cfg.Succs[id] {
			enqueue(succ)
		}
	}
	return states, false
}

func joinPreds(states map[il.NodeID]NodeState, cfg *il.CFG, id il.NodeID) lvalenv.Env {
	preds := cfg.Preds[id]
	if len(preds) == 0 {
		if st, ok := states[id]; ok {
			return st.In
		}
		return lvalenv.Empty()
	}
	var out lvalenv.Env
	has := false
	for _, p := range preds {
		st, ok := states[p]
		if !ok {
			continue
		}
		if !has {
			out, has = st.Out, true
		} else {
			out = lvalenv.Union(out, st.Out)
		}
	}
	if !has {
		return lvalenv.Empty()
	}
	return out
}

func checkExitSinks(ctx *checker.Context, env lvalenv.Env, node il.Node) lvalenv.Env {
	if ctx.Hooks.CheckTaintedAtExitSinks == nil {
		return env
	}
	taints, sinks, ok := ctx.Hooks.CheckTaintedAtExitSinks(&env, node)
	if !ok || taints.IsEmpty() {
		return env
	}
	for _, sm := range sinks {
		*ctx.Results = append(*ctx.Results, result.NewToSink(taints, sm.Spec.Requires, result.SinkRef{
			Range:    sm.Range,
			Bindings: sm.Bindings,
			RuleKey:  sm.Spec.SpecKey(),
		}, ctx.Opts.UnifyMvars))
	}
	return env
}

// baseFromCanonical reverses il.Base.CanonicalVar for the two synthetic
// cases it's distinguishable for. A literal local variable actually
// named "this" with an empty Scope has the same VarID CanonicalVar
// gives the receiver, so it is classified as the receiver.
func baseFromCanonical(v il.VarID) il.Base {
	switch {
	case v.Scope == "$global":
		return il.GlobalBase(v.Name)
	case v.Scope == "" && v.Name == "this":
		return il.ThisBase()
	default:
		return il.VarBase(v)
	}
}

// SideEffects diffs a function's Enter and Exit environments to produce
// the ToLval summaries of spec §4.1: only taint present at Exit but
// absent at Enter for the same storage is a side effect the function
// itself caused, so a function that merely observes an
// already-tainted parameter without modifying it reports nothing.
func SideEffects(enter, exit lvalenv.Env) []result.Result {
	var out []result.Result
	for _, tr := range lvalenv.SeqOfTainted(exit) {
		enterCell, hadEnter := enter.Tainted[tr.Var]
		base := baseFromCanonical(tr.Var)
		out = append(out, diffCell(il.Lval{Base: base}, enterCell, hadEnter, tr.Cell)...)
	}
	return out
}

func diffCell(at il.Lval, enterCell shape.Cell, hadEnter bool, exitCell shape.Cell) []result.Result {
	var out []result.Result

	exitT := exitCell.XTaint.Taints()
	var newT taint.Set
	if hadEnter {
		newT = taint.Subtract(exitT, enterCell.XTaint.Taints())
	} else {
		newT = exitT
	}
	if !newT.IsEmpty() {
		out = append(out, result.NewToLval(at, newT))
	}

	for _, o := range exitCell.Shape.Offsets() {
		exitChild, _ := exitCell.Shape.Field(o)
		var enterChild shape.Cell
		childHadEnter := false
		if hadEnter {
			enterChild, childHadEnter = enterCell.Shape.Field(o)
		}
		out = append(out, diffCell(at.Extend(o), enterChild, childHadEnter, exitChild)...)
	}
	return out
}
