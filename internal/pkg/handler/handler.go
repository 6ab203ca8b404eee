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

// Package handler implements the per-instruction transfer of spec
// §4.6: given one CFG node and the environment flowing into it, it
// produces the environment flowing out, wrapping internal/pkg/checker's
// expression evaluation with whatever the node's own kind additionally
// does -- assigning the evaluated taint to a destination l-value,
// folding a condition's taint into control, or emitting a ToReturn
// result.
package handler

import (
	"github.com/taintpath/taintflow/internal/pkg/checker"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/shape"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// Handle dispatches n to its transfer function and returns the
// resulting environment. EnterNode/ExitNode carry no transfer of their
// own; the fixpoint driver (C7) owns what happens at function entry
// and exit.
func Handle(ctx *checker.Context, env lvalenv.Env, n il.Node) lvalenv.Env {
	switch x := n.(type) {
	case il.InstrNode:
		return handleInstr(ctx, env, x)
	case il.CondNode:
		return handleBranchLike(ctx, env, x.Expr)
	case il.ThrowNode:
		return handleBranchLike(ctx, env, x.Expr)
	case il.ReturnNode:
		return handleReturn(ctx, env, x)
	case il.LambdaNode:
		return handleLambda(ctx, env, x)
	default:
		// EnterNode, ExitNode, JoinNode, GotoNode, OtherNode: pass IN
		// through unchanged.
		return env
	}
}

// handleInstr is spec §4.6's Assign case: evaluate the right-hand
// expression, then strong-update the destination l-value with the
// result. A direct assignment always overwrites rather than unions,
// since the l-value no longer holds its previous value; Clean followed
// by AddShape gives exactly that (Clean resets the cell to the bottom
// of the lattice, AddShape then deposits the fresh taint/shape on top
// of it) without inventing a second reset primitive.
func handleInstr(ctx *checker.Context, env lvalenv.Env, n il.InstrNode) lvalenv.Env {
	t, sh, env2 := checker.CheckExpr(ctx, env, n.Expr)
	env2 = lvalenv.Clean(env2, n.Lval)
	env2 = lvalenv.AddShape(env2, n.Lval, t, sh)
	return env2
}

// handleBranchLike is shared by Cond and Throw: both evaluate an
// expression for its taint and, when TrackControl is set, fold the
// result into env.Control so every successor (both branches, for a
// Cond) inherits it -- the engine runs one transfer per node, not per
// edge, so the conservative choice is to taint both successors alike.
func handleBranchLike(ctx *checker.Context, env lvalenv.Env, e il.Expr) lvalenv.Env {
	t, sh, env2 := checker.CheckExpr(ctx, env, e)
	if !ctx.Opts.TrackControl {
		return env2
	}
	all := taint.Union(t, shape.GatherAllTaints(sh))
	if all.IsEmpty() {
		return env2
	}
	return lvalenv.AddControlTaints(env2, all)
}

func handleReturn(ctx *checker.Context, env lvalenv.Env, n il.ReturnNode) lvalenv.Env {
	if n.Expr == nil {
		return env
	}
	t, sh, env2 := checker.CheckExpr(ctx, env, n.Expr)
	all := taint.Union(t, shape.GatherAllTaints(sh))
	if !all.IsEmpty() {
		*ctx.Results = append(*ctx.Results, result.NewToReturn(n.Tok, all))
	}
	return env2
}

// handleLambda resets each formal parameter (dropping any taint left
// over from a previous loop iteration reusing the same l-value) and
// then runs it through the ordinary l-value pipeline, since a
// parameter can itself be a source (e.g. a framework-injected request
// object).
func handleLambda(ctx *checker.Context, env lvalenv.Env, n il.LambdaNode) lvalenv.Env {
	for _, p := range n.Params {
		env = lvalenv.Clean(env, p)
		_, _, _, env = checker.CheckLval(ctx, env, p)
	}
	return env
}
