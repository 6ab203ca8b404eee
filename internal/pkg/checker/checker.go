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

// Package checker implements the recursive expression/l-value
// traversal of spec §4.5: computing the resulting taint and shape of
// an expression, applying sanitizers/sources/propagators along the
// way, and reporting sink hits as they're found. Call expressions
// (both the top-level instruction form and any nested occurrence) are
// also evaluated here, since a nested call inside an expression goes
// through exactly the same sink/signature machinery as a top-level one;
// internal/pkg/handler (C6) only adds the instruction-level wrapping
// (assigning the result, New/CallSpecial/FixmeInstr/AssignAnon, and the
// getter/setter synthesis that has no meaning outside a call).
package checker

import (
	"strings"

	"github.com/taintpath/taintflow/internal/pkg/hooks"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/options"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/shape"
	"github.com/taintpath/taintflow/internal/pkg/signature"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// Context bundles everything the checker needs that isn't itself part
// of the dataflow state: the match oracle, the policy bag, the optional
// hooks, the language (gating field-inheritance per spec §4.5), the
// enclosing function's name (for log/result tagging), and the
// accumulator results are appended to as they're found.
type Context struct {
	Cfg     match.Config
	Opts    options.Options
	Hooks   hooks.Hooks
	Lang    string
	FnName  string
	Results *[]result.Result
}

func (ctx *Context) emit(r result.Result) {
	*ctx.Results = append(*ctx.Results, r)
}

// fieldInheritanceLangs are the languages spec §4.5 allows
// fix_poly_taint_with_field to extend through.
var fieldInheritanceLangs = map[string]bool{"java": true, "js": true, "python": true}

func sinkRefOf[S match.Spec](m match.Match[S], key string) result.SinkRef {
	return result.SinkRef{Range: m.Range, Bindings: m.Bindings, RuleKey: key}
}

func sourceMatchRef(m match.SourceMatch) taint.MatchRef {
	return taint.MatchRef{ID: m.Spec.SpecKey(), Pos: m.Range, Bindings: m.Bindings}
}

func kindOf(e il.Expr) il.ValueKind {
	switch x := e.(type) {
	case il.ConstExpr:
		return x.Kind
	case il.BinOpExpr:
		return x.Kind
	case il.CallExpr:
		return x.Kind
	default:
		return il.KindOther
	}
}

// relabelAll rewrites the label of every Source-origin token in s,
// used by a propagator's replace_labels/label fields.
func relabelAll(s taint.Set, label string) taint.Set {
	out := taint.Empty()
	for _, tok := range s {
		if tok.Orig.Kind == taint.OriginSource {
			tok.Orig.Label = label
		}
		out = out.Add(tok)
	}
	return out
}

// fixPolyTaintWithField is spec §4.5's fallback inheritance: when an
// exact lookup at an offset fails, a Var(lval) taint on the prefix may
// extend to cover this offset too, so a polymorphic summary computed
// for a shorter path still applies to a longer one the caller happens
// to read through. Guarded by language, offset kind, the
// MaxPolyOffset bound, and a loop-termination check (never extend
// through an offset already present in the path -- `x = x.getX()`).
func fixPolyTaintWithField(lang string, prefix taint.Set, off il.Offset) taint.Set {
	if !fieldInheritanceLangs[lang] || !off.IsFieldLike() {
		return taint.Empty()
	}
	out := taint.Empty()
	for _, tok := range prefix {
		if tok.Orig.Kind != taint.OriginVar {
			continue
		}
		if hasOffset(tok.Orig.Lval.Offsets, off) {
			continue
		}
		ext, ok := tok.Orig.ExtendVar(off)
		if !ok {
			continue
		}
		out = out.Add(taint.Token{Orig: ext, Tokens: tok.Tokens})
	}
	return out
}

func hasOffset(path []il.Offset, off il.Offset) bool {
	for _, o := range path {
		if o == off {
			return true
		}
	}
	return false
}

// applyPropagators runs the two-pass From/To propagator application of
// spec §4.5.5 for one evaluated node (an Lval, an Expr, or an Instr).
func applyPropagators(ctx *Context, env lvalenv.Env, node il.AnyNode, taints taint.Set) (taint.Set, lvalenv.Env) {
	matches := match.BestMatches(ctx.Cfg.IsPropagator([]il.AnyNode{node}))

	for _, pm := range matches {
		if pm.Spec.Kind != match.PropFrom {
			continue
		}
		from, ok := lvalenv.FindLval(env, pm.Spec.Var)
		var fromTaints taint.Set
		if ok {
			fromTaints = from.XTaint.Taints()
		} else {
			fromTaints = taint.Empty()
		}
		if pm.Spec.Requires.Kind != taint.FTrue {
			v := taint.SolvePrecondition(fromTaints.Labels(), pm.Spec.Requires)
			if v == nil || !*v {
				continue
			}
		}
		deposit := fromTaints
		if pm.Spec.ReplaceLabels {
			deposit = relabelAll(deposit, pm.Spec.Label)
		}
		env = lvalenv.PropagateTo(env, pm.Spec.Prop, deposit)

		// Destinations that matched a To side of this same propagator
		// before any From ever deposited are queued in Pending; now that
		// a source exists, satisfy them by side-effect.
		if !deposit.IsEmpty() {
			var lvals []il.Lval
			lvals, env = lvalenv.DrainPending(env, pm.Spec.Prop)
			for _, lv := range lvals {
				env = lvalenv.Add(env, lv, deposit)
			}
		}
	}

	for _, pm := range matches {
		if pm.Spec.Kind != match.PropTo {
			continue
		}
		got, ok, env2 := lvalenv.PropagateFrom(env, pm.Spec.Prop)
		env = env2
		if ok && !got.IsEmpty() {
			taints = taint.Union(taints, got)
			if pm.Spec.BySideEffect {
				env = lvalenv.Add(env, pm.Spec.Var, got)
			}
		} else {
			env = lvalenv.PendingPropagation(env, pm.Spec.Prop, pm.Spec.Var)
		}
	}
	return taints, env
}

// CheckExpr is the recursive expression evaluator of spec §4.5.
func CheckExpr(ctx *Context, env lvalenv.Env, e il.Expr) (taint.Set, shape.Shape, lvalenv.Env) {
	// Step 1: sanitizer.
	sans := match.BestMatches(ctx.Cfg.IsSanitizer([]il.AnyNode{e}))
	if len(sans) > 0 {
		for _, sm := range sans {
			if sm.Spec.BySideEffect {
				if lv, ok := e.(il.LvalExpr); ok {
					env = lvalenv.Clean(env, lv.Lval)
				}
			}
		}
		return taint.Empty(), shape.Bot(), env
	}

	// LvalExpr delegates its entire pipeline (source/propagator/sink)
	// to CheckLval, since an l-value read is checked bottom-up over its
	// own offset path rather than as a flat expression node.
	if lv, ok := e.(il.LvalExpr); ok {
		t, sh, _, env2 := CheckLval(ctx, env, lv.Lval)
		return t, sh, env2
	}

	// IndexExpr (a[i]) runs the Elem l-value through the same pipeline,
	// then separately evaluates Index left-to-right for its side
	// effects and, unless taint_assume_safe_indexes is set, folds its
	// own taint into the result -- the index's value is never itself
	// checked as a source/sink/sanitizer site, only Elem is.
	if ix, ok := e.(il.IndexExpr); ok {
		t, sh, _, env2 := CheckLval(ctx, env, ix.Elem)
		env = env2
		it, ish, env3 := CheckExpr(ctx, env, ix.Index)
		env = env3
		if !ctx.Opts.TaintAssumeSafeIndexes {
			t = taint.Union(t, taint.Union(it, shape.GatherAllTaints(ish)))
		}
		return t, sh, env
	}

	var t taint.Set = taint.Empty()
	var sh shape.Shape = shape.Bot()
	// Call and New already ran their own §4.6 instruction-level sink
	// check (against all_args_taints, independent of the call's return
	// propagation policy) inside checkCallLike/checkNew; Step 5 below
	// must not re-match the same AST range against the call's return
	// taint; the double-count is prevented here, not by best-match
	// canonicalization, since these are two separate emission sites.
	sinkAlreadyChecked := false

	switch x := e.(type) {
	case il.ConstExpr:
		// no taint, no structure

	case il.BinOpExpr:
		if ctx.Opts.TaintAssumeSafeComparisons && x.IsComparison {
			_, _, env = CheckExpr(ctx, env, x.X)
			_, _, env = CheckExpr(ctx, env, x.Y)
		} else {
			var xt, yt taint.Set
			xt, _, env = CheckExpr(ctx, env, x.X)
			yt, _, env = CheckExpr(ctx, env, x.Y)
			t = taint.Union(xt, yt)
		}

	case il.CallExpr:
		t, sh, env = checkCallLike(ctx, env, callShape{FnName: x.FnName, Recv: x.Recv, Args: x.Args, Node: x})
		sinkAlreadyChecked = true

	case il.NewExpr:
		t, sh, env = checkNew(ctx, env, x)
		sinkAlreadyChecked = true

	case il.CallSpecialExpr:
		for _, a := range x.Args {
			at, ash, env2 := CheckExpr(ctx, env, a)
			env = env2
			t = taint.Union(t, taint.Union(at, shape.GatherAllTaints(ash)))
		}

	case il.AssignAnonExpr:
		// opaque; no taint of its own.

	case il.TupleExpr:
		var elems []shape.Elem
		for _, sub := range x.Elems {
			at, ash, env2 := CheckExpr(ctx, env, sub)
			env = env2
			elems = append(elems, shape.Elem{Taints: at, Shape: ash})
		}
		sh = shape.TupleLikeObj(elems)

	case il.RecordExpr:
		fields := map[il.Offset]shape.Cell{}
		for _, f := range x.Fields {
			at, ash, env2 := CheckExpr(ctx, env, f.Expr)
			env = env2
			fields[f.Key] = shape.Cell{XTaint: shape.TaintedX(at), Shape: ash}
		}
		sh = shape.Obj(fields)

	case il.ExtractExpr:
		_, tsh, env2 := CheckExpr(ctx, env, x.Tuple)
		env = env2
		if c, ok := tsh.Field(il.Oint(x.Index)); ok {
			t, sh = c.XTaint.Taints(), c.Shape
		}
	}

	// Step 3: source.
	srcs := match.BestMatches(ctx.Cfg.IsSource([]il.AnyNode{e}))
	if len(srcs) > 0 {
		newT := taint.Empty()
		for _, sm := range srcs {
			newT = taint.Union(newT, taint.Singleton(taint.SourceOrigin(sourceMatchRef(sm), sm.Spec.Label, sm.Spec.Requires)))
		}
		t = taint.Union(t, newT)
	}

	// Step 4: propagators.
	t, env = applyPropagators(ctx, env, e, t)

	// Step 5: sink.
	if !sinkAlreadyChecked {
		sinks := match.BestMatches(ctx.Cfg.IsSink([]il.AnyNode{e}))
		for _, sm := range sinks {
			all := taint.Union(taint.Union(t, env.Control), shape.GatherAllTaints(sh))
			if all.IsEmpty() {
				continue
			}
			ctx.emit(result.NewToSink(all, sm.Spec.Requires, sinkRefOf(sm, sm.Spec.SpecKey()), ctx.Opts.UnifyMvars))
		}
	}

	// Step 6: type-based drop.
	k := kindOf(e)
	if k == il.KindBool && ctx.Opts.TaintAssumeSafeBooleans {
		t = taint.Empty()
	}
	if k == il.KindNumber && ctx.Opts.TaintAssumeSafeNumbers {
		t = taint.Empty()
	}

	return t, sh, env
}

// CheckLval is the bottom-up l-value walker of spec §4.5.
func CheckLval(ctx *Context, env lvalenv.Env, l il.Lval) (taint.Set, shape.Shape, bool, lvalenv.Env) {
	return checkLvalDepth(ctx, env, l, len(l.Offsets))
}

func checkLvalDepth(ctx *Context, env lvalenv.Env, full il.Lval, depth int) (taint.Set, shape.Shape, bool, lvalenv.Env) {
	prefix := il.Lval{Base: full.Base, Offsets: append([]il.Offset(nil), full.Offsets[:depth]...), Range: full.Range}

	var prefixTaints taint.Set
	var prefixSanitized bool
	if depth > 0 {
		pt, _, psan, env2 := checkLvalDepth(ctx, env, full, depth-1)
		env = env2
		prefixTaints, prefixSanitized = pt, psan
	}

	// Step 1: sanitizer at this level.
	sans := match.BestMatches(ctx.Cfg.IsSanitizer([]il.AnyNode{prefix}))
	if len(sans) > 0 {
		for _, sm := range sans {
			if sm.Spec.BySideEffect {
				env = lvalenv.Clean(env, prefix)
			}
		}
		return taint.Empty(), shape.Bot(), true, env
	}

	var t taint.Set
	var sh shape.Shape
	switch {
	case prefixSanitized:
		// A sanitized prefix's subtree is treated as safe at this
		// evaluation site; existing environment taints below it are
		// not consulted.
		t, sh = taint.Empty(), shape.Bot()
	case depth == 0:
		if c, ok := lvalenv.FindLval(env, prefix); ok {
			t, sh = c.XTaint.Taints(), c.Shape
		}
	default:
		if c, ok := lvalenv.FindLval(env, prefix); ok {
			t, sh = c.XTaint.Taints(), c.Shape
		} else {
			off := full.Offsets[depth-1]
			if off.Kind == il.OAny {
				// unknown offset kind: inheritance skipped, existing
				// (empty, since the lookup failed) taints retained.
				t, sh = taint.Empty(), shape.Bot()
			} else {
				t, sh = fixPolyTaintWithField(ctx.Lang, prefixTaints, off), shape.Bot()
			}
		}
	}

	// Step 3: source at this level.
	if !prefixSanitized {
		srcs := match.BestMatches(ctx.Cfg.IsSource([]il.AnyNode{prefix}))
		if len(srcs) > 0 {
			newT := taint.Empty()
			for _, sm := range srcs {
				tok := taint.Singleton(taint.SourceOrigin(sourceMatchRef(sm), sm.Spec.Label, sm.Spec.Requires))
				newT = taint.Union(newT, tok)
				if sm.Spec.BySideEffect != match.EffectNo {
					env = lvalenv.Add(env, prefix, tok)
				}
			}
			t = taint.Union(t, newT)
		}
	}

	// Step 4: propagators.
	t, env = applyPropagators(ctx, env, prefix, t)

	// Step 5: sink. Sub-lvalues (not the full path being asked about)
	// only participate as sinks through an exact match, to avoid
	// "x is tainted, sink(x.a) flags x" false positives.
	isFull := depth == len(full.Offsets)
	sinks := match.BestMatches(ctx.Cfg.IsSink([]il.AnyNode{prefix}))
	for _, sm := range sinks {
		if !isFull && !sm.Spec.Exact() {
			continue
		}
		all := taint.Union(taint.Union(t, env.Control), shape.GatherAllTaints(sh))
		if all.IsEmpty() {
			continue
		}
		ctx.emit(result.NewToSink(all, sm.Spec.Requires, sinkRefOf(sm, sm.Spec.SpecKey()), ctx.Opts.UnifyMvars))
	}

	return t, sh, false, env
}

// callShape is the common shape of a Call or (ctor'd) New expression,
// letting checkCallLike serve both spec §4.6 instruction kinds and any
// nested CallExpr.
type callShape struct {
	FnName string
	Recv   il.Expr
	Args   []il.Expr
	Node   il.AnyNode
}

func recvLval(e il.Expr) *il.Lval {
	if lv, ok := e.(il.LvalExpr); ok {
		return &lv.Lval
	}
	return nil
}

// getterSetterProp recognizes the Java-style get<Prop>/set<Prop> name
// pattern with no associated definition.
func getterSetterProp(name string) (prop string, isSetter bool, ok bool) {
	switch {
	case strings.HasPrefix(name, "get") && len(name) > 3 && isUpper(name[3]):
		return name[3:], false, true
	case strings.HasPrefix(name, "set") && len(name) > 3 && isUpper(name[3]):
		return name[3:], true, true
	}
	return "", false, false
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

func checkCallLike(ctx *Context, env lvalenv.Env, cs callShape) (taint.Set, shape.Shape, lvalenv.Env) {
	var objT taint.Set = taint.Empty()
	var objSh shape.Shape = shape.Bot()
	if cs.Recv != nil {
		objT, objSh, env = CheckExpr(ctx, env, cs.Recv)
	}

	argTaints := make([]taint.Set, len(cs.Args))
	argShapes := make([]shape.Shape, len(cs.Args))
	argLvals := make([]*il.Lval, len(cs.Args))
	allArgs := taint.Empty()
	for i, a := range cs.Args {
		at, ash, env2 := CheckExpr(ctx, env, a)
		env = env2
		argTaints[i], argShapes[i] = at, ash
		argLvals[i] = recvLval(a)
		allArgs = taint.Union(allArgs, taint.Union(at, shape.GatherAllTaints(ash)))
	}
	allArgs = taint.Union(allArgs, taint.Union(objT, shape.GatherAllTaints(objSh)))

	sinks := match.BestMatches(ctx.Cfg.IsSink([]il.AnyNode{cs.Node}))
	for _, sm := range sinks {
		all := taint.Union(allArgs, env.Control)
		if !all.IsEmpty() {
			ctx.emit(result.NewToSink(all, sm.Spec.Requires, sinkRefOf(sm, sm.Spec.SpecKey()), ctx.Opts.UnifyMvars))
		}
	}

	if ctx.Hooks.FunctionTaintSignature != nil {
		if _, sig, ok := ctx.Hooks.FunctionTaintSignature(cs.Node); ok {
			callCS := signature.CallSite{
				Callee:     cs.FnName,
				Pos:        cs.Node.Pos().Start,
				ArgLvals:   argLvals,
				ArgTaints:  argTaints,
				ArgShapes:  argShapes,
				This:       recvLval(cs.Recv),
				ThisTaints: objT,
				ThisShape:  objSh,
				Env:        &env,
			}
			inst := signature.Instantiate(sig, callCS)
			for _, u := range inst.LvalUpdates {
				env = lvalenv.Add(env, u.Lval, u.Taints)
			}
			for _, r := range inst.SinkResults {
				ctx.emit(r)
			}
			return inst.ReturnTaint, shape.Bot(), env
		}
	}

	if ctx.Hooks.FindAttributeInClass != nil {
		if prop, isSetter, ok := getterSetterProp(cs.FnName); ok && cs.Recv != nil {
			if field, ok2 := ctx.Hooks.FindAttributeInClass("", prop); ok2 {
				recv := recvLval(cs.Recv)
				if recv != nil {
					fieldLval := recv.Extend(il.Ofld(field))
					if isSetter && len(cs.Args) == 1 {
						env = lvalenv.AddShape(env, fieldLval, argTaints[0], argShapes[0])
						return taint.Empty(), shape.Bot(), env
					}
					if !isSetter {
						ft, fsh, _, env2 := CheckLval(ctx, env, fieldLval)
						env = env2
						return ft, fsh, env
					}
				}
			}
		}
	}

	if ctx.Opts.TaintAssumeSafeFunctions || ctx.Opts.TaintOnlyPropagateThroughAssignments {
		return taint.Empty(), shape.Bot(), env
	}
	return allArgs, shape.Bot(), env
}

func checkNew(ctx *Context, env lvalenv.Env, n il.NewExpr) (taint.Set, shape.Shape, lvalenv.Env) {
	if n.Ctor != nil {
		return checkCallLike(ctx, env, callShape{FnName: n.Ctor.FnName, Recv: n.Ctor.Recv, Args: n.Args, Node: n})
	}
	// No constructor: a conservative sink-less consumer of its
	// arguments' taint.
	allArgs := taint.Empty()
	for _, a := range n.Args {
		at, ash, env2 := CheckExpr(ctx, env, a)
		env = env2
		allArgs = taint.Union(allArgs, taint.Union(at, shape.GatherAllTaints(ash)))
	}
	if ctx.Opts.TaintAssumeSafeFunctions || ctx.Opts.TaintOnlyPropagateThroughAssignments {
		return taint.Empty(), shape.Bot(), env
	}
	return allArgs, shape.Bot(), env
}

// CheckCall is the public entry point handler (C6) uses for the
// instruction-level Call kind, including the "no signature, no
// getter/setter, propagate_through_functions" fallback and the sink
// check on the call's own arguments.
func CheckCall(ctx *Context, env lvalenv.Env, fnName string, recv il.Expr, args []il.Expr, node il.AnyNode) (taint.Set, shape.Shape, lvalenv.Env) {
	return checkCallLike(ctx, env, callShape{FnName: fnName, Recv: recv, Args: args, Node: node})
}

// CheckNew is New's public entry point for handler (C6).
func CheckNew(ctx *Context, env lvalenv.Env, n il.NewExpr) (taint.Set, shape.Shape, lvalenv.Env) {
	return checkNew(ctx, env, n)
}
