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

// Package signature instantiates a callee's precomputed, polymorphic
// taint summary (spec §4.7) at one concrete call site: every Var(lval)
// taint whose base is Arg(i), This, or Global(name) is substituted with
// the taints actually observed there, and the resulting ToReturn/
// ToSink/ToLval entries are folded into the caller's analysis.
package signature

import (
	"fmt"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/log"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/shape"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// Signature is a function's precomputed taint summary: a set of
// polymorphic Results whose taints are Var(lval) origins rooted at
// Arg(i), This, or Global(name).
type Signature []result.Result

// CallSite is everything Instantiate needs about one concrete call,
// gathered by the handler (C6) before it consults a signature.
type CallSite struct {
	Callee string
	Pos    il.Position

	// ArgLvals[i] is the actual l-value the i'th argument expression
	// resolves to, or nil if the argument isn't addressable (e.g. a
	// literal or a call result) -- substituting a ToLval entry against
	// such an argument is a signature-instantiation failure (spec §7)
	// and that entry is skipped.
	ArgLvals   []*il.Lval
	ArgTaints  []taint.Set
	ArgShapes  []shape.Shape

	// This/ThisTaints/ThisShape describe the receiver of a method call;
	// This is nil for a free function call.
	This      *il.Lval
	ThisTaints taint.Set
	ThisShape  shape.Shape

	// Env is the caller's environment at the call site, consulted for
	// Global(name) base taints.
	Env *lvalenv.Env
}

// Instantiated is what Instantiate produces: the taint flowing back as the
// call's return value, updates to apply to caller l-values by
// side-effect, and sink findings to emit immediately (ToSink entries in
// the signature are resolved and reported at the call site, not
// deferred).
type Instantiated struct {
	ReturnTaint taint.Set
	LvalUpdates []LvalUpdate
	SinkResults []result.Result
}

// LvalUpdate is one ToLval entry, resolved to an actual caller l-value.
type LvalUpdate struct {
	Lval   il.Lval
	Taints taint.Set
}

// lvalOfSigLval resolves a polymorphic signature l-value (base Arg(i),
// This, or Global(name), plus its offset path) to the concrete caller
// l-value it denotes, or ok=false if it can't be resolved at this call
// site (spec §7's "signature instantiation failure").
func lvalOfSigLval(cs CallSite, sigLval il.Lval) (il.Lval, bool) {
	switch sigLval.Base.Kind {
	case il.BArg:
		i := sigLval.Base.Arg
		if i < 0 || i >= len(cs.ArgLvals) || cs.ArgLvals[i] == nil {
			return il.Lval{}, false
		}
		base := *cs.ArgLvals[i]
		return il.Lval{Base: base.Base, Offsets: append(append([]il.Offset(nil), base.Offsets...), sigLval.Offsets...)}, true
	case il.BThis:
		if cs.This == nil {
			return il.Lval{}, false
		}
		return il.Lval{Base: cs.This.Base, Offsets: append(append([]il.Offset(nil), cs.This.Offsets...), sigLval.Offsets...)}, true
	case il.BGlobal:
		return sigLval, true
	}
	return il.Lval{}, false
}

// taintsOfSigLval returns the taints currently held at the caller
// l-value a signature l-value resolves to. If the l-value is a global
// or a field of `this` and no concrete taint is found, it synthesizes a
// fresh implicit Var(sigLval) input taint: a summary that mentions an
// unread global or `this`-field may still transit a caller that never
// locally writes it, so the caller's own callers need to see it as
// polymorphic rather than silently untainted.
func taintsOfSigLval(cs CallSite, sigLval il.Lval) (taint.Set, shape.Shape) {
	switch sigLval.Base.Kind {
	case il.BArg:
		i := sigLval.Base.Arg
		if i < 0 || i >= len(cs.ArgTaints) {
			return taint.Empty(), shape.Bot()
		}
		if len(sigLval.Offsets) == 0 {
			return cs.ArgTaints[i], cs.ArgShapes[i]
		}
		cell, ok := shape.FindInShape(cs.ArgShapes[i], sigLval.Offsets)
		if !ok {
			return taint.Empty(), shape.Bot()
		}
		return cell.XTaint.Taints(), cell.Shape
	case il.BThis:
		if len(sigLval.Offsets) == 0 {
			return cs.ThisTaints, cs.ThisShape
		}
		cell, ok := shape.FindInShape(cs.ThisShape, sigLval.Offsets)
		if !ok || cell.XTaint.Taints().IsEmpty() {
			return taint.Singleton(taint.VarOrigin(sigLval)), shape.Bot()
		}
		return cell.XTaint.Taints(), cell.Shape
	case il.BGlobal:
		if cs.Env != nil {
			if c, ok := lvalenv.FindLval(*cs.Env, sigLval); ok && !c.XTaint.Taints().IsEmpty() {
				return c.XTaint.Taints(), c.Shape
			}
		}
		return taint.Singleton(taint.VarOrigin(sigLval)), shape.Bot()
	}
	return taint.Empty(), shape.Bot()
}

// substVar rewrites a Var-origin token's precondition and call-trace to
// reflect instantiation at this call site, folding in the preconditions
// of the concrete taints it was substituted with. Non-Var tokens pass
// through the call-trace frame only (spec §4.7's ToReturn handling).
func substVar(cs CallSite, tok taint.Token, concreteForVar func(il.Lval) (taint.Set, bool)) []taint.Token {
	frame := taint.CallFrame{Callee: cs.Callee, Pos: cs.Pos}
	if tok.Orig.Kind != taint.OriginVar {
		o := tok.Orig.WithCallFrame(frame)
		return []taint.Token{{Orig: o, Tokens: tok.Tokens}}
	}
	concrete, ok := concreteForVar(tok.Orig.Lval)
	if !ok {
		log.Warnf("signature: could not resolve %s at call to %s, skipping", tok.Orig.Lval, cs.Callee)
		return nil
	}
	var out []taint.Token
	for _, ct := range concrete {
		o := ct.Orig
		if o.Kind == taint.OriginSource {
			o = o.WithCallFrame(frame)
		}
		merged := append(append([]il.Position(nil), tok.Tokens...), ct.Tokens...)
		out = append(out, taint.Token{Orig: o, Tokens: merged})
	}
	return out
}

// substSet substitutes every Var token in s with its concrete
// instantiation, dropping Var tokens that can't be resolved.
func substSet(cs CallSite, s taint.Set) taint.Set {
	out := taint.Empty()
	for _, tok := range s {
		for _, inst := range substVar(cs, tok, func(l il.Lval) (taint.Set, bool) {
			if _, ok := lvalOfSigLval(cs, l); !ok {
				return nil, false
			}
			t, _ := taintsOfSigLval(cs, l)
			return t, true
		}) {
			out = out.Add(inst)
		}
	}
	return out
}

// Instantiate applies sig at callSite, per spec §4.7.
func Instantiate(sig Signature, cs CallSite) Instantiated {
	var out Instantiated
	out.ReturnTaint = taint.Empty()

	for _, entry := range sig {
		switch entry.Kind {
		case result.ToReturn:
			out.ReturnTaint = taint.Union(out.ReturnTaint, substSet(cs, entry.ReturnTaints))

		case result.ToLval:
			actual, ok := lvalOfSigLval(cs, entry.Lval)
			if !ok {
				log.Warnf("signature: can't resolve destination %s at call to %s, skipping ToLval entry", entry.Lval, cs.Callee)
				continue
			}
			out.LvalUpdates = append(out.LvalUpdates, LvalUpdate{Lval: actual, Taints: substSet(cs, entry.LvalTaints)})

		case result.ToSink:
			var kept []result.Weighted
			for _, w := range entry.Taints {
				insts := substVar(cs, w.Token, func(l il.Lval) (taint.Set, bool) {
					if _, ok := lvalOfSigLval(cs, l); !ok {
						return nil, false
					}
					t, _ := taintsOfSigLval(cs, l)
					return t, true
				})
				for _, inst := range insts {
					subst := map[string]taint.Formula{}
					// The substituted concrete taint's own precondition
					// (if any) must be conjoined with the symbolic
					// formula the signature carried for this entry.
					p, ok := taint.MapPreconditions(subst, w.Precondition)
					if !ok {
						continue // resolves to statically-false: drop only this taint
					}
					if inst.Orig.Kind == taint.OriginSource {
						p = taint.Conjoin(p, inst.Orig.Precondition)
					}
					kept = append(kept, result.Weighted{Token: inst, Precondition: p})
				}
			}
			if len(kept) > 0 {
				sink := entry.Sink
				sink.RuleKey = fmt.Sprintf("%s@%s", sink.RuleKey, cs.Callee)
				out.SinkResults = append(out.SinkResults, result.Result{Kind: result.ToSink, Taints: kept, Sink: sink})
			}
		}
	}
	return out
}
