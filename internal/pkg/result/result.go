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

// Package result defines the three findings the engine can emit --
// source-reaches-sink, return-taint summaries, and by-side-effect
// argument-taint summaries -- and the conduit that resolves pending
// preconditions, reverses token traces, and streams results out through
// a caller-supplied handler.
package result

import (
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/log"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// Kind distinguishes the three Result variants of spec §3.
type Kind int

const (
	ToSink Kind = iota
	ToReturn
	ToLval
)

// SinkRef is enough information about the sink match that produced a
// ToSink result for a handler to report a finding, without this
// package importing match: match.Config.HandleResults already takes a
// []Result, so result must not import match back.
type SinkRef struct {
	Range    il.Range
	Bindings map[string]il.Node
	RuleKey  string
}

// Weighted pairs one taint token with the precondition formula that
// must hold for it to actually satisfy the sink it reached -- the
// "taints_with_precondition" of spec §3's ToSink.
type Weighted struct {
	Token        taint.Token
	Precondition taint.Formula
}

// Result is the tagged variant of spec §3.
type Result struct {
	Kind Kind

	// ToSink
	Taints    []Weighted
	Sink      SinkRef
	MergedEnv *lvalenv.Env

	// ToReturn
	ReturnTok    string
	ReturnTaints taint.Set

	// ToLval
	Lval       il.Lval
	LvalTaints taint.Set
}

// NewToSink builds a ToSink result, pairing each token in taints with
// its precondition (conjoined with the token's own Source-origin
// precondition, if any), and merging every contributing source's
// captured metavariable bindings with the sink's own, per spec §4.7.
//
// Bindings a key sets in two or more *sources* that disagree are
// dropped from the merge entirely (neither source's value is trusted);
// a key only the sink or a single source sets is kept unconditionally.
// Once sources are merged, the sink's own bindings are reconciled:
// under unifyMvars a collision with the sink is a strict failure, and
// the offending token is dropped from the result rather than the whole
// finding (spec §7's "no ToSink emitted for that pair"); otherwise the
// sink's value wins the collision (sink-biased union).
func NewToSink(taints taint.Set, sinkRequires taint.Formula, sink SinkRef, unifyMvars bool) Result {
	merged, conflicted := mergeSourceBindings(taints)

	var ws []Weighted
	for _, tok := range taints {
		if unifyMvars && tok.Orig.Kind == taint.OriginSource && bindingsConflict(tok.Orig.PM.Bindings, sink.Bindings) {
			continue
		}
		p := sinkRequires
		if tok.Orig.Kind == taint.OriginSource {
			p = taint.Conjoin(tok.Orig.Precondition, sinkRequires)
		}
		ws = append(ws, Weighted{Token: tok, Precondition: p})
	}

	for k, v := range sink.Bindings {
		existing, ok := merged[k]
		switch {
		case conflicted[k]:
			// already unusable from disagreeing sources
		case !ok:
			merged[k] = v
		case existing.Pos() != v.Pos() && unifyMvars:
			delete(merged, k)
			conflicted[k] = true
		case existing.Pos() != v.Pos():
			merged[k] = v // sink-biased union
		}
	}
	sink.Bindings = merged
	return Result{Kind: ToSink, Taints: ws, Sink: sink}
}

// mergeSourceBindings merges the captured bindings of every Source-origin
// token in taints. A key set by two sources to different nodes is
// recorded as conflicted and excluded from the merged map; a key every
// source agrees on (or that only one source sets) is kept.
func mergeSourceBindings(taints taint.Set) (map[string]il.Node, map[string]bool) {
	merged := map[string]il.Node{}
	conflicted := map[string]bool{}
	for _, tok := range taints {
		if tok.Orig.Kind != taint.OriginSource {
			continue
		}
		for k, v := range tok.Orig.PM.Bindings {
			if conflicted[k] {
				continue
			}
			if existing, ok := merged[k]; ok {
				if existing.Pos() != v.Pos() {
					delete(merged, k)
					conflicted[k] = true
				}
				continue
			}
			merged[k] = v
		}
	}
	return merged, conflicted
}

// bindingsConflict reports whether a and b share a key bound to
// different nodes -- AST-node identity is approximated by source
// range, the only thing every il.Node exposes.
func bindingsConflict(a, b map[string]il.Node) bool {
	for k, v := range a {
		if ov, ok := b[k]; ok && ov.Pos() != v.Pos() {
			return true
		}
	}
	return false
}

func NewToReturn(tok string, taints taint.Set) Result {
	return Result{Kind: ToReturn, ReturnTok: tok, ReturnTaints: taints}
}

func NewToLval(l il.Lval, taints taint.Set) Result {
	return Result{Kind: ToLval, Lval: l, LvalTaints: taints}
}

// resolve drops every Weighted taint whose precondition does not
// provably hold against the label multiset of all taints in the same
// ToSink result -- spec §7's "unresolved polymorphic precondition ->
// dropped from that specific result, other taints retained" and
// "resolved later" from spec §3. A nil SolvePrecondition verdict
// (too polymorphic to decide) is treated the same as false: the
// finding is sound-by-omission rather than risk a false positive the
// user can't act on, and the drop is logged.
func resolve(fnName string, r Result) (Result, bool) {
	if r.Kind != ToSink {
		return r, true
	}
	labels := map[string]bool{}
	for _, w := range r.Taints {
		if w.Token.Orig.Kind == taint.OriginSource {
			labels[w.Token.Orig.Label] = true
		}
	}
	var kept []Weighted
	for _, w := range r.Taints {
		verdict := taint.SolvePrecondition(labels, w.Precondition)
		switch {
		case verdict == nil:
			log.Warnf("%s: sink %s: precondition %v undecidable at this point, dropping taint", fnName, r.Sink.RuleKey, w.Precondition)
		case !*verdict:
			// precondition explicitly false: drop silently, this is routine.
		default:
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return Result{}, false
	}
	r.Taints = kept
	return r, true
}

// reverseTrace reverses the program-location trace of every taint
// token in r exactly once, per spec §4.1's "reversed exactly once, at
// result emission" rule.
func reverseTrace(r Result) Result {
	switch r.Kind {
	case ToSink:
		for i, w := range r.Taints {
			w.Token.Tokens = reversePositions(w.Token.Tokens)
			r.Taints[i] = w
		}
	case ToReturn:
		r.ReturnTaints = taint.ReverseTokens(r.ReturnTaints)
	case ToLval:
		r.LvalTaints = taint.ReverseTokens(r.LvalTaints)
	}
	return r
}

func reversePositions(ps []il.Position) []il.Position {
	out := make([]il.Position, len(ps))
	for i, p := range ps {
		out[len(ps)-1-i] = p
	}
	return out
}

// Handler is the subset of match.Config this package needs --
// match.Config is a superset (it also carries the four classification
// predicates), satisfied directly by any match.Config value.
type Handler interface {
	HandleResults(fnName string, rs []Result, env *lvalenv.Env)
}

// Emit resolves pending preconditions on every ToSink result, reverses
// every result's token trace, and calls handler.HandleResults with
// whatever survives.
func Emit(handler Handler, fnName string, rs []Result, env *lvalenv.Env) {
	var out []Result
	for _, r := range rs {
		resolved, ok := resolve(fnName, r)
		if !ok {
			continue
		}
		out = append(out, reverseTrace(resolved))
	}
	handler.HandleResults(fnName, out, env)
}
