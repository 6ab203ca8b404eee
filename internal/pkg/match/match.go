// Copyright 2020 Google LLC
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

// Package match defines the oracle the checker consults to classify an
// AST fragment as a source, sink, sanitizer, or propagator, plus the
// canonicalization that collapses duplicate matches recorded at both an
// outer and an inner node of the same pattern.
package match

import (
	"fmt"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// Effect distinguishes how strongly a by_side_effect source/sanitizer
// declaration binds: Only restricts the match to side-effect contexts,
// Yes allows either, No forbids it. Yes and Only behave identically
// today; Yes exists for rule-file backwards compatibility.
type Effect int

const (
	EffectNo Effect = iota
	EffectYes
	EffectOnly
)

// PropKind distinguishes which side of a propagator declaration a match
// satisfies.
type PropKind int

const (
	PropFrom PropKind = iota
	PropTo
)

// Spec is the per-kind payload a Match carries. SpecKey groups matches
// that refer to the same underlying rule-file entry (so canonicalization
// operates within, not across, rules); Exact reports whether only an
// exact positional match may participate in a checker decision.
type Spec interface {
	SpecKey() string
	Exact() bool
}

// SourceSpec describes a source pattern.
type SourceSpec struct {
	Key           string
	Label         string
	Requires      taint.Formula
	BySideEffect  Effect
	ExactMatch    bool
}

func (s SourceSpec) SpecKey() string { return "source:" + s.Key }
func (s SourceSpec) Exact() bool     { return s.ExactMatch }

// SinkSpec describes a sink pattern.
type SinkSpec struct {
	Key        string
	Requires   taint.Formula
	ExactMatch bool
}

func (s SinkSpec) SpecKey() string { return "sink:" + s.Key }
func (s SinkSpec) Exact() bool     { return s.ExactMatch }

// SanitizerSpec describes a sanitizer pattern.
type SanitizerSpec struct {
	Key          string
	BySideEffect bool
	ExactMatch   bool
}

func (s SanitizerSpec) SpecKey() string { return "sanitizer:" + s.Key }
func (s SanitizerSpec) Exact() bool     { return s.ExactMatch }

// PropagatorSpec describes one side of a propagator pattern.
type PropagatorSpec struct {
	Key           string
	Kind          PropKind
	Prop          lvalenv.PropID
	Var           il.Lval
	ReplaceLabels bool
	Label         string
	BySideEffect  bool
	Requires      taint.Formula
	ExactMatch    bool
}

func (s PropagatorSpec) SpecKey() string {
	return fmt.Sprintf("propagator:%s:%d", s.Key, s.Kind)
}
func (s PropagatorSpec) Exact() bool { return s.ExactMatch }

// Match is one occurrence of a Spec at a specific AST range, with the
// metavariable bindings captured there.
type Match[S Spec] struct {
	Range    il.Range
	Bindings map[string]il.Node
	Spec     S
}

type SourceMatch = Match[SourceSpec]
type SinkMatch = Match[SinkSpec]
type SanitizerMatch = Match[SanitizerSpec]
type PropagatorMatch = Match[PropagatorSpec]

// BestMatches implements best-match canonicalization: within each group
// of matches sharing a SpecKey, only the "best" ranges survive, so a
// pattern that recursively matches both an outer and an inner
// expression does not produce two findings for one logical match.
//
// A spec that demands exactness keeps only the innermost (most
// specific, not containing any sibling) matches in its group; any other
// spec keeps only the outermost (maximal, not contained by any sibling)
// matches, since a non-exact rule is meant to fire once per enclosing
// fragment.
func BestMatches[S Spec](matches []Match[S]) []Match[S] {
	groups := map[string][]Match[S]{}
	for _, m := range matches {
		k := m.Spec.SpecKey()
		groups[k] = append(groups[k], m)
	}

	var out []Match[S]
	for _, g := range groups {
		out = append(out, bestInGroup(g)...)
	}
	return out
}

func bestInGroup[S Spec](g []Match[S]) []Match[S] {
	if len(g) <= 1 {
		return g
	}
	exact := g[0].Spec.Exact()

	var best []Match[S]
	for i, m := range g {
		dominated := false
		for j, other := range g {
			if i == j {
				continue
			}
			if exact {
				// innermost: drop m if some other match's range is
				// strictly nested inside m's (m is not most specific).
				if m.Range.Contains(other.Range) {
					dominated = true
					break
				}
			} else {
				// outermost: drop m if it is strictly nested inside
				// some other match's range.
				if other.Range.Contains(m.Range) {
					dominated = true
					break
				}
			}
		}
		if !dominated {
			best = append(best, m)
		}
	}
	return best
}

// Config is the pluggable oracle the fixpoint consults at every AST
// fragment. HandleResults receives the final per-function results once
// the fixpoint for that function has converged.
type Config interface {
	IsSource(nodes []il.AnyNode) []SourceMatch
	IsSink(nodes []il.AnyNode) []SinkMatch
	IsSanitizer(nodes []il.AnyNode) []SanitizerMatch
	IsPropagator(nodes []il.AnyNode) []PropagatorMatch
	HandleResults(fnName string, rs []result.Result, env *lvalenv.Env)
}
