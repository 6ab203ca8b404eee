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

package taint

import "strings"

// FormulaKind distinguishes the nodes of a `requires` boolean formula
// over labels.
type FormulaKind int

const (
	FTrue FormulaKind = iota
	FFalse
	FLabel
	FAnd
	FOr
	FNot
)

// Formula is a label-algebra expression: and/or/not/label, or the
// trivially-true formula (the default when a source/sink declares no
// `requires`).
type Formula struct {
	Kind  FormulaKind
	Label string
	Args  []Formula
}

func True() Formula             { return Formula{Kind: FTrue} }
func False() Formula            { return Formula{Kind: FFalse} }
func Label(name string) Formula { return Formula{Kind: FLabel, Label: name} }
func And(fs ...Formula) Formula { return Formula{Kind: FAnd, Args: fs} }
func Or(fs ...Formula) Formula  { return Formula{Kind: FOr, Args: fs} }
func Not(f Formula) Formula     { return Formula{Kind: FNot, Args: []Formula{f}} }

func formulaKey(f Formula) string {
	switch f.Kind {
	case FTrue:
		return "T"
	case FFalse:
		return "F"
	case FLabel:
		return "L(" + f.Label + ")"
	case FAnd, FOr, FNot:
		parts := make([]string, len(f.Args))
		for i, a := range f.Args {
			parts[i] = formulaKey(a)
		}
		op := map[FormulaKind]string{FAnd: "&", FOr: "|", FNot: "!"}[f.Kind]
		return op + "(" + strings.Join(parts, ",") + ")"
	}
	return "?"
}

// SolvePrecondition evaluates f against the set of labels held by a set
// of taints (their union forms the label multiset). A label absent
// from labels evaluates to false, since MAY-analysis taint sets are
// complete at any program point -- a label not present in the union
// simply never held. It returns nil only when f (or a sub-formula that
// decides the result) has an unrecognized Kind.
func SolvePrecondition(labels map[string]bool, f Formula) *bool {
	v, ok := eval(labels, f)
	if !ok {
		return nil
	}
	return &v
}

func eval(labels map[string]bool, f Formula) (bool, bool) {
	switch f.Kind {
	case FTrue:
		return true, true
	case FFalse:
		return false, true
	case FLabel:
		return labels[f.Label], true
	case FNot:
		v, ok := eval(labels, f.Args[0])
		return !v, ok
	case FAnd:
		allOK := true
		for _, a := range f.Args {
			v, ok := eval(labels, a)
			if !ok {
				allOK = false
				continue
			}
			if !v {
				return false, true // short-circuit: false is decidable regardless of siblings
			}
		}
		return true, allOK
	case FOr:
		allOK := true
		for _, a := range f.Args {
			v, ok := eval(labels, a)
			if !ok {
				allOK = false
				continue
			}
			if v {
				return true, true
			}
		}
		return false, allOK
	}
	return false, false
}

// MapPreconditions applies a substitution (label -> replacement
// Formula) to f, used when a polymorphic Var taint carrying a symbolic
// precondition is instantiated with concrete taints at a call site. The
// second return is false exactly when the substituted formula resolves
// to the statically-false constant, meaning the taint it guards should
// be dropped entirely; callers that don't care can ignore it and just
// check the returned Formula's Kind.
func MapPreconditions(subst map[string]Formula, f Formula) (Formula, bool) {
	switch f.Kind {
	case FTrue:
		return f, true
	case FFalse:
		return f, false
	case FLabel:
		if r, ok := subst[f.Label]; ok {
			return r, r.Kind != FFalse
		}
		return f, true
	case FNot:
		inner, ok := MapPreconditions(subst, f.Args[0])
		if !ok {
			return True(), true
		}
		if inner.Kind == FTrue {
			return False(), false
		}
		return Not(inner), true
	case FAnd:
		var args []Formula
		for _, a := range f.Args {
			sub, ok := MapPreconditions(subst, a)
			if !ok {
				return False(), false
			}
			args = append(args, sub)
		}
		return And(args...), true
	case FOr:
		var args []Formula
		anyTrue := false
		for _, a := range f.Args {
			sub, ok := MapPreconditions(subst, a)
			if !ok {
				continue // a false disjunct drops out of the Or entirely
			}
			args = append(args, sub)
			if sub.Kind == FTrue {
				anyTrue = true
			}
		}
		if anyTrue {
			return True(), true
		}
		if len(args) == 0 {
			return False(), false
		}
		if len(args) == 1 {
			return args[0], true
		}
		return Or(args...), true
	}
	return f, true
}

// Conjoin builds `a AND b`, collapsing trivial Trues so substitution
// chains don't accumulate no-op conjuncts.
func Conjoin(a, b Formula) Formula {
	if a.Kind == FTrue {
		return b
	}
	if b.Kind == FTrue {
		return a
	}
	return And(a, b)
}
