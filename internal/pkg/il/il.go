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

// Package il defines the intermediate-language and control-flow-graph
// types the taint engine operates over. Lowering real source code into
// these types, and building the CFG itself, is the job of a frontend;
// this package only fixes the shapes a frontend must produce and the
// fixpoint must consume.
package il

import "fmt"

// Position is the AST-generic source location carried by every IL node.
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Range spans from a start to an end Position. Best-match canonicalization
// compares Ranges to decide which of several overlapping matches is
// the canonical one.
type Range struct {
	Start, End Position
}

// Contains reports whether r strictly contains other (other is nested
// inside r, at the same file).
func (r Range) Contains(other Range) bool {
	if r.Start.File != other.Start.File {
		return false
	}
	startsBefore := less(r.Start, other.Start) || r.Start == other.Start
	endsAfter := less(other.End, r.End) || r.End == other.End
	return startsBefore && endsAfter && r != other
}

func less(a, b Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Col < b.Col
}

// VarID identifies a root variable (a local, a parameter, or a global)
// within a function. Field/index access on top of a VarID is expressed
// with Offsets.
type VarID struct {
	Name  string
	Scope string // function name the variable is local to; Base.CanonicalVar uses "$global" for globals
}

func (v VarID) String() string {
	if v.Scope == "" {
		return v.Name
	}
	return v.Scope + "#" + v.Name
}

// OffsetKind distinguishes the four ways an Lval can extend a base path.
type OffsetKind int

const (
	// OField is a named struct/record field access, e.g. `.a`.
	OField OffsetKind = iota
	// OStr is a string-keyed map/object access, e.g. `["key"]`.
	OStr
	// OInt is a constant integer index, e.g. `[3]`.
	OInt
	// OAny is a computed/unknown index; polymorphic inheritance
	// never extends through it.
	OAny
)

// Offset is one step in an Lval's path.
type Offset struct {
	Kind OffsetKind
	Name string // valid for OField, OStr
	Idx  int    // valid for OInt
}

func Ofld(name string) Offset { return Offset{Kind: OField, Name: name} }
func Ostr(key string) Offset  { return Offset{Kind: OStr, Name: key} }
func Oint(i int) Offset       { return Offset{Kind: OInt, Idx: i} }
func Oany() Offset            { return Offset{Kind: OAny} }

func (o Offset) String() string {
	switch o.Kind {
	case OField:
		return "." + o.Name
	case OStr:
		return fmt.Sprintf("[%q]", o.Name)
	case OInt:
		return fmt.Sprintf("[%d]", o.Idx)
	default:
		return "[*]"
	}
}

// IsFieldLike reports whether the offset is a Dot/Str/Int offset, i.e.
// the kinds that polymorphic field inheritance is allowed to
// extend through. OAny is excluded.
func (o Offset) IsFieldLike() bool {
	return o.Kind == OField || o.Kind == OStr || o.Kind == OInt
}

// BaseKind distinguishes the four roots a polymorphic Var(lval) taint,
// or a concrete Lval, can stand on.
type BaseKind int

const (
	// BVar is a concrete local/parameter variable within a function body.
	BVar BaseKind = iota
	// BArg is a formal-parameter position, used only inside a function
	// signature's polymorphic Var(lval) taints -- it stands for
	// "whatever the caller passes at this position" until instantiated.
	BArg
	BThis
	BGlobal
)

// Base is the root of an Lval's path.
type Base struct {
	Kind BaseKind
	// Arg is the 0-based formal-parameter position, valid when Kind == BArg.
	Arg int
	// Var identifies the concrete variable, valid when Kind == BVar.
	Var VarID
	// Name holds the global's name when Kind == BGlobal.
	Name string
}

func ArgBase(pos int) Base    { return Base{Kind: BArg, Arg: pos} }
func VarBase(v VarID) Base    { return Base{Kind: BVar, Var: v} }
func ThisBase() Base          { return Base{Kind: BThis} }
func GlobalBase(n string) Base { return Base{Kind: BGlobal, Name: n} }

// CanonicalVar maps any Base to the VarID an LvalEnv indexes its
// tainted-cell tree by. A concrete Lval's Base is always BVar and maps
// to itself; BThis and BGlobal give `this` and each global a single
// stable VarID so they can be tracked in the same tree as locals. BArg
// should never reach a concrete environment -- it only appears inside
// a function signature's polymorphic Var(lval) taints, which are
// resolved to a concrete Base via signature instantiation before
// touching an Env.
func (b Base) CanonicalVar() VarID {
	switch b.Kind {
	case BThis:
		return VarID{Name: "this"}
	case BGlobal:
		return VarID{Name: b.Name, Scope: "$global"}
	case BArg:
		return VarID{Name: fmt.Sprintf("$arg%d", b.Arg), Scope: "$unresolved"}
	default:
		return b.Var
	}
}

func (b Base) String() string {
	switch b.Kind {
	case BArg:
		return fmt.Sprintf("arg(%d)", b.Arg)
	case BThis:
		return "this"
	case BGlobal:
		return "global:" + b.Name
	default:
		return b.Var.String()
	}
}

// Lval is an addressable storage path: base.off1.off2.... Range is the
// source location of this specific prefix's occurrence (e.g. `x.a` has
// its own Range distinct from the enclosing `x.a.b`), letting the
// oracle classify any prefix of an l-value path as its own source,
// sink, or sanitizer, per spec §4.5's bottom-up l-value walk. It is set
// by the frontend; zero Range is fine for Lvals that only exist to
// address storage, never to be matched directly (e.g. signature l-values).
type Lval struct {
	Base    Base
	Offsets []Offset
	Range   Range
}

func NewLval(base Base, offsets ...Offset) Lval {
	return Lval{Base: base, Offsets: append([]Offset(nil), offsets...)}
}

// Pos implements AnyNode.
func (l Lval) Pos() Range { return l.Range }
func (l Lval) anyNode()   {}

// WithRange returns a copy of l tagged with the source location of
// this specific path prefix.
func (l Lval) WithRange(r Range) Lval {
	l.Range = r
	return l
}

// Prefix returns the Lval truncated to its first n offsets.
func (l Lval) Prefix(n int) Lval {
	return Lval{Base: l.Base, Offsets: append([]Offset(nil), l.Offsets[:n]...)}
}

// Extend returns a new Lval with one more offset appended.
func (l Lval) Extend(o Offset) Lval {
	next := make([]Offset, len(l.Offsets)+1)
	copy(next, l.Offsets)
	next[len(l.Offsets)] = o
	return Lval{Base: l.Base, Offsets: next}
}

func (l Lval) String() string {
	s := l.Base.String()
	for _, o := range l.Offsets {
		s += o.String()
	}
	return s
}

// Key returns a comparable representation suitable for map keys.
func (l Lval) Key() string { return l.String() }

// ValueKind classifies an expression's static type for the
// taint_assume_safe_booleans/numbers/comparisons policies.
type ValueKind int

const (
	KindOther ValueKind = iota
	KindBool
	KindNumber
	KindString
)

// AnyNode is the argument type of the four oracle predicates: a
// closed union of everything the match oracle can be asked to classify.
type AnyNode interface {
	anyNode()
	Pos() Range
}
