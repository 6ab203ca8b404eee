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

package il

// Expr is the IL's expression sum type. Every concrete expression kind
// below implements it.
type Expr interface {
	AnyNode
	exprNode()
}

type base struct {
	Range Range
}

func (b base) Pos() Range   { return b.Range }
func (b base) anyNode()     {}

// LvalExpr is an expression that reads an Lval.
type LvalExpr struct {
	base
	Lval Lval
}

func (LvalExpr) exprNode() {}

func NewLvalExpr(r Range, l Lval) LvalExpr { return LvalExpr{base{r}, l} }

// ConstExpr is a literal constant. Kind records its static type for the
// type-based-drop policies.
type ConstExpr struct {
	base
	Kind  ValueKind
	Value interface{}
}

func (ConstExpr) exprNode() {}

// BinOpExpr is a binary operator application.
type BinOpExpr struct {
	base
	Op         string
	X, Y       Expr
	IsComparison bool
	Kind       ValueKind
}

func (BinOpExpr) exprNode() {}

// CallExpr is a function or method call used as an expression (its
// value is the call's single return, or part of a tuple via Extract
// elsewhere). Recv is non-nil for method calls.
type CallExpr struct {
	base
	Fn       Expr // the callee expression; for a static call this is typically an LvalExpr naming the function
	FnName   string // resolved static name, "" if the callee could not be resolved statically
	Recv     Expr   // non-nil for method calls
	Args     []Expr
	Kind     ValueKind
}

func (CallExpr) exprNode() {}

// NewExpr is a constructor invocation (object/record allocation).
type NewExpr struct {
	base
	TypeName string
	Ctor     *CallExpr // nil when the type has no explicit constructor
	Args     []Expr
}

func (NewExpr) exprNode() {}

// CallSpecialExpr models built-in/special forms (e.g. variadic spreads,
// language builtins) the engine conservatively unions argument taint
// through, without sink-checking beyond the enclosing instruction.
type CallSpecialExpr struct {
	base
	Args []Expr
}

func (CallSpecialExpr) exprNode() {}

// AssignAnonExpr is a function-literal/closure value. It is opaque to
// the checker: it carries no taint of its own.
type AssignAnonExpr struct {
	base
}

func (AssignAnonExpr) exprNode() {}

// TupleElem is one keyed element of a RecordExpr.
type TupleElem struct {
	Key  Offset // offset this element occupies in the resulting shape
	Expr Expr
}

// TupleExpr builds a tuple/array-like compound value.
type TupleExpr struct {
	base
	Elems []Expr
}

func (TupleExpr) exprNode() {}

// RecordExpr builds a record/struct/object literal.
type RecordExpr struct {
	base
	Fields []TupleElem
}

func (RecordExpr) exprNode() {}

// ExtractExpr pulls one component out of a multi-value result (e.g. the
// second return of a (value, ok) call).
type ExtractExpr struct {
	base
	Tuple Expr
	Index int
}

func (ExtractExpr) exprNode() {}

// IndexExpr reads a container at a computed index, e.g. `a[i]`. Per the
// engine's non-goal of precise array-index sensitivity, every
// computed-index read or write of a given container collapses onto the
// single Oany() offset of Elem -- Index is carried separately only so
// the checker can decide, via TaintAssumeSafeIndexes, whether the
// index expression's own taint flows into the read.
type IndexExpr struct {
	base
	Elem  Lval // container's Lval, already extended with an Oany() offset
	Index Expr
}

func (IndexExpr) exprNode() {}
