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

// Package shape describes the internal taint layout of compound values
// (records, tuples, objects): a recursive map from field offset to a
// cell carrying its own taint status and, in turn, its own nested
// shape.
package shape

import (
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// Shape is Bot (no known structure: a scalar or an opaque value) or an
// Obj mapping offsets to Cells. The zero Shape is Bot.
type Shape struct {
	fields map[il.Offset]Cell // nil means Bot
}

// Bot is the shape of a scalar or otherwise structurally-opaque value.
func Bot() Shape { return Shape{} }

// Obj builds a structured shape from its field cells.
func Obj(fields map[il.Offset]Cell) Shape {
	return Shape{fields: fields}
}

// IsBot reports whether s carries no structure.
func (s Shape) IsBot() bool { return s.fields == nil }

// Field returns the cell at offset o and whether it is present.
func (s Shape) Field(o il.Offset) (Cell, bool) {
	if s.fields == nil {
		return Cell{}, false
	}
	c, ok := s.fields[o]
	return c, ok
}

// WithField returns a copy of s with the cell at o set, upgrading Bot to
// Obj as needed.
func (s Shape) WithField(o il.Offset, c Cell) Shape {
	out := make(map[il.Offset]Cell, len(s.fields)+1)
	for k, v := range s.fields {
		out[k] = v
	}
	out[o] = c
	return Shape{fields: out}
}

// Offsets returns the shape's field offsets in no particular order.
func (s Shape) Offsets() []il.Offset {
	out := make([]il.Offset, 0, len(s.fields))
	for o := range s.fields {
		out = append(out, o)
	}
	return out
}

// XTaintKind distinguishes a cell's extended taint status.
type XTaintKind int

const (
	// XNone means this cell has never been observed; distinct from
	// XClean because it carries no "sanitized" guarantee at all.
	XNone XTaintKind = iota
	// XClean means the cell was explicitly sanitized: polymorphic
	// inheritance from a shorter offset path must not override it.
	XClean
	// XTainted means the cell holds a non-empty concrete taint set.
	XTainted
	// XSanitized is a status no code path currently produces: the
	// checker tracks a sanitizer match at the current evaluation site
	// with a plain bool, and stored cells never hold it.
	XSanitized
)

// XTaint is a cell's extended taint status.
type XTaint struct {
	Kind XTaintKind
	Set  taint.Set // valid when Kind == XTainted
}

func NoneX() XTaint    { return XTaint{Kind: XNone} }
func CleanX() XTaint   { return XTaint{Kind: XClean} }
func TaintedX(s taint.Set) XTaint {
	if s.IsEmpty() {
		return NoneX()
	}
	return XTaint{Kind: XTainted, Set: s}
}
func SanitizedX() XTaint { return XTaint{Kind: XSanitized} }

// Taints returns the cell's concrete taint set, empty for non-XTainted kinds.
func (x XTaint) Taints() taint.Set {
	if x.Kind == XTainted {
		return x.Set
	}
	return taint.Empty()
}

// Cell pairs an extended taint status with the value's nested shape.
type Cell struct {
	XTaint XTaint
	Shape  Shape
}

// EmptyCell is the zero cell: untainted, unstructured.
func EmptyCell() Cell { return Cell{XTaint: NoneX(), Shape: Bot()} }

// Elem is one element going into TupleLikeObj: its own taint set paired
// with its own nested shape.
type Elem struct {
	Taints taint.Set
	Shape  Shape
}

// TupleLikeObj builds the shape of a tuple/array literal from its
// element (taint, shape) pairs, assigning them consecutive integer
// offsets starting at 0.
func TupleLikeObj(elems []Elem) Shape {
	fields := make(map[il.Offset]Cell, len(elems))
	for i, e := range elems {
		fields[il.Oint(i)] = Cell{XTaint: TaintedX(e.Taints), Shape: e.Shape}
	}
	return Obj(fields)
}

// GatherAllTaints deep-unions the taints of every cell reachable from
// shape, the view a sink needs when it consumes a composite value
// opaquely (e.g. serializes an entire struct).
func GatherAllTaints(s Shape) taint.Set {
	out := taint.Empty()
	for _, c := range s.fields {
		out = taint.Union(out, c.XTaint.Taints())
		out = taint.Union(out, GatherAllTaints(c.Shape))
	}
	return out
}

// FindInShape looks up the cell at a field-offset path, descending
// through nested Objs. It returns false if any step of the path is
// absent.
func FindInShape(s Shape, path []il.Offset) (Cell, bool) {
	if len(path) == 0 {
		return Cell{Shape: s}, true
	}
	c, ok := s.Field(path[0])
	if !ok {
		return Cell{}, false
	}
	if len(path) == 1 {
		return c, true
	}
	return FindInShape(c.Shape, path[1:])
}

// PathTaint pairs a field-offset path with the taint set found there,
// the element type enum_in_ref produces.
type PathTaint struct {
	Path   []il.Offset
	Taints taint.Set
}

// EnumInRef enumerates every tainted cell reachable from a root cell,
// each tagged with the offset path that reaches it.
func EnumInRef(c Cell) []PathTaint {
	var out []PathTaint
	var walk func(prefix []il.Offset, cell Cell)
	walk = func(prefix []il.Offset, cell Cell) {
		if !cell.XTaint.Taints().IsEmpty() {
			out = append(out, PathTaint{Path: append([]il.Offset(nil), prefix...), Taints: cell.XTaint.Taints()})
		}
		for o, sub := range cell.Shape.fields {
			walk(append(prefix, o), sub)
		}
	}
	walk(nil, c)
	return out
}

// TaintsAndShapeRelevant reports whether a (taints, shape) pair is
// worth recording at all: either the top-level taints are non-empty, or
// some cell nested in shape is tainted.
func TaintsAndShapeRelevant(t taint.Set, s Shape) bool {
	if !t.IsEmpty() {
		return true
	}
	return !GatherAllTaints(s).IsEmpty()
}
