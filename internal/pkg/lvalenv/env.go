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

// Package lvalenv is the per-program-point dataflow state the fixpoint
// carries between nodes: tainted storage, the current control taint,
// and the bookkeeping a propagator spec needs to match a taint observed
// at one l-value against a destination observed at another.
package lvalenv

import (
	"github.com/eapache/queue"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/shape"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// PropID identifies one propagator spec, the key Pending/Propagated are
// indexed by.
type PropID string

// Env is the full dataflow state at one CFG node.
type Env struct {
	Tainted    map[il.VarID]shape.Cell
	Control    taint.Set
	Pending    map[PropID]*queue.Queue
	Propagated map[PropID]taint.Set
}

// Empty returns the bottom environment.
func Empty() Env {
	return Env{
		Tainted:    map[il.VarID]shape.Cell{},
		Control:    taint.Empty(),
		Pending:    map[PropID]*queue.Queue{},
		Propagated: map[PropID]taint.Set{},
	}
}

func (e Env) clone() Env {
	out := Env{
		Tainted:    make(map[il.VarID]shape.Cell, len(e.Tainted)),
		Control:    e.Control,
		Pending:    make(map[PropID]*queue.Queue, len(e.Pending)),
		Propagated: make(map[PropID]taint.Set, len(e.Propagated)),
	}
	for k, v := range e.Tainted {
		out.Tainted[k] = v
	}
	for k, v := range e.Propagated {
		out.Propagated[k] = v
	}
	for k, q := range e.Pending {
		nq := queue.New()
		for i := 0; i < q.Length(); i++ {
			nq.Add(q.Get(i))
		}
		out.Pending[k] = nq
	}
	return out
}

// mergeCell joins two cells per the invariant that Clean joined with
// Tainted(T) yields Tainted(T): a MAY-analysis never lets one branch's
// sanitization suppress another branch's taint.
func mergeCell(a, b shape.Cell) shape.Cell {
	var xt shape.XTaint
	switch {
	case a.XTaint.Kind == shape.XTainted || b.XTaint.Kind == shape.XTainted:
		xt = shape.TaintedX(taint.Union(a.XTaint.Taints(), b.XTaint.Taints()))
	case a.XTaint.Kind == shape.XClean || b.XTaint.Kind == shape.XClean:
		xt = shape.CleanX()
	default:
		xt = shape.NoneX()
	}
	return shape.Cell{XTaint: xt, Shape: mergeShape(a.Shape, b.Shape)}
}

func mergeShape(a, b shape.Shape) shape.Shape {
	if a.IsBot() {
		return b
	}
	if b.IsBot() {
		return a
	}
	out := a
	for _, o := range b.Offsets() {
		bc, _ := b.Field(o)
		if ac, ok := a.Field(o); ok {
			out = out.WithField(o, mergeCell(ac, bc))
		} else {
			out = out.WithField(o, bc)
		}
	}
	return out
}

// Union is the join operator used at CFG merge points.
func Union(a, b Env) Env {
	out := Env{
		Tainted:    map[il.VarID]shape.Cell{},
		Control:    taint.Union(a.Control, b.Control),
		Pending:    map[PropID]*queue.Queue{},
		Propagated: map[PropID]taint.Set{},
	}
	for id, c := range a.Tainted {
		out.Tainted[id] = c
	}
	for id, c := range b.Tainted {
		if existing, ok := out.Tainted[id]; ok {
			out.Tainted[id] = mergeCell(existing, c)
		} else {
			out.Tainted[id] = c
		}
	}
	for id, s := range a.Propagated {
		out.Propagated[id] = s
	}
	for id, s := range b.Propagated {
		out.Propagated[id] = taint.Union(out.Propagated[id], s)
	}
	for id, q := range a.Pending {
		nq := queue.New()
		for i := 0; i < q.Length(); i++ {
			nq.Add(q.Get(i))
		}
		out.Pending[id] = nq
	}
	for id, q := range b.Pending {
		nq, ok := out.Pending[id]
		if !ok {
			nq = queue.New()
			out.Pending[id] = nq
		}
		for i := 0; i < q.Length(); i++ {
			nq.Add(q.Get(i))
		}
	}
	return out
}

// Equal reports whether a and b carry the same information, the
// fixpoint's stopping condition.
func Equal(a, b Env) bool {
	if !taint.Equal(a.Control, b.Control) {
		return false
	}
	if len(a.Tainted) != len(b.Tainted) {
		return false
	}
	for id, ca := range a.Tainted {
		cb, ok := b.Tainted[id]
		if !ok || !cellEqual(ca, cb) {
			return false
		}
	}
	if len(a.Propagated) != len(b.Propagated) {
		return false
	}
	for id, sa := range a.Propagated {
		sb, ok := b.Propagated[id]
		if !ok || !taint.Equal(sa, sb) {
			return false
		}
	}
	if len(a.Pending) != len(b.Pending) {
		return false
	}
	for id, qa := range a.Pending {
		qb, ok := b.Pending[id]
		if !ok || qa.Length() != qb.Length() {
			return false
		}
	}
	return true
}

func cellEqual(a, b shape.Cell) bool {
	if a.XTaint.Kind != b.XTaint.Kind {
		return false
	}
	if !taint.Equal(a.XTaint.Taints(), b.XTaint.Taints()) {
		return false
	}
	aOff, bOff := a.Shape.Offsets(), b.Shape.Offsets()
	if len(aOff) != len(bOff) {
		return false
	}
	for _, o := range aOff {
		ac, _ := a.Shape.Field(o)
		bc, ok := b.Shape.Field(o)
		if !ok || !cellEqual(ac, bc) {
			return false
		}
	}
	return true
}

// EqualByLval restricts Equal's comparison to one root variable, used
// by widening heuristics that only care whether a specific lval
// stabilized.
func EqualByLval(a, b Env, v il.VarID) bool {
	ca, aok := a.Tainted[v]
	cb, bok := b.Tainted[v]
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	return cellEqual(ca, cb)
}

// FindLval is an exact lookup: it never falls back to polymorphic
// inheritance from a shorter offset path.
func FindLval(e Env, l il.Lval) (shape.Cell, bool) {
	root, ok := e.Tainted[l.Base.CanonicalVar()]
	if !ok {
		return shape.Cell{}, false
	}
	if len(l.Offsets) == 0 {
		return root, true
	}
	return shape.FindInShape(root.Shape, l.Offsets)
}

func setCellAt(root shape.Cell, offsets []il.Offset, set func(shape.Cell) shape.Cell) shape.Cell {
	if len(offsets) == 0 {
		return set(root)
	}
	o := offsets[0]
	child, _ := root.Shape.Field(o)
	newChild := setCellAt(child, offsets[1:], set)
	root.Shape = root.Shape.WithField(o, newChild)
	return root
}

// Add unions taints into the cell at l, creating intermediate Obj cells
// along the path if it doesn't exist yet.
func Add(e Env, l il.Lval, taints taint.Set) Env {
	return AddShape(e, l, taints, shape.Bot())
}

// AddShape is Add, additionally installing/merging sh into the target
// cell's nested shape.
func AddShape(e Env, l il.Lval, taints taint.Set, sh shape.Shape) Env {
	out := e.clone()
	root := out.Tainted[l.Base.CanonicalVar()]
	out.Tainted[l.Base.CanonicalVar()] = setCellAt(root, l.Offsets, func(c shape.Cell) shape.Cell {
		return shape.Cell{
			XTaint: shape.TaintedX(taint.Union(c.XTaint.Taints(), taints)),
			Shape:  mergeShape(c.Shape, sh),
		}
	})
	return out
}

// Clean marks the cell at l as explicitly sanitized and drops its
// subtree: any taint that would otherwise be inherited through a field
// under l no longer flows.
func Clean(e Env, l il.Lval) Env {
	out := e.clone()
	root := out.Tainted[l.Base.CanonicalVar()]
	out.Tainted[l.Base.CanonicalVar()] = setCellAt(root, l.Offsets, func(shape.Cell) shape.Cell {
		return shape.Cell{XTaint: shape.CleanX(), Shape: shape.Bot()}
	})
	return out
}

// GetControlTaints returns the taints currently guarding control flow.
func GetControlTaints(e Env) taint.Set { return e.Control }

// AddControlTaints unions T into the environment's control taint.
func AddControlTaints(e Env, t taint.Set) Env {
	out := e.clone()
	out.Control = taint.Union(out.Control, t)
	return out
}

// PropagateTo deposits t as the taint a propagator spec id has observed
// at its source side, available to a later PropagateFrom.
func PropagateTo(e Env, id PropID, t taint.Set) Env {
	out := e.clone()
	out.Propagated[id] = taint.Union(out.Propagated[id], t)
	return out
}

// PropagateFrom consumes and returns whatever taint has been deposited
// for id, or (empty, false, e) if none has.
func PropagateFrom(e Env, id PropID) (taint.Set, bool, Env) {
	t, ok := e.Propagated[id]
	if !ok {
		return taint.Empty(), false, e
	}
	out := e.clone()
	delete(out.Propagated, id)
	return t, true, out
}

// PendingPropagation records l as a destination awaiting a later match
// of propagator id's source side.
func PendingPropagation(e Env, id PropID, l il.Lval) Env {
	out := e.clone()
	q, ok := out.Pending[id]
	if !ok {
		q = queue.New()
		out.Pending[id] = q
	}
	q.Add(l)
	return out
}

// DrainPending removes and returns every lval queued as a destination
// for propagator id.
func DrainPending(e Env, id PropID) ([]il.Lval, Env) {
	q, ok := e.Pending[id]
	if !ok || q.Length() == 0 {
		return nil, e
	}
	out := e.clone()
	oq := out.Pending[id]
	var lvals []il.Lval
	for oq.Length() > 0 {
		lvals = append(lvals, oq.Remove().(il.Lval))
	}
	return lvals, out
}

// TaintedRoot pairs a root variable with its cell, the element type
// SeqOfTainted enumerates.
type TaintedRoot struct {
	Var  il.VarID
	Cell shape.Cell
}

// SeqOfTainted enumerates every (root, cell) pair currently tracked.
func SeqOfTainted(e Env) []TaintedRoot {
	out := make([]TaintedRoot, 0, len(e.Tainted))
	for v, c := range e.Tainted {
		out = append(out, TaintedRoot{Var: v, Cell: c})
	}
	return out
}
