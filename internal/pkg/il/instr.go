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

// NodeID identifies a node within a single function's CFG.
type NodeID int

// Node is one CFG node. Every concrete kind below implements it; the
// switch in handler.Handle dispatches on the concrete type.
type Node interface {
	AnyNode
	ID() NodeID
	nodeKind()
}

type nodeBase struct {
	NID   NodeID
	Range Range
}

func (n nodeBase) ID() NodeID { return n.NID }
func (n nodeBase) Pos() Range { return n.Range }
func (n nodeBase) anyNode()   {}
func (n nodeBase) nodeKind()  {}

// InstrNode is an assignment: Lval := Expr.
type InstrNode struct {
	nodeBase
	Lval Lval
	Expr Expr
}

// CondNode is a branch condition; Expr is evaluated for its taint and,
// when Options.TrackControl is set, folded into env.Control on the
// true/false successors.
type CondNode struct {
	nodeBase
	Expr Expr
}

// ThrowNode raises an exception; Expr is evaluated like a Cond but has
// no successors besides unwind edges (modeled purely via CFG Succs).
type ThrowNode struct {
	nodeBase
	Expr Expr
}

// ReturnNode returns a value from the enclosing function. Tok
// identifies which return statement this is (a function may have
// several), used to tag ToReturn results.
type ReturnNode struct {
	nodeBase
	Tok  string
	Expr Expr // nil for a bare `return`
}

// LambdaNode declares a closure's formal parameters; each is clean()ed
// (dropping stale taint from a previous loop iteration) and then
// source-checked, since a parameter may itself be a source.
type LambdaNode struct {
	nodeBase
	Params []Lval
}

// EnterNode is the function entry node. Its OUT is the supplied initial
// environment (possibly non-empty for interprocedural re-entry).
type EnterNode struct {
	nodeBase
}

// ExitNode is the function exit node; side-effect summaries (ToLval
// results) are computed by diffing Enter's env against Exit's env.
type ExitNode struct {
	nodeBase
}

// JoinNode, GotoNode, OtherNode pass their IN through unchanged; they
// exist so CFG shape (merge points, unconditional edges, and anything a
// frontend can't classify) is representable without inventing taint
// semantics for it.
type JoinNode struct{ nodeBase }
type GotoNode struct{ nodeBase }
type OtherNode struct{ nodeBase }

func (InstrNode) nodeKind()  {}
func (CondNode) nodeKind()   {}
func (ThrowNode) nodeKind()  {}
func (ReturnNode) nodeKind() {}
func (LambdaNode) nodeKind() {}
func (EnterNode) nodeKind()  {}
func (ExitNode) nodeKind()   {}

// The New*Node constructors below are a frontend's only way to build
// Nodes from outside this package, since nodeBase's fields are
// unexported: a lowering pass picks an id and a source range and gets
// back an opaque Node to hand to CFG.AddNode.

func NewInstrNode(id NodeID, r Range, lval Lval, expr Expr) InstrNode {
	return InstrNode{nodeBase: nodeBase{NID: id, Range: r}, Lval: lval, Expr: expr}
}

func NewCondNode(id NodeID, r Range, expr Expr) CondNode {
	return CondNode{nodeBase: nodeBase{NID: id, Range: r}, Expr: expr}
}

func NewThrowNode(id NodeID, r Range, expr Expr) ThrowNode {
	return ThrowNode{nodeBase: nodeBase{NID: id, Range: r}, Expr: expr}
}

func NewReturnNode(id NodeID, r Range, tok string, expr Expr) ReturnNode {
	return ReturnNode{nodeBase: nodeBase{NID: id, Range: r}, Tok: tok, Expr: expr}
}

func NewLambdaNode(id NodeID, r Range, params []Lval) LambdaNode {
	return LambdaNode{nodeBase: nodeBase{NID: id, Range: r}, Params: params}
}

func NewEnterNode(id NodeID, r Range) EnterNode {
	return EnterNode{nodeBase: nodeBase{NID: id, Range: r}}
}

func NewExitNode(id NodeID, r Range) ExitNode {
	return ExitNode{nodeBase: nodeBase{NID: id, Range: r}}
}

func NewJoinNode(id NodeID, r Range) JoinNode {
	return JoinNode{nodeBase{NID: id, Range: r}}
}

func NewGotoNode(id NodeID, r Range) GotoNode {
	return GotoNode{nodeBase{NID: id, Range: r}}
}

func NewOtherNode(id NodeID, r Range) OtherNode {
	return OtherNode{nodeBase{NID: id, Range: r}}
}

// CFG is one function's control-flow graph. Building it from source is
// out of scope; the fixpoint only walks Preds/Succs.
type CFG struct {
	FuncName string
	Nodes    map[NodeID]Node
	Preds    map[NodeID][]NodeID
	Succs    map[NodeID][]NodeID
	Entry    NodeID
	Exit     NodeID
	// Order is a reverse-postorder (or any deterministic topological-ish
	// order) traversal seed for the worklist; a frontend may leave it
	// nil, in which case the fixpoint seeds the worklist from Entry
	// alone and lets successor re-enqueueing reach the rest.
	Order []NodeID
}

// AddNode registers a node and its ID in the CFG.
func (c *CFG) AddNode(n Node) {
	if c.Nodes == nil {
		c.Nodes = map[NodeID]Node{}
	}
	c.Nodes[n.ID()] = n
}

// AddEdge records a directed edge From -> To.
func (c *CFG) AddEdge(from, to NodeID) {
	if c.Succs == nil {
		c.Succs = map[NodeID][]NodeID{}
	}
	if c.Preds == nil {
		c.Preds = map[NodeID][]NodeID{}
	}
	c.Succs[from] = append(c.Succs[from], to)
	c.Preds[to] = append(c.Preds[to], from)
}
