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

// Package taint implements the representation of a single taint token:
// its origin, its accumulated call/program trace, and the
// label/precondition algebra that sinks use to decide whether a given
// set of taints actually satisfies a `requires` formula.
package taint

import (
	"fmt"

	"github.com/taintpath/taintflow/internal/pkg/il"
)

// OriginKind distinguishes the three ways a taint token can have come
// to exist.
type OriginKind int

const (
	// OriginSource traces back to a user-specified source pattern match.
	OriginSource OriginKind = iota
	// OriginVar is polymorphic: "whatever the caller passes through this
	// l-value", used in interprocedural function summaries.
	OriginVar
	// OriginControl flowed through a control dependency rather than data.
	OriginControl
)

// CallFrame is one entry in a Source origin's call-trace: the taint was
// carried across this call site.
type CallFrame struct {
	Callee string
	Pos    il.Position
}

// Origin is the tagged variant describing where a taint token came from.
type Origin struct {
	Kind OriginKind

	// valid when Kind == OriginSource
	PM            MatchRef // opaque reference to the pattern match that introduced this taint
	Label         string
	CallTrace     []CallFrame
	Precondition  Formula

	// valid when Kind == OriginVar
	Lval il.Lval
}

// MatchRef is an opaque handle to the pattern match that produced a
// Source origin. The engine never inspects ID/Pos; they are only
// round-tripped back out to config.HandleResults. Bindings is the
// source match's captured metavariables, carried along so a later
// ToSink result can merge them with the sink's own bindings per spec
// §4.7's metavariable unification.
type MatchRef struct {
	ID       string
	Pos      il.Range
	Bindings map[string]il.Node
}

func SourceOrigin(pm MatchRef, label string, requires Formula) Origin {
	return Origin{Kind: OriginSource, PM: pm, Label: label, Precondition: requires}
}

func VarOrigin(l il.Lval) Origin {
	return Origin{Kind: OriginVar, Lval: l}
}

var ControlOrigin = Origin{Kind: OriginControl}

func (o Origin) key() string {
	switch o.Kind {
	case OriginSource:
		return fmt.Sprintf("src:%s:%s:%s", o.PM.ID, o.Label, formulaKey(o.Precondition))
	case OriginVar:
		return "var:" + o.Lval.Key()
	default:
		return "control"
	}
}

// WithCallFrame returns a copy of a Source origin with frame prepended
// to its call-trace (most recent call first), used when a polymorphic
// Var taint is instantiated across a call boundary.
func (o Origin) WithCallFrame(frame CallFrame) Origin {
	o2 := o
	o2.CallTrace = append([]CallFrame{frame}, o.CallTrace...)
	return o2
}

// MaxPolyOffset bounds the offset-path length of any Var origin, so
// field-inheritance on a polymorphic taint always terminates.
const MaxPolyOffset = 8

// ExtendVar returns a new Var origin with one more offset appended, or
// (Origin{}, false) if doing so would exceed MaxPolyOffset.
func (o Origin) ExtendVar(off il.Offset) (Origin, bool) {
	if o.Kind != OriginVar {
		return Origin{}, false
	}
	if len(o.Lval.Offsets) >= MaxPolyOffset {
		return Origin{}, false
	}
	return VarOrigin(o.Lval.Extend(off)), true
}
