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

// Package options is the bag of booleans spec §6 lists as recognized
// by the core, plus the two fields spec §6 places directly on config
// (track_control, unify_mvars). It has no dependencies so every layer
// of the engine, from the checker up to the facade, can take it by
// value without risking an import cycle.
package options

import "time"

// Options is the policy bag threaded through the whole engine.
type Options struct {
	// TaintAssumeSafeFunctions: unknown callees return untainted
	// regardless of argument taint.
	TaintAssumeSafeFunctions bool
	// TaintAssumeSafeIndexes: indexed reads (a[i]) do not inherit i's
	// own taint.
	TaintAssumeSafeIndexes bool
	// TaintAssumeSafeComparisons: comparison operators yield no taint.
	TaintAssumeSafeComparisons bool
	// TaintAssumeSafeBooleans: values typed as boolean have their data
	// taint dropped (control taint survives).
	TaintAssumeSafeBooleans bool
	// TaintAssumeSafeNumbers: values typed as integer/float have their
	// data taint dropped (control taint survives).
	TaintAssumeSafeNumbers bool
	// TaintOnlyPropagateThroughAssignments disables taint flow through
	// sub-expressions and call returns; only direct assignment
	// propagates.
	TaintOnlyPropagateThroughAssignments bool

	// TrackControl folds a Cond/Throw's own taint into env.Control on
	// its successors, spec §4.8.
	TrackControl bool
	// UnifyMvars selects strict inner-join metavariable unification
	// between source and sink bindings (spec §4.7) instead of the
	// default sink-biased union.
	UnifyMvars bool
}

// FixpointTimeoutDefault is TAINT_FIXPOINT_TIMEOUT, the wall-clock
// bound spec §4.8 places on one function's fixpoint iteration.
const FixpointTimeoutDefault = 10 * time.Second
