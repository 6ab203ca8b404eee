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

// Package hooks carries the three optional extension points spec §6
// names. The original design keeps these as process-wide globals;
// spec §9's design notes call that out as a re-entrancy hazard, so here
// they are plain struct fields passed explicitly as a Fixpoint argument
// and carried in checker.Context,
// letting two concurrent Fixpoint calls (spec §5: the driver may run
// distinct functions in parallel) use different hooks safely.
package hooks

import (
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/signature"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// FunctionSignatureFn resolves a call's callee AST node to its
// precomputed taint summary, if one is available (e.g. the callee was
// already analyzed, or it's a built-in with a hand-authored summary).
type FunctionSignatureFn func(callee il.AnyNode) (fparams []il.VarID, sig signature.Signature, ok bool)

// FindAttributeFn resolves an implicit Java-style getter/setter
// (get<Prop>/set<Prop> with no definition in scope) to the backing
// field name it almost certainly accesses.
type FindAttributeFn func(className, prop string) (field string, ok bool)

// CheckExitSinksFn reports "at exit" sinks associated with a node --
// e.g. an unclosed resource sink that only fires at end-of-scope --
// along with the taints that satisfy them.
type CheckExitSinksFn func(env *lvalenv.Env, node il.Node) (taint.Set, []match.SinkMatch, bool)

// Hooks bundles the three optional extension points. A nil field means
// "hook not installed"; callers must check before invoking.
type Hooks struct {
	FunctionTaintSignature  FunctionSignatureFn
	FindAttributeInClass    FindAttributeFn
	CheckTaintedAtExitSinks CheckExitSinksFn
}
