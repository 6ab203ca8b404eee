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

// Package engine is the single entry point that wires the checker (C5),
// handler (C6), fixpoint driver (C7), and result emission (C8) together
// for one function's analysis, matching spec §6's literal Fixpoint
// signature.
package engine

import (
	"github.com/taintpath/taintflow/internal/pkg/checker"
	"github.com/taintpath/taintflow/internal/pkg/fixpoint"
	"github.com/taintpath/taintflow/internal/pkg/hooks"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/options"
	"github.com/taintpath/taintflow/internal/pkg/result"
)

// Lang names the source language a function's nodes were produced
// from, gating polymorphic field inheritance
// (checker.fieldInheritanceLangs) -- it is a plain string rather than an
// enum since rule files and frontends both name languages by string and
// nothing here needs to enumerate the closed set in one place.
type Lang string

// JavaPropsCache is a small per-invocation cache from "<class>#<prop>"
// to the backing field Lval a FindAttributeInClass hook resolved it to,
// so repeated get<Prop>/set<Prop> calls against the same property within
// one function's analysis don't re-run the heuristic. The cache is
// owned by the caller and may be shared across the several Fixpoint
// calls one whole-program run makes, per spec §5's "shared resources"
// note.
type JavaPropsCache struct {
	m map[string]il.Lval
}

// NewJavaPropsCache returns an empty cache.
func NewJavaPropsCache() *JavaPropsCache {
	return &JavaPropsCache{m: map[string]il.Lval{}}
}

func (c *JavaPropsCache) key(class, prop string) string { return class + "#" + prop }

// Get returns the cached field Lval for class.prop, if any.
func (c *JavaPropsCache) Get(class, prop string) (il.Lval, bool) {
	l, ok := c.m[c.key(class, prop)]
	return l, ok
}

// Put records the field Lval resolved for class.prop.
func (c *JavaPropsCache) Put(class, prop string, l il.Lval) {
	c.m[c.key(class, prop)] = l
}

// NodeEnvs is the fixpoint's final per-node IN/OUT state, exposed as-is
// to callers that want to inspect intermediate taint (e.g. a diagnostic
// dump), re-exporting fixpoint.NodeState under the facade's own name so
// a caller of this package need not import internal/pkg/fixpoint
// directly.
type NodeEnvs = fixpoint.NodeState

// wireJavaProps adapts a JavaPropsCache into a FindAttributeFn. A class
// name is not separately threaded through this engine's IL (unlike the
// teacher's typed SSA), so the cache is keyed on property name alone;
// cross-class property collisions are an accepted imprecision for the
// field-inheritance heuristic, which is itself already an approximation.
func wireJavaProps(cache *JavaPropsCache, h hooks.FindAttributeFn) hooks.FindAttributeFn {
	if h == nil {
		return nil
	}
	return func(className, prop string) (string, bool) {
		if l, ok := cache.Get(className, prop); ok {
			if fld, ok2 := lastFieldName(l); ok2 {
				return fld, true
			}
		}
		field, ok := h(className, prop)
		if ok {
			cache.Put(className, prop, il.NewLval(il.ThisBase(), il.Ofld(field)))
		}
		return field, ok
	}
}

func lastFieldName(l il.Lval) (string, bool) {
	if len(l.Offsets) == 0 {
		return "", false
	}
	return l.Offsets[len(l.Offsets)-1].Name, true
}

// Fixpoint analyzes one function's CFG to a fixpoint and returns its
// per-node environments. Results (ToSink/ToReturn findings plus the
// ToLval side-effect summary) are computed, resolved, and handed to
// cfg.HandleResults before this returns -- the caller does not see them
// directly, matching spec §4.1's "results flow out through the
// pluggable handler, not a return value" design.
func Fixpoint(
	lang Lang,
	opts options.Options,
	cfg match.Config,
	hks hooks.Hooks,
	javaPropsCache *JavaPropsCache,
	flow *il.CFG,
	inEnv lvalenv.Env,
	name string,
) map[il.NodeID]NodeEnvs {
	if javaPropsCache != nil {
		hks.FindAttributeInClass = wireJavaProps(javaPropsCache, hks.FindAttributeInClass)
	}

	var results []result.Result
	ctx := &checker.Context{
		Cfg:     cfg,
		Opts:    opts,
		Hooks:   hks,
		Lang:    string(lang),
		FnName:  name,
		Results: &results,
	}

	timeout := options.FixpointTimeoutDefault
	states, timedOut := fixpoint.Run(ctx, flow, inEnv, timeout)

	finalEnv := inEnv
	if exitState, ok := states[flow.Exit]; ok {
		finalEnv = exitState.Out
		results = append(results, fixpoint.SideEffects(inEnv, exitState.Out)...)
	}
	// A timeout is not a distinct result kind: fixpoint.Run already logs
	// it and returns whatever partial states were reached, which are
	// used below exactly as if convergence had been reached normally.
	_ = timedOut

	result.Emit(cfg, name, results, &finalEnv)

	out := make(map[il.NodeID]NodeEnvs, len(states))
	for id, st := range states {
		out[id] = st
	}
	return out
}
