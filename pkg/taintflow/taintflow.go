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

// Package taintflow is the public surface of the interprocedural taint
// dataflow engine: build an il.CFG for one function, load a rule file
// with config.Load, and call Fixpoint. Everything else -- the IL
// itself, the lattice, the checker -- lives under internal/pkg and is
// reachable only through this package and the options/hooks/match
// types it re-exports.
package taintflow

import (
	"github.com/taintpath/taintflow/internal/pkg/config"
	"github.com/taintpath/taintflow/internal/pkg/engine"
	"github.com/taintpath/taintflow/internal/pkg/hooks"
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/options"
	"github.com/taintpath/taintflow/internal/pkg/signature"
)

// Lang, JavaPropsCache, NodeEnvs, Options, Hooks, Config re-export the
// engine's public types so a caller only ever imports this one package.
type (
	Lang           = engine.Lang
	JavaPropsCache = engine.JavaPropsCache
	NodeEnvs       = engine.NodeEnvs
	Options        = options.Options
	Hooks          = hooks.Hooks
	Config         = match.Config
)

// NewJavaPropsCache returns an empty cache suitable for sharing across
// every Fixpoint call in one whole-program run.
func NewJavaPropsCache() *JavaPropsCache { return engine.NewJavaPropsCache() }

// LoadConfig reads a rule file from path into a Config.
func LoadConfig(path string) (*config.Config, error) { return config.Load(path) }

// ParseConfig decodes rule-file content already read into memory.
func ParseConfig(data []byte) (*config.Config, error) { return config.Parse(data) }

// BuiltinSignatures returns a Hooks.FunctionTaintSignature implementation
// backed by this engine's demonstration table of common
// variadic-formatting-style function summaries.
func BuiltinSignatures() func(il.AnyNode) ([]il.VarID, signature.Signature, bool) {
	return signature.For
}

// Fixpoint analyzes one function's CFG to a fixpoint, reporting results
// through cfg.HandleResults, and returns its final per-node environments.
func Fixpoint(lang Lang, opts Options, cfg Config, hks Hooks, javaPropsCache *JavaPropsCache, flow *il.CFG, inEnv lvalenv.Env, name string) map[il.NodeID]NodeEnvs {
	return engine.Fixpoint(lang, opts, cfg, hks, javaPropsCache, flow, inEnv, name)
}

// EmptyEnv returns the bottom dataflow environment, the usual inEnv for
// analyzing a function with no caller-supplied initial taint.
func EmptyEnv() lvalenv.Env { return lvalenv.Empty() }
