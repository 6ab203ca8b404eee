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

// Package config loads a YAML (or JSON, since sigs.k8s.io/yaml accepts
// both) rule file into a concrete match.Config: regex matchers against
// a call's resolved function name and an l-value's trailing field name,
// the way the teacher's config.Config matches a Go ssa.Call/FieldAddr
// against PackageRE/TypeRE/FieldRE/MethodRE, generalized to the
// language-neutral il.AnyNode this engine operates over.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/log"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	mre "github.com/taintpath/taintflow/internal/pkg/match/regexp"
	"github.com/taintpath/taintflow/internal/pkg/result"
)

// SourceRule describes one `sources` entry.
type SourceRule struct {
	Key          string     `json:"key,omitempty"`
	FuncRE       mre.Regexp `json:"funcRe,omitempty"`
	FieldRE      mre.Regexp `json:"fieldRe,omitempty"`
	Label        string     `json:"label,omitempty"`
	Requires     string     `json:"requires,omitempty"`
	Exact        bool       `json:"exact,omitempty"`
	BySideEffect string     `json:"bySideEffect,omitempty"` // "no" | "yes" | "only"
}

// SinkRule describes one `sinks` entry.
type SinkRule struct {
	Key      string     `json:"key,omitempty"`
	FuncRE   mre.Regexp `json:"funcRe,omitempty"`
	FieldRE  mre.Regexp `json:"fieldRe,omitempty"`
	Requires string     `json:"requires,omitempty"`
	Exact    bool       `json:"exact,omitempty"`
	AtExit   bool       `json:"atExit,omitempty"`
}

// SanitizerRule describes one `sanitizers` entry.
type SanitizerRule struct {
	Key          string     `json:"key,omitempty"`
	FuncRE       mre.Regexp `json:"funcRe,omitempty"`
	FieldRE      mre.Regexp `json:"fieldRe,omitempty"`
	Exact        bool       `json:"exact,omitempty"`
	BySideEffect bool       `json:"bySideEffect,omitempty"`
}

// ArgRef picks out one argument position of a matched call, or its
// receiver, as a propagator's From/To endpoint.
type ArgRef struct {
	Recv  bool `json:"recv,omitempty"`
	Index int  `json:"index,omitempty"`
}

// PropagatorRule describes one `propagators` entry: a call matched by
// FuncRE deposits From's current taint and is read back at To.
type PropagatorRule struct {
	Key           string `json:"key,omitempty"`
	FuncRE        mre.Regexp `json:"funcRe,omitempty"`
	From          ArgRef `json:"from"`
	To            ArgRef `json:"to"`
	Label         string `json:"label,omitempty"`
	ReplaceLabels bool   `json:"replaceLabels,omitempty"`
	BySideEffect  bool   `json:"bySideEffect,omitempty"`
	Requires      string `json:"requires,omitempty"`
	Exact         bool   `json:"exact,omitempty"`
}

// RuleFile is the top-level shape of a rule file.
type RuleFile struct {
	Sources     []SourceRule     `json:"sources,omitempty"`
	Sinks       []SinkRule       `json:"sinks,omitempty"`
	Sanitizers  []SanitizerRule  `json:"sanitizers,omitempty"`
	Propagators []PropagatorRule `json:"propagators,omitempty"`
}

// Config is the concrete match.Config a loaded rule file produces.
type Config struct {
	rules   RuleFile
	onFound func(fnName string, rs []result.Result, env *lvalenv.Env)
}

// Load reads and parses a rule file at path. Malformed YAML/JSON,
// unparsable `requires` formulas, or an empty regexp pattern are
// reported as an error; this is the engine's only fallible entry
// point, matching the teacher's config.ReadConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes rule-file content already read into memory.
func Parse(data []byte) (*Config, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for i := range rf.Sources {
		if rf.Sources[i].Key == "" {
			rf.Sources[i].Key = fmt.Sprintf("source#%d", i)
		}
		if _, err := parseFormula(rf.Sources[i].Requires); err != nil {
			return nil, fmt.Errorf("config: %s: %w", rf.Sources[i].Key, err)
		}
	}
	for i := range rf.Sinks {
		if rf.Sinks[i].Key == "" {
			rf.Sinks[i].Key = fmt.Sprintf("sink#%d", i)
		}
		if _, err := parseFormula(rf.Sinks[i].Requires); err != nil {
			return nil, fmt.Errorf("config: %s: %w", rf.Sinks[i].Key, err)
		}
	}
	for i := range rf.Sanitizers {
		if rf.Sanitizers[i].Key == "" {
			rf.Sanitizers[i].Key = fmt.Sprintf("sanitizer#%d", i)
		}
	}
	for i := range rf.Propagators {
		if rf.Propagators[i].Key == "" {
			rf.Propagators[i].Key = fmt.Sprintf("propagator#%d", i)
		}
		if _, err := parseFormula(rf.Propagators[i].Requires); err != nil {
			return nil, fmt.Errorf("config: %s: %w", rf.Propagators[i].Key, err)
		}
	}
	return &Config{rules: rf}, nil
}

// OnResults installs the callback HandleResults forwards to. Without
// one installed, results are only logged.
func (c *Config) OnResults(fn func(fnName string, rs []result.Result, env *lvalenv.Env)) {
	c.onFound = fn
}

func effectOf(s string) match.Effect {
	switch s {
	case "yes":
		return match.EffectYes
	case "only":
		return match.EffectOnly
	case "", "no":
		return match.EffectNo
	default:
		log.Warnf("config: unrecognized bySideEffect value %q, treating as \"no\"", s)
		return match.EffectNo
	}
}

func callOf(n il.AnyNode) (fnName string, recv il.Expr, args []il.Expr, ok bool) {
	switch x := n.(type) {
	case il.CallExpr:
		return x.FnName, x.Recv, x.Args, true
	case il.NewExpr:
		if x.Ctor != nil {
			return x.Ctor.FnName, x.Ctor.Recv, x.Args, true
		}
		return "", nil, x.Args, true
	default:
		return "", nil, nil, false
	}
}

func lvalOf(n il.AnyNode) (il.Lval, bool) {
	switch x := n.(type) {
	case il.Lval:
		return x, true
	case il.LvalExpr:
		return x.Lval, true
	default:
		return il.Lval{}, false
	}
}

func fieldNameOf(l il.Lval) (string, bool) {
	if len(l.Offsets) == 0 {
		return "", false
	}
	o := l.Offsets[len(l.Offsets)-1]
	if o.Kind == il.OField || o.Kind == il.OStr {
		return o.Name, true
	}
	return "", false
}

func (c *Config) IsSource(nodes []il.AnyNode) []match.SourceMatch {
	var out []match.SourceMatch
	for _, n := range nodes {
		if fn, _, _, ok := callOf(n); ok {
			for _, r := range c.rules.Sources {
				if r.FuncRE.MatchString(fn) {
					out = append(out, match.SourceMatch{Range: n.Pos(), Spec: sourceSpecOf(r)})
				}
			}
		}
		if l, ok := lvalOf(n); ok {
			if fld, ok2 := fieldNameOf(l); ok2 {
				for _, r := range c.rules.Sources {
					if r.FieldRE.MatchString(fld) {
						out = append(out, match.SourceMatch{Range: n.Pos(), Spec: sourceSpecOf(r)})
					}
				}
			}
		}
	}
	return out
}

func (c *Config) IsSink(nodes []il.AnyNode) []match.SinkMatch {
	var out []match.SinkMatch
	for _, n := range nodes {
		if fn, _, _, ok := callOf(n); ok {
			for _, r := range c.rules.Sinks {
				if r.FuncRE.MatchString(fn) {
					out = append(out, match.SinkMatch{Range: n.Pos(), Spec: sinkSpecOf(r)})
				}
			}
		}
		if l, ok := lvalOf(n); ok {
			if fld, ok2 := fieldNameOf(l); ok2 {
				for _, r := range c.rules.Sinks {
					if r.FieldRE.MatchString(fld) {
						out = append(out, match.SinkMatch{Range: n.Pos(), Spec: sinkSpecOf(r)})
					}
				}
			}
		}
	}
	return out
}

func (c *Config) IsSanitizer(nodes []il.AnyNode) []match.SanitizerMatch {
	var out []match.SanitizerMatch
	for _, n := range nodes {
		if fn, _, _, ok := callOf(n); ok {
			for _, r := range c.rules.Sanitizers {
				if r.FuncRE.MatchString(fn) {
					out = append(out, match.SanitizerMatch{Range: n.Pos(), Spec: sanitizerSpecOf(r)})
				}
			}
		}
		if l, ok := lvalOf(n); ok {
			if fld, ok2 := fieldNameOf(l); ok2 {
				for _, r := range c.rules.Sanitizers {
					if r.FieldRE.MatchString(fld) {
						out = append(out, match.SanitizerMatch{Range: n.Pos(), Spec: sanitizerSpecOf(r)})
					}
				}
			}
		}
	}
	return out
}

func (c *Config) IsPropagator(nodes []il.AnyNode) []match.PropagatorMatch {
	var out []match.PropagatorMatch
	for _, n := range nodes {
		fn, recv, args, ok := callOf(n)
		if !ok {
			continue
		}
		for _, r := range c.rules.Propagators {
			if !r.FuncRE.MatchString(fn) {
				continue
			}
			base := propagatorSpecOf(r)
			if fromLval, ok := argRefLval(r.From, recv, args); ok {
				s := base
				s.Kind = match.PropFrom
				s.Var = fromLval
				out = append(out, match.PropagatorMatch{Range: n.Pos(), Spec: s})
			}
			if toLval, ok := argRefLval(r.To, recv, args); ok {
				s := base
				s.Kind = match.PropTo
				s.Var = toLval
				out = append(out, match.PropagatorMatch{Range: n.Pos(), Spec: s})
			}
		}
	}
	return out
}

func argRefLval(ref ArgRef, recv il.Expr, args []il.Expr) (il.Lval, bool) {
	var e il.Expr
	switch {
	case ref.Recv:
		e = recv
	case ref.Index >= 0 && ref.Index < len(args):
		e = args[ref.Index]
	default:
		return il.Lval{}, false
	}
	if lv, ok := e.(il.LvalExpr); ok {
		return lv.Lval, true
	}
	return il.Lval{}, false
}

func sourceSpecOf(r SourceRule) match.SourceSpec {
	req, _ := parseFormula(r.Requires)
	return match.SourceSpec{Key: r.Key, Label: r.Label, Requires: req, BySideEffect: effectOf(r.BySideEffect), ExactMatch: r.Exact}
}

func sinkSpecOf(r SinkRule) match.SinkSpec {
	req, _ := parseFormula(r.Requires)
	return match.SinkSpec{Key: r.Key, Requires: req, ExactMatch: r.Exact}
}

func sanitizerSpecOf(r SanitizerRule) match.SanitizerSpec {
	return match.SanitizerSpec{Key: r.Key, BySideEffect: r.BySideEffect, ExactMatch: r.Exact}
}

func propagatorSpecOf(r PropagatorRule) match.PropagatorSpec {
	req, _ := parseFormula(r.Requires)
	return match.PropagatorSpec{
		Key:           r.Key,
		Prop:          lvalenv.PropID(r.Key),
		ReplaceLabels: r.ReplaceLabels,
		Label:         r.Label,
		BySideEffect:  r.BySideEffect,
		Requires:      req,
		ExactMatch:    r.Exact,
	}
}

// HandleResults forwards to the installed callback, or logs a summary
// if none was installed.
func (c *Config) HandleResults(fnName string, rs []result.Result, env *lvalenv.Env) {
	if c.onFound != nil {
		c.onFound(fnName, rs, env)
		return
	}
	log.Infof("%s: %d result(s)", fnName, len(rs))
}
