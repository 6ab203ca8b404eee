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

package config

import (
	"testing"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/match"
	"github.com/taintpath/taintflow/internal/pkg/result"
)

const sampleRuleFile = `
sources:
  - key: src
    funcRe: "^get(Param|Header)$"
    label: untrusted
sinks:
  - key: snk
    funcRe: "^exec$"
    requires: "untrusted"
sanitizers:
  - key: san
    funcRe: "^escape$"
    bySideEffect: true
propagators:
  - key: p1
    funcRe: "^copyInto$"
    from: {index: 0}
    to: {recv: true}
    bySideEffect: true
`

func TestParseLoadsRuleFile(t *testing.T) {
	cfg, err := Parse([]byte(sampleRuleFile))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(cfg.rules.Sources) != 1 || cfg.rules.Sources[0].Key != "src" {
		t.Fatalf("expected one source rule keyed src, got %+v", cfg.rules.Sources)
	}
	if len(cfg.rules.Sinks) != 1 || cfg.rules.Sinks[0].Key != "snk" {
		t.Fatalf("expected one sink rule keyed snk, got %+v", cfg.rules.Sinks)
	}
}

func TestParseRejectsMalformedRequires(t *testing.T) {
	bad := `
sinks:
  - key: snk
    funcRe: "^exec$"
    requires: "a &&"
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected an error for a malformed requires formula")
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("not: [valid: yaml")); err == nil {
		t.Fatalf("expected an error for invalid YAML")
	}
}

func TestParseAutoKeysUnkeyedRules(t *testing.T) {
	cfg, err := Parse([]byte(`
sources:
  - funcRe: "^a$"
  - funcRe: "^b$"
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.rules.Sources[0].Key == cfg.rules.Sources[1].Key {
		t.Fatalf("expected distinct auto-generated keys, got %q twice", cfg.rules.Sources[0].Key)
	}
}

func callNode(fn string, args ...il.Expr) il.CallExpr {
	return il.CallExpr{FnName: fn, Args: args}
}

func TestIsSourceMatchesByFuncName(t *testing.T) {
	cfg, err := Parse([]byte(sampleRuleFile))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	matches := cfg.IsSource([]il.AnyNode{callNode("getParam")})
	if len(matches) != 1 {
		t.Fatalf("expected one source match for getParam, got %d", len(matches))
	}
	if matches[0].Spec.Label != "untrusted" {
		t.Fatalf("expected label \"untrusted\", got %q", matches[0].Spec.Label)
	}

	if got := cfg.IsSource([]il.AnyNode{callNode("unrelated")}); len(got) != 0 {
		t.Fatalf("expected no match for an unrelated call, got %d", len(got))
	}
}

func TestIsSanitizerMatchesBySideEffectFlag(t *testing.T) {
	cfg, err := Parse([]byte(sampleRuleFile))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	matches := cfg.IsSanitizer([]il.AnyNode{callNode("escape")})
	if len(matches) != 1 || !matches[0].Spec.BySideEffect {
		t.Fatalf("expected one by-side-effect sanitizer match, got %+v", matches)
	}
}

func TestIsPropagatorBindsFromAndToEndpoints(t *testing.T) {
	cfg, err := Parse([]byte(sampleRuleFile))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	y := il.NewLval(il.VarBase(il.VarID{Name: "y"}))
	x := il.NewLval(il.VarBase(il.VarID{Name: "x"}))
	call := il.CallExpr{FnName: "copyInto", Recv: il.NewLvalExpr(il.Range{}, x), Args: []il.Expr{il.NewLvalExpr(il.Range{}, y)}}

	matches := cfg.IsPropagator([]il.AnyNode{call})
	if len(matches) != 2 {
		t.Fatalf("expected one From and one To match, got %d: %+v", len(matches), matches)
	}
	var sawFrom, sawTo bool
	for _, m := range matches {
		switch m.Spec.Kind {
		case match.PropFrom:
			sawFrom = true
			if m.Spec.Var.Key() != y.Key() {
				t.Fatalf("expected From to bind to y, got %v", m.Spec.Var)
			}
		case match.PropTo:
			sawTo = true
			if m.Spec.Var.Key() != x.Key() {
				t.Fatalf("expected To to bind to the receiver x, got %v", m.Spec.Var)
			}
		}
	}
	if !sawFrom || !sawTo {
		t.Fatalf("expected both From and To matches, got %+v", matches)
	}
}

func TestHandleResultsForwardsToInstalledCallback(t *testing.T) {
	cfg, err := Parse([]byte(sampleRuleFile))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	var got []result.Result
	cfg.OnResults(func(fnName string, rs []result.Result, env *lvalenv.Env) {
		got = rs
	})

	want := []result.Result{result.NewToReturn("ret0", nil)}
	cfg.HandleResults("f", want, nil)

	if len(got) != 1 {
		t.Fatalf("expected the installed callback to receive the results, got %+v", got)
	}
}

func TestHandleResultsWithoutCallbackDoesNotPanic(t *testing.T) {
	cfg, err := Parse([]byte(sampleRuleFile))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	cfg.HandleResults("f", nil, nil)
}
