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

package taintflow

import (
	"testing"

	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/lvalenv"
	"github.com/taintpath/taintflow/internal/pkg/result"
)

const demoRules = `
sources:
  - key: demo-source
    funcRe: "^source$"
sinks:
  - key: demo-sink
    funcRe: "^sink$"
`

// A caller reaching the engine purely through this package's exported
// surface -- ParseConfig, EmptyEnv, Fixpoint -- must see a source
// reaching a sink reported through the installed callback.
func TestFixpointReportsSourceReachingSink(t *testing.T) {
	cfg, err := ParseConfig([]byte(demoRules))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}

	var got []result.Result
	cfg.OnResults(func(fnName string, rs []result.Result, env *lvalenv.Env) {
		got = append(got, rs...)
	})

	x := il.NewLval(il.VarBase(il.VarID{Name: "x"}))
	discard := il.NewLval(il.VarBase(il.VarID{Name: "_"}))

	flow := &il.CFG{FuncName: "f"}
	flow.AddNode(il.NewEnterNode(0, il.Range{}))
	flow.AddNode(il.NewInstrNode(1, il.Range{}, x, il.CallExpr{FnName: "source"}))
	flow.AddNode(il.NewInstrNode(2, il.Range{}, discard, il.CallExpr{FnName: "sink", Args: []il.Expr{il.NewLvalExpr(il.Range{}, x)}}))
	flow.AddNode(il.NewExitNode(3, il.Range{}))
	flow.AddEdge(0, 1)
	flow.AddEdge(1, 2)
	flow.AddEdge(2, 3)
	flow.Entry, flow.Exit = 0, 3
	flow.Order = []il.NodeID{0, 1, 2, 3}

	Fixpoint(Lang("go"), Options{}, cfg, Hooks{}, NewJavaPropsCache(), flow, EmptyEnv(), "f")

	var sinks int
	for _, r := range got {
		if r.Kind == result.ToSink {
			sinks++
		}
	}
	if sinks != 1 {
		t.Fatalf("got %d ToSink results, want exactly 1", sinks)
	}
}

// With no rule matching, Fixpoint must still run to completion and
// report nothing.
func TestFixpointNoMatchReportsNothing(t *testing.T) {
	cfg, err := ParseConfig([]byte(`sources: []`))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}

	var got []result.Result
	cfg.OnResults(func(fnName string, rs []result.Result, env *lvalenv.Env) {
		got = append(got, rs...)
	})

	flow := &il.CFG{FuncName: "g"}
	flow.AddNode(il.NewEnterNode(0, il.Range{}))
	flow.AddNode(il.NewExitNode(1, il.Range{}))
	flow.AddEdge(0, 1)
	flow.Entry, flow.Exit = 0, 1
	flow.Order = []il.NodeID{0, 1}

	Fixpoint(Lang("go"), Options{}, cfg, Hooks{}, nil, flow, EmptyEnv(), "g")

	if len(got) != 0 {
		t.Fatalf("expected no results for an empty function, got %+v", got)
	}
}
