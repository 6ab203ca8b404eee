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

package signature

import (
	"github.com/taintpath/taintflow/internal/pkg/il"
	"github.com/taintpath/taintflow/internal/pkg/result"
	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// entry is the declarative shape a built-in summary is authored in: it
// names which inputs (any/all arguments, the receiver) a function's
// taint propagation reads from, and where that taint lands (the return
// value, or the receiver by side effect, as for a string builder's
// append). This mirrors the teacher's ifTainted/taintedArgs/taintedRets
// bitset table, generalized from fixed argument positions (unknowable
// here, since a rule file's FuncRE matches calls of any arity) to
// "every argument", which is the common case for variadic formatting
// and concatenation helpers.
type entry struct {
	fromAllArgs bool
	fromRecv    bool
	toReturn    bool
	toRecv      bool
}

func varArg(i int) il.Lval { return il.NewLval(il.ArgBase(i)) }
func varThis() il.Lval     { return il.NewLval(il.ThisBase()) }

// builtin is seeded with a handful of widely-used variadic-formatting
// and string-concatenation functions across the languages this engine
// targets, as a demonstration default for sites that have no
// rule-file-declared propagator covering them. A real deployment is
// expected to grow this table, or supply its own FunctionTaintSignature
// hook entirely.
var builtin = map[string]entry{
	"fmt.Sprintf":                  {fromAllArgs: true, toReturn: true},
	"fmt.Sprint":                   {fromAllArgs: true, toReturn: true},
	"fmt.Sprintln":                 {fromAllArgs: true, toReturn: true},
	"String.format":                {fromAllArgs: true, toReturn: true},
	"String.join":                  {fromAllArgs: true, toReturn: true},
	"String.valueOf":               {fromAllArgs: true, toReturn: true},
	"StringBuilder.append":         {fromRecv: true, fromAllArgs: true, toRecv: true, toReturn: true},
	"StringBuffer.append":          {fromRecv: true, fromAllArgs: true, toRecv: true, toReturn: true},
	"str.format":                   {fromRecv: true, fromAllArgs: true, toReturn: true},
	"String.prototype.concat":      {fromRecv: true, fromAllArgs: true, toReturn: true},
	"Array.prototype.join":         {fromRecv: true, toReturn: true},
	"util.format":                  {fromAllArgs: true, toReturn: true},
}

func build(e entry) Signature {
	src := taint.Empty()
	if e.fromRecv {
		src = taint.Union(src, taint.Singleton(taint.VarOrigin(varThis())))
	}
	if e.fromAllArgs {
		// Arg(0..7) covers every call the checker itself bounds
		// field-sensitivity to (taint.MaxPolyOffset), a reasonable
		// ceiling for "however many arguments this call turns out to
		// have" since unresolvable Arg(i) bases are simply skipped at
		// instantiation time by lvalOfSigLval.
		for i := 0; i < 8; i++ {
			src = taint.Union(src, taint.Singleton(taint.VarOrigin(varArg(i))))
		}
	}

	var sig Signature
	if e.toReturn {
		sig = append(sig, result.NewToReturn("", src))
	}
	if e.toRecv {
		sig = append(sig, result.NewToLval(varThis(), src))
	}
	return sig
}

// For resolves a call's statically-known name to a built-in signature,
// suitable as a default Hooks.FunctionTaintSignature. fparams is always
// nil: these entries describe summaries over the call's own Arg(i)/This
// positions directly rather than a callee function's formal parameter
// list, so there is nothing to report there.
func For(callee il.AnyNode) ([]il.VarID, Signature, bool) {
	name, ok := calleeName(callee)
	if !ok {
		return nil, nil, false
	}
	e, ok := builtin[name]
	if !ok {
		return nil, nil, false
	}
	return nil, build(e), true
}

func calleeName(n il.AnyNode) (string, bool) {
	switch x := n.(type) {
	case il.CallExpr:
		return x.FnName, x.FnName != ""
	case il.NewExpr:
		if x.Ctor != nil {
			return x.Ctor.FnName, x.Ctor.FnName != ""
		}
	}
	return "", false
}
