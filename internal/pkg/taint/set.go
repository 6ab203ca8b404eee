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

package taint

import "github.com/taintpath/taintflow/internal/pkg/il"

// Token is one taint: where it came from, and the program trace (in
// emission order, oldest first) it has flowed through since. Two tokens
// with the same Origin are the same taint for set purposes regardless
// of how their traces differ, since a MAY-analysis only needs one
// witness path per origin.
type Token struct {
	Orig   Origin
	Tokens []il.Position
}

func newToken(o Origin) Token { return Token{Orig: o} }

// WithPosition returns a copy of t with pos appended to its trace.
func (t Token) WithPosition(pos il.Position) Token {
	t2 := t
	t2.Tokens = append(append([]il.Position(nil), t.Tokens...), pos)
	return t2
}

// Set is a set of Tokens, keyed by Origin so propagation through
// multiple paths to the same source collapses to one entry. The stored
// Token's trace is whichever one was recorded first; Union keeps the
// receiver's trace on a collision rather than picking arbitrarily.
type Set map[string]Token

// Empty returns the empty taint set.
func Empty() Set { return Set{} }

// Singleton returns a Set containing exactly one token for o.
func Singleton(o Origin) Set {
	return Set{o.key(): newToken(o)}
}

// Add returns a copy of s with t inserted (first writer wins on a key
// collision, matching Union's behavior).
func (s Set) Add(t Token) Set {
	out := s.clone()
	k := t.Orig.key()
	if _, ok := out[k]; !ok {
		out[k] = t
	}
	return out
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether s has no tokens.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// Union is the join operation: every token present in either operand is
// present in the result.
func Union(a, b Set) Set {
	if len(a) == 0 {
		return b.clone()
	}
	if len(b) == 0 {
		return a.clone()
	}
	out := a.clone()
	for k, v := range b {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Subtract keeps only tokens of a whose origin key is not present in b,
// the "what did this function newly deposit" query a side-effect
// summary needs when diffing a function's Enter and Exit environments.
func Subtract(a, b Set) Set {
	out := Set{}
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Intersect keeps only tokens whose origin key is present in both a and b.
func Intersect(a, b Set) Set {
	out := Set{}
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k, v := range small {
		if _, ok := big[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Equal reports whether a and b contain exactly the same origin keys.
func Equal(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Labels collects the distinct Source-origin labels held by s, the
// input SolvePrecondition needs.
func (s Set) Labels() map[string]bool {
	out := map[string]bool{}
	for _, t := range s {
		if t.Orig.Kind == OriginSource {
			out[t.Orig.Label] = true
		}
	}
	return out
}

// WithCallFrame returns a copy of s with frame prepended to the
// call-trace of every Source-origin token, used when a summary computed
// for one function is instantiated at a call site in another.
func (s Set) WithCallFrame(frame CallFrame) Set {
	out := make(Set, len(s))
	for k, t := range s {
		if t.Orig.Kind == OriginSource {
			t.Orig = t.Orig.WithCallFrame(frame)
		}
		out[k] = t
	}
	return out
}

// ReverseTokens returns a copy of s with every token's program-location
// trace reversed, so the oldest location comes first. Traces are built
// up in propagation order (most-recently-visited first); Emit calls
// this exactly once per result, right before handing taints to
// config.HandleResults, so the user sees chronological order.
func ReverseTokens(s Set) Set {
	out := make(Set, len(s))
	for k, t := range s {
		rev := make([]il.Position, len(t.Tokens))
		for i, p := range t.Tokens {
			rev[len(t.Tokens)-1-i] = p
		}
		t.Tokens = rev
		out[k] = t
	}
	return out
}

// TaintsOfPMs builds a Source Set from a set of pattern matches, one
// token per match, tagged with the given label and precondition.
func TaintsOfPMs(pms []MatchRef, label string, requires Formula) Set {
	out := Set{}
	for _, pm := range pms {
		o := SourceOrigin(pm, label, requires)
		out[o.key()] = newToken(o)
	}
	return out
}
