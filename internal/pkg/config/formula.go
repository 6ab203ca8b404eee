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
	"fmt"
	"strings"

	"github.com/taintpath/taintflow/internal/pkg/taint"
)

// parseFormula reads a rule file's `requires` string into a
// taint.Formula: bare words are labels, `!`/`&&`/`||` and parens
// combine them. An empty string is the trivially-true formula.
func parseFormula(s string) (taint.Formula, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return taint.True(), nil
	}
	toks := tokenizeFormula(s)
	p := &formulaParser{toks: toks}
	f, err := p.parseOr()
	if err != nil {
		return taint.Formula{}, err
	}
	if p.pos != len(p.toks) {
		return taint.Formula{}, fmt.Errorf("requires: unexpected trailing input near %q", strings.Join(p.toks[p.pos:], " "))
	}
	return f, nil
}

func tokenizeFormula(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '(' || r == ')' || r == '!':
			flush()
			toks = append(toks, string(r))
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			flush()
			toks = append(toks, "&&")
			i++
		case r == '|' && i+1 < len(runes) && runes[i+1] == '|':
			flush()
			toks = append(toks, "||")
			i++
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

type formulaParser struct {
	toks []string
	pos  int
}

func (p *formulaParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *formulaParser) parseOr() (taint.Formula, error) {
	left, err := p.parseAnd()
	if err != nil {
		return taint.Formula{}, err
	}
	args := []taint.Formula{left}
	for p.peek() == "||" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return taint.Formula{}, err
		}
		args = append(args, right)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return taint.Or(args...), nil
}

func (p *formulaParser) parseAnd() (taint.Formula, error) {
	left, err := p.parseUnary()
	if err != nil {
		return taint.Formula{}, err
	}
	args := []taint.Formula{left}
	for p.peek() == "&&" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return taint.Formula{}, err
		}
		args = append(args, right)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return taint.And(args...), nil
}

func (p *formulaParser) parseUnary() (taint.Formula, error) {
	if p.peek() == "!" {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return taint.Formula{}, err
		}
		return taint.Not(inner), nil
	}
	return p.parseAtom()
}

func (p *formulaParser) parseAtom() (taint.Formula, error) {
	tok := p.peek()
	switch tok {
	case "":
		return taint.Formula{}, fmt.Errorf("requires: unexpected end of formula")
	case "(":
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return taint.Formula{}, err
		}
		if p.peek() != ")" {
			return taint.Formula{}, fmt.Errorf("requires: missing closing paren")
		}
		p.pos++
		return inner, nil
	case "&&", "||", ")":
		return taint.Formula{}, fmt.Errorf("requires: unexpected token %q", tok)
	default:
		p.pos++
		if strings.EqualFold(tok, "true") {
			return taint.True(), nil
		}
		if strings.EqualFold(tok, "false") {
			return taint.False(), nil
		}
		return taint.Label(tok), nil
	}
}
