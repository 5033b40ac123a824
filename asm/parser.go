// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError is a positional error from Parse: the offending line with a
// caret under the column the scanner gave up at.
type ParseError struct {
	Line   string
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s\n%s^ %s", e.Line, strings.Repeat(" ", e.Column), e.Msg)
}

type token struct {
	text string
	col  int
}

func tokenize(line string) []token {
	var toks []token
	i := 0
	for i < len(line) {
		c := line[i]
		if c == ' ' || c == '\t' || c == ',' || c == '[' || c == ']' {
			i++
			continue
		}
		start := i
		for i < len(line) {
			c = line[i]
			if c == ' ' || c == '\t' || c == ',' || c == '[' || c == ']' {
				break
			}
			i++
		}
		toks = append(toks, token{text: line[start:i], col: start})
	}
	return toks
}

var mnemonics = map[string]bool{
	"mov": true, "add": true, "sub": true, "neg": true, "smaddl": true,
	"smsubl": true, "smnegl": true, "smull": true, "sdiv": true, "and": true,
	"or": true, "orr": true, "movn": true, "cmp": true, "ldr": true, "str": true,
	"svc": true, "ret": true,
}

// Parse maps a single line of debug assembly text to one Instruction.
// Labels and control-flow opcodes are rejected: labels have no stable
// numeric mapping outside of a full compilation, and branches need a CFG
// this surface never builds.
func Parse(line string) (Instruction, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return nil, &ParseError{Line: line, Column: 0, Msg: "empty instruction"}
	}
	op := strings.ToLower(toks[0].text)
	if !mnemonics[op] {
		return nil, &ParseError{Line: line, Column: toks[0].col, Msg: fmt.Sprintf("unknown opcode %q", toks[0].text)}
	}
	args := toks[1:]

	reg := func(t token) (Reg, bool) {
		return registerFromToken(t.text)
	}
	cst := func(t token) (Const, bool) {
		return constFromToken(t.text)
	}
	need := func(n int) error {
		if len(args) < n {
			col := line2col(line, toks)
			return &ParseError{Line: line, Column: col, Msg: "missing operand"}
		}
		return nil
	}
	badReg := func(t token) error {
		return &ParseError{Line: line, Column: t.col, Msg: fmt.Sprintf("out-of-range or unrecognised register %q", t.text)}
	}
	badConst := func(t token) error {
		return &ParseError{Line: line, Column: t.col, Msg: fmt.Sprintf("expected an immediate, got %q", t.text)}
	}

	switch op {
	case "ret":
		return &Ret{}, nil

	case "svc":
		if err := need(1); err != nil {
			return nil, err
		}
		c, ok := cst(args[0])
		if !ok {
			return nil, badConst(args[0])
		}
		return &SVC{C: c}, nil

	case "mov", "neg", "movn":
		if err := need(2); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		if c, ok := cst(args[1]); ok {
			switch op {
			case "mov":
				return &Mov1{D: d, C: c}, nil
			case "neg":
				return &Neg1{D: d, C: c}, nil
			default:
				return &Mvn1{D: d, C: c}, nil
			}
		}
		s, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		switch op {
		case "mov":
			return &Mov2{D: d, S: s}, nil
		case "neg":
			return &Neg2{D: d, S: s}, nil
		default:
			return &Mvn2{D: d, S: s}, nil
		}

	case "cmp":
		if err := need(2); err != nil {
			return nil, err
		}
		l, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		if c, ok := cst(args[1]); ok {
			return &Cmp1{L: l, C: c}, nil
		}
		r, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		return &Cmp2{L: l, R: r}, nil

	case "add", "sub", "and":
		// "or" is handled separately below: it must build Or1/Or2, never
		// reuse the And1/And2 constructors.
		if err := need(3); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		l, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		if c, ok := cst(args[2]); ok {
			switch op {
			case "add":
				return &Add1{D: d, L: l, C: c}, nil
			case "sub":
				return &Sub1{D: d, L: l, C: c}, nil
			default:
				return &And1{D: d, L: l, C: c}, nil
			}
		}
		r, ok := reg(args[2])
		if !ok {
			return nil, badReg(args[2])
		}
		switch op {
		case "add":
			return &Add2{D: d, L: l, R: r}, nil
		case "sub":
			return &Sub2{D: d, L: l, R: r}, nil
		default:
			return &And2{D: d, L: l, R: r}, nil
		}

	case "or", "orr":
		if err := need(3); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		l, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		if c, ok := cst(args[2]); ok {
			return &Or1{D: d, L: l, C: c}, nil
		}
		r, ok := reg(args[2])
		if !ok {
			return nil, badReg(args[2])
		}
		return &Or2{D: d, L: l, R: r}, nil

	case "smull", "sdiv":
		if err := need(3); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		l, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		r, ok := reg(args[2])
		if !ok {
			return nil, badReg(args[2])
		}
		if op == "smull" {
			return &SMulL{D: d, L: l, R: r}, nil
		}
		return &SDiv{D: d, L: l, R: r}, nil

	case "smnegl":
		if err := need(3); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		l, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		m, ok := reg(args[2])
		if !ok {
			return nil, badReg(args[2])
		}
		return &SMNegL{D: d, L: l, M: m}, nil

	case "smaddl", "smsubl":
		if err := need(4); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		l, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		m, ok := reg(args[2])
		if !ok {
			return nil, badReg(args[2])
		}
		a, ok := reg(args[3])
		if !ok {
			return nil, badReg(args[3])
		}
		if op == "smaddl" {
			return &SMAddL{D: d, L: l, M: m, A: a}, nil
		}
		return &SMSubL{D: d, L: l, M: m, A: a}, nil

	case "ldr":
		if err := need(2); err != nil {
			return nil, err
		}
		d, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		base, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		if len(args) == 2 {
			return &LDR2{D: d, Base: base}, nil
		}
		disp, ok := intFromToken(args[2].text)
		if !ok {
			return nil, badConst(args[2])
		}
		return &LDR1{D: d, Base: base, Disp: disp}, nil

	case "str":
		if err := need(2); err != nil {
			return nil, err
		}
		val, ok := reg(args[0])
		if !ok {
			return nil, badReg(args[0])
		}
		base, ok := reg(args[1])
		if !ok {
			return nil, badReg(args[1])
		}
		if len(args) == 2 {
			return &STR2{Base: base, Val: val}, nil
		}
		disp, ok := intFromToken(args[2].text)
		if !ok {
			return nil, badConst(args[2])
		}
		return &STR1{Base: base, Val: val, Disp: disp}, nil
	}

	return nil, &ParseError{Line: line, Column: toks[0].col, Msg: "unreachable opcode dispatch"}
}

func line2col(line string, toks []token) int {
	if len(toks) == 0 {
		return 0
	}
	last := toks[len(toks)-1]
	return last.col + len(last.text)
}

func registerFromToken(tok string) (Reg, bool) {
	upper := strings.ToUpper(tok)
	switch upper {
	case "SP", "WSP":
		return SP(), true
	case "XZR", "WZR":
		return RZRReg(), true
	case "PC", "WPC":
		return PC(), true
	}
	if len(upper) < 2 {
		return Reg{}, false
	}
	kind := upper[0]
	if kind != 'X' && kind != 'W' {
		return Reg{}, false
	}
	n, err := strconv.ParseUint(upper[1:], 10, 32)
	if err != nil || n >= GPRS-3 {
		return Reg{}, false
	}
	return R(uint32(n)), true
}

func constFromToken(tok string) (Const, bool) {
	if !strings.HasPrefix(tok, "#") {
		return Const{}, false
	}
	n, ok := intFromToken(tok)
	if !ok {
		return Const{}, false
	}
	return IntConst(n), true
}

func intFromToken(tok string) (int64, bool) {
	tok = strings.TrimPrefix(tok, "#")
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
