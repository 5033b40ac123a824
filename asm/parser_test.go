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

import "testing"

func TestParsePrintRoundTrip(t *testing.T) {
	cases := []string{
		"mov x0, #3",
		"mov x1, x0",
		"add x2, x0, x1",
		"add x2, x0, #4",
		"sub x3, x2, #1",
		"and x4, x0, x1",
		"or x5, x0, x1",
		"cmp x0, x1",
		"cmp x0, #0",
		"smaddl x6, x0, x1, x2",
		"smsubl x7, x0, x1, x2",
		"smnegl x8, x0, x1",
		"smull x9, x0, x1",
		"sdiv x10, x0, x1",
		"ldr x11, x0",
		"ldr x12, x0, #8",
		"str x0, x1",
		"str x0, x1, #8",
		"svc #128",
		"ret",
	}
	for _, src := range cases {
		instr, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		printed := renderMnemonic(instr)
		reparsed, err := Parse(printed)
		if err != nil {
			t.Fatalf("Parse(%q) printed %q which failed to reparse: %v", src, printed, err)
		}
		if renderMnemonic(reparsed) != printed {
			t.Fatalf("round-trip mismatch: %q printed as %q, reparsed printed as %q", src, printed, renderMnemonic(reparsed))
		}
	}
}

func TestParseRejectsUnknownOpcode(t *testing.T) {
	_, err := Parse("frobnicate x0, x1")
	if err == nil {
		t.Fatalf("expected an error for an unknown opcode")
	}
}

func TestParseRejectsMissingOperand(t *testing.T) {
	_, err := Parse("add x0, x1")
	if err == nil {
		t.Fatalf("expected an error for a missing operand")
	}
}

func TestParseRejectsOutOfRangeRegister(t *testing.T) {
	_, err := Parse("mov x999, #1")
	if err == nil {
		t.Fatalf("expected an error for an out-of-range register")
	}
}

func TestParseOrNeverBuildsAnAndInstruction(t *testing.T) {
	instr, err := Parse("or x0, x1, x2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := instr.(*Or2); !ok {
		t.Fatalf("expected or to parse into Or2, got %#v", instr)
	}
}

func TestParseSpecialRegisterNames(t *testing.T) {
	instr, err := Parse("mov sp, xzr")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	mv, ok := instr.(*Mov2)
	if !ok {
		t.Fatalf("expected a Mov2, got %#v", instr)
	}
	if mv.D != SP() || mv.S != RZRReg() {
		t.Fatalf("expected sp and xzr to resolve to the reserved registers, got %#v", mv)
	}
}
