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
	"strings"
	"testing"
)

func TestPrintNormalRendersLabelZeroAsStart(t *testing.T) {
	instrs := []Instruction{
		&Label{L: 0},
		&Mov1{D: R(0), C: IntConst(3)},
		&Ret{},
	}
	out := Print(instrs, Normal)
	if !strings.Contains(out, "__start:") {
		t.Fatalf("expected label 0 to render as __start, got %q", out)
	}
	if strings.Contains(out, "l0:") {
		t.Fatalf("did not expect a raw l0 label in Normal mode, got %q", out)
	}
	if !strings.HasPrefix(out, ".global __start\n") {
		t.Fatalf("expected Normal mode to prepend the entry directive, got %q", out)
	}
}

func TestPrintNormalOmitsIdentityMovesAndBBPseudoOps(t *testing.T) {
	instrs := []Instruction{
		&Label{L: 0},
		&BB{Regs: []Reg{R(0)}},
		&Mov2{D: R(0), S: R(0)},
		&Mov2{D: R(1), S: R(0)},
		&Ret{},
	}
	out := Print(instrs, Normal)
	if strings.Contains(out, "bb") {
		t.Fatalf("expected BB pseudo-ops to be filtered out of Normal output, got %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var movCount int
	for _, l := range lines {
		if strings.Contains(l, "mov") {
			movCount++
		}
	}
	if movCount != 1 {
		t.Fatalf("expected exactly the non-identity move to survive, got %d mov lines in %q", movCount, out)
	}
}

func TestPrintRawKeepsBBPseudoOpsAndIdentityMoves(t *testing.T) {
	instrs := []Instruction{
		&Label{L: 0},
		&BB{Regs: []Reg{R(0)}},
		&Mov2{D: R(0), S: R(0)},
		&Ret{},
	}
	out := Print(instrs, Raw)
	if strings.HasPrefix(out, ".global") {
		t.Fatalf("did not expect Raw mode to prepend the entry directive, got %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected Raw mode to keep every instruction including BB, got %q", out)
	}
}

func TestPrintBranchesResolveLabelZeroToStart(t *testing.T) {
	instrs := []Instruction{&B1{L: 0}}
	out := Print(instrs, Normal)
	if !strings.Contains(out, "__start") {
		t.Fatalf("expected a branch to label 0 to render __start, got %q", out)
	}
}
