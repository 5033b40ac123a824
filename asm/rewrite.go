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

// Rewrite returns a copy of instr with every register field mapped
// through f. Used by coalescing (f = union-find representative) and by
// final colour assignment (f = chosen physical register) — neither cares
// whether a field is a def or a use, only about identity.
func Rewrite(instr Instruction, f func(Reg) Reg) Instruction {
	switch v := instr.(type) {
	case *Label, *B1, *BL, *SVC, *Ret:
		return instr
	case *Mov1:
		return &Mov1{D: f(v.D), C: v.C}
	case *Mov2:
		return &Mov2{D: f(v.D), S: f(v.S)}
	case *Add1:
		return &Add1{D: f(v.D), L: f(v.L), C: v.C}
	case *Add2:
		return &Add2{D: f(v.D), L: f(v.L), R: f(v.R)}
	case *Sub1:
		return &Sub1{D: f(v.D), L: f(v.L), C: v.C}
	case *Sub2:
		return &Sub2{D: f(v.D), L: f(v.L), R: f(v.R)}
	case *Neg1:
		return &Neg1{D: f(v.D), C: v.C}
	case *Neg2:
		return &Neg2{D: f(v.D), S: f(v.S)}
	case *SMAddL:
		return &SMAddL{D: f(v.D), L: f(v.L), M: f(v.M), A: f(v.A)}
	case *SMSubL:
		return &SMSubL{D: f(v.D), L: f(v.L), M: f(v.M), A: f(v.A)}
	case *SMNegL:
		return &SMNegL{D: f(v.D), L: f(v.L), M: f(v.M)}
	case *SMulL:
		return &SMulL{D: f(v.D), L: f(v.L), R: f(v.R)}
	case *SDiv:
		return &SDiv{D: f(v.D), L: f(v.L), R: f(v.R)}
	case *And1:
		return &And1{D: f(v.D), L: f(v.L), C: v.C}
	case *And2:
		return &And2{D: f(v.D), L: f(v.L), R: f(v.R)}
	case *Or1:
		return &Or1{D: f(v.D), L: f(v.L), C: v.C}
	case *Or2:
		return &Or2{D: f(v.D), L: f(v.L), R: f(v.R)}
	case *Mvn1:
		return &Mvn1{D: f(v.D), C: v.C}
	case *Mvn2:
		return &Mvn2{D: f(v.D), S: f(v.S)}
	case *B2:
		return &B2{CC: v.CC, L: v.L}
	case *CBZ:
		return &CBZ{R: f(v.R), L: v.L}
	case *CBNZ:
		return &CBNZ{R: f(v.R), L: v.L}
	case *Cmp1:
		return &Cmp1{L: f(v.L), C: v.C}
	case *Cmp2:
		return &Cmp2{L: f(v.L), R: f(v.R)}
	case *CSet:
		return &CSet{D: f(v.D), CC: v.CC}
	case *LDR1:
		return &LDR1{D: f(v.D), Base: f(v.Base), Disp: v.Disp}
	case *LDR2:
		return &LDR2{D: f(v.D), Base: f(v.Base)}
	case *STR1:
		return &STR1{Base: f(v.Base), Val: f(v.Val), Disp: v.Disp}
	case *STR2:
		return &STR2{Base: f(v.Base), Val: f(v.Val)}
	case *BB:
		regs := make([]Reg, len(v.Regs))
		for i, r := range v.Regs {
			regs[i] = f(r)
		}
		return &BB{Regs: regs}
	}
	panic("asm: Rewrite reached an unhandled instruction variant")
}

// RewriteSpill rewrites the single register victim within instr: every
// def-role occurrence becomes defRepl, every use-role occurrence becomes
// useRepl. A BB pseudo-op's register list simply drops victim — it is
// reloaded fresh at its next use rather than carried live across the
// block entry.
func RewriteSpill(instr Instruction, victim, useRepl, defRepl Reg) Instruction {
	sub := func(r Reg, repl Reg) Reg {
		if r == victim {
			return repl
		}
		return r
	}
	switch v := instr.(type) {
	case *BB:
		var regs []Reg
		for _, r := range v.Regs {
			if r != victim {
				regs = append(regs, r)
			}
		}
		return &BB{Regs: regs}
	case *Mov1:
		return &Mov1{D: sub(v.D, defRepl), C: v.C}
	case *Mov2:
		return &Mov2{D: sub(v.D, defRepl), S: sub(v.S, useRepl)}
	case *Add1:
		return &Add1{D: sub(v.D, defRepl), L: sub(v.L, useRepl), C: v.C}
	case *Add2:
		return &Add2{D: sub(v.D, defRepl), L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *Sub1:
		return &Sub1{D: sub(v.D, defRepl), L: sub(v.L, useRepl), C: v.C}
	case *Sub2:
		return &Sub2{D: sub(v.D, defRepl), L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *Neg1:
		return &Neg1{D: sub(v.D, defRepl), C: v.C}
	case *Neg2:
		return &Neg2{D: sub(v.D, defRepl), S: sub(v.S, useRepl)}
	case *SMAddL:
		return &SMAddL{D: sub(v.D, defRepl), L: sub(v.L, useRepl), M: sub(v.M, useRepl), A: sub(v.A, useRepl)}
	case *SMSubL:
		return &SMSubL{D: sub(v.D, defRepl), L: sub(v.L, useRepl), M: sub(v.M, useRepl), A: sub(v.A, useRepl)}
	case *SMNegL:
		return &SMNegL{D: sub(v.D, defRepl), L: sub(v.L, useRepl), M: sub(v.M, useRepl)}
	case *SMulL:
		return &SMulL{D: sub(v.D, defRepl), L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *SDiv:
		return &SDiv{D: sub(v.D, defRepl), L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *And1:
		return &And1{D: sub(v.D, defRepl), L: sub(v.L, useRepl), C: v.C}
	case *And2:
		return &And2{D: sub(v.D, defRepl), L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *Or1:
		return &Or1{D: sub(v.D, defRepl), L: sub(v.L, useRepl), C: v.C}
	case *Or2:
		return &Or2{D: sub(v.D, defRepl), L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *Mvn1:
		return &Mvn1{D: sub(v.D, defRepl), C: v.C}
	case *Mvn2:
		return &Mvn2{D: sub(v.D, defRepl), S: sub(v.S, useRepl)}
	case *CBZ:
		return &CBZ{R: sub(v.R, useRepl), L: v.L}
	case *CBNZ:
		return &CBNZ{R: sub(v.R, useRepl), L: v.L}
	case *Cmp1:
		return &Cmp1{L: sub(v.L, useRepl), C: v.C}
	case *Cmp2:
		return &Cmp2{L: sub(v.L, useRepl), R: sub(v.R, useRepl)}
	case *CSet:
		return &CSet{D: sub(v.D, defRepl), CC: v.CC}
	case *LDR1:
		return &LDR1{D: sub(v.D, defRepl), Base: sub(v.Base, useRepl), Disp: v.Disp}
	case *LDR2:
		return &LDR2{D: sub(v.D, defRepl), Base: sub(v.Base, useRepl)}
	case *STR1:
		return &STR1{Base: sub(v.Base, useRepl), Val: sub(v.Val, useRepl), Disp: v.Disp}
	case *STR2:
		return &STR2{Base: sub(v.Base, useRepl), Val: sub(v.Val, useRepl)}
	default:
		return instr
	}
}

// references reports whether instr mentions r in any register field
// (def or use role, including inside a BB pseudo-op's list).
func references(instr Instruction, r Reg) bool {
	defs, uses := instr.DefUse()
	for _, d := range defs {
		if d == r {
			return true
		}
	}
	for _, u := range uses {
		if u == r {
			return true
		}
	}
	return false
}
