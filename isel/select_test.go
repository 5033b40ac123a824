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

package isel

import (
	"testing"

	"aarch64c/asm"
	"aarch64c/ir"
	"aarch64c/registry"
)

func newSelector() (*registry.Registry, *Selector) {
	reg := registry.New()
	return reg, New(reg, ir.Frames{})
}

func TestSelectPrefersSMAddLOverGenericMulAdd(t *testing.T) {
	reg, s := newSelector()
	l := &ir.TempExpr{ID: reg.FreshID()}
	m := &ir.TempExpr{ID: reg.FreshID()}
	x := &ir.TempExpr{ID: reg.FreshID()}
	expr := &ir.BinOpExpr{L: x, Op: ir.Add, R: &ir.BinOpExpr{L: l, Op: ir.Mul, R: m}}

	instrs, _ := s.expression(expr)
	var sawFused bool
	for _, in := range instrs {
		if _, ok := in.(*asm.SMAddL); ok {
			sawFused = true
		}
		if _, ok := in.(*asm.SMulL); ok {
			t.Fatalf("expected the fused SMADDL tile, found a separate SMULL in %#v", instrs)
		}
	}
	if !sawFused {
		t.Fatalf("expected an SMADDL instruction, got %#v", instrs)
	}
}

func TestSelectPrefersSMSubLOverGenericMulSub(t *testing.T) {
	reg, s := newSelector()
	l := &ir.TempExpr{ID: reg.FreshID()}
	m := &ir.TempExpr{ID: reg.FreshID()}
	x := &ir.TempExpr{ID: reg.FreshID()}
	expr := &ir.BinOpExpr{L: x, Op: ir.Sub, R: &ir.BinOpExpr{L: l, Op: ir.Mul, R: m}}

	instrs, _ := s.expression(expr)
	var sub *asm.SMSubL
	for _, in := range instrs {
		if v, ok := in.(*asm.SMSubL); ok {
			sub = v
		}
	}
	if sub == nil {
		t.Fatalf("expected an SMSUBL instruction, got %#v", instrs)
	}
	// the accumulator must be a recorded use: a latent bug in the DefUse of
	// the drafts this back end was distilled from let the allocator
	// reassign a still-live accumulator.
	_, uses := sub.DefUse()
	var sawAccumulator bool
	for _, u := range uses {
		if u == sub.A {
			sawAccumulator = true
		}
	}
	if !sawAccumulator {
		t.Fatalf("expected SMSubL.DefUse to report the accumulator as a use")
	}
}

func TestSelectMemoisesRepeatedSubexpressions(t *testing.T) {
	reg, s := newSelector()
	shared := &ir.TempExpr{ID: reg.FreshID()}
	expr := &ir.BinOpExpr{L: shared, Op: ir.Add, R: shared}

	before := reg.Nids
	_, _ = s.expression(expr)
	afterFirst := reg.Nids

	// re-tiling the very same node (as a second tiling attempt reaching the
	// same subexpression would) must not mint any more virtual registers.
	_, _ = s.expression(shared)
	afterSecond := reg.Nids

	if afterFirst == before {
		t.Fatalf("expected the first tiling to mint registers")
	}
	if afterSecond != afterFirst {
		t.Fatalf("expected the memoised lookup to mint no new registers, went from %d to %d", afterFirst, afterSecond)
	}
}

func TestSelectFunctionPrologueUsesPositiveSubImmediate(t *testing.T) {
	_, s := newSelector()
	instrs := s.statement(&ir.FunctionStmt{L: 1, Args: nil})

	var sub *asm.Sub1
	for _, in := range instrs {
		if v, ok := in.(*asm.Sub1); ok {
			sub = v
		}
	}
	if sub == nil {
		t.Fatalf("expected a stack-pointer decrement in the prologue, got %#v", instrs)
	}
	if sub.C.IntVal <= 0 {
		t.Fatalf("expected a positive immediate shrinking SP, got %d", sub.C.IntVal)
	}
}

func TestSelectTooManyArgumentsIsFatal(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a fatal error for more than 8 arguments")
		}
		if r != "Too many arguments!" {
			t.Fatalf("expected the unified overflow message, got %v", r)
		}
	}()
	_, s := newSelector()
	args := make([]ir.ID, 9)
	s.statement(&ir.FunctionStmt{L: 1, Args: args})
}

func TestSelectCallTooManyArgumentsIsFatal(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a fatal error for more than 8 call arguments")
		}
		if r != "Too many arguments!" {
			t.Fatalf("expected the unified overflow message, got %v", r)
		}
	}()
	_, s := newSelector()
	args := make([]ir.Expr, 9)
	for i := range args {
		args[i] = &ir.TempExpr{ID: ir.ID(i)}
	}
	s.call(&ir.CallExpr{Fn: 0, Args: args})
}
