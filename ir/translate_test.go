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

package ir

import (
	"testing"

	"aarch64c/ast"
	"aarch64c/registry"
)

func mustParse(t *testing.T, src string) *ast.Module {
	t.Helper()
	m, err := ast.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

// functionStmt finds the FunctionStmt with the given label inside a flat
// Translate result, unwrapping the outer SeqStmt Translate wraps each
// function body in.
func functionStmt(stmts []Statement, label Label) (*FunctionStmt, []Statement) {
	for _, s := range stmts {
		seq, ok := s.(*SeqStmt)
		if !ok || len(seq.Stmts) == 0 {
			continue
		}
		if fn, ok := seq.Stmts[0].(*FunctionStmt); ok && fn.L == label {
			return fn, seq.Stmts
		}
	}
	return nil, nil
}

func TestTranslateMainAlwaysGetsLabelZero(t *testing.T) {
	m := mustParse(t, `
		int helper() { return 1; }
		int main() { return helper(); }
	`)
	reg := registry.New()
	stmts := Translate(reg, m)

	if fn, _ := functionStmt(stmts, 0); fn == nil {
		t.Fatalf("expected main at label 0, got %#v", stmts)
	}
	if reg.Nfuncs != 2 {
		t.Fatalf("expected Nfuncs == 2, got %d", reg.Nfuncs)
	}
}

func TestTranslateForwardReferenceResolves(t *testing.T) {
	// The parser requires a function to be declared before it is called, so
	// later comes first in the source. Translate moves main to the front, so
	// main's body is lowered before later's and its call can only resolve
	// through the label the forward pass over function names minted.
	m := mustParse(t, `
		int later() { return 42; }
		int main() { return later(); }
	`)
	reg := registry.New()
	stmts := Translate(reg, m)
	if fn, body := functionStmt(stmts, 0); fn == nil || len(body) < 2 {
		t.Fatalf("expected a translated main body, got %#v", stmts)
	}
}

func TestTranslateIfElseWrapsFalseBranchWithJumpOverEnd(t *testing.T) {
	m := mustParse(t, `
		int main() {
			int x;
			if (x == 0) { x = 1; } else { x = 2; }
			return x;
		}
	`)
	reg := registry.New()
	stmts := Translate(reg, m)
	_, body := functionStmt(stmts, 0)
	if body == nil {
		t.Fatalf("expected a translated main body")
	}

	var ifSeq *SeqStmt
	for _, s := range body {
		if seq, ok := s.(*SeqStmt); ok {
			for _, inner := range seq.Stmts {
				if _, ok := inner.(*CJumpStmt); ok {
					ifSeq = seq
				}
			}
		}
	}
	if ifSeq == nil {
		t.Fatalf("expected the if/else to lower to a CJump-headed SeqStmt, got %#v", body)
	}

	var sawJump, sawTrailingLabel bool
	for i, s := range ifSeq.Stmts {
		if _, ok := s.(*JumpStmt); ok {
			sawJump = true
		}
		if i == len(ifSeq.Stmts)-1 {
			_, sawTrailingLabel = s.(*LabelStmt)
		}
	}
	if !sawJump {
		t.Fatalf("expected the true branch to jump over the false branch, got %#v", ifSeq.Stmts)
	}
	if !sawTrailingLabel {
		t.Fatalf("expected a trailing join label, got %#v", ifSeq.Stmts)
	}
}

func TestTranslateArrayAccessComputesScaledAddress(t *testing.T) {
	m := mustParse(t, `
		int main() {
			int* a;
			return a[1];
		}
	`)
	reg := registry.New()
	stmts := Translate(reg, m)
	_, body := functionStmt(stmts, 0)

	var ret *ReturnStmt
	for _, s := range body {
		if r, ok := s.(*ReturnStmt); ok {
			ret = r
		}
	}
	if ret == nil {
		t.Fatalf("expected a return statement in %#v", body)
	}
	mem, ok := ret.E.(*MemExpr)
	if !ok {
		t.Fatalf("expected the array read to lower to a Mem, got %#v", ret.E)
	}
	addr, ok := mem.Addr.(*BinOpExpr)
	if !ok || addr.Op != Add {
		t.Fatalf("expected base+offset addressing, got %#v", mem.Addr)
	}
	scale, ok := addr.R.(*BinOpExpr)
	if !ok || scale.Op != Mul {
		t.Fatalf("expected the offset to be scaled by the slot size, got %#v", addr.R)
	}
	c, ok := scale.R.(*ConstExpr)
	if !ok || c.Val.IntVal != 4 {
		t.Fatalf("expected a 4-byte scale, got %#v", scale.R)
	}
}

func TestTranslateBoolExprAsValue(t *testing.T) {
	m := mustParse(t, `
		int main() {
			int ok;
			ok = 1 && 0;
			return ok;
		}
	`)
	reg := registry.New()
	stmts := Translate(reg, m)
	_, body := functionStmt(stmts, 0)

	var found bool
	for _, s := range body {
		// the assignment statement lowers to ExprStmt{ESeq{Move(ok, ...), ok}}
		es, ok := s.(*ExprStmt)
		if !ok {
			continue
		}
		assign, ok := es.E.(*ESeqExpr)
		if !ok {
			continue
		}
		if mv, ok := assign.S.(*MoveStmt); ok {
			if eseq, ok := mv.Src.(*ESeqExpr); ok {
				if _, ok := eseq.E.(*TempExpr); ok {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected ok = 1 && 0 to lower through an ESeq materialising a temp, got %#v", body)
	}
}

func TestTranslateBreakOutsideLoopPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic for a break outside any loop")
		}
	}()
	t2 := &translator{reg: registry.New(), names: map[string]Label{}, locals: map[uint32]ID{}}
	t2.jump(&ast.JumpStatement{Op: ast.Break})
}
