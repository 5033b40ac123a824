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

// Package canon implements S1, IR canonicalisation: rewriting the tree IR
// into a flat statement list in which every Move destination is a Temp or
// a Mem, every Expr statement wraps a Call, and ESeq no longer appears.
package canon

import (
	"aarch64c/ir"
	"aarch64c/registry"

	"github.com/sirupsen/logrus"
)

// Reducer carries the mutable state canonicalisation needs: the shared
// registry for minting fresh temps, nothing else.
type Reducer struct {
	reg *registry.Registry
}

// New creates a Reducer and reserves the registry's return-value temp.
// The reservation must happen before any other id is minted during
// reduction so every function shares the same carrier.
func New(reg *registry.Registry) *Reducer {
	reg.ReserveReturn()
	return &Reducer{reg: reg}
}

// Reduce canonicalises a flat (but possibly ESeq/Seq-nested) statement
// list into the flattened, invariant-satisfying form described in §3.1.
func (r *Reducer) Reduce(stmts []ir.Statement) []ir.Statement {
	out := r.seq(stmts)
	logrus.WithField("stage", "canon").Debugf("canonicalised %d statements into %d", len(stmts), len(out))
	return out
}

func (r *Reducer) seq(stmts []ir.Statement) []ir.Statement {
	var out []ir.Statement
	for _, s := range stmts {
		out = append(out, r.statement(s)...)
	}
	return out
}

func (r *Reducer) statement(s ir.Statement) []ir.Statement {
	switch st := s.(type) {
	case *ir.ExprStmt:
		return r.exprStatement(st.E)
	case *ir.CJumpStmt:
		pre, e1 := r.expression(st.Cond)
		return append(pre, &ir.CJumpStmt{Cond: e1, TLabel: st.TLabel, FLabel: st.FLabel})
	case *ir.JumpStmt, *ir.LabelStmt, *ir.FunctionStmt, *ir.AsmStmt:
		return []ir.Statement{s}
	case *ir.ReturnStmt:
		if st.E == nil {
			return []ir.Statement{&ir.ReturnStmt{}}
		}
		pre, e1 := r.expression(st.E)
		return append(pre, &ir.ReturnStmt{E: e1})
	case *ir.MoveStmt:
		return r.move(st.Dst, st.Src)
	case *ir.SeqStmt:
		return r.seq(st.Stmts)
	}
	panic("canon: unhandled statement variant")
}

// exprStatement lowers a bare expression-statement. Only Call-producing
// expressions survive as statements after canonicalisation — anything
// else was only present for its side effects, which the lowering of its
// subexpressions has already extracted into the prelude.
func (r *Reducer) exprStatement(e ir.Expr) []ir.Statement {
	pre, e1 := r.expression(e)
	if _, ok := e1.(*ir.CallExpr); ok {
		return append(pre, &ir.ExprStmt{E: e1})
	}
	return pre
}

func (r *Reducer) move(dst, src ir.Expr) []ir.Statement {
	switch d := dst.(type) {
	case *ir.TempExpr:
		pre, s1 := r.expression(src)
		return append(pre, &ir.MoveStmt{Dst: d, Src: s1})
	case *ir.MemExpr:
		// Bind the destination address in a fresh temp first, then lower
		// the source value normally; the address temp is never reused to
		// also carry the value.
		preAddr, addr1 := r.expression(d.Addr)
		t := r.freshTemp()
		preAddr = append(preAddr, &ir.MoveStmt{Dst: t, Src: addr1})
		preSrc, s1 := r.expression(src)
		out := append(preAddr, preSrc...)
		return append(out, &ir.MoveStmt{Dst: &ir.MemExpr{Addr: t}, Src: s1})
	}
	panic("canon: Move destination must be Temp or Mem")
}

// expression lowers e to (side-effect prelude, pure residual expression).
func (r *Reducer) expression(e ir.Expr) ([]ir.Statement, ir.Expr) {
	switch ex := e.(type) {
	case *ir.ConstExpr, *ir.TempExpr:
		return nil, ex
	case *ir.MemExpr:
		pre, e1 := r.expression(ex.Addr)
		return pre, &ir.MemExpr{Addr: e1}
	case *ir.AddressExpr:
		pre, e1 := r.expression(ex.E)
		return pre, &ir.AddressExpr{E: e1}
	case *ir.UnOpExpr:
		pre, e1 := r.expression(ex.E)
		return pre, &ir.UnOpExpr{Op: ex.Op, E: e1}
	case *ir.BinOpExpr:
		return r.binary(ex.L, ex.Op, ex.R)
	case *ir.CallExpr:
		return r.call(ex.Fn, ex.Args)
	case *ir.ESeqExpr:
		s := r.statement(ex.S)
		pre, e1 := r.expression(ex.E)
		return append(s, pre...), e1
	}
	panic("canon: unhandled expression variant")
}

// binary always binds the left operand into a fresh temp before lowering
// the right: commutativity of the two side-effect lists is not proven,
// so the bind is emitted unconditionally.
func (r *Reducer) binary(l ir.Expr, op ir.Operator, rhs ir.Expr) ([]ir.Statement, ir.Expr) {
	sl, l1 := r.expression(l)
	t := r.freshTemp()
	sl = append(sl, &ir.MoveStmt{Dst: t, Src: l1})
	sr, r1 := r.expression(rhs)
	out := append(sl, sr...)
	return out, &ir.BinOpExpr{L: t, Op: op, R: r1}
}

func (r *Reducer) call(fn ir.Label, args []ir.Expr) ([]ir.Statement, ir.Expr) {
	var out []ir.Statement
	temps := make([]ir.Expr, len(args))
	for i, a := range args {
		pre, a1 := r.expression(a)
		t := r.freshTemp()
		out = append(out, pre...)
		out = append(out, &ir.MoveStmt{Dst: t, Src: a1})
		temps[i] = t
	}
	out = append(out, &ir.ExprStmt{E: &ir.CallExpr{Fn: fn, Args: temps}})
	result := r.freshTemp()
	out = append(out, &ir.MoveStmt{Dst: result, Src: &ir.TempExpr{ID: r.reg.Ret}})
	return out, result
}

func (r *Reducer) freshTemp() *ir.TempExpr {
	return &ir.TempExpr{ID: r.reg.FreshID()}
}
