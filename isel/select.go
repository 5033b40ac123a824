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

// Package isel implements S6, the memoising tree-tiling instruction
// selector: it tiles IR statements and expressions against the target
// instruction patterns (§4.7), preferring fused multiply-add/sub and
// negate-multiply tiles where they match, and emits code that still
// refers to virtual registers.
package isel

import (
	"aarch64c/asm"
	"aarch64c/ir"
	"aarch64c/registry"
	"aarch64c/utils"

	"github.com/sirupsen/logrus"
)

// tile caches the winning tile for one expression node: its instruction
// count and the instructions/result register that realise it. Tiles are
// tried in a fixed order and the first one that matches wins; cost is
// recorded but not compared.
type tile struct {
	cost   int
	temp   asm.Reg
	instrs []asm.Instruction
}

// Selector holds the mutable state instruction selection needs: the
// shared registry for minting result temps, the frame map from S3, and a
// per-function memo keyed by expression node identity (a Go pointer is a
// stable, comparable identity — the direct analogue of the address-as-key
// trick used where node identities aren't otherwise available).
type Selector struct {
	reg    *registry.Registry
	frames ir.Frames
	memo   map[ir.Expr]*tile
	isMain bool
}

func New(reg *registry.Registry, frames ir.Frames) *Selector {
	return &Selector{reg: reg, frames: frames, memo: map[ir.Expr]*tile{}}
}

// Select tiles a canonical, exported flat statement list into target
// instructions still referring to virtual registers.
func (s *Selector) Select(stmts []ir.Statement) []asm.Instruction {
	var out []asm.Instruction
	for _, st := range stmts {
		out = append(out, s.statement(st)...)
	}
	logrus.WithField("stage", "isel").Debugf("selected %d instructions from %d statements", len(out), len(stmts))
	return out
}

var argRegs = []asm.Reg{asm.R(0), asm.R(1), asm.R(2), asm.R(3), asm.R(4), asm.R(5), asm.R(6), asm.R(7)}

func (s *Selector) statement(st ir.Statement) []asm.Instruction {
	switch v := st.(type) {
	case *ir.LabelStmt:
		return []asm.Instruction{&asm.Label{L: v.L}}

	case *ir.JumpStmt:
		return []asm.Instruction{&asm.B1{L: v.Target}}

	case *ir.FunctionStmt:
		// Expression-node identity is only unique within a function, so
		// the memo must be cleared at every function boundary.
		s.memo = map[ir.Expr]*tile{}
		s.isMain = v.L == 0

		out := []asm.Instruction{&asm.Label{L: v.L}}
		if !s.isMain {
			out = append(out,
				&asm.STR1{Base: asm.SP(), Val: asm.R(29), Disp: -16},
				&asm.Sub1{D: asm.SP(), L: asm.SP(), C: asm.IntConst(16)},
			)
		}
		for i, argID := range v.Args {
			if i >= len(argRegs) {
				utils.Fatal("Too many arguments!")
			}
			out = append(out, &asm.Mov2{D: asm.ID(argID), S: argRegs[i]})
		}
		return out

	case *ir.ReturnStmt:
		if v.E == nil {
			return []asm.Instruction{&asm.Ret{}}
		}
		instrs, t := s.expression(v.E)
		out := append(instrs, &asm.Mov2{D: asm.R(0), S: t})
		if s.isMain {
			return append(out, &asm.Mov1{D: asm.R(16), C: asm.IntConst(1)}, &asm.SVC{C: asm.IntConst(128)})
		}
		return append(out, &asm.Ret{})

	case *ir.MoveStmt:
		return s.move(v)

	case *ir.CJumpStmt:
		instrs, t := s.expression(v.Cond)
		return append(instrs, &asm.CBZ{R: t, L: v.TLabel})

	case *ir.ExprStmt:
		call, ok := v.E.(*ir.CallExpr)
		utils.Assert(ok, "canonical Expr statement must wrap a Call")
		return s.call(call)

	case *ir.AsmStmt:
		return []asm.Instruction{v.Instr}
	}
	utils.ShouldNotReachHere()
	return nil
}

func (s *Selector) move(v *ir.MoveStmt) []asm.Instruction {
	switch d := v.Dst.(type) {
	case *ir.MemExpr:
		addrInstrs, addrT := s.expression(d.Addr)
		valInstrs, valT := s.expression(v.Src)
		out := append(addrInstrs, valInstrs...)
		return append(out, &asm.STR2{Base: addrT, Val: valT})
	case *ir.TempExpr:
		instrs, t := s.expression(v.Src)
		return append(instrs, &asm.Mov2{D: s.destReg(d.ID), S: t})
	}
	utils.Fatal("Move destination must be Temp or Mem")
	return nil
}

func (s *Selector) call(c *ir.CallExpr) []asm.Instruction {
	if len(c.Args) > len(argRegs) {
		utils.Fatal("Too many arguments!")
	}
	var out []asm.Instruction
	for i, a := range c.Args {
		t, ok := a.(*ir.TempExpr)
		utils.Assert(ok, "call argument must be a bare temp after canonicalisation")
		out = append(out, &asm.Mov2{D: argRegs[i], S: s.destReg(t.ID)})
	}
	return append(out, &asm.BL{L: c.Fn})
}

// destReg resolves a virtual id to the register that carries it: the
// reserved return-value temp always lives in R0, every other temp in its
// own virtual register.
func (s *Selector) destReg(id ir.ID) asm.Reg {
	if id == s.reg.Ret {
		return asm.R(0)
	}
	return asm.ID(id)
}

func (s *Selector) fresh() asm.Reg { return asm.ID(s.reg.FreshID()) }

func toConst(p ir.Primitive) asm.Const {
	if p.IsFloat {
		return asm.FloatConst(p.FltVal)
	}
	return asm.IntConst(p.IntVal)
}

// expression tiles e, memoising by node identity so a subexpression
// reached from more than one tiling attempt is only selected once.
func (s *Selector) expression(e ir.Expr) ([]asm.Instruction, asm.Reg) {
	if cached, ok := s.memo[e]; ok {
		cp := make([]asm.Instruction, len(cached.instrs))
		copy(cp, cached.instrs)
		return cp, cached.temp
	}

	var instrs []asm.Instruction
	var res asm.Reg

	switch ex := e.(type) {
	case *ir.ConstExpr:
		res = s.fresh()
		instrs = []asm.Instruction{&asm.Mov1{D: res, C: toConst(ex.Val)}}

	case *ir.TempExpr:
		res = s.fresh()
		instrs = []asm.Instruction{&asm.Mov2{D: res, S: s.destReg(ex.ID)}}

	case *ir.UnOpExpr:
		instrs, res = s.unary(ex)

	case *ir.BinOpExpr:
		instrs, res = s.binary(ex)

	case *ir.MemExpr:
		addrInstrs, addrT := s.expression(ex.Addr)
		res = s.fresh()
		instrs = append(addrInstrs, &asm.LDR2{D: res, Base: addrT})

	case *ir.AddressExpr:
		instrs, res = s.address(ex)

	default:
		utils.Fatal("instruction selection reached an expression form that canonicalisation should have removed")
	}

	cp := make([]asm.Instruction, len(instrs))
	copy(cp, instrs)
	s.memo[e] = &tile{cost: len(instrs), temp: res, instrs: cp}
	return instrs, res
}

func (s *Selector) unary(ex *ir.UnOpExpr) ([]asm.Instruction, asm.Reg) {
	switch ex.Op {
	case ir.Neg:
		// UnOp(Neg, BinOp(l, Mul, r)) -> SMNEGL, a single instruction,
		// strictly cheaper than the generic two-instruction Neg-of-Mul
		// path below, so it is always tried first.
		if m, ok := ex.E.(*ir.BinOpExpr); ok && m.Op == ir.Mul {
			lInstrs, lT := s.expression(m.L)
			rInstrs, rT := s.expression(m.R)
			res := s.fresh()
			instrs := append(append(lInstrs, rInstrs...), &asm.SMNegL{D: res, L: lT, M: rT})
			return instrs, res
		}
		eInstrs, eT := s.expression(ex.E)
		res := s.fresh()
		return append(eInstrs, &asm.Neg2{D: res, S: eT}), res

	case ir.Not:
		if c, ok := ex.E.(*ir.ConstExpr); ok {
			res := s.fresh()
			return []asm.Instruction{&asm.Mvn1{D: res, C: toConst(c.Val)}}, res
		}
		eInstrs, eT := s.expression(ex.E)
		res := s.fresh()
		return append(eInstrs, &asm.Mvn2{D: res, S: eT}), res
	}
	utils.ShouldNotReachHere()
	return nil, asm.Reg{}
}

func isComparison(op ir.Operator) bool {
	switch op {
	case ir.Eq, ir.Neq, ir.Leq, ir.Geq, ir.Lt, ir.Gt:
		return true
	}
	return false
}

func ccFor(op ir.Operator) asm.CC {
	switch op {
	case ir.Eq:
		return asm.EQ
	case ir.Neq:
		return asm.NE
	case ir.Geq:
		return asm.GE
	case ir.Lt:
		return asm.LT
	case ir.Gt:
		return asm.GT
	case ir.Leq:
		return asm.LE
	}
	utils.ShouldNotReachHere()
	return asm.EQ
}

func (s *Selector) binary(ex *ir.BinOpExpr) ([]asm.Instruction, asm.Reg) {
	// BinOp(x, Add, BinOp(l, Mul, r)) -> SMADDL; BinOp(x, Sub, BinOp(l,
	// Mul, r)) -> SMSUBL. Both are single fused instructions and are
	// always tried ahead of the generic two-instruction sequence.
	if ex.Op == ir.Add || ex.Op == ir.Sub {
		if m, ok := ex.R.(*ir.BinOpExpr); ok && m.Op == ir.Mul {
			xInstrs, xT := s.expression(ex.L)
			lInstrs, lT := s.expression(m.L)
			rInstrs, rT := s.expression(m.R)
			res := s.fresh()
			instrs := append(append(xInstrs, lInstrs...), rInstrs...)
			if ex.Op == ir.Add {
				instrs = append(instrs, &asm.SMAddL{D: res, L: lT, M: rT, A: xT})
			} else {
				instrs = append(instrs, &asm.SMSubL{D: res, L: lT, M: rT, A: xT})
			}
			return instrs, res
		}
	}

	if isComparison(ex.Op) {
		lInstrs, lT := s.expression(ex.L)
		rInstrs, rT := s.expression(ex.R)
		res := s.fresh()
		instrs := append(append(lInstrs, rInstrs...), &asm.Cmp2{L: lT, R: rT}, &asm.CSet{D: res, CC: ccFor(ex.Op)})
		return instrs, res
	}

	if ex.Op == ir.Mod {
		lInstrs, lT := s.expression(ex.L)
		rInstrs, rT := s.expression(ex.R)
		q, m, res := s.fresh(), s.fresh(), s.fresh()
		instrs := append(append(lInstrs, rInstrs...),
			&asm.SDiv{D: q, L: lT, R: rT},
			&asm.SMulL{D: m, L: q, R: rT},
			&asm.Sub2{D: res, L: lT, R: m},
		)
		return instrs, res
	}

	lInstrs, lT := s.expression(ex.L)
	rInstrs, rT := s.expression(ex.R)
	res := s.fresh()
	var instr asm.Instruction
	switch ex.Op {
	case ir.Add:
		instr = &asm.Add2{D: res, L: lT, R: rT}
	case ir.Sub:
		instr = &asm.Sub2{D: res, L: lT, R: rT}
	case ir.Mul:
		instr = &asm.SMulL{D: res, L: lT, R: rT}
	case ir.Div:
		instr = &asm.SDiv{D: res, L: lT, R: rT}
	case ir.And:
		instr = &asm.And2{D: res, L: lT, R: rT}
	case ir.Or:
		instr = &asm.Or2{D: res, L: lT, R: rT}
	default:
		// The target instruction set (§3.4) has no bitwise-xor/EOR
		// encoding; the front end never produces Xor, so this is
		// reachable only from a malformed upstream translator.
		utils.Unimplement()
	}
	return append(append(lInstrs, rInstrs...), instr), res
}

func (s *Selector) address(ex *ir.AddressExpr) ([]asm.Instruction, asm.Reg) {
	switch inner := ex.E.(type) {
	case *ir.TempExpr:
		res := s.fresh()
		off := s.frames.Offset(inner.ID)
		utils.Assert(off != ir.FrameMax, "Address() of a temp the framer never assigned a slot")
		return []asm.Instruction{&asm.LDR1{D: res, Base: asm.R(29), Disp: int64(off)}}, res
	case *ir.MemExpr:
		// Address(Mem(e))'s "address" is e itself; delegate directly.
		return s.expression(inner.Addr)
	}
	utils.Fatal("Address of a non-addressable expression")
	return nil, asm.Reg{}
}
