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
	"aarch64c/ast"
	"aarch64c/registry"
	"aarch64c/utils"
)

// Translate lowers a parsed ast.Module into the flat list of function
// Statements S1 onward consumes. Every label and virtual id it hands out
// comes from reg, so nothing it mints collides with ids canon or isel
// mint later from the same registry.
//
// "main", if present, is always given label 0 regardless of where it
// appears in the source: cfg.go and the instruction selector both treat
// label 0 as the program entry.
func Translate(reg *registry.Registry, m *ast.Module) []Statement {
	t := &translator{reg: reg, names: map[string]Label{}}

	order := m.Functions
	for i, f := range order {
		if f.Name == "main" && i != 0 {
			order = append([]*ast.FunctionDeclaration{f}, append(append([]*ast.FunctionDeclaration{}, order[:i]...), order[i+1:]...)...)
			break
		}
	}
	for _, f := range order {
		t.names[f.Name] = reg.FreshLabel()
	}
	reg.Nfuncs = uint32(len(order))

	var out []Statement
	for _, f := range order {
		out = append(out, t.function(f))
	}
	return out
}

// translator carries the state a single module's translation shares: the
// registry everything mints ids from, the function name -> label map (built
// once, up front, so forward and mutually recursive calls resolve), and the
// per-function local-id -> virtual-id map and loop-label stacks that reset
// at each function boundary.
type translator struct {
	reg   *registry.Registry
	names map[string]Label

	locals         map[uint32]ID
	breakLabels    []Label
	continueLabels []Label
}

func (t *translator) function(f *ast.FunctionDeclaration) Statement {
	t.locals = map[uint32]ID{}
	t.breakLabels = nil
	t.continueLabels = nil

	label, ok := t.names[f.Name]
	utils.Assert(ok, "function %q was not given a label during the forward pass", f.Name)

	argIDs := make([]ID, len(f.ParamIDs))
	for i, pid := range f.ParamIDs {
		argIDs[i] = t.local(pid)
	}

	stmts := []Statement{&FunctionStmt{L: label, Args: argIDs}}
	stmts = append(stmts, t.compound(f.Body)...)
	return &SeqStmt{Stmts: stmts}
}

// local maps an ast-level, function-local variable id to a stable virtual
// register id, minting one from the registry the first time it is seen.
func (t *translator) local(astID uint32) ID {
	if id, ok := t.locals[astID]; ok {
		return id
	}
	id := t.reg.FreshID()
	t.locals[astID] = id
	return id
}

func (t *translator) freshTemp() *TempExpr { return &TempExpr{ID: t.reg.FreshID()} }

func (t *translator) compound(c *ast.CompoundStatement) []Statement {
	var out []Statement
	for _, s := range c.Stmts {
		if st := t.statement(s); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func (t *translator) statement(s ast.Statement) Statement {
	switch v := s.(type) {
	case *ast.DeclareStatement:
		return t.declare(v)
	case *ast.ExprStatement:
		return t.exprStatement(v)
	case *ast.IfStatement:
		return t.ifStatement(v)
	case *ast.ForStatement:
		return t.forStatement(v)
	case *ast.WhileStatement:
		return t.whileStatement(v)
	case *ast.CompoundStatement:
		return &SeqStmt{Stmts: t.compound(v)}
	case *ast.JumpStatement:
		return t.jump(v)
	}
	utils.ShouldNotReachHere()
	return nil
}

func (t *translator) declare(d *ast.DeclareStatement) Statement {
	id := t.local(d.ID)
	if d.Val == nil {
		return nil
	}
	return &MoveStmt{Dst: &TempExpr{ID: id}, Src: t.expr(d.Val)}
}

func (t *translator) exprStatement(e *ast.ExprStatement) Statement {
	if e == nil || e.Expr == nil {
		return nil
	}
	return &ExprStmt{E: t.expr(e.Expr)}
}

// ifStatement relies on control's (onFalse, onTrue) convention: the
// statement it returns falls through to onTrue and branches away only to
// onFalse, so onTrue must be the very next label emitted.
func (t *translator) ifStatement(i *ast.IfStatement) Statement {
	lt := t.reg.FreshLabel()
	lf := t.reg.FreshLabel()

	stmts := []Statement{t.control(i.Condition, lf, lt), &LabelStmt{L: lt}}
	if s := t.statement(i.True); s != nil {
		stmts = append(stmts, s)
	}
	if i.False == nil {
		stmts = append(stmts, &LabelStmt{L: lf})
		return &SeqStmt{Stmts: stmts}
	}

	le := t.reg.FreshLabel()
	stmts = append(stmts, &JumpStmt{Target: le}, &LabelStmt{L: lf})
	if s := t.statement(i.False); s != nil {
		stmts = append(stmts, s)
	}
	stmts = append(stmts, &LabelStmt{L: le})
	return &SeqStmt{Stmts: stmts}
}

func (t *translator) forStatement(f *ast.ForStatement) Statement {
	lt := t.reg.FreshLabel() // retest point
	lb := t.reg.FreshLabel() // body
	lc := t.reg.FreshLabel() // continue target: the increment
	le := t.reg.FreshLabel() // past the loop

	var stmts []Statement
	if init := t.exprStatement(f.Init); init != nil {
		stmts = append(stmts, init)
	}
	stmts = append(stmts, &LabelStmt{L: lt})
	if f.End != nil {
		stmts = append(stmts, t.control(f.End, le, lb))
	}
	stmts = append(stmts, &LabelStmt{L: lb})

	t.continueLabels = append(t.continueLabels, lc)
	t.breakLabels = append(t.breakLabels, le)
	body := t.statement(f.Body)
	t.continueLabels = t.continueLabels[:len(t.continueLabels)-1]
	t.breakLabels = t.breakLabels[:len(t.breakLabels)-1]
	if body != nil {
		stmts = append(stmts, body)
	}

	stmts = append(stmts, &LabelStmt{L: lc})
	if each := t.exprStatement(f.Each); each != nil {
		stmts = append(stmts, each)
	}
	stmts = append(stmts, &JumpStmt{Target: lt}, &LabelStmt{L: le})
	return &SeqStmt{Stmts: stmts}
}

func (t *translator) whileStatement(w *ast.WhileStatement) Statement {
	lt := t.reg.FreshLabel() // retest point, also the continue target
	lb := t.reg.FreshLabel() // body
	le := t.reg.FreshLabel() // past the loop

	stmts := []Statement{&LabelStmt{L: lt}, t.control(w.Condition, le, lb), &LabelStmt{L: lb}}

	t.continueLabels = append(t.continueLabels, lt)
	t.breakLabels = append(t.breakLabels, le)
	body := t.statement(w.Body)
	t.continueLabels = t.continueLabels[:len(t.continueLabels)-1]
	t.breakLabels = t.breakLabels[:len(t.breakLabels)-1]
	if body != nil {
		stmts = append(stmts, body)
	}

	stmts = append(stmts, &JumpStmt{Target: lt}, &LabelStmt{L: le})
	return &SeqStmt{Stmts: stmts}
}

func (t *translator) jump(j *ast.JumpStatement) Statement {
	switch j.Op {
	case ast.Return:
		if j.Expr == nil {
			return &ReturnStmt{E: nil}
		}
		return &ReturnStmt{E: t.expr(j.Expr)}
	case ast.Break:
		utils.Assert(len(t.breakLabels) > 0, "break outside of a loop")
		return &JumpStmt{Target: t.breakLabels[len(t.breakLabels)-1]}
	case ast.Continue:
		utils.Assert(len(t.continueLabels) > 0, "continue outside of a loop")
		return &JumpStmt{Target: t.continueLabels[len(t.continueLabels)-1]}
	}
	utils.ShouldNotReachHere()
	return nil
}

// control lowers a boolean-context expression to a CJump/Jump tree: it
// falls through to onTrue and branches away only to onFalse. onTrue must
// therefore be the label the caller emits immediately afterwards; this is
// what lets Export (S5) emit a single CJump with no extra Jump when layout
// already put onTrue next.
func (t *translator) control(e ast.Expr, onFalse, onTrue Label) Statement {
	switch v := e.(type) {
	case *ast.FloatLit:
		_ = v
		utils.Fatal("a float is not valid as a condition")
	case *ast.UnaryExpr:
		if v.Op == ast.Not {
			return t.control(v.Expr, onTrue, onFalse)
		}
	case *ast.BinaryExpr:
		switch v.Op {
		case ast.And:
			mid := t.reg.FreshLabel()
			return &SeqStmt{Stmts: []Statement{
				t.control(v.Left, onFalse, mid),
				&LabelStmt{L: mid},
				t.control(v.Right, onFalse, onTrue),
			}}
		case ast.Or:
			mid := t.reg.FreshLabel()
			return &SeqStmt{Stmts: []Statement{
				t.control(v.Left, mid, onTrue),
				&LabelStmt{L: mid},
				t.control(v.Right, onFalse, onTrue),
			}}
		}
	case *ast.IntegerLit:
		if v.Val != 0 {
			return &JumpStmt{Target: onTrue}
		}
		return &JumpStmt{Target: onFalse}
	case *ast.Identifier:
		return &CJumpStmt{Cond: &TempExpr{ID: t.local(v.ID)}, TLabel: onFalse, FLabel: Invalid}
	}
	return &CJumpStmt{Cond: t.expr(e), TLabel: onFalse, FLabel: Invalid}
}

// lvalue resolves an assignment target to the Expr its value is read from
// or written to: a bare temp for a variable, a memory cell for an index or
// a pointer dereference.
func (t *translator) lvalue(e ast.Expr) Expr {
	switch v := e.(type) {
	case *ast.Identifier:
		return &TempExpr{ID: t.local(v.ID)}
	case *ast.AccessExpr:
		return &MemExpr{Addr: t.accessAddr(v)}
	case *ast.UnaryExpr:
		if v.Op == ast.Star {
			return &MemExpr{Addr: t.expr(v.Expr)}
		}
	}
	utils.Fatal("invalid assignment target")
	return nil
}

// accessAddr computes the byte address an AccessExpr reads or writes:
// base's value plus offset scaled by the 4-byte slot size every scalar
// and pointer in this back-end occupies.
func (t *translator) accessAddr(a *ast.AccessExpr) Expr {
	base := t.expr(a.Base)
	scaled := &BinOpExpr{L: t.expr(a.Offset), Op: Mul, R: &ConstExpr{Val: IntPrimitive(4)}}
	return &BinOpExpr{L: base, Op: Add, R: scaled}
}

var binOps = map[ast.BinaryOp]Operator{
	ast.Mul: Mul, ast.Div: Div, ast.Mod: Mod, ast.Add: Add, ast.Sub: Sub,
	ast.Leq: Leq, ast.Geq: Geq, ast.Lt: Lt, ast.Gt: Gt, ast.Eq: Eq, ast.Neq: Neq,
}

func (t *translator) expr(e ast.Expr) Expr {
	switch v := e.(type) {
	case *ast.IntegerLit:
		return &ConstExpr{Val: IntPrimitive(v.Val)}
	case *ast.FloatLit:
		return &ConstExpr{Val: FloatPrimitive(v.Val)}
	case *ast.Identifier:
		return &TempExpr{ID: t.local(v.ID)}
	case *ast.AccessExpr:
		return &MemExpr{Addr: t.accessAddr(v)}
	case *ast.UnaryExpr:
		return t.unary(v)
	case *ast.BinaryExpr:
		return t.binary(v)
	case *ast.FunctionCall:
		label, ok := t.names[v.Name]
		utils.Assert(ok, "call to a function with no label: %q", v.Name)
		args := make([]Expr, len(v.Args))
		for i, a := range v.Args {
			args[i] = t.expr(a)
		}
		return &CallExpr{Fn: label, Args: args}
	}
	utils.ShouldNotReachHere()
	return nil
}

func (t *translator) unary(v *ast.UnaryExpr) Expr {
	switch v.Op {
	case ast.Star:
		return &MemExpr{Addr: t.expr(v.Expr)}
	case ast.Not:
		return &UnOpExpr{Op: Not, E: t.expr(v.Expr)}
	case ast.Neg:
		return &UnOpExpr{Op: Neg, E: t.expr(v.Expr)}
	case ast.Address:
		switch inner := v.Expr.(type) {
		case *ast.Identifier:
			return &AddressExpr{E: &TempExpr{ID: t.local(inner.ID)}}
		case *ast.AccessExpr:
			return t.accessAddr(inner)
		case *ast.UnaryExpr:
			if inner.Op == ast.Star {
				return t.expr(inner.Expr)
			}
		}
		utils.Fatal("cannot take the address of this expression")
	}
	utils.ShouldNotReachHere()
	return nil
}

func (t *translator) binary(v *ast.BinaryExpr) Expr {
	switch v.Op {
	case ast.Assign:
		dst := t.lvalue(v.Left)
		src := t.expr(v.Right)
		return &ESeqExpr{S: &MoveStmt{Dst: dst, Src: src}, E: dst}
	case ast.And, ast.Or:
		return t.boolExpr(v)
	}
	op, ok := binOps[v.Op]
	utils.Assert(ok, "unmapped binary operator")
	return &BinOpExpr{L: t.expr(v.Left), Op: op, R: t.expr(v.Right)}
}

// boolExpr gives && and || a value when they appear outside a condition,
// e.g. "int ok = a && b;". It reuses control's short-circuit lowering so
// the right-hand operand is still only evaluated when it has to be.
func (t *translator) boolExpr(v *ast.BinaryExpr) Expr {
	tmp := t.freshTemp()
	lt := t.reg.FreshLabel()
	lf := t.reg.FreshLabel()
	le := t.reg.FreshLabel()

	stmts := []Statement{
		t.control(v, lf, lt),
		&LabelStmt{L: lt},
		&MoveStmt{Dst: tmp, Src: &ConstExpr{Val: IntPrimitive(1)}},
		&JumpStmt{Target: le},
		&LabelStmt{L: lf},
		&MoveStmt{Dst: tmp, Src: &ConstExpr{Val: IntPrimitive(0)}},
		&LabelStmt{L: le},
	}
	return &ESeqExpr{S: &SeqStmt{Stmts: stmts}, E: tmp}
}
