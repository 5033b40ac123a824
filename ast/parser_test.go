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

package ast

import "testing"

func TestParseMainReturningConstant(t *testing.T) {
	m, err := Parse(`int main() { return 3; }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(m.Functions) != 1 || m.Functions[0].Name != "main" {
		t.Fatalf("expected a single main function, got %#v", m.Functions)
	}
}

func TestParseForWithEmptyEachClause(t *testing.T) {
	// the increment clause is optional; its absence is marked by the
	// header's closing paren, not a semicolon.
	m, err := Parse(`
		int main() {
			int i;
			for (i = 0; i < 10;) {
				i = i + 1;
			}
			return i;
		}
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	body := m.Functions[0].Body.Stmts
	var forStmt *ForStatement
	for _, s := range body {
		if f, ok := s.(*ForStatement); ok {
			forStmt = f
		}
	}
	if forStmt == nil {
		t.Fatalf("expected a for statement in %#v", body)
	}
	if forStmt.Each == nil || forStmt.Each.Expr != nil {
		t.Fatalf("expected an empty each clause, got %#v", forStmt.Each)
	}
}

func TestParseChainedArrayAccess(t *testing.T) {
	m, err := Parse(`
		int main() {
			int** a;
			return a[0][1];
		}
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	body := m.Functions[0].Body.Stmts
	ret, ok := body[len(body)-1].(*JumpStatement)
	if !ok || ret.Op != Return {
		t.Fatalf("expected a trailing return, got %#v", body[len(body)-1])
	}
	outer, ok := ret.Expr.(*AccessExpr)
	if !ok {
		t.Fatalf("expected the return value to be an access, got %#v", ret.Expr)
	}
	if _, ok := outer.Base.(*AccessExpr); !ok {
		t.Fatalf("expected chained indexing, got base %#v", outer.Base)
	}
}

func TestParseCompoundAssignDesugarsToAssignOfBinary(t *testing.T) {
	m, err := Parse(`
		int main() {
			int x;
			x += 1;
			return x;
		}
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	body := m.Functions[0].Body.Stmts
	stmt, ok := body[1].(*ExprStatement)
	if !ok {
		t.Fatalf("expected an expr statement, got %#v", body[1])
	}
	assign, ok := stmt.Expr.(*BinaryExpr)
	if !ok || assign.Op != Assign {
		t.Fatalf("expected a desugared assign, got %#v", stmt.Expr)
	}
	if _, ok := assign.Right.(*BinaryExpr); !ok {
		t.Fatalf("expected the rhs to be the desugared binary op, got %#v", assign.Right)
	}
}

func TestParseRejectsUnknownCharacter(t *testing.T) {
	if _, err := Parse(`int main() { return 1 @ 2; }`); err == nil {
		t.Fatalf("expected a lex error for an unrecognised character")
	}
}
