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

// Export walks the ordered CFG and serialises it back to a flat
// statement list (S5), inverting or dropping conditional branches and
// jumps so that consecutive blocks in order fall through wherever
// possible.
func Export(c *CFG, order []int) []Statement {
	var out []Statement
	for k, idx := range order {
		node := c.Nodes[idx]
		if len(node.Stmts) == 0 {
			continue
		}
		peek := -1
		if k+1 < len(order) {
			peek = order[k+1]
		}

		out = append(out, node.Stmts[:len(node.Stmts)-1]...)
		last := node.Stmts[len(node.Stmts)-1]

		switch l := last.(type) {
		case *CJumpStmt:
			switch {
			case node.T == peek:
				out = append(out, &CJumpStmt{
					Cond:   &UnOpExpr{Op: Not, E: l.Cond},
					TLabel: Label(node.F),
					FLabel: Invalid,
				})
			case node.F == peek:
				out = append(out, &CJumpStmt{Cond: l.Cond, TLabel: Label(node.T), FLabel: Invalid})
			default:
				out = append(out, &CJumpStmt{Cond: l.Cond, TLabel: Label(node.T), FLabel: Invalid})
				out = append(out, &JumpStmt{Target: Label(node.F)})
			}
		case *JumpStmt:
			if node.T != peek {
				out = append(out, l)
			}
		default:
			out = append(out, last)
			if node.F >= 0 && node.F != peek {
				out = append(out, &JumpStmt{Target: Label(node.F)})
			}
		}
	}
	return out
}
