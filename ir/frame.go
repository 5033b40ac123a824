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

// FrameMax marks a virtual register as "never spilled": it stays
// register-resident and has no stack slot.
const FrameMax = int(^uint(0) >> 1)

// Frames maps a virtual register id to its byte offset within its
// function's activation record, or FrameMax if it is register-resident.
type Frames map[ID]int

func (f Frames) Offset(id ID) int {
	if off, ok := f[id]; ok {
		return off
	}
	return FrameMax
}

type framer struct {
	cfg       *CFG
	addressed map[ID]bool
	frames    Frames
	visited   []bool
	inc       int
}

// Frame runs the two-pass framer (S3): first it marks every temp that is
// ever address-taken, then it walks the CFG depth-first from each
// function entry assigning each address-taken temp its first-visit slot,
// saving and restoring the running offset across each branch so sibling
// paths share slot numbers.
func (c *CFG) Frame() Frames {
	fr := &framer{
		cfg:       c,
		addressed: map[ID]bool{},
		frames:    Frames{},
		visited:   make([]bool, len(c.Nodes)),
	}
	fr.addressPass()
	for _, start := range c.Starts {
		fr.inc = 0
		fr.frameFunc(start)
	}
	return fr.frames
}

func (fr *framer) addressPass() {
	for _, n := range fr.cfg.Nodes {
		for _, s := range n.Stmts {
			WalkStmtExprs(s, func(e Expr) {
				if addr, ok := e.(*AddressExpr); ok {
					if t, ok2 := addr.E.(*TempExpr); ok2 {
						fr.addressed[t.ID] = true
					}
				}
			})
		}
	}
}

func (fr *framer) frameFunc(idx int) {
	if fr.visited[idx] {
		return
	}
	fr.visited[idx] = true
	node := fr.cfg.Nodes[idx]
	for _, s := range node.Stmts {
		WalkStmtExprs(s, func(e Expr) {
			if t, ok := e.(*TempExpr); ok {
				fr.frameTemp(t.ID)
			}
		})
	}

	saved := fr.inc
	if node.T >= 0 {
		fr.frameFunc(node.T)
	}
	fr.inc = saved
	if node.F >= 0 {
		fr.frameFunc(node.F)
	}
	fr.inc = saved
}

func (fr *framer) frameTemp(id ID) {
	if _, assigned := fr.frames[id]; assigned {
		return
	}
	if !fr.addressed[id] {
		return
	}
	fr.frames[id] = fr.inc
	fr.inc += 4
}
