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

// Reorder produces a linear ordering of CFG node indices (S4): a simple
// depth-first numbering from each function entry, visiting the taken (T)
// successor before the untaken (F) one, so the common case — the taken
// branch is the next block in program order — falls through without a
// jump.
func (c *CFG) Reorder() []int {
	order := make([]int, len(c.Nodes))
	for i := range order {
		order[i] = -1
	}
	count := 0
	var visit func(idx int)
	visit = func(idx int) {
		if idx < 0 || order[idx] >= 0 {
			return
		}
		order[idx] = count
		count++
		visit(c.Nodes[idx].T)
		visit(c.Nodes[idx].F)
	}
	for _, start := range c.Starts {
		visit(start)
	}

	// order[idx] currently holds the *rank* assigned to node idx; turn it
	// into a permutation of node indices sorted by rank.
	perm := make([]int, count)
	for idx, rank := range order {
		if rank >= 0 {
			perm[rank] = idx
		}
	}
	return perm
}
