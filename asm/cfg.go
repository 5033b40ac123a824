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

// Node is one assembly-level basic block: a single owned instruction plus
// up to two successor node indices (-1 meaning absent). Labels re-use the
// same dense small-integer space minted by the IR stages, so a label's
// numeric value is also its node index here.
type Node struct {
	Instr Instruction
	T, F  int
}

// CFG is the instruction-level control-flow graph built over the selected
// code (S7). Order lists, for every position in the original instruction
// stream, the node index that position became — it is the identity
// permutation in spirit, since this rebuild never reorders, only groups.
type CFG struct {
	Nodes []*Node
	Order []int
}

// BuildCFG rebuilds a CFG over a flat, selected instruction stream. nlabels
// is the total number of label ids minted upstream; Label instructions
// reuse that dense space as their node index, everything else gets a fresh
// anonymous node.
func BuildCFG(nlabels uint32, instrs []Instruction) *CFG {
	nodes := make([]*Node, nlabels)
	for i := range nodes {
		nodes[i] = &Node{T: -1, F: -1}
	}
	posToNode := make([]int, len(instrs))

	for idx, ins := range instrs {
		if lbl, ok := ins.(*Label); ok {
			nodes[lbl.L].Instr = ins
			posToNode[idx] = int(lbl.L)
		} else {
			nodes = append(nodes, &Node{Instr: ins, T: -1, F: -1})
			posToNode[idx] = len(nodes) - 1
		}
	}

	for idx, ins := range instrs {
		n := nodes[posToNode[idx]]
		fallthroughIdx := -1
		if idx+1 < len(instrs) {
			fallthroughIdx = posToNode[idx+1]
		}
		switch v := ins.(type) {
		case *Label:
			n.F = fallthroughIdx
		case *B1:
			n.T = int(v.L)
		case *B2:
			n.T = int(v.L)
			n.F = fallthroughIdx
		case *BL:
			n.T = int(v.L)
			n.F = fallthroughIdx
		case *CBZ:
			n.T = int(v.L)
			n.F = fallthroughIdx
		case *CBNZ:
			n.T = int(v.L)
			n.F = fallthroughIdx
		case *Ret:
			// no successors: execution leaves the function
		default:
			n.F = fallthroughIdx
		}
	}

	return &CFG{Nodes: nodes, Order: posToNode}
}
