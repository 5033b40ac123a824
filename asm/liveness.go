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

import (
	"aarch64c/utils"

	"github.com/sirupsen/logrus"
)

// Liveness is the per-instruction output of S7: the final instruction
// stream with BB pseudo-ops inserted at block entries, and — indexed in
// lock-step with that stream — each instruction's live-in set and its
// def/use deadness flags.
type Liveness struct {
	Instrs  []Instruction
	LiveIn  []*utils.Set[Reg]
	DefDead []*utils.Set[Reg]
	UseDead []*utils.Set[Reg]
}

type work struct {
	idx   int
	delta []Reg
}

func regsContain(rs []Reg, r Reg) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// Compute runs the backward liveness dataflow over cfg and returns the
// rewritten instruction stream with BB pseudo-ops inserted, plus the
// aligned liveness annotations the register allocator consumes.
func Compute(cfg *CFG, instrs []Instruction) *Liveness {
	n := len(cfg.Nodes)
	live := make([]*utils.Set[Reg], n)
	for i := range live {
		live[i] = utils.NewSet[Reg]()
	}
	preds := make([][]int, n)
	for idx, nd := range cfg.Nodes {
		if nd.T >= 0 {
			preds[nd.T] = append(preds[nd.T], idx)
		}
		if nd.F >= 0 {
			preds[nd.F] = append(preds[nd.F], idx)
		}
	}

	defsOf := make([][]Reg, n)
	usesOf := make([][]Reg, n)
	var queue []work
	for idx, nd := range cfg.Nodes {
		if nd.Instr == nil {
			continue
		}
		d, u := nd.Instr.DefUse()
		defsOf[idx], usesOf[idx] = d, u
		queue = append(queue, work{idx: idx, delta: append([]Reg{}, u...)})
	}

	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		var newDelta []Reg
		for _, r := range w.delta {
			if live[w.idx].Contains(r) {
				continue
			}
			if regsContain(usesOf[w.idx], r) || !regsContain(defsOf[w.idx], r) {
				live[w.idx].Add(r)
				newDelta = append(newDelta, r)
			}
		}
		if len(newDelta) == 0 {
			continue
		}
		for _, p := range preds[w.idx] {
			queue = append(queue, work{idx: p, delta: newDelta})
		}
	}

	successorsLiveIn := func(nd *Node) *utils.Set[Reg] {
		merged := utils.NewSet[Reg]()
		if nd.T >= 0 {
			live[nd.T].ForEach(func(r Reg) { merged.Add(r) })
		}
		if nd.F >= 0 {
			live[nd.F].ForEach(func(r Reg) { merged.Add(r) })
		}
		return merged
	}

	defDeadByNode := make([]*utils.Set[Reg], n)
	useDeadByNode := make([]*utils.Set[Reg], n)
	for idx, nd := range cfg.Nodes {
		if nd.Instr == nil {
			continue
		}
		out := successorsLiveIn(nd)
		dd := utils.NewSet[Reg]()
		for _, d := range defsOf[idx] {
			if !out.Contains(d) {
				dd.Add(d)
			}
		}
		ud := utils.NewSet[Reg]()
		for _, u := range usesOf[idx] {
			if !out.Contains(u) {
				ud.Add(u)
			}
		}
		defDeadByNode[idx] = dd
		useDeadByNode[idx] = ud
	}

	var outInstrs []Instruction
	var outLiveIn, outDefDead, outUseDead []*utils.Set[Reg]
	for pos, nodeIdx := range cfg.Order {
		_, isLabel := instrs[pos].(*Label)
		prevIsCall := pos > 0
		if prevIsCall {
			switch instrs[pos-1].(type) {
			case *B1, *BL:
			default:
				prevIsCall = false
			}
		}
		if pos == 0 || prevIsCall || isLabel {
			outInstrs = append(outInstrs, &BB{Regs: setToSlice(live[nodeIdx])})
			outLiveIn = append(outLiveIn, live[nodeIdx])
			outDefDead = append(outDefDead, utils.NewSet[Reg]())
			outUseDead = append(outUseDead, utils.NewSet[Reg]())
		}
		outInstrs = append(outInstrs, instrs[pos])
		outLiveIn = append(outLiveIn, live[nodeIdx])
		outDefDead = append(outDefDead, defDeadByNode[nodeIdx])
		outUseDead = append(outUseDead, useDeadByNode[nodeIdx])
	}

	logrus.WithField("stage", "liveness").Debugf("computed liveness over %d instructions (%d after BB insertion)", len(instrs), len(outInstrs))

	return &Liveness{Instrs: outInstrs, LiveIn: outLiveIn, DefDead: outDefDead, UseDead: outUseDead}
}

func setToSlice(s *utils.Set[Reg]) []Reg {
	out := make([]Reg, 0, s.Length())
	s.ForEach(func(r Reg) { out = append(out, r) })
	return out
}
