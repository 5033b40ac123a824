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
	"aarch64c/registry"
	"aarch64c/utils"

	"github.com/sirupsen/logrus"
)

// colours is the number of physical registers available to the allocator:
// every general-purpose register other than the three reserved names.
const colours = GPRS - 3

// graph is an undirected interference graph over the dense register index
// space Reg.Index defines: one bitmap row per register, each sized to cover
// every physical, reserved, and virtual register this round might see.
// Reg.Index's own doc comment calls out this exact use.
type graph struct {
	adj []*utils.BitMap
}

func newGraph(size int) *graph {
	adj := make([]*utils.BitMap, size)
	for i := range adj {
		adj[i] = utils.NewBitMap(size)
	}
	return &graph{adj: adj}
}

func (g *graph) addEdge(a, b Reg) {
	if a == b {
		return
	}
	ai, bi := int(a.Index()), int(b.Index())
	g.adj[ai].Set(bi)
	g.adj[bi].Set(ai)
}

func (g *graph) interferes(a, b Reg) bool {
	return g.adj[a.Index()].IsSet(int(b.Index()))
}

func (g *graph) degree(r Reg) int {
	bm := g.adj[r.Index()]
	n := 0
	for i := 0; i < bm.Size(); i++ {
		if bm.IsSet(i) {
			n++
		}
	}
	return n
}

func (g *graph) neighbors(r Reg) []Reg {
	bm := g.adj[r.Index()]
	var out []Reg
	for i := 0; i < bm.Size(); i++ {
		if bm.IsSet(i) {
			out = append(out, FromIndex(uint32(i)))
		}
	}
	return out
}

// unionFind merges coalesced registers. A virtual unioned with a physical
// always resolves to that physical; two distinct physicals can never be
// merged, and attempting to do so (a forced-merge collision between two
// pre-coloured registers) is fatal.
type unionFind struct {
	parent map[Reg]Reg
	rank   map[Reg]int
}

func newUF() *unionFind { return &unionFind{parent: map[Reg]Reg{}, rank: map[Reg]int{}} }

func (u *unionFind) find(r Reg) Reg {
	p, ok := u.parent[r]
	if !ok {
		u.parent[r] = r
		return r
	}
	if p != r {
		root := u.find(p)
		u.parent[r] = root
		return root
	}
	return r
}

func (u *unionFind) union(a, b Reg) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case ra.IsPhysical() && rb.IsPhysical():
		utils.Fatal("register allocator: forced-merge collision between %s and %s", ra, rb)
	case ra.IsPhysical():
		u.parent[rb] = ra
	case rb.IsPhysical():
		u.parent[ra] = rb
	default:
		if u.rank[ra] < u.rank[rb] {
			ra, rb = rb, ra
		}
		u.parent[rb] = ra
		if u.rank[ra] == u.rank[rb] {
			u.rank[ra]++
		}
	}
}

// buildInterference replays the instruction stream maintaining a live
// multiset that is reset at every BB pseudo-op and otherwise threaded
// through dead-use decrements and def edges, per instruction. rep resolves
// a register to its coalesced representative before it touches the graph
// or the multiset. size is the dense index space the graph's bitmaps must
// cover: GPRS plus every virtual id this round could possibly reference.
func buildInterference(instrs []Instruction, defDead, useDead []*utils.Set[Reg], rep func(Reg) Reg, size int) (*graph, *utils.Set[Reg]) {
	g := newGraph(size)
	conflicts := map[Reg]int{}
	virtuals := utils.NewSet[Reg]()
	track := func(r Reg) Reg {
		rr := rep(r)
		if rr.IsVirtual() {
			virtuals.Add(rr)
		}
		return rr
	}

	for i, ins := range instrs {
		if bb, ok := ins.(*BB); ok {
			conflicts = map[Reg]int{}
			for _, r := range bb.Regs {
				conflicts[track(r)]++
			}
			continue
		}
		if _, ok := ins.(*BL); ok {
			// BL's def/use projection does not mark the caller-saved bank
			// as clobbered, so anything live across the call is forced to
			// interfere with it here instead.
			for c := range conflicts {
				for i := uint32(0); i < 16; i++ {
					g.addEdge(c, R(i))
				}
			}
		}
		defs, uses := ins.DefUse()
		for _, u0 := range uses {
			u := track(u0)
			if useDead[i].Contains(u0) {
				conflicts[u]--
				if conflicts[u] <= 0 {
					delete(conflicts, u)
				}
			}
		}
		for _, d0 := range defs {
			d := track(d0)
			for c := range conflicts {
				g.addEdge(d, c)
			}
			if !defDead[i].Contains(d0) {
				conflicts[d]++
			}
		}
	}

	virtuals.ForEach(func(v Reg) {
		g.addEdge(SP(), v)
		g.addEdge(RZRReg(), v)
		g.addEdge(PC(), v)
	})
	return g, virtuals
}

// coalesce repeatedly merges the two sides of a Mov2 whose representatives
// do not yet interfere, rebuilding the interference graph against the
// current union-find state each pass, until no further merge is safe. This
// is the naive O(n²) variant: simple, and the instruction counts this
// allocator ever sees make the quadratic rebuild cheap in practice.
func coalesce(instrs []Instruction, defDead, useDead []*utils.Set[Reg], size int) *unionFind {
	uf := newUF()
	for {
		rep := uf.find
		g, _ := buildInterference(instrs, defDead, useDead, rep, size)
		changed := false
		for _, ins := range instrs {
			m, ok := ins.(*Mov2)
			if !ok {
				continue
			}
			d, s := rep(m.D), rep(m.S)
			if d == s || g.interferes(d, s) {
				continue
			}
			uf.union(m.D, m.S)
			changed = true
		}
		if !changed {
			return uf
		}
	}
}

// simplify orders every virtual onto a stack by repeatedly removing a
// vertex of degree below the number of available colours. When none
// remains, the highest-degree survivor is pushed anyway as a potential
// spill and simplification continues with it removed.
func simplify(g *graph, virtuals *utils.Set[Reg]) []Reg {
	degree := map[Reg]int{}
	remaining := utils.NewSet[Reg]()
	virtuals.ForEach(func(v Reg) {
		degree[v] = g.degree(v)
		remaining.Add(v)
	})

	var stack []Reg
	for remaining.Length() > 0 {
		var picked Reg
		found := false
		remaining.ForEach(func(v Reg) {
			if !found && degree[v] < colours {
				picked, found = v, true
			}
		})
		if !found {
			best := -1
			remaining.ForEach(func(v Reg) {
				if degree[v] > best {
					best, picked = degree[v], v
				}
			})
		}
		stack = append(stack, picked)
		remaining.Remove(picked)
		for _, n := range g.neighbors(picked) {
			if remaining.Contains(n) {
				degree[n]--
			}
		}
	}
	return stack
}

// assignColours pops the simplification stack in reverse — the order that
// guarantees every vertex sees at most (colours-1) already-coloured
// neighbours when it is its turn — and assigns the lowest free colour. A
// vertex pushed as a potential spill that still finds no free colour here
// becomes an actual spill.
func assignColours(g *graph, stack []Reg) (map[Reg]uint32, []Reg) {
	result := map[Reg]uint32{}
	var spills []Reg
	for i := len(stack) - 1; i >= 0; i-- {
		v := stack[i]
		// sized to GPRS, not colours: SP/RZR/PC's reserved indices run past
		// colours-1 and every virtual interferes with all three.
		used := utils.NewBitMap(GPRS)
		for _, n := range g.neighbors(v) {
			if n.IsPhysical() {
				used.Set(int(n.Index()))
			} else if c, ok := result[n]; ok {
				used.Set(int(c))
			}
		}
		assigned := false
		for c := 0; c < colours; c++ {
			if !used.IsSet(c) {
				result[v] = uint32(c)
				assigned = true
				break
			}
		}
		if !assigned {
			spills = append(spills, v)
		}
	}
	return result, spills
}

func finalize(instrs []Instruction, rep func(Reg) Reg, colourOf map[Reg]uint32) []Instruction {
	f := func(r Reg) Reg {
		rr := rep(r)
		if rr.IsPhysical() {
			return rr
		}
		c, ok := colourOf[rr]
		if !ok {
			utils.Fatal("register allocator left %s uncoloured", rr)
		}
		return FromIndex(c)
	}
	out := make([]Instruction, len(instrs))
	for i, in := range instrs {
		out[i] = Rewrite(in, f)
	}
	return out
}

func stripBB(instrs []Instruction) []Instruction {
	out := instrs[:0:0]
	for _, in := range instrs {
		if _, ok := in.(*BB); ok {
			continue
		}
		out = append(out, in)
	}
	return out
}

// spillRewrite inserts a reload before every use and a store after every
// def of each register in spills, addressing a dedicated frame slot per
// spilled register starting at base. It is the one piece of this pipeline
// the drafts this was distilled from left as a stub: without it, any
// program with more simultaneously-live temporaries than available colours
// would make the allocator panic instead of degrading gracefully.
func spillRewrite(instrs []Instruction, spills []Reg, reg *registry.Registry, base int, slots map[uint32]int) ([]Instruction, int) {
	spillSet := map[Reg]bool{}
	for _, v := range spills {
		spillSet[v] = true
		if _, ok := slots[v.Idx]; !ok {
			slots[v.Idx] = base
			base += 4
		}
	}
	offset := func(v Reg) int64 { return int64(slots[v.Idx]) }

	var out []Instruction
	for _, in := range instrs {
		if _, ok := in.(*BB); ok {
			cur := in
			for v := range spillSet {
				cur = RewriteSpill(cur, v, v, v)
			}
			out = append(out, cur)
			continue
		}

		defs, uses := in.DefUse()
		var reloads, stores []Instruction
		cur := in
		for v := range spillSet {
			if !references(in, v) {
				continue
			}
			useTemp, defTemp := v, v
			if regsContain(uses, v) {
				useTemp = ID(reg.FreshID())
				reloads = append(reloads, &LDR1{D: useTemp, Base: R(29), Disp: offset(v)})
			}
			if regsContain(defs, v) {
				defTemp = ID(reg.FreshID())
				stores = append(stores, &STR1{Base: R(29), Val: defTemp, Disp: offset(v)})
			}
			cur = RewriteSpill(cur, v, useTemp, defTemp)
		}
		out = append(out, reloads...)
		out = append(out, cur)
		out = append(out, stores...)
	}
	return out, base
}

// Allocate runs S8 to a fixed point: build the interference graph, coalesce
// moves, simplify and colour, and — whenever colouring leaves spills —
// rewrite them into explicit loads and stores around a dedicated frame
// slot and start over. frameBase is the first free byte offset below the
// frame the framer (S3) already laid out; it returns the final physical
// instruction stream and the frame offset assigned to every spilled
// virtual register, keyed by virtual id.
func Allocate(nlabels uint32, instrs []Instruction, reg *registry.Registry, frameBase int) ([]Instruction, map[uint32]int) {
	cur := stripBB(instrs)
	base := frameBase
	slots := map[uint32]int{}

	for round := 0; ; round++ {
		if round > len(instrs)+64 {
			utils.Fatal("register allocator failed to reach a fixed point")
		}
		cfg := BuildCFG(nlabels, cur)
		live := Compute(cfg, cur)
		size := int(reg.Nids) + GPRS
		uf := coalesce(live.Instrs, live.DefDead, live.UseDead, size)
		rep := uf.find
		g, virtuals := buildInterference(live.Instrs, live.DefDead, live.UseDead, rep, size)
		stack := simplify(g, virtuals)
		colourOf, spills := assignColours(g, stack)

		if len(spills) == 0 {
			out := finalize(live.Instrs, rep, colourOf)
			logrus.WithField("stage", "regalloc").Debugf("allocated %d virtuals across %d rounds", virtuals.Length(), round+1)
			return out, slots
		}

		logrus.WithField("stage", "regalloc").Debugf("round %d: spilling %d register(s)", round, len(spills))
		cur, base = spillRewrite(live.Instrs, spills, reg, base, slots)
		cur = stripBB(cur)
	}
}
