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

// Package compile wires the nine back-end stages into a single pipeline:
// parse, translate to IR, canonicalise, build and frame the CFG, reorder
// and export it back to a flat statement list, tile it into target
// instructions, allocate registers, and print.
package compile

import (
	"os"

	"aarch64c/asm"
	"aarch64c/ast"
	"aarch64c/canon"
	"aarch64c/ir"
	"aarch64c/isel"
	"aarch64c/registry"

	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options controls the optional, per-invocation behaviour main.go exposes
// as flags; the zero value compiles normally with no dumps.
type Options struct {
	// Raw selects asm.Raw printing (BB pseudo-ops and identity moves kept).
	Raw bool
	// Dump pretty-prints the canonical IR and the exported statement list
	// to stderr as each stage finishes, for inspecting the pipeline by hand.
	Dump bool
}

// Compile runs every stage over src and returns the rendered assembly text.
func Compile(src string, opts Options) (string, error) {
	log := logrus.WithField("stage", "driver")

	mod, err := ast.Parse(src)
	if err != nil {
		return "", errors.Wrap(err, "parse")
	}
	log.Debugf("parsed %d functions", len(mod.Functions))

	reg := registry.New()
	stmts := ir.Translate(reg, mod)

	reducer := canon.New(reg)
	canonical := reducer.Reduce(stmts)
	if opts.Dump {
		pretty.Fprintf(os.Stderr, "canonical: %# v\n", canonical)
	}

	cfg := ir.BuildCFG(reg, canonical)
	frames := cfg.Frame()
	order := cfg.Reorder()
	flat := ir.Export(cfg, order)
	if opts.Dump {
		pretty.Fprintf(os.Stderr, "exported: %# v\n", flat)
	}

	selector := isel.New(reg, frames)
	instrs := selector.Select(flat)

	final, _ := asm.Allocate(reg.Nlabels, instrs, reg, frameBase(frames))

	mode := asm.Normal
	if opts.Raw {
		mode = asm.Raw
	}
	log.Debugf("emitting %d instructions", len(final))
	return asm.Print(final, mode), nil
}

// frameBase returns the first free byte offset below the slots the framer
// (S3) already assigned to address-taken temps, the starting point for any
// further slots the allocator's spill pass needs to hand out.
func frameBase(frames ir.Frames) int {
	base := 0
	for id := range frames {
		if off := frames.Offset(id); off != ir.FrameMax && off+4 > base {
			base = off + 4
		}
	}
	return base
}

// CompileFile reads path, compiles its contents, and returns the result.
func CompileFile(path string, opts Options) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return Compile(string(data), opts)
}
