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
	"fmt"
	"strings"
)

// Mode selects how Print renders a finished instruction stream.
type Mode int

const (
	// Normal prepends the entry directive, renders label 0 as __start,
	// and omits Mov2(r, r) no-ops and BB pseudo-ops.
	Normal Mode = iota
	// Raw renders every instruction unfiltered, BB included, for
	// debugging the allocator's intermediate state.
	Raw
)

func labelName(l uint32) string {
	if l == 0 {
		return "__start"
	}
	return fmt.Sprintf("l%d", l)
}

// Print renders a finished instruction stream as AArch64 assembly text.
func Print(instrs []Instruction, mode Mode) string {
	var b strings.Builder
	if mode == Normal {
		b.WriteString(".global __start\n")
	}
	for _, in := range instrs {
		if mode == Normal {
			if _, ok := in.(*BB); ok {
				continue
			}
			if IsNopMov(in) {
				continue
			}
		}
		if lbl, ok := in.(*Label); ok {
			b.WriteString(labelName(lbl.L))
			b.WriteString(":\n")
			continue
		}
		b.WriteString("\t")
		b.WriteString(renderMnemonic(in))
		b.WriteString("\n")
	}
	return b.String()
}

// renderMnemonic is Instruction.String() except that it resolves label 0
// to __start everywhere a branch target appears, matching Print's label
// naming.
func renderMnemonic(in Instruction) string {
	switch v := in.(type) {
	case *B1:
		return fmt.Sprintf("b %s", labelName(v.L))
	case *B2:
		return fmt.Sprintf("b.%s %s", v.CC, labelName(v.L))
	case *BL:
		return fmt.Sprintf("bl %s", labelName(v.L))
	case *CBZ:
		return fmt.Sprintf("cbz %s, %s", v.R, labelName(v.L))
	case *CBNZ:
		return fmt.Sprintf("cbnz %s, %s", v.R, labelName(v.L))
	default:
		return in.String()
	}
}
