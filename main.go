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
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aarch64c/compile"

	"github.com/sirupsen/logrus"
)

func main() {
	raw := flag.Bool("raw", false, "print the unfiltered instruction stream, BB pseudo-ops included")
	dump := flag.Bool("dump", false, "dump the canonical IR and exported statement list to stderr")
	out := flag.String("o", "", "output path (defaults to the input path with its extension replaced by .s)")
	verbose := flag.Bool("v", false, "enable debug-level stage logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: aarch64c [-raw] [-dump] [-v] [-o out.s] source.c")
		os.Exit(1)
	}
	source := flag.Arg(0)

	text, err := compile.CompileFile(source, compile.Options{Raw: *raw, Dump: *dump})
	if err != nil {
		logrus.WithField("stage", "driver").Errorf("%+v", err)
		os.Exit(1)
	}

	dest := *out
	if dest == "" {
		dest = strings.TrimSuffix(source, filepath.Ext(source)) + ".s"
	}
	if err := os.WriteFile(dest, []byte(text), 0644); err != nil {
		logrus.WithField("stage", "driver").Errorf("writing %s: %v", dest, err)
		os.Exit(1)
	}
}
