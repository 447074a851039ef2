// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosos/gosos/pkg/program"
)

var helpvar bool
var outvar string

const usage = "gosos-asm [-out outfile] filename"

func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
}

func init() {
	flag.BoolVar(&helpvar, "help", false, "Displays command usage")
	flag.StringVar(
		&outvar, "out", "",
		"Specifies a precise name for the output file, "+
			"overriding the default means of determining it",
	)
	flag.Parse()
}

func gosos_asm() int {
	if helpvar {
		fmt.Println(usage)
		flag.PrintDefaults()
		return 0
	}

	args := flag.Args()

	var name string
	var input io.Reader

	if stat, _ := os.Stdin.Stat(); stat.Mode()&os.ModeCharDevice == 0 {
		name = "<stdin>"
		input = os.Stdin

		if outvar == "" {
			outvar = "out.bin"
		}
	} else {
		if len(args) != 1 {
			log.Println(usage)
			return 1
		}

		file, err := os.Open(args[0])

		if err != nil {
			log.Println(err)
			return 1
		}

		defer file.Close()

		name = filepath.Base(args[0])
		input = file

		if outvar == "" {
			outvar = strings.TrimSuffix(
				args[0], filepath.Ext(args[0]),
			) + ".bin"
		}
	}

	prog, errs := program.Parse(name, input)

	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("%s: %v", name, err)
		}
		return 1
	}

	outfile, err := os.Create(outvar)

	if err != nil {
		log.Println(err)
		return 1
	}

	defer outfile.Close()

	if err := prog.Encode(outfile); err != nil {
		log.Println(err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(gosos_asm())
}
