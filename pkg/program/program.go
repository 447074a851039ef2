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

package program

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gosos/gosos/pkg/encoding"
	"github.com/gosos/gosos/pkg/machine"
)

// operand kinds accepted by an instruction
type operand int

const (
	opdNone operand = iota
	opdReg          // a general register, R0..R4
	opdImm          // an immediate literal
)

type instrSpec struct {
	opcode   machine.Word
	operands [3]operand
}

var instrTable = map[string]instrSpec{
	"SET":    {machine.OP_SET, [3]operand{opdReg, opdImm, opdNone}},
	"ADD":    {machine.OP_ADD, [3]operand{opdReg, opdReg, opdReg}},
	"SUB":    {machine.OP_SUB, [3]operand{opdReg, opdReg, opdReg}},
	"MUL":    {machine.OP_MUL, [3]operand{opdReg, opdReg, opdReg}},
	"DIV":    {machine.OP_DIV, [3]operand{opdReg, opdReg, opdReg}},
	"COPY":   {machine.OP_COPY, [3]operand{opdReg, opdReg, opdNone}},
	"BRANCH": {machine.OP_BRANCH, [3]operand{opdImm, opdNone, opdNone}},
	"BNE":    {machine.OP_BNE, [3]operand{opdReg, opdReg, opdImm}},
	"BLT":    {machine.OP_BLT, [3]operand{opdReg, opdReg, opdImm}},
	"POP":    {machine.OP_POP, [3]operand{opdReg, opdNone, opdNone}},
	"PUSH":   {machine.OP_PUSH, [3]operand{opdReg, opdNone, opdNone}},
	"LOAD":   {machine.OP_LOAD, [3]operand{opdReg, opdReg, opdNone}},
	"SAVE":   {machine.OP_SAVE, [3]operand{opdReg, opdReg, opdNone}},
	"TRAP":   {machine.OP_TRAP, [3]operand{opdNone, opdNone, opdNone}},
}

// Parse assembles Pidgin source into a Program. One instruction per line,
// mnemonic followed by operands, '#' starts a comment unless it directly
// prefixes a decimal literal such as #12. The '.ALLOC n'
// directive sets the program's default allocation size. All errors found are
// returned together, each tagged with its line number.
func Parse(name string, reader io.Reader) (*Program, []error) {
	prog := &Program{Name: name}
	var errs []error

	scanner := bufio.NewScanner(reader)
	scanner.Split(bufio.ScanLines)

	lineno := 0
	for scanner.Scan() {
		lineno++

		line := scanner.Text()
		for i := 0; i < len(line); i++ {
			if line[i] != '#' {
				continue
			}
			// '#' directly followed by a digit or sign is a decimal literal
			if i+1 < len(line) && strings.IndexByte("0123456789-", line[i+1]) >= 0 {
				continue
			}
			line = line[:i]
			break
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		mnemonic := strings.ToUpper(fields[0])

		if mnemonic == ".ALLOC" {
			if len(fields) != 2 {
				errs = append(errs, fmt.Errorf(
					"line %d: .ALLOC takes exactly one operand", lineno,
				))
				continue
			}
			size, err := encoding.DecodeWord(fields[1])
			if err != nil || size <= 0 {
				errs = append(errs, fmt.Errorf(
					"line %d: invalid allocation size %q", lineno, fields[1],
				))
				continue
			}
			prog.DefaultAllocSize = machine.Word(size)
			continue
		}

		spec, exists := instrTable[mnemonic]
		if !exists {
			errs = append(errs, fmt.Errorf(
				"line %d: unknown instruction %q", lineno, fields[0],
			))
			continue
		}

		words, err := assembleLine(spec, fields[1:])
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %v", lineno, err))
			continue
		}

		prog.Words = append(prog.Words, words[:]...)
	}

	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return prog, nil
}

func assembleLine(
	spec instrSpec, args []string,
) ([machine.InstrSize]machine.Word, error) {
	words := [machine.InstrSize]machine.Word{spec.opcode}

	want := 0
	for _, kind := range spec.operands {
		if kind != opdNone {
			want++
		}
	}

	if len(args) != want {
		return words, fmt.Errorf(
			"expected %d operands, found %d", want, len(args),
		)
	}

	for i, arg := range args {
		switch spec.operands[i] {
		case opdReg:
			reg, err := decodeRegister(arg)
			if err != nil {
				return words, err
			}
			words[i+1] = reg
		case opdImm:
			value, err := encoding.DecodeWord(arg)
			if err != nil {
				return words, fmt.Errorf("invalid literal %q", arg)
			}
			words[i+1] = machine.Word(value)
		}
	}

	return words, nil
}

func decodeRegister(s string) (machine.Word, error) {
	upper := strings.ToUpper(s)

	if !strings.HasPrefix(upper, "R") {
		return 0, fmt.Errorf("invalid register %q", s)
	}

	value, err := encoding.DecodeInt(upper[1:])
	if err != nil || value < 0 || value >= machine.NumGenRegs {
		return 0, fmt.Errorf("invalid register %q", s)
	}

	return machine.Word(value), nil
}

// Encode writes the program as a big-endian word stream.
func (p *Program) Encode(w io.Writer) error {
	words := make([]int32, len(p.Words))
	for i, word := range p.Words {
		words[i] = int32(word)
	}
	return encoding.WriteWords(w, words)
}

// DecodeBinary reads a program previously written by Encode. The word count
// must be a whole number of instructions.
func DecodeBinary(name string, r io.Reader) (*Program, error) {
	words, err := encoding.ReadWords(r)
	if err != nil {
		return nil, err
	}

	if len(words)%int(machine.InstrSize) != 0 {
		return nil, fmt.Errorf(
			"program %q: %d words is not a whole number of instructions",
			name, len(words),
		)
	}

	prog := &Program{Name: name, Words: make([]machine.Word, len(words))}
	for i, word := range words {
		prog.Words[i] = machine.Word(word)
	}
	return prog, nil
}
