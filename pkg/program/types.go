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
	"github.com/gosos/gosos/pkg/machine"
)

// Program is a compiled Pidgin program: a word array whose length is a
// multiple of machine.InstrSize, ready to be copied into RAM.
type Program struct {
	Name  string
	Words []machine.Word

	// DefaultAllocSize is the address space to request when the program is
	// loaded. Zero means "use twice the program size".
	DefaultAllocSize machine.Word
}

// Size returns the program length in words.
func (p *Program) Size() machine.Word {
	return machine.Word(len(p.Words))
}

// AllocSize resolves the address space size to request for this program.
func (p *Program) AllocSize() machine.Word {
	if p.DefaultAllocSize > 0 {
		return p.DefaultAllocSize
	}
	return p.Size() * 2
}
