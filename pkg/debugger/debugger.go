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

package debugger

import (
	"fmt"

	"github.com/gosos/gosos/pkg/machine"
)

func (dbg *Debugger) Step(cpu *machine.CPU) {
	if dbg.Break {
		dbg.HandleBreak(dbg, cpu)
		return
	}

	for _, breakpoint := range dbg.Breakpoints {
		if cpu.Registers[machine.PC] == breakpoint.Addr {
			dbg.HandleBreak(dbg, cpu)
			break
		}
	}
}

func (dbg *Debugger) Read(addr machine.Word, cpu *machine.CPU) {
	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Type == WriteWatch {
			continue
		}

		if addr == watchpoint.Addr {
			dbg.HandleRead(addr, dbg, cpu)
			break
		}
	}
}

func (dbg *Debugger) Write(addr machine.Word, cpu *machine.CPU) {
	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Type == ReadWatch {
			continue
		}

		if addr == watchpoint.Addr {
			dbg.HandleWrite(addr, dbg, cpu)
			break
		}
	}
}

// PrintMem dumps a range of RAM, one instruction-width row per line.
// Uninstalled zero words render dimmed.
func (dbg *Debugger) PrintMem(ram *machine.RAM, addr, count machine.Word) {
	if addr < 0 {
		addr = 0
	}
	if addr+count > ram.Size() {
		count = ram.Size() - addr
	}

	for i := addr; i < addr+count; i++ {
		if (i-addr)%machine.InstrSize == 0 {
			if i != addr {
				fmt.Println()
			}
			fmt.Printf("\033[1m[%5d]\033[0m ", i)
		}

		result := ram.Read(i)

		if result == 0 {
			fmt.Printf("\033[1;30m%d\033[0m ", result)
		} else {
			fmt.Printf("%d ", result)
		}
	}

	fmt.Println()
}

// PrintInstr dumps the instruction at the given absolute address.
func (dbg *Debugger) PrintInstr(ram *machine.RAM, addr machine.Word) {
	if addr < 0 || addr+machine.InstrSize > ram.Size() {
		fmt.Printf("No instruction at %d\n", addr)
		return
	}

	fmt.Printf(
		"\033[1m[%5d]\033[0m %s\n", addr, machine.DecodeInstr(ram.Fetch(addr)),
	)
}
