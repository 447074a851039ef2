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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gosos/gosos/pkg/debugger"
	"github.com/gosos/gosos/pkg/encoding"
	"github.com/gosos/gosos/pkg/machine"
)

const debugHelp = `commands:
  c, continue       resume execution
  s, step           execute one instruction
  r, regs           dump the register file
  l, list [addr]    decode the instruction at addr (default PC)
  m, mem addr [n]   dump n words of RAM (default 16)
  b, break addr     set a breakpoint at an absolute address
  w, watch addr [r|w|rw]
                    set a watchpoint at an absolute address
  d, delete         clear all breakpoints and watchpoints
  q, quit           leave the simulator`

var debugInput = bufio.NewScanner(os.Stdin)

func debugPrompt() []string {
	fmt.Print("(gosos) ")

	if !debugInput.Scan() {
		return []string{"quit"}
	}

	return strings.Fields(debugInput.Text())
}

func parseAddr(s string) (machine.Word, bool) {
	value, err := encoding.DecodeWord(s)

	if err != nil {
		fmt.Printf("Invalid address %q\n", s)
		return 0, false
	}

	return machine.Word(value), true
}

// debugREPL reads commands until the user resumes execution. It runs both
// for initial setup and from every break.
func debugREPL(dbg *debugger.Debugger, cpu *machine.CPU) {
	for {
		fields := debugPrompt()

		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "c", "continue":
			dbg.Break = false
			return

		case "s", "step":
			dbg.Break = true
			return

		case "r", "regs":
			fmt.Println(cpu.RegisterString())

		case "l", "list":
			addr := cpu.Registers[machine.PC]
			if len(fields) > 1 {
				parsed, ok := parseAddr(fields[1])
				if !ok {
					continue
				}
				addr = parsed
			}
			dbg.PrintInstr(cpu.RAM, addr)

		case "m", "mem":
			if len(fields) < 2 {
				fmt.Println("mem addr [count]")
				continue
			}
			addr, ok := parseAddr(fields[1])
			if !ok {
				continue
			}
			count := machine.Word(16)
			if len(fields) > 2 {
				if parsed, ok := parseAddr(fields[2]); ok {
					count = parsed
				}
			}
			dbg.PrintMem(cpu.RAM, addr, count)

		case "b", "break":
			if len(fields) < 2 {
				fmt.Println("break addr")
				continue
			}
			if addr, ok := parseAddr(fields[1]); ok {
				dbg.Breakpoints = append(
					dbg.Breakpoints, debugger.Breakpoint{Addr: addr},
				)
				fmt.Printf("Breakpoint at %d\n", addr)
			}

		case "w", "watch":
			if len(fields) < 2 {
				fmt.Println("watch addr [r|w|rw]")
				continue
			}
			addr, ok := parseAddr(fields[1])
			if !ok {
				continue
			}
			kind := debugger.ReadWriteWatch
			if len(fields) > 2 {
				switch fields[2] {
				case "r":
					kind = debugger.ReadWatch
				case "w":
					kind = debugger.WriteWatch
				}
			}
			dbg.Watchpoints = append(
				dbg.Watchpoints, debugger.Watchpoint{Addr: addr, Type: kind},
			)
			fmt.Printf("Watchpoint at %d\n", addr)

		case "d", "delete":
			dbg.Breakpoints = nil
			dbg.Watchpoints = nil

		case "q", "quit":
			exitRawTerm()
			os.Exit(0)

		default:
			fmt.Println(debugHelp)
		}
	}
}

func handleBreak(dbg *debugger.Debugger, cpu *machine.CPU) {
	fmt.Printf("\nBreak at %d\n", cpu.Registers[machine.PC])
	dbg.PrintInstr(cpu.RAM, cpu.Registers[machine.PC])
	debugREPL(dbg, cpu)
}

func handleRead(addr machine.Word, dbg *debugger.Debugger, cpu *machine.CPU) {
	fmt.Printf("\nRead %d from %d\n", cpu.RAM.Read(addr), addr)
	debugREPL(dbg, cpu)
}

func handleWrite(addr machine.Word, dbg *debugger.Debugger, cpu *machine.CPU) {
	fmt.Printf("\nWrote %d to %d\n", cpu.RAM.Read(addr), addr)
	debugREPL(dbg, cpu)
}
