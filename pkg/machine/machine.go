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

package machine

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

func NewCPU(ram *RAM, ic *InterruptController) *CPU {
	return &CPU{
		RAM:       ram,
		IC:        ic,
		ClockFreq: DefaultClockFreq,
	}
}

// RegisterTrapHandler allows the operating system to register itself as the
// trap handler for this CPU.
func (c *CPU) RegisterTrapHandler(th TrapHandler) {
	c.handler = th
}

// Ticks returns the number of ticks the CPU has consumed so far.
func (c *CPU) Ticks() int {
	return c.ticks
}

// AddTicks charges extra ticks to the CPU, used by the operating system to
// account for context switch overhead.
func (c *CPU) AddTicks(n int) {
	c.ticks += n
}

// Halt stops the CPU. Run returns after the current step completes.
func (c *CPU) Halt() {
	c.halted = true
}

func (c *CPU) Halted() bool {
	return c.halted
}

// CheckMemBounds reports whether the absolute address lies inside the
// window [BASE, BASE+LIM) of the running process. On violation the illegal
// memory access trap is raised and false is returned.
func (c *CPU) CheckMemBounds(addr Word) bool {
	base := c.Registers[BASE]
	if addr < base || addr >= base+c.Registers[LIM] {
		c.handler.IllegalMemoryAccess(addr)
		return false
	}
	return true
}

func (c *CPU) readMem(addr Word) Word {
	value := c.RAM.Read(addr)
	if c.Debugger != nil {
		c.Debugger.Read(addr, c)
	}
	return value
}

func (c *CPU) writeMem(addr Word, value Word) {
	c.RAM.Write(addr, value)
	if c.Debugger != nil {
		c.Debugger.Write(addr, c)
	}
}

// Push decrements SP and writes the value at BASE+SP, provided the target
// slot lies within the process window. SP is relative to BASE and points at
// the top occupied word.
func (c *CPU) Push(value Word) {
	addr := c.Registers[BASE] + c.Registers[SP] - 1
	if !c.CheckMemBounds(addr) {
		return
	}
	c.Registers[SP]--
	c.writeMem(addr, value)
}

// Pop reads the word at BASE+SP and increments SP. An empty stack degrades
// to an illegal memory access trap and a zero result.
func (c *CPU) Pop() Word {
	addr := c.Registers[BASE] + c.Registers[SP]
	if !c.CheckMemBounds(addr) {
		return 0
	}
	c.Registers[SP]++
	return c.readMem(addr)
}

// branch redirects the PC to the given relative target. The branch target is
// bounds checked before the redirect takes effect, and the PC is left
// InstrSize short so the post-step increment lands exactly on the target.
func (c *CPU) branch(rel Word) {
	target := c.Registers[BASE] + rel
	if !c.CheckMemBounds(target) {
		return
	}
	c.Registers[PC] = target - InstrSize
}

// Step executes a single instruction. The order of operations is fixed:
// interrupt poll, fetch, execute, PC advance, tick, clock interrupt.
func (c *CPU) Step() {
	c.checkForIOInterrupt()
	if c.halted {
		return
	}

	pc := c.Registers[PC]
	if pc < 0 || pc+InstrSize > c.RAM.Size() {
		c.handler.IllegalMemoryAccess(pc)
		return
	}
	instr := c.RAM.Fetch(pc)

	if c.Verbose {
		log.Debug(c.RegisterString())
		log.Debug(DecodeInstr(instr))
	}

	if !validOperands(instr) {
		c.handler.IllegalInstruction(instr)
		return
	}

	switch instr[0] {
	case OP_SET:
		c.Registers[instr[1]] = instr[2]
	case OP_ADD:
		c.Registers[instr[1]] = c.Registers[instr[2]] + c.Registers[instr[3]]
	case OP_SUB:
		c.Registers[instr[1]] = c.Registers[instr[2]] - c.Registers[instr[3]]
	case OP_MUL:
		c.Registers[instr[1]] = c.Registers[instr[2]] * c.Registers[instr[3]]
	case OP_DIV:
		if c.Registers[instr[3]] == 0 {
			c.handler.DivideByZero()
		} else {
			c.Registers[instr[1]] =
				c.Registers[instr[2]] / c.Registers[instr[3]]
		}
	case OP_COPY:
		c.Registers[instr[1]] = c.Registers[instr[2]]
	case OP_BRANCH:
		c.branch(instr[1])
	case OP_BNE:
		if c.Registers[instr[1]] != c.Registers[instr[2]] {
			c.branch(instr[3])
		}
	case OP_BLT:
		if c.Registers[instr[1]] < c.Registers[instr[2]] {
			c.branch(instr[3])
		}
	case OP_POP:
		c.Registers[instr[1]] = c.Pop()
	case OP_PUSH:
		c.Push(c.Registers[instr[1]])
	case OP_LOAD:
		addr := c.Registers[BASE] + c.Registers[instr[2]]
		if c.CheckMemBounds(addr) {
			c.Registers[instr[1]] = c.readMem(addr)
		}
	case OP_SAVE:
		addr := c.Registers[BASE] + c.Registers[instr[2]]
		if c.CheckMemBounds(addr) {
			c.writeMem(addr, c.Registers[instr[1]])
		}
	case OP_TRAP:
		c.handler.SystemCall()
	default:
		c.handler.IllegalInstruction(instr)
	}

	if c.halted {
		return
	}

	c.Registers[PC] += InstrSize

	c.ticks++
	if c.ClockFreq > 0 && c.ticks%c.ClockFreq == 0 {
		c.handler.ClockInterrupt()
	}

	if c.Debugger != nil {
		c.Debugger.Step(c)
	}
}

// validOperands checks that every operand meant to name a register does so.
// Operand words come straight from RAM, and a wild value must degrade to an
// illegal instruction trap rather than a wild register access.
func validOperands(instr [InstrSize]Word) bool {
	reg := func(w Word) bool { return w >= 0 && w < NumRegs }

	switch instr[0] {
	case OP_SET, OP_POP, OP_PUSH:
		return reg(instr[1])
	case OP_ADD, OP_SUB, OP_MUL, OP_DIV:
		return reg(instr[1]) && reg(instr[2]) && reg(instr[3])
	case OP_COPY, OP_LOAD, OP_SAVE:
		return reg(instr[1]) && reg(instr[2])
	case OP_BNE, OP_BLT:
		return reg(instr[1]) && reg(instr[2])
	}
	return true
}

// Run steps the CPU until the trap handler halts the simulation.
func (c *CPU) Run() {
	for !c.halted {
		c.Step()
	}
}

// checkForIOInterrupt polls the interrupt controller and dispatches any
// pending completion to the operating system. Polling happens before fetch
// so completions delivered during the previous step are observed before the
// next user instruction.
func (c *CPU) checkForIOInterrupt() {
	rec, ok := c.IC.Poll()
	if !ok {
		return
	}

	if c.Verbose {
		log.Debugf(
			"CPU received interrupt: type=%d dev=%d addr=%d data=%d",
			rec.Kind, rec.DeviceID, rec.Addr, rec.Data,
		)
	}

	switch rec.Kind {
	case IntReadDone:
		c.handler.IOReadComplete(rec.DeviceID, rec.Addr, rec.Data)
	case IntWriteDone:
		c.handler.IOWriteComplete(rec.DeviceID, rec.Addr)
	default:
		log.Errorf("CPU: illegal interrupt kind %d", rec.Kind)
		c.Halt()
	}
}

// RegisterString renders the register file on a single line. Useful for
// debugging and for core dumps.
func (c *CPU) RegisterString() string {
	var sb strings.Builder
	for i := 0; i < NumGenRegs; i++ {
		fmt.Fprintf(&sb, "r%d=%d ", i, c.Registers[i])
	}
	fmt.Fprintf(&sb, "PC=%d ", c.Registers[PC])
	fmt.Fprintf(&sb, "SP=%d ", c.Registers[SP])
	fmt.Fprintf(&sb, "BASE=%d ", c.Registers[BASE])
	fmt.Fprintf(&sb, "LIM=%d", c.Registers[LIM])
	return sb.String()
}

// DecodeInstr renders an instruction in a user readable format.
func DecodeInstr(instr [InstrSize]Word) string {
	switch instr[0] {
	case OP_SET:
		return fmt.Sprintf("SET R%d = %d", instr[1], instr[2])
	case OP_ADD:
		return fmt.Sprintf("ADD R%d = R%d + R%d", instr[1], instr[2], instr[3])
	case OP_SUB:
		return fmt.Sprintf("SUB R%d = R%d - R%d", instr[1], instr[2], instr[3])
	case OP_MUL:
		return fmt.Sprintf("MUL R%d = R%d * R%d", instr[1], instr[2], instr[3])
	case OP_DIV:
		return fmt.Sprintf("DIV R%d = R%d / R%d", instr[1], instr[2], instr[3])
	case OP_COPY:
		return fmt.Sprintf("COPY R%d = R%d", instr[1], instr[2])
	case OP_BRANCH:
		return fmt.Sprintf("BRANCH @%d", instr[1])
	case OP_BNE:
		return fmt.Sprintf(
			"BNE (R%d != R%d) @%d", instr[1], instr[2], instr[3],
		)
	case OP_BLT:
		return fmt.Sprintf(
			"BLT (R%d < R%d) @%d", instr[1], instr[2], instr[3],
		)
	case OP_POP:
		return fmt.Sprintf("POP R%d", instr[1])
	case OP_PUSH:
		return fmt.Sprintf("PUSH R%d", instr[1])
	case OP_LOAD:
		return fmt.Sprintf("LOAD R%d <-- @R%d", instr[1], instr[2])
	case OP_SAVE:
		return fmt.Sprintf("SAVE R%d --> @R%d", instr[1], instr[2])
	case OP_TRAP:
		return "TRAP"
	}
	return fmt.Sprintf("??? %v", instr)
}
