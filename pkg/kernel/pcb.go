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

package kernel

import (
	"fmt"
	"strings"

	"github.com/gosos/gosos/pkg/machine"
)

// noDevice marks a PCB as not blocked.
const noDevice machine.Word = -1

// ProcessControlBlock holds everything the kernel knows about one process.
// While the process is running its registers live on the CPU and the copy
// here is stale; save and restore move them across, never alias.
type ProcessControlBlock struct {
	pid machine.Word

	registers [machine.NumRegs]machine.Word

	// Block state, as ids resolved through the device table.
	blockedDevice machine.Word
	blockedOp     machine.Word
	blockedAddr   machine.Word

	priority machine.Word

	// Starvation bookkeeping. lastReadyTick is the tick at which the
	// process last entered the ready state.
	lastReadyTick   int
	numReadyEntries int
	maxStarve       int
	totalStarve     int
	starveSamples   int
}

func newPCB(pid machine.Word) *ProcessControlBlock {
	return &ProcessControlBlock{
		pid:           pid,
		blockedDevice: noDevice,
		blockedOp:     noDevice,
		blockedAddr:   noDevice,
	}
}

// PID returns the process id.
func (p *ProcessControlBlock) PID() machine.Word {
	return p.pid
}

// save copies the CPU registers into the PCB. The bias is added to the
// saved PC so that it always denotes the next instruction to fetch,
// regardless of whether the save happens before or after the CPU's
// post-step PC advance.
func (p *ProcessControlBlock) save(cpu *machine.CPU, bias machine.Word) {
	p.registers = cpu.Registers
	p.registers[machine.PC] += bias
}

// restore copies the saved registers back onto the CPU, undoing the bias
// the current trap context will re-apply.
func (p *ProcessControlBlock) restore(cpu *machine.CPU, bias machine.Word) {
	cpu.Registers = p.registers
	cpu.Registers[machine.PC] -= bias
}

func (p *ProcessControlBlock) block(dev, op, addr machine.Word) {
	p.blockedDevice = dev
	p.blockedOp = op
	p.blockedAddr = addr
}

func (p *ProcessControlBlock) unblock() {
	p.blockedDevice = noDevice
	p.blockedOp = noDevice
	p.blockedAddr = noDevice
}

func (p *ProcessControlBlock) isBlocked() bool {
	return p.blockedDevice != noDevice
}

// isBlockedForDevice checks whether the process waits for the given device
// and operation. The address only matters for read and write waits.
func (p *ProcessControlBlock) isBlockedForDevice(
	dev, op, addr machine.Word,
) bool {
	if p.blockedDevice != dev || p.blockedOp != op {
		return false
	}
	return op == SyscallOpen || p.blockedAddr == addr
}

// markReady records the process entering the ready state.
func (p *ProcessControlBlock) markReady(tick int) {
	p.lastReadyTick = tick
	p.numReadyEntries++
}

// recordRun folds the just-ended ready wait into the starvation statistics.
func (p *ProcessControlBlock) recordRun(tick int) {
	starve := tick - p.lastReadyTick
	if starve < 0 {
		starve = 0
	}
	if starve > p.maxStarve {
		p.maxStarve = starve
	}
	p.totalStarve += starve
	p.starveSamples++
}

// MaxStarve returns the longest ready wait observed, in ticks.
func (p *ProcessControlBlock) MaxStarve() int {
	return p.maxStarve
}

// AvgStarve returns the mean ready wait, in ticks.
func (p *ProcessControlBlock) AvgStarve() float64 {
	if p.starveSamples == 0 {
		return 0
	}
	return float64(p.totalStarve) / float64(p.starveSamples)
}

func (p *ProcessControlBlock) describe(running bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Process id %d ", p.pid)
	switch {
	case p.isBlocked():
		op := "READ"
		switch p.blockedOp {
		case SyscallOpen:
			op = "OPEN"
		case SyscallWrite:
			op = "WRITE"
		}
		fmt.Fprintf(
			&sb, "is BLOCKED for %s @%d on device #%d: ",
			op, p.blockedAddr, p.blockedDevice,
		)
	case running:
		sb.WriteString("is RUNNING: ")
	default:
		sb.WriteString("is READY: ")
	}

	for i := 0; i < machine.NumGenRegs; i++ {
		fmt.Fprintf(&sb, "r%d=%d ", i, p.registers[i])
	}
	fmt.Fprintf(&sb, "PC=%d ", p.registers[machine.PC])
	fmt.Fprintf(&sb, "SP=%d ", p.registers[machine.SP])
	fmt.Fprintf(&sb, "BASE=%d ", p.registers[machine.BASE])
	fmt.Fprintf(&sb, "LIM=%d pri=%d", p.registers[machine.LIM], p.priority)

	return sb.String()
}
