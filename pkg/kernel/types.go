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
	"io"

	"github.com/gosos/gosos/pkg/machine"
	"github.com/gosos/gosos/pkg/program"
)

// Device is the capability through which the kernel drives a device driver.
// Read and Write request an operation and return immediately; the driver
// reports completion by posting a record into the interrupt controller.
type Device interface {
	ID() machine.Word
	SetID(id machine.Word)

	IsSharable() bool
	IsAvailable() bool
	IsReadable() bool
	IsWriteable() bool

	Read(addr machine.Word) machine.Word
	Write(addr, value machine.Word)
}

// deviceRecord tracks a registered device and the processes holding it
// open. Openers are stored as pids and resolved through the process table,
// never as PCB references.
type deviceRecord struct {
	id      machine.Word
	dev     Device
	openers []machine.Word
}

// programEntry is one registry slot: a program plus the number of times an
// Exec call has launched it.
type programEntry struct {
	prog      *program.Program
	callCount int
}

// Config carries the machine geometry and the scheduler tuning knobs.
type Config struct {
	RAMSize   machine.Word
	ClockFreq int

	// AgingTime selects when the scheduler ages: a selection made while
	// ticks/ClockFreq is a multiple of AgingTime raises every waiting ready
	// process's priority by AgingPriority. Zero disables aging.
	AgingTime     int
	AgingPriority machine.Word

	// PriorityThreshold is the hysteresis bias: a ready process preempts
	// the running one only when its priority beats the running priority by
	// more than this margin.
	PriorityThreshold machine.Word

	// Priority rewards for dispatching a read or write request.
	ReadPriority  machine.Word
	WritePriority machine.Word

	// SwitchCost is the number of ticks charged for each register save and
	// each register restore during a context switch.
	SwitchCost int

	// IdleAllocSize is the address space given to an idle process: its 16
	// program words plus stack slack.
	IdleAllocSize machine.Word
}

func DefaultConfig() Config {
	return Config{
		RAMSize:           2048,
		ClockFreq:         machine.DefaultClockFreq,
		AgingTime:         10,
		AgingPriority:     1,
		PriorityThreshold: 2,
		ReadPriority:      1,
		WritePriority:     1,
		SwitchCost:        30,
		IdleAllocSize:     32,
	}
}

// OS is the simulated operating system. It owns the RAM contents, the
// process table, the device table, the free list and the program registry;
// it implements machine.TrapHandler and runs synchronously on the CPU
// goroutine between instructions.
type OS struct {
	cfg Config

	cpu *machine.CPU
	ram *machine.RAM

	// output receives everything user programs print (OUTPUT syscalls and
	// core dumps). Diagnostics go through the logger instead.
	output io.Writer

	processes []*ProcessControlBlock
	current   *ProcessControlBlock

	devices  []*deviceRecord
	programs []*programEntry

	freeList []MemBlock

	nextPID machine.Word

	// pcBias compensates for the PC advance the CPU performs once the
	// running trap handler returns: InstrSize inside a system call, zero
	// inside interrupt handlers. Saved PCs always denote the next
	// instruction to fetch.
	pcBias machine.Word
}
