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
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/gosos/gosos/pkg/machine"
	"github.com/gosos/gosos/pkg/program"
)

// New wires an OS onto the given CPU and RAM and registers it as the CPU's
// trap handler. The whole of RAM starts out as a single free block.
func New(cpu *machine.CPU, ram *machine.RAM, cfg Config) *OS {
	k := &OS{
		cfg:      cfg,
		cpu:      cpu,
		ram:      ram,
		output:   os.Stdout,
		freeList: []MemBlock{{Addr: 0, Size: ram.Size()}},
		nextPID:  firstUserPID,
	}

	cpu.ClockFreq = cfg.ClockFreq
	cpu.RegisterTrapHandler(k)

	return k
}

// SetOutput redirects user program output (OUTPUT syscalls, core dumps).
func (k *OS) SetOutput(w io.Writer) {
	k.output = w
}

// RegisterDevice adds a device to the device table under the given id.
func (k *OS) RegisterDevice(dev Device, id machine.Word) {
	dev.SetID(id)
	k.devices = append(k.devices, &deviceRecord{id: id, dev: dev})
}

// AddProgram registers a program for use by the Exec system call.
func (k *OS) AddProgram(prog *program.Program) {
	k.programs = append(k.programs, &programEntry{prog: prog})
}

func (k *OS) findDevice(id machine.Word) *deviceRecord {
	for _, d := range k.devices {
		if d.id == id {
			return d
		}
	}
	return nil
}

func (d *deviceRecord) hasOpener(pid machine.Word) bool {
	for _, p := range d.openers {
		if p == pid {
			return true
		}
	}
	return false
}

func (d *deviceRecord) addOpener(pid machine.Word) {
	d.openers = append(d.openers, pid)
}

func (d *deviceRecord) removeOpener(pid machine.Word) {
	for i, p := range d.openers {
		if p == pid {
			d.openers = append(d.openers[:i], d.openers[i+1:]...)
			return
		}
	}
}

func (d *deviceRecord) unused() bool {
	return len(d.openers) == 0
}

func (k *OS) contains(p *ProcessControlBlock) bool {
	for _, q := range k.processes {
		if q == p {
			return true
		}
	}
	return false
}

// selectBlockedProcess finds a process waiting to perform the given
// operation on the given device, or nil.
func (k *OS) selectBlockedProcess(
	dev, op, addr machine.Word,
) *ProcessControlBlock {
	for _, p := range k.processes {
		if p.isBlockedForDevice(dev, op, addr) {
			return p
		}
	}
	return nil
}

func (k *OS) printProcessTable() {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	log.Debugf("Process Table (%d processes)", len(k.processes))
	for _, p := range k.processes {
		log.Debug("    " + p.describe(p == k.current))
	}
}

// halt stops the simulation.
func (k *OS) halt() {
	k.cpu.Halt()
}

/*
 * Trap and interrupt handlers, invoked by the CPU.
 */

// IllegalMemoryAccess is fatal: the process reached outside its window.
func (k *OS) IllegalMemoryAccess(addr machine.Word) {
	log.Errorf("ERROR: Illegal memory access attempt at %d.", addr)
	k.halt()
}

// DivideByZero is fatal.
func (k *OS) DivideByZero() {
	log.Error("ERROR: Cannot divide by zero.")
	k.halt()
}

// IllegalInstruction is fatal.
func (k *OS) IllegalInstruction(instr [machine.InstrSize]machine.Word) {
	log.Errorf("ERROR: Illegal instruction %v.", instr)
	k.halt()
}

// SystemCall pops the call id off the current process's stack and
// dispatches. While a system call runs the CPU has not yet advanced the PC
// past the TRAP, so saved PCs are biased by one instruction.
func (k *OS) SystemCall() {
	k.pcBias = machine.InstrSize
	defer func() { k.pcBias = 0 }()

	id := k.cpu.Pop()
	if k.cpu.Halted() {
		return
	}

	switch id {
	case SyscallExit:
		k.syscallExit()
	case SyscallOutput:
		k.syscallOutput()
	case SyscallGetPid:
		k.syscallGetPid()
	case SyscallOpen:
		k.syscallOpen()
	case SyscallClose:
		k.syscallClose()
	case SyscallRead:
		k.syscallRead()
	case SyscallWrite:
		k.syscallWrite()
	case SyscallExec:
		k.syscallExec()
	case SyscallYield:
		k.syscallYield()
	case SyscallCoredump:
		k.syscallCoredump()
	default:
		log.Errorf("ERROR: Illegal system call %d.", id)
		k.halt()
	}
}

// IOReadComplete unblocks the process waiting on this read and pushes the
// data and a success status onto its saved stack. A completion with no
// matching waiter (the requester already exited) is dropped.
func (k *OS) IOReadComplete(devID, addr, data machine.Word) {
	if k.findDevice(devID) == nil {
		log.Debugf("dropping read completion from unknown device %d", devID)
		return
	}

	p := k.selectBlockedProcess(devID, SyscallRead, addr)
	if p == nil {
		log.Debugf(
			"dropping read completion: no process waits on device %d @%d",
			devID, addr,
		)
		return
	}

	p.unblock()
	p.markReady(k.cpu.Ticks())

	k.pushSaved(p, data)
	k.pushSaved(p, StatusSuccess)
}

// IOWriteComplete unblocks the process waiting on this write and pushes a
// success status onto its saved stack.
func (k *OS) IOWriteComplete(devID, addr machine.Word) {
	if k.findDevice(devID) == nil {
		log.Debugf("dropping write completion from unknown device %d", devID)
		return
	}

	p := k.selectBlockedProcess(devID, SyscallWrite, addr)
	if p == nil {
		log.Debugf(
			"dropping write completion: no process waits on device %d @%d",
			devID, addr,
		)
		return
	}

	p.unblock()
	p.markReady(k.cpu.Ticks())

	k.pushSaved(p, StatusSuccess)
}

// ClockInterrupt preempts the running process. The idle process is left
// alone; it exits on its own within a few instructions.
func (k *OS) ClockInterrupt() {
	if k.current != nil && k.current.pid == IdleProcID {
		return
	}
	k.scheduleNewProcess()
}

// pushSaved pushes a word onto a blocked process's stack through RAM, using
// the PCB's saved SP and BASE rather than the live CPU registers.
func (k *OS) pushSaved(p *ProcessControlBlock, value machine.Word) {
	sp := p.registers[machine.SP] - 1
	if sp < 0 || sp >= p.registers[machine.LIM] {
		log.Warnf(
			"process %d: stack overflow delivering I/O result", p.pid,
		)
		return
	}
	k.ram.Write(p.registers[machine.BASE]+sp, value)
	p.registers[machine.SP] = sp
}
