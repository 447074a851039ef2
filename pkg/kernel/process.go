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

	log "github.com/sirupsen/logrus"

	"github.com/gosos/gosos/pkg/machine"
	"github.com/gosos/gosos/pkg/program"
)

// CreateProcess allocates an address space, loads the program into it, and
// makes the new process the running one. A non-positive allocSize falls
// back to the program's own default. The previously running process, if
// any, is saved and left ready.
func (k *OS) CreateProcess(
	prog *program.Program, allocSize machine.Word,
) error {
	if allocSize <= 0 {
		allocSize = prog.AllocSize()
	}
	if prog.Size() > allocSize {
		return fmt.Errorf(
			"program %q needs %d words, allocation is %d",
			prog.Name, prog.Size(), allocSize,
		)
	}

	base, err := k.alloc(allocSize)
	if err != nil {
		return err
	}

	tick := k.cpu.Ticks()

	if k.current != nil && k.contains(k.current) {
		k.current.save(k.cpu, k.pcBias)
		if !k.current.isBlocked() {
			k.current.markReady(tick)
		}
	}

	for i, w := range prog.Words {
		k.ram.Write(base+machine.Word(i), w)
	}

	p := newPCB(k.nextPID)
	k.nextPID++

	p.registers[machine.BASE] = base
	p.registers[machine.LIM] = allocSize
	p.registers[machine.PC] = base
	p.registers[machine.SP] = allocSize
	p.markReady(tick)

	k.processes = append(k.processes, p)

	p.restore(k.cpu, k.pcBias)
	p.recordRun(k.cpu.Ticks())
	k.current = p

	log.Debugf(
		"Installed program %q of size %d with process id %d at position %d",
		prog.Name, allocSize, p.pid, base,
	)

	return nil
}

// removeCurrentProcess tears the running process down: its memory returns
// to the free list, its device opens are released, and a new process is
// scheduled.
func (k *OS) removeCurrentProcess() {
	p := k.current

	log.Debugf(
		"Removing process with id %d at %d",
		p.pid, k.cpu.Registers[machine.BASE],
	)

	k.free(k.cpu.Registers[machine.BASE], k.cpu.Registers[machine.LIM])

	for _, d := range k.devices {
		if d.hasOpener(p.pid) {
			d.removeOpener(p.pid)
			k.wakeOpenWaiter(d)
		}
	}

	for i, q := range k.processes {
		if q == p {
			k.processes = append(k.processes[:i], k.processes[i+1:]...)
			break
		}
	}
	k.current = nil

	k.scheduleNewProcess()
}

// wakeOpenWaiter completes one pending open on the device: the waiter
// joins the opener set and becomes ready. Its success status was already
// pushed when the open call blocked.
func (k *OS) wakeOpenWaiter(d *deviceRecord) {
	if !d.unused() && !d.dev.IsSharable() {
		return
	}

	w := k.selectBlockedProcess(d.id, SyscallOpen, 0)
	if w == nil {
		return
	}

	w.unblock()
	w.markReady(k.cpu.Ticks())
	d.addOpener(w.pid)

	log.Debugf("Process %d has been unblocked", w.pid)
}

// blockCurrent records the device wait on the current process. The
// registers are captured by the context switch that follows.
func (k *OS) blockCurrent(dev, op, addr machine.Word) {
	k.current.block(dev, op, addr)
	log.Debugf("Process %d has been blocked", k.current.pid)
}
