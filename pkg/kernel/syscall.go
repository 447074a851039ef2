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
)

// syscallExit removes the current process and schedules another.
func (k *OS) syscallExit() {
	k.removeCurrentProcess()
}

// syscallOutput prints the popped value to the console.
func (k *OS) syscallOutput() {
	fmt.Fprintf(k.output, "OUTPUT: %d\n", k.cpu.Pop())
}

// syscallGetPid pushes the current process id.
func (k *OS) syscallGetPid() {
	k.cpu.Push(k.current.pid)
}

// syscallOpen grants the current process access to a device. Opening a
// non-sharable device that is already held pushes success, then blocks the
// caller until the holder closes; the caller only joins the opener set
// once the open completes.
func (k *OS) syscallOpen() {
	devID := k.cpu.Pop()

	d := k.findDevice(devID)
	if d == nil {
		log.Debugf("open: no device %d", devID)
		k.cpu.Push(StatusDeviceNotFound)
		return
	}
	if d.hasOpener(k.current.pid) {
		log.Debugf("open: process %d already holds device %d",
			k.current.pid, devID)
		k.cpu.Push(StatusDeviceAlreadyOpen)
		return
	}

	k.cpu.Push(StatusSuccess)

	if !d.unused() && !d.dev.IsSharable() {
		k.blockCurrent(devID, SyscallOpen, 0)
		k.scheduleNewProcess()
		return
	}

	d.addOpener(k.current.pid)
}

// syscallClose releases the device and completes one pending open, if any.
func (k *OS) syscallClose() {
	devID := k.cpu.Pop()

	d := k.findDevice(devID)
	if d == nil {
		log.Debugf("close: no device %d", devID)
		k.cpu.Push(StatusDeviceNotFound)
		return
	}
	if !d.hasOpener(k.current.pid) {
		log.Debugf("close: process %d does not hold device %d",
			k.current.pid, devID)
		k.cpu.Push(StatusDeviceNotOpen)
		return
	}

	d.removeOpener(k.current.pid)
	k.wakeOpenWaiter(d)

	k.cpu.Push(StatusSuccess)
}

// syscallRead dispatches a read request and blocks the caller until the
// device posts its completion. A busy device makes the caller retry the
// whole call later.
func (k *OS) syscallRead() {
	addr := k.cpu.Pop()
	devID := k.cpu.Pop()

	d := k.findDevice(devID)
	if d == nil {
		log.Debugf("read: no device %d", devID)
		k.cpu.Push(StatusDeviceNotFound)
		return
	}
	if !d.hasOpener(k.current.pid) {
		log.Debugf("read: process %d does not hold device %d",
			k.current.pid, devID)
		k.cpu.Push(StatusDeviceNotOpen)
		return
	}
	if !d.dev.IsReadable() {
		log.Debugf("read: device %d is write only", devID)
		k.cpu.Push(StatusDeviceWriteOnly)
		return
	}

	if !d.dev.IsAvailable() {
		k.cpu.Push(devID)
		k.cpu.Push(addr)
		k.cpu.Push(SyscallRead)
		k.retryCurrent()
		return
	}

	d.dev.Read(addr)
	k.current.priority += k.cfg.ReadPriority
	k.blockCurrent(devID, SyscallRead, addr)
	k.scheduleNewProcess()
}

// syscallWrite dispatches a write request; symmetric to syscallRead.
func (k *OS) syscallWrite() {
	value := k.cpu.Pop()
	addr := k.cpu.Pop()
	devID := k.cpu.Pop()

	d := k.findDevice(devID)
	if d == nil {
		log.Debugf("write: no device %d", devID)
		k.cpu.Push(StatusDeviceNotFound)
		return
	}
	if !d.hasOpener(k.current.pid) {
		log.Debugf("write: process %d does not hold device %d",
			k.current.pid, devID)
		k.cpu.Push(StatusDeviceNotOpen)
		return
	}
	if !d.dev.IsWriteable() {
		log.Debugf("write: device %d is read only", devID)
		k.cpu.Push(StatusDeviceReadOnly)
		return
	}

	if !d.dev.IsAvailable() {
		k.cpu.Push(devID)
		k.cpu.Push(addr)
		k.cpu.Push(value)
		k.cpu.Push(SyscallWrite)
		k.retryCurrent()
		return
	}

	d.dev.Write(addr, value)
	k.current.priority += k.cfg.WritePriority
	k.blockCurrent(devID, SyscallWrite, addr)
	k.scheduleNewProcess()
}

// retryCurrent rewinds the current process onto its TRAP instruction so
// the system call re-executes after other processes have had a turn. The
// caller re-pushes the consumed arguments first.
func (k *OS) retryCurrent() {
	cur := k.current
	k.scheduleNewProcess()

	if k.current == cur {
		k.cpu.Registers[machine.PC] -= machine.InstrSize
	} else {
		cur.registers[machine.PC] -= machine.InstrSize
	}
}

// syscallExec launches one of the registered programs, favoring the one
// launched least often. Allocation failure skips the launch and lets the
// caller continue.
func (k *OS) syscallExec() {
	if len(k.programs) == 0 {
		return
	}

	entry := k.programs[0]
	for _, e := range k.programs[1:] {
		if e.callCount < entry.callCount {
			entry = e
		}
	}
	entry.callCount++

	if err := k.CreateProcess(entry.prog, entry.prog.AllocSize()); err != nil {
		log.Warnf("exec of %q failed: %v", entry.prog.Name, err)
	}
}

// syscallYield lets the process change from Running to Ready.
func (k *OS) syscallYield() {
	k.scheduleNewProcess()
}

// syscallCoredump prints the registers and the top three stack words, then
// exits the process.
func (k *OS) syscallCoredump() {
	fmt.Fprintln(k.output, k.cpu.RegisterString())
	for i := 0; i < 3; i++ {
		fmt.Fprintln(k.output, k.cpu.Pop())
		if k.cpu.Halted() {
			return
		}
	}
	k.syscallExit()
}
