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

import "github.com/gosos/gosos/pkg/machine"

// System calls. A program pushes the arguments, then the call id, then
// executes TRAP.
const (
	SyscallExit     machine.Word = 0 // exit the current program
	SyscallOutput   machine.Word = 1 // output a number
	SyscallGetPid   machine.Word = 2 // get current process id
	SyscallOpen     machine.Word = 3 // access a device
	SyscallClose    machine.Word = 4 // release a device
	SyscallRead     machine.Word = 5 // get input from device
	SyscallWrite    machine.Word = 6 // send output to device
	SyscallExec     machine.Word = 7 // spawn a new process
	SyscallYield    machine.Word = 8 // yield the CPU to another process
	SyscallCoredump machine.Word = 9 // print process state and exit
)

// Status codes pushed back to the calling program.
const (
	StatusSuccess           machine.Word = 0
	StatusDeviceNotFound    machine.Word = -1
	StatusDeviceNotSharable machine.Word = -2
	StatusDeviceAlreadyOpen machine.Word = -3
	StatusDeviceNotOpen     machine.Word = -4
	StatusDeviceReadOnly    machine.Word = -5
	StatusDeviceWriteOnly   machine.Word = -6
)

// IdleProcID is the process id used for every idle process.
const IdleProcID machine.Word = 999

// firstUserPID is the id handed to the first created process.
const firstUserPID machine.Word = 1001
