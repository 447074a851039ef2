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
	"github.com/gosos/gosos/pkg/machine"
)

type WatchpointType uint

const (
	ReadWatch WatchpointType = iota
	WriteWatch
	ReadWriteWatch
)

// Watchpoint fires when the CPU touches the given absolute address.
type Watchpoint struct {
	Addr machine.Word
	Type WatchpointType
}

// Breakpoint fires when the PC reaches the given absolute address.
type Breakpoint struct {
	Addr machine.Word
}

// Debugger implements machine.Debugger. Setting Break pauses at the next
// step regardless of breakpoints.
type Debugger struct {
	Break bool

	Breakpoints []Breakpoint
	Watchpoints []Watchpoint

	HandleBreak func(*Debugger, *machine.CPU)
	HandleRead  func(machine.Word, *Debugger, *machine.CPU)
	HandleWrite func(machine.Word, *Debugger, *machine.CPU)
}
