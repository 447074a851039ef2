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

package device

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/gosos/gosos/pkg/machine"
)

// Console is a sharable, write-only, asynchronous device. Written values
// are printed one per line; each write is acknowledged with a WriteDone
// record once it reaches the sink.
type Console struct {
	id atomic.Int32

	ic       *machine.InterruptController
	requests chan consoleRequest
	pending  atomic.Int32

	sink io.Writer
}

type consoleRequest struct {
	addr  machine.Word
	value machine.Word
}

func NewConsole(ic *machine.InterruptController, sink io.Writer) *Console {
	con := &Console{
		ic:       ic,
		requests: make(chan consoleRequest, 1),
		sink:     sink,
	}

	go con.serve()

	return con
}

func (con *Console) serve() {
	for req := range con.requests {
		fmt.Fprintf(con.sink, "CONSOLE: %d\n", req.value)
		con.ic.Post(machine.InterruptRecord{
			Kind:     machine.IntWriteDone,
			DeviceID: machine.Word(con.id.Load()),
			Addr:     req.addr,
		})
		con.pending.Add(-1)
	}
}

func (con *Console) ID() machine.Word {
	return machine.Word(con.id.Load())
}

func (con *Console) SetID(id machine.Word) {
	con.id.Store(int32(id))
}

func (con *Console) IsSharable() bool {
	return true
}

func (con *Console) IsAvailable() bool {
	return con.pending.Load() == 0
}

func (con *Console) IsReadable() bool {
	return false
}

func (con *Console) IsWriteable() bool {
	return true
}

// Read is rejected by the kernel before it could reach the device.
func (con *Console) Read(addr machine.Word) machine.Word {
	return 0
}

// Write queues the value for printing. The acknowledgement arrives by
// interrupt.
func (con *Console) Write(addr, value machine.Word) {
	con.pending.Add(1)
	con.requests <- consoleRequest{addr: addr, value: value}
}
