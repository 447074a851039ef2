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
	"io"
	"math/rand"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/gosos/gosos/pkg/machine"
)

// Keyboard is a non-sharable, read-only, asynchronous device. Each read
// request is served by the device's own goroutine, which posts a ReadDone
// record into the interrupt controller once the keystroke is ready. With
// no input stream attached it produces random digits, which keeps programs
// runnable without a terminal.
type Keyboard struct {
	id atomic.Int32

	ic       *machine.InterruptController
	requests chan machine.Word
	pending  atomic.Int32

	input io.ByteReader
	rng   *rand.Rand
}

// NewKeyboard creates a keyboard posting completions into ic. The input
// reader may be nil; seed feeds the fallback digit generator.
func NewKeyboard(
	ic *machine.InterruptController, input io.ByteReader, seed int64,
) *Keyboard {
	kb := &Keyboard{
		ic:       ic,
		requests: make(chan machine.Word, 1),
		input:    input,
		rng:      rand.New(rand.NewSource(seed)),
	}

	go kb.serve()

	return kb
}

func (kb *Keyboard) serve() {
	for addr := range kb.requests {
		kb.ic.Post(machine.InterruptRecord{
			Kind:     machine.IntReadDone,
			DeviceID: machine.Word(kb.id.Load()),
			Addr:     addr,
			Data:     kb.nextKey(),
		})
		kb.pending.Add(-1)
	}
}

// nextKey runs on the device goroutine; the rng and reader are only ever
// touched here.
func (kb *Keyboard) nextKey() machine.Word {
	if kb.input != nil {
		b, err := kb.input.ReadByte()
		if err == nil {
			return machine.Word(b)
		}
		log.Debugf("keyboard: input drained (%v), using random digits", err)
		kb.input = nil
	}
	return machine.Word(kb.rng.Intn(10))
}

func (kb *Keyboard) ID() machine.Word {
	return machine.Word(kb.id.Load())
}

func (kb *Keyboard) SetID(id machine.Word) {
	kb.id.Store(int32(id))
}

func (kb *Keyboard) IsSharable() bool {
	return false
}

// IsAvailable reports whether no request is currently in flight.
func (kb *Keyboard) IsAvailable() bool {
	return kb.pending.Load() == 0
}

func (kb *Keyboard) IsReadable() bool {
	return true
}

func (kb *Keyboard) IsWriteable() bool {
	return false
}

// Read queues a keystroke request. The result arrives by interrupt.
func (kb *Keyboard) Read(addr machine.Word) machine.Word {
	kb.pending.Add(1)
	kb.requests <- addr
	return 0
}

// Write is rejected by the kernel before it could reach the device.
func (kb *Keyboard) Write(addr, value machine.Word) {
}
