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

func NewInterruptController() *InterruptController {
	return &InterruptController{slot: make(chan InterruptRecord, 1)}
}

// Post places a completion record into the controller. If the slot is
// occupied the caller blocks until the CPU consumes the pending record, so
// each device goroutine acts as its own bounded queue.
func (ic *InterruptController) Post(rec InterruptRecord) {
	ic.slot <- rec
}

// Poll consumes the pending record, if any. Called by the CPU at the top of
// every execution step.
func (ic *InterruptController) Poll() (InterruptRecord, bool) {
	select {
	case rec := <-ic.slot:
		return rec, true
	default:
		return InterruptRecord{}, false
	}
}
