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
	log "github.com/sirupsen/logrus"

	"github.com/gosos/gosos/pkg/machine"
)

// idleProgram immediately pushes the Exit call id and traps. The repeated
// first instruction pads the program to a full four instructions.
var idleProgram = [...]machine.Word{
	machine.OP_SET, 0, 0, 0,
	machine.OP_SET, 0, 0, 0,
	machine.OP_PUSH, 0, 0, 0,
	machine.OP_TRAP, 0, 0, 0,
}

// scheduleNewProcess picks the next process to run and switches to it. With
// an empty process table the simulation is over; with no runnable process
// an idle process fills in until device I/O unblocks someone.
func (k *OS) scheduleNewProcess() {
	if len(k.processes) == 0 {
		log.Info("No more processes to run. Stopping.")
		k.halt()
		return
	}

	next := k.nextProcess()
	if next == nil {
		k.createIdleProcess()
		return
	}
	if next == k.current {
		return
	}

	k.contextSwitchTo(next)
}

// nextProcess selects the ready process with the highest priority. The
// running process gets a hysteresis bonus so a marginally better candidate
// does not cause a switch, and a challenger must beat the incumbent
// strictly, which makes the earliest table index win ties. When the tick
// count divided by ClockFreq is a multiple of AgingTime, the priority of all
// waiting ready processes is raised first; this check runs on every call.
func (k *OS) nextProcess() *ProcessControlBlock {
	tick := k.cpu.Ticks()

	if k.cfg.AgingTime > 0 && k.cfg.ClockFreq > 0 &&
		(tick/k.cfg.ClockFreq)%k.cfg.AgingTime == 0 {
		for _, p := range k.processes {
			if p != k.current && !p.isBlocked() {
				p.priority += k.cfg.AgingPriority
			}
		}
	}

	var best *ProcessControlBlock
	bestPriority := machine.Word(-1 << 31)

	if k.current != nil && !k.current.isBlocked() && k.contains(k.current) {
		best = k.current
		bestPriority = k.current.priority + k.cfg.PriorityThreshold
	}

	for _, p := range k.processes {
		if p == k.current || p.isBlocked() {
			continue
		}
		if p.priority > bestPriority {
			best = p
			bestPriority = p.priority
		}
	}

	return best
}

// contextSwitchTo saves the current process and restores the chosen one.
// Each register copy is charged to the tick counter as switch overhead.
func (k *OS) contextSwitchTo(next *ProcessControlBlock) {
	tick := k.cpu.Ticks()

	if k.current != nil && k.contains(k.current) {
		k.current.save(k.cpu, k.pcBias)
		if !k.current.isBlocked() {
			k.current.markReady(tick)
		}
		k.cpu.AddTicks(k.cfg.SwitchCost)
	}

	next.restore(k.cpu, k.pcBias)
	k.cpu.AddTicks(k.cfg.SwitchCost)
	next.recordRun(k.cpu.Ticks())

	k.current = next

	log.Debugf("Switched to process %d", next.pid)
	k.printProcessTable()
}

// createIdleProcess loads a tiny process that immediately exits, buying
// time until device I/O completes and unblocks a legitimate process.
func (k *OS) createIdleProcess() {
	base, err := k.alloc(k.cfg.IdleAllocSize)
	if err != nil {
		log.Errorf("cannot allocate idle process: %v", err)
		k.halt()
		return
	}

	for i, w := range idleProgram {
		k.ram.Write(base+machine.Word(i), w)
	}

	tick := k.cpu.Ticks()

	if k.current != nil && k.contains(k.current) {
		k.current.save(k.cpu, k.pcBias)
		if !k.current.isBlocked() {
			k.current.markReady(tick)
		}
		k.cpu.AddTicks(k.cfg.SwitchCost)
	}

	p := newPCB(IdleProcID)
	p.registers[machine.BASE] = base
	p.registers[machine.LIM] = k.cfg.IdleAllocSize
	p.registers[machine.PC] = base
	p.registers[machine.SP] = k.cfg.IdleAllocSize
	p.markReady(tick)

	k.processes = append(k.processes, p)

	p.restore(k.cpu, k.pcBias)
	k.cpu.AddTicks(k.cfg.SwitchCost)
	p.recordRun(k.cpu.Ticks())

	k.current = p

	log.Debugf("Created idle process at %d", base)
}
