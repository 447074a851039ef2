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
	"errors"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/gosos/gosos/pkg/machine"
)

// MemBlock is one free extent of RAM. The free blocks and the process
// windows together tile all of RAM without overlap.
type MemBlock struct {
	Addr machine.Word
	Size machine.Word
}

// ErrNotEnoughMemory reports that the free blocks cannot satisfy an
// allocation even after compaction.
var ErrNotEnoughMemory = errors.New("not enough memory")

// alloc finds a free extent of the given size, compacting RAM if the
// memory exists but is fragmented.
func (k *OS) alloc(size machine.Word) (machine.Word, error) {
	if addr, ok := k.takeFirstFit(size); ok {
		return addr, nil
	}

	var total machine.Word
	for _, blk := range k.freeList {
		total += blk.Size
	}
	if total < size {
		return 0, ErrNotEnoughMemory
	}

	// Enough memory exists but no single block holds it.
	k.compact()

	addr, ok := k.takeFirstFit(size)
	if !ok {
		// Unreachable: compaction leaves a single block of every free word.
		return 0, ErrNotEnoughMemory
	}
	return addr, nil
}

// takeFirstFit scans the free list in address order and carves the request
// out of the first block that can hold it.
func (k *OS) takeFirstFit(size machine.Word) (machine.Word, bool) {
	if size <= 0 {
		return 0, false
	}

	sort.Slice(k.freeList, func(i, j int) bool {
		return k.freeList[i].Addr < k.freeList[j].Addr
	})

	for i := range k.freeList {
		blk := k.freeList[i]
		if blk.Size < size {
			continue
		}
		if blk.Size == size {
			k.freeList = append(k.freeList[:i], k.freeList[i+1:]...)
		} else {
			k.freeList[i].Addr += size
			k.freeList[i].Size -= size
		}
		return blk.Addr, true
	}

	return 0, false
}

// free returns the extent [addr, addr+size) to the free list and merges
// any blocks that end up adjacent.
func (k *OS) free(addr, size machine.Word) {
	if size <= 0 {
		return
	}

	k.freeList = append(k.freeList, MemBlock{Addr: addr, Size: size})

	sort.Slice(k.freeList, func(i, j int) bool {
		return k.freeList[i].Addr < k.freeList[j].Addr
	})

	merged := k.freeList[:1]
	for _, blk := range k.freeList[1:] {
		last := &merged[len(merged)-1]
		if last.Addr+last.Size == blk.Addr {
			last.Size += blk.Size
		} else {
			merged = append(merged, blk)
		}
	}
	k.freeList = merged
}

// compact relocates every process to the low end of RAM, in base order, and
// replaces the free list with the single remaining extent. The running
// process is saved first and restored after so the live CPU registers see
// the relocation.
func (k *OS) compact() {
	running := k.current != nil && k.contains(k.current)
	if running {
		k.current.save(k.cpu, 0)
	}

	sorted := make([]*ProcessControlBlock, len(k.processes))
	copy(sorted, k.processes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].registers[machine.BASE] <
			sorted[j].registers[machine.BASE]
	})

	next := machine.Word(0)
	for _, p := range sorted {
		base := p.registers[machine.BASE]
		lim := p.registers[machine.LIM]

		if base != next {
			for i := machine.Word(0); i < lim; i++ {
				k.ram.Write(next+i, k.ram.Read(base+i))
			}
			delta := next - base
			p.registers[machine.BASE] += delta
			p.registers[machine.PC] += delta

			log.Debugf(
				"Relocated process %d from %d to %d", p.pid, base, next,
			)
		}

		next += lim
	}

	k.freeList = k.freeList[:0]
	if next < k.ram.Size() {
		k.freeList = append(k.freeList, MemBlock{
			Addr: next,
			Size: k.ram.Size() - next,
		})
	}

	if running {
		k.current.restore(k.cpu, 0)
	}

	log.Debugf("Compacted memory, %d words free", k.ram.Size()-next)
}
