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

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gosos/gosos/pkg/debugger"
	"github.com/gosos/gosos/pkg/device"
	"github.com/gosos/gosos/pkg/kernel"
	"github.com/gosos/gosos/pkg/machine"
	"github.com/gosos/gosos/pkg/program"
)

var helpvar bool
var verbosevar bool
var debugvar bool
var interactvar bool
var ramvar int
var clockvar int
var seedvar int64

const usage = "gosos [flags] program [program...]"

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
}

func init() {
	flag.BoolVar(&helpvar, "help", false, "Displays command usage")
	flag.BoolVar(
		&verbosevar, "verbose", false,
		"Dumps registers and decoded instructions every step",
	)
	flag.BoolVar(&debugvar, "debug", false, "Runs the machine in a debug CLI")
	flag.BoolVar(
		&interactvar, "interactive", false,
		"Feeds the keyboard device from stdin instead of random digits",
	)
	flag.IntVar(&ramvar, "ram", 0, "RAM size in words")
	flag.IntVar(&clockvar, "clock", 0, "Instructions between clock interrupts")
	flag.Int64Var(&seedvar, "seed", 0, "Keyboard digit generator seed")
	flag.Parse()
}

func loadProgram(path string) (*program.Program, error) {
	file, err := os.Open(path)

	if err != nil {
		return nil, err
	}

	defer file.Close()

	name := filepath.Base(path)

	if filepath.Ext(path) == ".bin" {
		return program.DecodeBinary(name, file)
	}

	prog, errs := program.Parse(name, file)

	if len(errs) > 0 {
		for _, err := range errs {
			log.Errorf("%s: %v", name, err)
		}
		return nil, fmt.Errorf("%s: %d errors", name, len(errs))
	}

	return prog, nil
}

func gosos() int {
	if helpvar {
		fmt.Println(usage)
		flag.PrintDefaults()
		return 0
	}

	args := flag.Args()

	if len(args) == 0 {
		log.Error(usage)
		return 1
	}

	var programs []*program.Program
	for _, arg := range args {
		prog, err := loadProgram(arg)

		if err != nil {
			log.Error(err)
			return 1
		}

		programs = append(programs, prog)
	}

	if verbosevar || debugvar {
		log.SetLevel(log.DebugLevel)
	}

	cfg := kernel.DefaultConfig()
	if ramvar > 0 {
		cfg.RAMSize = machine.Word(ramvar)
	}
	if clockvar > 0 {
		cfg.ClockFreq = clockvar
	}

	ram := machine.NewRAM(cfg.RAMSize)
	ic := machine.NewInterruptController()

	cpu := machine.NewCPU(ram, ic)
	cpu.Verbose = verbosevar

	k := kernel.New(cpu, ram, cfg)

	seed := seedvar
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var keys *bufio.Reader
	if interactvar {
		if err := enterRawTerm(); err != nil {
			log.Error(err)
			return 1
		}
		defer exitRawTerm()
		keys = bufio.NewReader(os.Stdin)
	}

	var keyboard kernel.Device
	if keys != nil {
		keyboard = device.NewKeyboard(ic, keys, seed)
	} else {
		keyboard = device.NewKeyboard(ic, nil, seed)
	}

	k.RegisterDevice(keyboard, 0)
	k.RegisterDevice(device.NewConsole(ic, os.Stdout), 1)

	for _, prog := range programs {
		k.AddProgram(prog)
	}

	if debugvar {
		var dbg debugger.Debugger
		dbg.HandleBreak = handleBreak
		dbg.HandleRead = handleRead
		dbg.HandleWrite = handleWrite
		cpu.Debugger = &dbg

		debugREPL(&dbg, cpu)
	}

	if err := k.CreateProcess(programs[0], 0); err != nil {
		log.Error(err)
		return 1
	}

	cpu.Run()

	return 0
}

func main() {
	os.Exit(gosos())
}
