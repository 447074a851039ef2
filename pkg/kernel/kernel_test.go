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
	"bytes"
	"strings"
	"testing"

	"github.com/gosos/gosos/pkg/device"
	"github.com/gosos/gosos/pkg/machine"
	"github.com/gosos/gosos/pkg/program"
)

// testDevice is a fully scripted device: reads and writes are recorded and
// no completion is posted unless the test does so itself.
type testDevice struct {
	id          machine.Word
	sharable    bool
	readOnly    bool
	writeOnly   bool
	unavailable bool

	reads  []machine.Word
	writes [][2]machine.Word
}

func (d *testDevice) ID() machine.Word      { return d.id }
func (d *testDevice) SetID(id machine.Word) { d.id = id }
func (d *testDevice) IsSharable() bool      { return d.sharable }
func (d *testDevice) IsAvailable() bool     { return !d.unavailable }
func (d *testDevice) IsReadable() bool      { return !d.writeOnly }
func (d *testDevice) IsWriteable() bool     { return !d.readOnly }

func (d *testDevice) Read(addr machine.Word) machine.Word {
	d.reads = append(d.reads, addr)
	return 0
}

func (d *testDevice) Write(addr, value machine.Word) {
	d.writes = append(d.writes, [2]machine.Word{addr, value})
}

type testSystem struct {
	cpu    *machine.CPU
	ram    *machine.RAM
	ic     *machine.InterruptController
	kernel *OS
	out    *bytes.Buffer
}

func newTestSystem(cfg Config) *testSystem {
	ram := machine.NewRAM(cfg.RAMSize)
	ic := machine.NewInterruptController()
	cpu := machine.NewCPU(ram, ic)

	k := New(cpu, ram, cfg)

	out := &bytes.Buffer{}
	k.SetOutput(out)

	return &testSystem{cpu: cpu, ram: ram, ic: ic, kernel: k, out: out}
}

// run steps the CPU until the simulation halts, failing the test if it
// does not halt within maxSteps.
func (sys *testSystem) run(t *testing.T, maxSteps int) {
	t.Helper()

	for i := 0; i < maxSteps && !sys.cpu.Halted(); i++ {
		sys.cpu.Step()
	}

	if !sys.cpu.Halted() {
		t.Fatalf("Simulation did not halt within %d steps", maxSteps)
	}
}

func mustParse(t *testing.T, name, source string) *program.Program {
	t.Helper()

	prog, errs := program.Parse(name, strings.NewReader(source))
	if len(errs) > 0 {
		t.Fatalf("Parse failed: %v", errs[0])
	}
	return prog
}

func outputLines(sys *testSystem) []string {
	return strings.Split(strings.TrimRight(sys.out.String(), "\n"), "\n")
}

// exitSource is the canonical exit sequence programs end with.
const exitSource = `
	SET R0 0
	PUSH R0
	TRAP
`

func TestArithmeticAndOutput(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	prog := mustParse(t, "arith", `
		SET R0 7
		SET R1 5
		ADD R2 R0 R1
		PUSH R2
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT
	`+exitSource)

	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 10000)

	if want, have := "OUTPUT: 12\n", sys.out.String(); want != have {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", want, have)
	}
}

func TestDivideByZeroIsFatal(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	prog := mustParse(t, "divzero", `
		SET R0 10
		SET R1 0
		DIV R2 R0 R1
	`)

	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 100)

	if sys.out.Len() != 0 {
		t.Errorf("Unexpected output: %q", sys.out.String())
	}
}

func TestIllegalBranchIsFatal(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	prog := mustParse(t, "wild", `
		BRANCH 100000
	`)
	prog.DefaultAllocSize = 40

	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 100)
}

func TestGetPid(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	prog := mustParse(t, "getpid", `
		SET R0 2
		PUSH R0
		TRAP    # GETPID
		POP R1
		PUSH R1
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT
	`+exitSource)

	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 10000)

	if want, have := "OUTPUT: 1001\n", sys.out.String(); want != have {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", want, have)
	}
}

// TestDeviceStatusCodes walks every validation error a program can provoke
// against the device layer and prints each status.
func TestDeviceStatusCodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClockFreq = 100000 // keep the single process undisturbed

	sys := newTestSystem(cfg)

	sys.kernel.RegisterDevice(
		&testDevice{readOnly: true}, 0, // a keyboard-like device
	)
	sys.kernel.RegisterDevice(
		&testDevice{writeOnly: true, sharable: true}, 1, // a console
	)

	outputStatus := `
		POP R1
		PUSH R1
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT status
	`

	prog := mustParse(t, "statuses", `
		# open a device that does not exist
		SET R0 9
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP
	`+outputStatus+`
		# open the keyboard
		SET R0 0
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP
	`+outputStatus+`
		# open it again
		SET R0 0
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP
	`+outputStatus+`
		# write to the read-only keyboard
		SET R0 0
		PUSH R0
		SET R0 50
		PUSH R0
		SET R0 77
		PUSH R0
		SET R0 6
		PUSH R0
		TRAP
	`+outputStatus+`
		# read the console without opening it
		SET R0 1
		PUSH R0
		SET R0 50
		PUSH R0
		SET R0 5
		PUSH R0
		TRAP
	`+outputStatus+`
		# open the console, then read from it
		SET R0 1
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP
	`+outputStatus+`
		SET R0 1
		PUSH R0
		SET R0 50
		PUSH R0
		SET R0 5
		PUSH R0
		TRAP
	`+outputStatus+`
		# close a device that does not exist
		SET R0 9
		PUSH R0
		SET R0 4
		PUSH R0
		TRAP
	`+outputStatus+exitSource)

	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 100000)

	want := []string{
		"OUTPUT: -1", // open: no such device
		"OUTPUT: 0",  // open keyboard
		"OUTPUT: -3", // open keyboard again
		"OUTPUT: -5", // write to read-only device
		"OUTPUT: -4", // read unopened console
		"OUTPUT: 0",  // open console
		"OUTPUT: -6", // read write-only device
		"OUTPUT: -1", // close: no such device
	}

	have := outputLines(sys)
	if len(have) != len(want) {
		t.Fatalf("Output mismatch\nwant:%v\nhave:%v", want, have)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf(
				"Status mismatch\nwant:%q (line %d)\nhave:%q",
				want[i], i, have[i],
			)
		}
	}
}

// TestBlockingReadAndOpenChain runs two processes against a non-sharable
// keyboard: the holder opens it and blocks reading, the waiter blocks in
// open, and the holder's close hands the device over.
func TestBlockingReadAndOpenChain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClockFreq = 100000 // cooperative only: no preemption

	sys := newTestSystem(cfg)

	sys.kernel.RegisterDevice(device.NewKeyboard(sys.ic, nil, 1), 0)

	waiter := mustParse(t, "waiter", `
		SET R0 0
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP    # OPEN, blocks until the holder closes
		POP R1
		SET R0 222
		PUSH R0
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT 222
		SET R0 0
		PUSH R0
		SET R0 4
		PUSH R0
		TRAP    # CLOSE
		POP R1
	`+exitSource)

	holder := mustParse(t, "holder", `
		SET R0 0
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP    # OPEN
		POP R1
		SET R0 0
		PUSH R0
		SET R0 60
		PUSH R0
		SET R0 5
		PUSH R0
		TRAP    # READ, blocks until the keystroke arrives
		POP R1  # status
		POP R2  # data
		PUSH R2
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT the keystroke
		SET R0 0
		PUSH R0
		SET R0 4
		PUSH R0
		TRAP    # CLOSE, hands the keyboard to the waiter
		POP R1
		SET R0 111
		PUSH R0
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT 111
	`+exitSource)

	// The most recently created process runs first
	if err := sys.kernel.CreateProcess(waiter, 0); err != nil {
		t.Fatal(err)
	}
	if err := sys.kernel.CreateProcess(holder, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 200000)

	have := outputLines(sys)
	if len(have) != 3 {
		t.Fatalf("Expected 3 output lines, have %v", have)
	}

	if !strings.HasPrefix(have[0], "OUTPUT: ") {
		t.Errorf("Keystroke output mismatch\nhave:%q", have[0])
	}
	if want := "OUTPUT: 111"; have[1] != want {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", want, have[1])
	}
	if want := "OUTPUT: 222"; have[2] != want {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", want, have[2])
	}

	for _, d := range sys.kernel.devices {
		if !d.unused() {
			t.Errorf("Device %d still held after all processes exited", d.id)
		}
	}
}

func TestExecLaunchesRegisteredProgram(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClockFreq = 100000

	sys := newTestSystem(cfg)

	child := mustParse(t, "child", `
		SET R0 7
		PUSH R0
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT 7
	`+exitSource)

	parent := mustParse(t, "parent", `
		SET R0 7
		PUSH R0
		TRAP    # EXEC
		SET R0 42
		PUSH R0
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT 42 after the child exits
	`+exitSource)

	sys.kernel.AddProgram(child)

	if err := sys.kernel.CreateProcess(parent, 0); err != nil {
		t.Fatal(err)
	}

	sys.run(t, 100000)

	want := "OUTPUT: 7\nOUTPUT: 42\n"
	if have := sys.out.String(); have != want {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", want, have)
	}
}

func TestExecFavorsLeastCalled(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	a := mustParse(t, "a", exitSource)
	b := mustParse(t, "b", exitSource)

	sys.kernel.AddProgram(a)
	sys.kernel.AddProgram(b)
	sys.kernel.programs[0].callCount = 3

	// Fabricate a current process so the exec has a caller to save.
	prog := mustParse(t, "caller", exitSource)
	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	sys.kernel.syscallExec()

	if want, have := 1, sys.kernel.programs[1].callCount; want != have {
		t.Errorf(
			"Call count mismatch\nwant:%d (program b)\nhave:%d", want, have,
		)
	}
	if want, have := 3, sys.kernel.programs[0].callCount; want != have {
		t.Errorf(
			"Call count mismatch\nwant:%d (program a)\nhave:%d", want, have,
		)
	}
}

func TestIOReadCompleteDeliversToSavedStack(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	dev := &testDevice{readOnly: true}
	sys.kernel.RegisterDevice(dev, 3)

	p := newPCB(1001)
	p.registers[machine.BASE] = 100
	p.registers[machine.LIM] = 32
	p.registers[machine.SP] = 20
	p.block(3, SyscallRead, 17)
	sys.kernel.processes = append(sys.kernel.processes, p)

	sys.kernel.IOReadComplete(3, 17, 55)

	if p.isBlocked() {
		t.Error("Process should have been unblocked")
	}

	if want, have := machine.Word(18), p.registers[machine.SP]; want != have {
		t.Errorf("Saved SP mismatch\nwant:%d\nhave:%d", want, have)
	}

	if want, have := machine.Word(55), sys.ram.Read(100+19); want != have {
		t.Errorf("Data word mismatch\nwant:%d\nhave:%d", want, have)
	}

	if want, have := StatusSuccess, sys.ram.Read(100+18); want != have {
		t.Errorf("Status word mismatch\nwant:%d\nhave:%d", want, have)
	}
}

func TestIOWriteCompleteDeliversStatus(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	dev := &testDevice{writeOnly: true}
	sys.kernel.RegisterDevice(dev, 2)

	p := newPCB(1001)
	p.registers[machine.BASE] = 64
	p.registers[machine.LIM] = 32
	p.registers[machine.SP] = 10
	p.block(2, SyscallWrite, 5)
	sys.kernel.processes = append(sys.kernel.processes, p)

	sys.kernel.IOWriteComplete(2, 5)

	if p.isBlocked() {
		t.Error("Process should have been unblocked")
	}

	if want, have := machine.Word(9), p.registers[machine.SP]; want != have {
		t.Errorf("Saved SP mismatch\nwant:%d\nhave:%d", want, have)
	}

	if want, have := StatusSuccess, sys.ram.Read(64+9); want != have {
		t.Errorf("Status word mismatch\nwant:%d\nhave:%d", want, have)
	}
}

func TestIOCompleteWithoutWaiterIsDropped(t *testing.T) {
	sys := newTestSystem(DefaultConfig())

	sys.kernel.RegisterDevice(&testDevice{}, 3)

	// The requester exited before its keystroke arrived.
	sys.kernel.IOReadComplete(3, 17, 55)
	sys.kernel.IOWriteComplete(3, 17)

	// Unknown devices are dropped too.
	sys.kernel.IOReadComplete(99, 0, 0)
}

// TestReadRetriesWhileDeviceBusy parks a process on a busy device: the
// read call must rewind and retry until the device frees up, then block
// normally for the completion.
func TestReadRetriesWhileDeviceBusy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClockFreq = 100000

	sys := newTestSystem(cfg)

	dev := &testDevice{readOnly: true, unavailable: true}
	sys.kernel.RegisterDevice(dev, 0)

	prog := mustParse(t, "reader", `
		SET R0 0
		PUSH R0
		SET R0 3
		PUSH R0
		TRAP    # OPEN
		POP R1
		SET R0 0
		PUSH R0
		SET R0 9
		PUSH R0
		SET R0 5
		PUSH R0
		TRAP    # READ, retried while the device is busy
		POP R1  # status
		POP R2  # data
		PUSH R2
		SET R0 1
		PUSH R0
		TRAP    # OUTPUT the data word
	`+exitSource)

	if err := sys.kernel.CreateProcess(prog, 0); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 500; i++ {
		sys.cpu.Step()
	}

	if len(dev.reads) != 0 {
		t.Fatal("Read dispatched while the device was busy")
	}
	if sys.cpu.Halted() {
		t.Fatal("Simulation halted while retrying")
	}

	dev.unavailable = false

	for i := 0; i < 500 && len(dev.reads) == 0; i++ {
		sys.cpu.Step()
	}

	if len(dev.reads) != 1 || dev.reads[0] != 9 {
		t.Fatalf("Read request mismatch\nwant:[9]\nhave:%v", dev.reads)
	}

	sys.ic.Post(machine.InterruptRecord{
		Kind:     machine.IntReadDone,
		DeviceID: 0,
		Addr:     9,
		Data:     5,
	})

	sys.run(t, 100000)

	if want, have := "OUTPUT: 5\n", sys.out.String(); want != have {
		t.Errorf("Output mismatch\nwant:%q\nhave:%q", want, have)
	}
}

// TestAgingRunsEveryProcess starves four loops behind a fifth and checks
// aging gets each of them the CPU.
func TestAgingRunsEveryProcess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClockFreq = 5
	cfg.AgingTime = 1
	cfg.AgingPriority = 4
	cfg.PriorityThreshold = 20

	sys := newTestSystem(cfg)

	loop := mustParse(t, "loop", `
		BRANCH 0
	`)
	loop.DefaultAllocSize = 16

	for i := 0; i < 5; i++ {
		if err := sys.kernel.CreateProcess(loop, 0); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[machine.Word]bool{}
	for i := 0; i < 20000; i++ {
		sys.cpu.Step()
		if sys.kernel.current != nil {
			seen[sys.kernel.current.pid] = true
		}
	}

	for pid := firstUserPID; pid < firstUserPID+5; pid++ {
		if !seen[pid] {
			t.Errorf("Process %d never ran", pid)
		}
	}
}
