package proc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"rvkernel/mem"
	"rvkernel/vm"
)

func buildMinimalELF(entry, vaddr uint64, data []byte, flags uint32) []byte {
	const ehsize, phentsize = 64, 56
	var buf bytes.Buffer

	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 2
	ident[5] = 1
	ident[6] = 1
	buf.Write(ident)

	le := binary.LittleEndian
	hdr := make([]byte, ehsize-16)
	le.PutUint16(hdr[0:], 2)
	le.PutUint16(hdr[2:], 243)
	le.PutUint32(hdr[4:], 1)
	le.PutUint64(hdr[8:], entry)
	le.PutUint64(hdr[16:], ehsize)
	le.PutUint64(hdr[24:], 0)
	le.PutUint32(hdr[32:], 0)
	le.PutUint16(hdr[36:], ehsize)
	le.PutUint16(hdr[38:], phentsize)
	le.PutUint16(hdr[40:], 1)
	le.PutUint16(hdr[42:], 0)
	le.PutUint16(hdr[44:], 0)
	le.PutUint16(hdr[46:], 0)
	buf.Write(hdr)

	phOff := uint64(ehsize + phentsize)
	ph := make([]byte, phentsize)
	le.PutUint32(ph[0:], 1)
	le.PutUint32(ph[4:], flags)
	le.PutUint64(ph[8:], phOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(data)))
	le.PutUint64(ph[40:], uint64(len(data)))
	le.PutUint64(ph[48:], 0x1000)
	buf.Write(ph)

	buf.Write(data)
	return buf.Bytes()
}

func setupKernel(t *testing.T) {
	t.Helper()
	a := mem.NewFrameAllocator(mem.NewPhysicalMemory(0, 256))
	trampoline, _ := a.Alloc()
	ks := vm.NewKernel(a, 0, 1, 1, 2, 2, 3, 3, 64, nil, trampoline.PPN())
	Init(a, ks, trampoline.PPN())
}

func testELF() []byte {
	code := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	return buildMinimalELF(0x1000, 0x1000, code, 5)
}

func TestNewInitProcHasMainThreadAndStdio(t *testing.T) {
	setupKernel(t)
	p := NewInitProc(testELF())
	if p.MainThread() == nil {
		t.Fatal("expected a main thread")
	}
	if _, ok := p.Fds.Get(0); !ok {
		t.Fatal("expected stdin installed at fd 0")
	}
	if _, ok := p.Fds.Get(1); !ok {
		t.Fatal("expected stdout installed at fd 1")
	}
	cx := p.Threads[0].TrapContext()
	if cx.Sepc != 0x1000 {
		t.Fatalf("expected entry 0x1000, got %#x", cx.Sepc)
	}
}

func TestForkZeroesChildA0(t *testing.T) {
	setupKernel(t)
	p := NewInitProc(testELF())
	p.Threads[0].TrapContext().SetA0(42)

	child, err := p.Fork()
	if err != 0 {
		t.Fatalf("fork failed: %d", err)
	}
	if got := child.Threads[0].TrapContext().X[10]; got != 0 {
		t.Fatalf("expected child a0=0, got %d", got)
	}
	if got := p.Threads[0].TrapContext().X[10]; got != 42 {
		t.Fatalf("expected parent a0 untouched, got %d", got)
	}
	if len(p.Children) != 1 || p.Children[0] != child {
		t.Fatal("expected child linked into parent's children")
	}
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	setupKernel(t)
	init := NewInitProc(testELF())
	p := NewInitProc(testELF())
	child, _ := p.Fork()

	p.Exit(p.Threads[0].Tid, 7, init)

	if !p.Zombie || p.ExitCode != 7 {
		t.Fatal("expected process to become a zombie with exit code 7")
	}
	if child.Parent != init {
		t.Fatal("expected orphaned child reparented to init")
	}
	found := false
	for _, c := range init.Children {
		if c == child {
			found = true
		}
	}
	if !found {
		t.Fatal("expected init to adopt the orphan")
	}
}

func TestWaitReturnsExitedChild(t *testing.T) {
	setupKernel(t)
	init := NewInitProc(testELF())
	p := NewInitProc(testELF())
	child, _ := p.Fork()
	childPid := child.Pid
	child.Exit(child.Threads[0].Tid, 3, init)

	pid, code, ok := p.Wait(-1)
	if !ok || pid != childPid || code != 3 {
		t.Fatalf("expected (%d, 3, true), got (%d, %d, %v)", childPid, pid, code, ok)
	}
	if len(p.Children) != 0 {
		t.Fatal("expected child removed from parent's list once collected")
	}
}

func TestReserveMmapVAIsNonOverlapping(t *testing.T) {
	setupKernel(t)
	p := NewInitProc(testELF())
	a := p.ReserveMmapVA(1)
	b := p.ReserveMmapVA(mem.PageSize + 1)
	c := p.ReserveMmapVA(1)
	if a == b || b == c || a == c {
		t.Fatal("expected non-overlapping mmap VA windows")
	}
	if b-a != mem.VirtAddr(mem.PageSize) {
		t.Fatalf("expected first window to be one page, got stride %d", b-a)
	}
}
