package trap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"rvkernel/fd"
	"rvkernel/fs"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/vm"
)

// buildMinimalELF mirrors proc/process_test.go's throwaway single-segment
// image builder; each package needs its own copy since it is unexported.
func buildMinimalELF(entry, vaddr uint64, data []byte, flags uint32) []byte {
	const ehsize, phentsize = 64, 56
	var buf bytes.Buffer

	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4], ident[5], ident[6] = 2, 1, 1
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

func testELF() []byte {
	return buildMinimalELF(0x1000, 0x1000, make([]byte, 0x4000), 7)
}

func newTestKernel(t *testing.T) (*Kernel, *proc.Process) {
	t.Helper()
	a := mem.NewFrameAllocator(mem.NewPhysicalMemory(0, 2048))
	trampoline, _ := a.Alloc()
	ks := vm.NewKernel(a, 0, 1, 1, 2, 2, 3, 3, 512, nil, trampoline.PPN())
	proc.Init(a, ks, trampoline.PPN())

	dev := fs.NewMemDevice(4096)
	efs := fs.Create(dev, 4096, 1)

	p := proc.NewInitProc(testELF())
	reg := sched.NewRegistry()
	reg.Track(p)
	return &Kernel{EFS: efs, Reg: reg, Init: p}, p
}

func setSyscall(th *proc.Thread, num uint64, args ...uint64) {
	cx := th.TrapContext()
	cx.X[17] = num
	for i, v := range args {
		cx.X[10+i] = v
	}
}

func writeUserString(t *testing.T, p *proc.Process, va mem.VirtAddr, s string) {
	t.Helper()
	if !writeUser(p.MemSet, va, append([]byte(s), 0)) {
		t.Fatalf("writeUserString: could not write %q at %#x", s, uint64(va))
	}
}

const scratch = mem.VirtAddr(0x2000)

func TestWriteThenReadBackFile(t *testing.T) {
	k, p := newTestKernel(t)
	th := p.MainThread()

	writeUserString(t, p, scratch, "/greeting.txt")
	setSyscall(th, SysOpenat, uint64(AtFdCwd), uint64(scratch), uint64(fd.O_CREATE|fd.O_RDWR))
	fdno := k.Dispatch(p, th)
	if fdno < 0 {
		t.Fatalf("openat failed: %d", fdno)
	}

	payload := scratch + 256
	writeUserString(t, p, payload, "hello")
	setSyscall(th, SysWrite, uint64(fdno), uint64(payload), 5)
	if n := k.Dispatch(p, th); n != 5 {
		t.Fatalf("expected to write 5 bytes, got %d", n)
	}
	setSyscall(th, SysClose, uint64(fdno))
	k.Dispatch(p, th)

	setSyscall(th, SysOpenat, uint64(AtFdCwd), uint64(scratch), 0)
	fdno = k.Dispatch(p, th)
	if fdno < 0 {
		t.Fatalf("reopen failed: %d", fdno)
	}
	readBuf := payload + 512
	setSyscall(th, SysRead, uint64(fdno), uint64(readBuf), 16)
	n := k.Dispatch(p, th)
	if n != 5 {
		t.Fatalf("expected to read 5 bytes back, got %d", n)
	}
	got, ok := readUser(p.MemSet, readBuf, 5)
	if !ok || string(got) != "hello" {
		t.Fatalf("expected \"hello\", got %q (ok=%v)", got, ok)
	}
}

func TestMkdiratThenGetdentsSeesDotAndDotDot(t *testing.T) {
	k, p := newTestKernel(t)
	th := p.MainThread()

	writeUserString(t, p, scratch, "/etc")
	setSyscall(th, SysMkdirat, uint64(AtFdCwd), uint64(scratch))
	if ret := k.Dispatch(p, th); ret != 0 {
		t.Fatalf("mkdirat failed: %d", ret)
	}

	setSyscall(th, SysOpenat, uint64(AtFdCwd), uint64(scratch), 0)
	dirfd := k.Dispatch(p, th)
	if dirfd < 0 {
		t.Fatalf("openat dir failed: %d", dirfd)
	}

	listBuf := scratch + 1024
	setSyscall(th, SysGetdents, uint64(dirfd), uint64(listBuf), 256)
	n := k.Dispatch(p, th)
	if n < 2 {
		t.Fatalf("expected at least . and .., got %d entries", n)
	}
	raw, ok := readUser(p.MemSet, listBuf, 256)
	if !ok {
		t.Fatal("could not read back packed entries")
	}
	names := bytes.Split(bytes.TrimRight(raw, "\x00"), []byte{0})
	found := map[string]bool{}
	for _, name := range names {
		found[string(name)] = true
	}
	if !found["."] || !found[".."] {
		t.Fatalf("expected . and .. among entries, got %q", names)
	}
}

func TestForkThenWaitpidReapsExitCode(t *testing.T) {
	k, p := newTestKernel(t)
	th := p.MainThread()

	setSyscall(th, SysFork)
	childPid := k.Dispatch(p, th)
	if childPid <= 0 {
		t.Fatalf("fork failed: %d", childPid)
	}

	child := k.Reg.Lookup(int(childPid))
	if child == nil {
		t.Fatal("expected child tracked in registry")
	}
	childTh := child.MainThread()
	setSyscall(childTh, SysExit, 7)
	k.Dispatch(child, childTh)

	setSyscall(th, SysWaitpid, uint64(childPid), 0)
	reaped := k.Dispatch(p, th)
	if reaped != childPid {
		t.Fatalf("expected waitpid to return pid %d, got %d", childPid, reaped)
	}
	if k.Reg.Lookup(int(childPid)) != nil {
		t.Fatal("expected waitpid to untrack the reaped child")
	}
}

func TestAnonymousMmapThenMunmap(t *testing.T) {
	k, p := newTestKernel(t)
	th := p.MainThread()

	setSyscall(th, SysMmap, 0, uint64(mem.PageSize), ProtR|ProtW, 0, ^uint64(0), 0)
	va := k.Dispatch(p, th)
	if va <= 0 {
		t.Fatalf("anonymous mmap failed: %d", va)
	}

	buf, ok := p.MemSet.TranslateBytes(mem.VirtAddr(va).PageRoundDown())
	if !ok || len(buf) != mem.PageSize {
		t.Fatal("expected a freshly mapped, zero-filled page")
	}

	setSyscall(th, SysMunmap, uint64(va), uint64(mem.PageSize))
	if ret := k.Dispatch(p, th); ret != 0 {
		t.Fatalf("expected munmap to succeed, got %d", ret)
	}
	if _, ok := p.MemSet.TranslateBytes(mem.VirtAddr(va).PageRoundDown()); ok {
		t.Fatal("expected page unmapped after munmap")
	}
}

// TestMunmapRejectsPartialRange mirrors the spec's `munmap(A+1, 4095)`
// scenario: a window that doesn't exactly match a reservation is refused,
// not partially honored.
func TestMunmapRejectsPartialRange(t *testing.T) {
	k, p := newTestKernel(t)
	th := p.MainThread()

	setSyscall(th, SysMmap, 0, uint64(mem.PageSize), ProtR|ProtW, 0, ^uint64(0), 0)
	va := k.Dispatch(p, th)
	if va <= 0 {
		t.Fatalf("mmap failed: %d", va)
	}

	setSyscall(th, SysMunmap, uint64(va)+1, uint64(mem.PageSize)-1)
	if ret := k.Dispatch(p, th); ret != -1 {
		t.Fatalf("expected partial munmap to be rejected, got %d", ret)
	}
}

func TestFileBackedMmapForkAndMunmapRoundTrip(t *testing.T) {
	k, p := newTestKernel(t)
	th := p.MainThread()

	writeUserString(t, p, scratch, "/mapped.txt")
	setSyscall(th, SysOpenat, uint64(AtFdCwd), uint64(scratch), uint64(fd.O_CREATE|fd.O_RDWR))
	fdno := k.Dispatch(p, th)
	if fdno < 0 {
		t.Fatalf("openat failed: %d", fdno)
	}
	payload := scratch + 256
	writeUserString(t, p, payload, "mapped contents")
	setSyscall(th, SysWrite, uint64(fdno), uint64(payload), 16)
	if n := k.Dispatch(p, th); n != 16 {
		t.Fatalf("expected to write 16 bytes, got %d", n)
	}

	setSyscall(th, SysMmap, 0, 16, ProtR, uint64(MapFile), uint64(fdno), 0)
	va := k.Dispatch(p, th)
	if va <= 0 {
		t.Fatalf("file mmap failed: %d", va)
	}
	mapped, ok := p.MemSet.TranslateBytes(mem.VirtAddr(va).PageRoundDown())
	if !ok || string(mapped[:16]) != "mapped contents\x00" {
		t.Fatalf("expected mapped page to hold file contents, got %q (ok=%v)", mapped[:16], ok)
	}

	setSyscall(th, SysFork)
	childPid := k.Dispatch(p, th)
	if childPid <= 0 {
		t.Fatalf("fork failed: %d", childPid)
	}
	child := k.Reg.Lookup(int(childPid))
	childMapped, ok := child.MemSet.TranslateBytes(mem.VirtAddr(va).PageRoundDown())
	if !ok || string(childMapped[:16]) != "mapped contents\x00" {
		t.Fatalf("expected child's mapping to carry the same contents, got %q (ok=%v)", childMapped[:16], ok)
	}

	setSyscall(th, SysMunmap, uint64(va), uint64(mem.PageSize))
	if ret := k.Dispatch(p, th); ret != 0 {
		t.Fatalf("expected munmap to succeed, got %d", ret)
	}

	setSyscall(th, SysClose, uint64(fdno))
	k.Dispatch(p, th)
	setSyscall(th, SysOpenat, uint64(AtFdCwd), uint64(scratch), 0)
	fdno = k.Dispatch(p, th)
	readBuf := payload + 512
	setSyscall(th, SysRead, uint64(fdno), uint64(readBuf), 16)
	n := k.Dispatch(p, th)
	if n != 16 {
		t.Fatalf("expected to read 16 bytes back after munmap, got %d", n)
	}
	got, ok := readUser(p.MemSet, readBuf, 16)
	if !ok || string(got) != "mapped contents\x00" {
		t.Fatalf("expected file contents preserved after munmap, got %q", got)
	}
}
