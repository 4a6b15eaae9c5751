// Command rvkernel is a demo harness: it boots the hosted kernel state
// (frame allocator, kernel address space, filesystem, pid registry) and
// drives a handful of end-to-end scenarios through the syscall dispatcher,
// the same way proc/process_test.go builds a throwaway address space and
// synthetic ELF image to exercise the PCB in isolation. There is no real
// RISC-V core here to fetch instructions from, so each scenario scripts its
// trap-context registers directly instead of running compiled user code.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"rvkernel/fd"
	"rvkernel/fs"
	"rvkernel/klog"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/trap"
	"rvkernel/vm"
)

var log = klog.For("rvkernel")

func main() {
	a := mem.NewFrameAllocator(mem.NewPhysicalMemory(0, 4096))
	trampoline, ok := a.Alloc()
	if !ok {
		log.Error("out of frames booting trampoline")
		os.Exit(1)
	}
	ks := vm.NewKernel(a, 0, 1, 1, 2, 2, 3, 3, 1024, nil, trampoline.PPN())
	proc.Init(a, ks, trampoline.PPN())

	dev := fs.NewMemDevice(4096)
	efs := fs.Create(dev, 4096, 1)

	init := proc.NewInitProc(minimalELF())
	reg := sched.NewRegistry()
	reg.Track(init)
	k := &trap.Kernel{EFS: efs, Reg: reg, Init: init}

	log.Info("booted", "pid", init.Pid)

	scenarioFileIO(k, init)
	scenarioDirectories(k, init)
	scenarioForkWait(k, init)
	scenarioMmapAnon(k, init)
	scenarioMmapFile(k, init)
}

// setSyscall loads th's trap context the way the trampoline would before a
// syscall trap: a7=num, a0-a5=args (spec §6 syscall ABI).
func setSyscall(th *proc.Thread, num uint64, args ...uint64) {
	cx := th.TrapContext()
	cx.X[17] = num
	for i, v := range args {
		cx.X[10+i] = v
	}
}

// writeString places a NUL-terminated string into a process's address
// space at va, for syscalls that take path/buffer arguments by user
// pointer (openat, mkdirat, ...).
func writeString(p *proc.Process, va mem.VirtAddr, s string) {
	data := append([]byte(s), 0)
	pos := 0
	for pos < len(data) {
		cur := va + mem.VirtAddr(pos)
		vpn := cur.PageRoundDown()
		frame, ok := p.MemSet.TranslateBytes(vpn)
		if !ok {
			log.Error("writeString: unmapped scratch page", "va", uint64(cur))
			return
		}
		inPage := int(cur.Offset())
		k := mem.PageSize - inPage
		if k > len(data)-pos {
			k = len(data) - pos
		}
		copy(frame[inPage:inPage+k], data[pos:pos+k])
		pos += k
	}
}

// scratchVA is a fixed user address inside the init process's heap-ish
// scratch area, reserved by minimalELF's data segment, used to stage
// path/buffer arguments for the scripted syscalls below.
const scratchVA = mem.VirtAddr(0x2000)

func scenarioFileIO(k *trap.Kernel, p *proc.Process) {
	th := p.MainThread()
	writeString(p, scratchVA, "/greeting.txt")

	setSyscall(th, trap.SysOpenat, uint64(trap.AtFdCwd), uint64(scratchVA), uint64(fd.O_CREATE|fd.O_RDWR))
	fdno := k.Dispatch(p, th)
	if fdno < 0 {
		log.Error("openat failed", "scenario", "file-io")
		return
	}

	payload := scratchVA + 256
	writeString(p, payload, "hello from the demo harness")
	setSyscall(th, trap.SysWrite, uint64(fdno), uint64(payload), 28)
	n := k.Dispatch(p, th)
	log.Info("wrote file", "bytes", n)

	setSyscall(th, trap.SysClose, uint64(fdno))
	k.Dispatch(p, th)

	setSyscall(th, trap.SysOpenat, uint64(trap.AtFdCwd), uint64(scratchVA), 0)
	fdno = k.Dispatch(p, th)
	readBuf := payload + 512
	setSyscall(th, trap.SysRead, uint64(fdno), uint64(readBuf), 64)
	n = k.Dispatch(p, th)
	log.Info("read back file", "bytes", n)
	setSyscall(th, trap.SysClose, uint64(fdno))
	k.Dispatch(p, th)
}

func scenarioDirectories(k *trap.Kernel, p *proc.Process) {
	th := p.MainThread()
	writeString(p, scratchVA, "/etc")

	setSyscall(th, trap.SysMkdirat, uint64(trap.AtFdCwd), uint64(scratchVA))
	ret := k.Dispatch(p, th)
	log.Info("mkdirat", "path", "/etc", "ret", ret)

	setSyscall(th, trap.SysOpenat, uint64(trap.AtFdCwd), uint64(scratchVA), 0)
	dirfd := k.Dispatch(p, th)

	listBuf := scratchVA + 1024
	setSyscall(th, trap.SysGetdents, uint64(dirfd), uint64(listBuf), 256)
	n := k.Dispatch(p, th)
	log.Info("getdents", "entries", n)

	setSyscall(th, trap.SysClose, uint64(dirfd))
	k.Dispatch(p, th)
}

func scenarioForkWait(k *trap.Kernel, p *proc.Process) {
	th := p.MainThread()
	setSyscall(th, trap.SysFork)
	childPid := k.Dispatch(p, th)
	if childPid <= 0 {
		log.Error("fork failed")
		return
	}
	log.Info("forked", "child", childPid)

	child := k.Reg.Lookup(int(childPid))
	if child == nil {
		log.Error("child not tracked after fork")
		return
	}
	childTh := child.MainThread()
	setSyscall(childTh, trap.SysExit, 7)
	k.Dispatch(child, childTh)

	setSyscall(th, trap.SysWaitpid, uint64(childPid), 0)
	reaped := k.Dispatch(p, th)
	log.Info("waitpid", "reaped", reaped)
}

func scenarioMmapAnon(k *trap.Kernel, p *proc.Process) {
	th := p.MainThread()
	setSyscall(th, trap.SysMmap, 0, uint64(mem.PageSize), trap.ProtR|trap.ProtW, 0, ^uint64(0), 0)
	va := k.Dispatch(p, th)
	if va < 0 {
		log.Error("anonymous mmap failed")
		return
	}
	log.Info("mmap anon", "va", fmt.Sprintf("%#x", uint64(va)))

	setSyscall(th, trap.SysMunmap, uint64(va), uint64(mem.PageSize))
	ret := k.Dispatch(p, th)
	log.Info("munmap anon", "ret", ret)
}

func scenarioMmapFile(k *trap.Kernel, p *proc.Process) {
	th := p.MainThread()
	writeString(p, scratchVA, "/mapped.txt")

	setSyscall(th, trap.SysOpenat, uint64(trap.AtFdCwd), uint64(scratchVA), uint64(fd.O_CREATE|fd.O_RDWR))
	fdno := k.Dispatch(p, th)
	if fdno < 0 {
		log.Error("openat failed", "scenario", "mmap-file")
		return
	}
	payload := scratchVA + 256
	writeString(p, payload, "mapped contents")
	setSyscall(th, trap.SysWrite, uint64(fdno), uint64(payload), 16)
	k.Dispatch(p, th)

	setSyscall(th, trap.SysMmap, 0, 16, trap.ProtR, uint64(trap.MapFile), uint64(fdno), 0)
	va := k.Dispatch(p, th)
	if va < 0 {
		log.Error("file mmap failed")
		return
	}
	log.Info("mmap file", "va", fmt.Sprintf("%#x", uint64(va)))

	setSyscall(th, trap.SysMunmap, uint64(va), uint64(mem.PageSize))
	ret := k.Dispatch(p, th)
	log.Info("munmap file", "ret", ret)

	setSyscall(th, trap.SysClose, uint64(fdno))
	k.Dispatch(p, th)
}

// minimalELF synthesizes a tiny RISC-V ELF so proc.NewInitProc has an image
// to load: one RWX segment covering both the entry point and the scratch
// area scenarios stage arguments in, mirroring the throwaway images
// proc/process_test.go builds for the same reason.
func minimalELF() []byte {
	const ehsize, phentsize = 64, 56
	const entry, vaddr = 0x1000, 0x1000
	segLen := uint64(0x4000)

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
	le.PutUint32(ph[4:], 7)
	le.PutUint64(ph[8:], phOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], segLen)
	le.PutUint64(ph[40:], segLen)
	le.PutUint64(ph[48:], 0x1000)
	buf.Write(ph)

	buf.Write(make([]byte, segLen))
	return buf.Bytes()
}
