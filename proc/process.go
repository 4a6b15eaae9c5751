package proc

import (
	"sync"

	"rvkernel/config"
	"rvkernel/defs"
	"rvkernel/fd"
	"rvkernel/mem"
	"rvkernel/vm"
)

// kernelSpace and alloc are the hosted simulator's single global kernel
// address space and frame pool (spec §5 "single-owner interior-mutability
// cell" applied to globals, grounded on the teacher's KERNEL_SPACE/Physmem
// singletons). Init must run once before any Process is created.
var (
	kernelSpace   *vm.MemorySet
	alloc         *mem.FrameAllocator
	trampolinePPN mem.PhysPageNum
)

/// Allocator exposes the global frame allocator to other packages (the trap
/// dispatcher's mmap handler, which populates FileMapping pages outside any
/// Process method).
func Allocator() *mem.FrameAllocator { return alloc }

/// Init installs the global kernel address space, frame allocator, and the
/// physical frame holding the trampoline code every address space (kernel and
/// user alike) maps at vm.TRAMPOLINE, every Process/Thread is built against.
func Init(a *mem.FrameAllocator, ks *vm.MemorySet, trampoline mem.PhysPageNum) {
	alloc = a
	kernelSpace = ks
	trampolinePPN = trampoline
}

// Process is a PCB: address space, fd table, children, cwd, mmap
// bookkeeping, sync tables, and thread list (spec §3 Process (PCB)).
type Process struct {
	mu sync.Mutex

	Pid      int
	Parent   *Process   /// non-owning (spec §9 back-references)
	Children []*Process /// owning

	MemSet *vm.MemorySet
	Fds    *fd.Table
	Cwd    *fd.Cwd_t

	Mappings     map[uint64]*vm.FileMapping /// keyed by inode id (spec §4.9)
	mmapNextVA   mem.VirtAddr
	Reservations []Reservation /// every live mmap call, anon or file-backed

	Sync  *SyncTable
	Accnt Accnt

	Threads  []*Thread
	Zombie   bool
	ExitCode int
}

// NewInitProc builds the first process (pid allocated fresh, no parent)
// from an ELF image, with stdin/stdout installed at fd 0/1 (spec §4.10
// "sharing stdio" — initproc is where stdio first gets installed).
func NewInitProc(elfBytes []byte) *Process {
	ms, userSP, entry := vm.FromElf(alloc, trampolinePPN, elfBytes, 0)
	p := &Process{
		Pid:        AllocPid(),
		MemSet:     ms,
		Fds:        fd.NewTable(),
		Cwd:        fd.MkRootCwd(),
		Mappings:   make(map[uint64]*vm.FileMapping),
		mmapNextVA: mem.VirtAddr(config.MmapBase),
		Sync:       NewSyncTable(),
	}
	p.Fds.InstallAt(0, &fd.Fd_t{File: fd.NewStdin(), Perms: fd.FD_READ})
	p.Fds.InstallAt(1, &fd.Fd_t{File: &fd.Stdout{}, Perms: fd.FD_WRITE})

	th := newThread(ms, userSP)
	th.Process = p
	cx := AppInitContext(entry, uint64(userSP), kernelSpace.PT.Token(), uint64(th.KStackTop), 0)
	*th.TrapContext() = cx
	p.Threads = []*Thread{th}
	return p
}

// MainThread returns the process's main thread (the first thread created,
// spec §4.10 "if the exiting thread is the main thread").
func (p *Process) MainThread() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Threads) == 0 {
		return nil
	}
	return p.Threads[0]
}

// Fork duplicates the address space, fd table, file mappings, and cwd, and
// creates one main thread whose trap-context a0 is zeroed so the fork
// syscall returns 0 in the child (spec §4.10 fork).
func (p *Process) Fork() (*Process, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	childMS := vm.CloneUser(p.MemSet, trampolinePPN)
	childFds, err := p.Fds.Clone()
	if err != 0 {
		return nil, err
	}

	child := &Process{
		Pid:      AllocPid(),
		Parent:   p,
		MemSet:   childMS,
		Fds:      childFds,
		Cwd:      p.Cwd.Clone(),
		Mappings: make(map[uint64]*vm.FileMapping),
		Sync:     NewSyncTable(),
	}
	for inode, m := range p.Mappings {
		child.Mappings[inode] = m.CopyToUser(childMS.PT, alloc, vm.PermR|vm.PermW|vm.PermU)
	}
	child.Reservations = append(child.Reservations, p.Reservations...)
	child.mmapNextVA = p.mmapNextVA

	parentMain := p.Threads[0]
	childMain := newThread(childMS, parentMain.UserStackTop)
	childMain.Process = child
	*childMain.TrapContext() = *parentMain.TrapContext()
	childMain.TrapContext().SetA0(0)
	childMain.TrapContext().KernelSp = uint64(childMain.KStackTop)
	child.Threads = []*Thread{childMain}

	p.Children = append(p.Children, child)
	return child, 0
}

// Exec replaces this (single-threaded) process's address space with a fresh
// ELF image, rebuilding the main thread's user resources and argv layout
// (spec §4.10 exec). Requires exactly one thread.
func (p *Process) Exec(elfBytes []byte, argv []string) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Threads) != 1 {
		return -defs.EINVAL
	}
	old := p.Threads[0]
	DeallocTid(old.Tid)

	newMS, userSP, entry := vm.FromElf(alloc, trampolinePPN, elfBytes, 0)
	argvBase, sp := pushArgv(newMS, userSP, argv)

	th := newThread(newMS, mem.VirtAddr(sp))
	th.Process = p
	cx := AppInitContext(entry, uint64(sp), kernelSpace.PT.Token(), uint64(th.KStackTop), 0)
	cx.SetArgs(uint64(len(argv)), argvBase)
	*th.TrapContext() = cx

	p.MemSet.Destroy()
	p.MemSet = newMS
	p.Threads = []*Thread{th}
	return 0
}

// pushArgv writes argv onto the user stack below sp in the standard layout:
// a NULL-terminated array of pointers, followed by the NUL-terminated
// strings themselves (spec §4.10 exec), grounded on the teacher's ELF-loader
// argv convention (vm/as.go's Vm_t loader pushes argv the same way).
func pushArgv(ms *vm.MemorySet, top mem.VirtAddr, argv []string) (argvBase, newSP uint64) {
	sp := top
	ptrs := make([]mem.VirtAddr, len(argv)+1)
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i] + "\x00"
		sp -= mem.VirtAddr(len(s))
		writeUserBytes(ms, sp, []byte(s))
		ptrs[i] = sp
	}
	sp &^= 7 // 8-byte align before the pointer array
	sp -= mem.VirtAddr(8 * (len(argv) + 1))
	argvArrayBase := sp
	for i, p := range ptrs {
		writeUserBytes(ms, argvArrayBase+mem.VirtAddr(8*i), u64le(uint64(p)))
	}
	return uint64(argvArrayBase), uint64(sp)
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// writeUserBytes copies data into the user address space starting at va,
// spanning page boundaries via FrameBytes per page (mirrors MapArea.CopyData
// but for an arbitrary, possibly unaligned, mid-area write).
func writeUserBytes(ms *vm.MemorySet, va mem.VirtAddr, data []byte) {
	pos := 0
	for pos < len(data) {
		vpn := (va + mem.VirtAddr(pos)).PageRoundDown()
		inPage := int((va + mem.VirtAddr(pos)).Offset())
		frame := ms.FrameBytes(vpn)
		n := mem.PageSize - inPage
		if n > len(data)-pos {
			n = len(data) - pos
		}
		copy(frame[inPage:inPage+n], data[pos:pos+n])
		pos += n
	}
}

// ThreadCreate allocates a new thread inside p's address space, starting at
// entry with a0=arg (spec §4.10 thread_create).
func (p *Process) ThreadCreate(entry, arg uint64) *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.Threads[0].UserStackTop
	stride := config.UserStackSize + config.PageSize
	stackTop := base - mem.VirtAddr(len(p.Threads)*stride)
	th := newThread(p.MemSet, stackTop)
	th.Process = p
	cx := AppInitContext(entry, uint64(th.UserStackTop), kernelSpace.PT.Token(), uint64(th.KStackTop), 0)
	cx.SetA0(arg)
	*th.TrapContext() = cx
	p.Threads = append(p.Threads, th)
	return th
}

// Exit records code against thread tid. If tid is the main thread, the
// whole process becomes a zombie: children reparent to init, data pages are
// recycled, fds close, mappings sync, and other threads are dropped (spec
// §4.10 exit).
func (p *Process) Exit(tid int, code int, initProc *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var target *Thread
	for _, t := range p.Threads {
		if t.Tid == tid {
			target = t
			break
		}
	}
	if target == nil {
		return
	}
	target.ExitCode = code
	target.Status = Exited

	if tid != p.Threads[0].Tid {
		return
	}
	p.ExitCode = code
	p.Zombie = true
	for _, t := range p.Threads {
		if t.Tid != tid {
			t.Status = Exited
			DeallocTid(t.Tid)
		}
	}
	for _, c := range p.Children {
		c.Parent = initProc
		initProc.Children = append(initProc.Children, c)
	}
	p.Children = nil
	for _, m := range p.Mappings {
		m.Sync(p.MemSet.PT)
	}
	keep := p.Threads[0].TrapCxVA.PageRoundDown()
	for _, a := range append([]*vm.MapArea(nil), p.MemSet.Areas...) {
		if !a.Contains(keep) {
			p.MemSet.RemoveArea(a)
		}
	}
	p.Fds.CloseAll()
}

// ReserveMmapVA hands out the next non-overlapping, page-aligned VA window
// of length bytes from the per-process mmap allocator (spec §4.9
// "mmap_va_allocator ... hands out non-overlapping 4 KiB-aligned VA windows
// starting at a fixed base").
func (p *Process) ReserveMmapVA(length int) mem.VirtAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.mmapNextVA
	pages := mem.VirtAddr(length).PageRoundUp()
	p.mmapNextVA += mem.VirtAddr(pages) * mem.VirtAddr(mem.PageSize)
	return base
}

// Reservation records one mmap call's exact VA window (spec §4.9 "munmap
// must match an existing reservation exactly"), distinguishing MAP_ANON
// from MAP_FILE windows so munmap knows whether to route through a
// FileMapping.
type Reservation struct {
	Start, End mem.VirtAddr
	File       bool
	InodeID    uint64
	Offset     int /// OffsetInFile, meaningful only when File is true
}

// Overlaps reports whether [start, end) intersects any live reservation,
// used to reject a MAP_FIXED mmap that would collide with an existing one
// (spec §4.9 mmap policy).
func (p *Process) Overlaps(start, end mem.VirtAddr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.Reservations {
		if start < r.End && r.Start < end {
			return true
		}
	}
	return false
}

// AddReservation records a freshly accepted mmap window.
func (p *Process) AddReservation(start, end mem.VirtAddr, file bool, inodeID uint64, offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reservations = append(p.Reservations, Reservation{Start: start, End: end, File: file, InodeID: inodeID, Offset: offset})
}

// FindReservation returns the reservation matching [start, end) exactly, the
// only shape munmap accepts (spec §4.9 "munmap must match an existing
// reservation exactly; no partial unmap").
func (p *Process) FindReservation(start, end mem.VirtAddr) (Reservation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.Reservations {
		if r.Start == start && r.End == end {
			rr := r
			p.Reservations = append(p.Reservations[:i], p.Reservations[i+1:]...)
			return rr, true
		}
	}
	return Reservation{}, false
}

// Wait returns (pid, exitCode, true) for the first exited (zombie) child,
// removing it from the children list; otherwise (0, 0, false) meaning the
// caller should surface waitpid's -2 ("would block", spec §4.10 wait).
func (p *Process) Wait(pid int) (int, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.Children {
		if pid != -1 && c.Pid != pid {
			continue
		}
		if c.Zombie {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			DeallocPid(c.Pid)
			return c.Pid, c.ExitCode, true
		}
	}
	return 0, 0, false
}
