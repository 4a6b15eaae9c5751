package trap

import (
	"time"

	"rvkernel/defs"
	"rvkernel/fd"
	"rvkernel/fs"
	"rvkernel/klog"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/stat"
	"rvkernel/vm"
)

var log = klog.For("trap")

// Kernel bundles the global state a syscall handler needs beyond the
// calling process/thread: the mounted filesystem and the scheduler/pid
// registry (spec §9 "Global mutable state" KERNEL_SPACE/BLOCK_CACHE/
// SCHEDULER singletons, minus KERNEL_SPACE which proc.Init already owns).
type Kernel struct {
	EFS  *fs.EasyFileSystem
	Reg  *sched.Registry
	Init *proc.Process
}

// maxPathLen bounds readUserString's path arguments (spec §7 "bad argument
// ... path too long").
const maxPathLen = 256

// Dispatch reads th's trap-context a7/a0-a5, runs the named syscall against
// p, and writes the result back into a0 (spec §6 syscall ABI). It returns
// the same value for callers (tests, the demo harness) that want it without
// re-reading the trap context.
func (k *Kernel) Dispatch(p *proc.Process, th *proc.Thread) int64 {
	start := p.Accnt.Now()
	cx := th.TrapContext()
	num := cx.X[17]
	a0, a1, a2, a3, a4, a5 := cx.X[10], cx.X[11], cx.X[12], cx.X[13], cx.X[14], cx.X[15]

	var ret int64
	switch num {
	case SysGetcwd:
		ret = k.sysGetcwd(p, mem.VirtAddr(a0), int(a1))
	case SysDup:
		ret = k.sysDup(p, int(a0))
	case SysMkdirat:
		ret = k.sysMkdirat(p, int64(a0), mem.VirtAddr(a1))
	case SysUnlinkat:
		ret = k.sysUnlinkat(p, int64(a0), mem.VirtAddr(a1))
	case SysLinkat:
		ret = k.sysLinkat(p, int64(a0), mem.VirtAddr(a1), mem.VirtAddr(a2))
	case SysChdir:
		ret = k.sysChdir(p, mem.VirtAddr(a0))
	case SysOpenat:
		ret = k.sysOpenat(p, int64(a0), mem.VirtAddr(a1), OpenFlags(a2))
	case SysClose:
		ret = k.sysClose(p, int(a0))
	case SysPipe:
		ret = k.sysPipe(p, mem.VirtAddr(a0))
	case SysGetdents:
		ret = k.sysGetdents(p, int(a0), mem.VirtAddr(a1), int(a2))
	case SysRead:
		ret = k.sysRead(p, int(a0), mem.VirtAddr(a1), int(a2))
	case SysWrite:
		ret = k.sysWrite(p, int(a0), mem.VirtAddr(a1), int(a2))
	case SysFstat:
		ret = k.sysFstat(p, int(a0), mem.VirtAddr(a1))
	case SysExit:
		ret = k.sysExit(p, th, int(int32(a0)))
	case SysSleep:
		ret = k.sysSleep(th, int64(a0))
	case SysYield:
		ret = k.sysYield(th)
	case SysGettimeofday:
		ret = k.sysGettimeofday(p, mem.VirtAddr(a0))
	case SysGetpid:
		ret = int64(p.Pid)
	case SysMunmap:
		ret = k.sysMunmap(p, mem.VirtAddr(a0), int(a1))
	case SysFork:
		ret = k.sysFork(p)
	case SysExecve:
		ret = k.sysExecve(p, mem.VirtAddr(a0), mem.VirtAddr(a1))
	case SysMmap:
		ret = k.sysMmap(p, mem.VirtAddr(a0), int(a1), a2, MMapFlags(a3), int(a4), int(a5))
	case SysWaitpid:
		ret = k.sysWaitpid(p, int(int32(a0)), mem.VirtAddr(a1))
	default:
		log.Warn("unknown syscall", "num", num)
		ret = -int64(defs.ENOSYS)
	}

	if num != SysExit {
		cx.SetA0(uint64(ret))
	}
	p.Accnt.Systadd(p.Accnt.Now() - start)
	return ret
}

func errOf(e defs.Err_t) int64 {
	if e == 0 {
		return 0
	}
	return -1
}

// resolveDir returns the directory inode dirfd names: the cwd root-relative
// walk when dirfd is AtFdCwd, or the inode behind an already-open directory
// fd otherwise (spec §6 "dirfd = -100 means cwd").
func (k *Kernel) resolveDir(p *proc.Process, dirfd int64) (*fs.Inode, defs.Err_t) {
	if dirfd == AtFdCwd {
		return fs.RootInode(k.EFS), 0
	}
	slot, ok := p.Fds.Get(int(dirfd))
	if !ok {
		return nil, -defs.EMFILE
	}
	osi, ok := slot.File.(*fd.OSInode)
	if !ok || !osi.Inode().IsDir() {
		return nil, -defs.ENOTDIR
	}
	return osi.Inode(), 0
}

// resolvePath turns (dirfd, path-in-user-memory) into an inode handle,
// joining against the process cwd when dirfd is AtFdCwd and path is
// relative (spec §6).
func (k *Kernel) resolvePath(p *proc.Process, dirfd int64, pathVA mem.VirtAddr) (*fs.Inode, string, defs.Err_t) {
	raw, ok := readUserString(p.MemSet, pathVA, maxPathLen)
	if !ok {
		return nil, "", -defs.ENAMETOOLONG
	}
	if pathIsAbs(raw) {
		return fs.RootInode(k.EFS), raw, 0
	}
	dir, err := k.resolveDir(p, dirfd)
	if err != 0 {
		return nil, "", err
	}
	full := raw
	if dirfd == AtFdCwd {
		full = p.Cwd.Fullpath(raw)
	}
	return dir, full, 0
}

func (k *Kernel) sysGetcwd(p *proc.Process, buf mem.VirtAddr, n int) int64 {
	s := p.Cwd.Snapshot() + "\x00"
	if len(s) > n {
		return -1
	}
	if !writeUser(p.MemSet, buf, []byte(s)) {
		return -1
	}
	return 0
}

func (k *Kernel) sysDup(p *proc.Process, oldfd int) int64 {
	slot, ok := p.Fds.Get(oldfd)
	if !ok {
		return -1
	}
	nf, err := fd.Copyfd(slot)
	if err != 0 {
		return -1
	}
	return int64(p.Fds.Install(nf))
}

func (k *Kernel) sysMkdirat(p *proc.Process, dirfd int64, pathVA mem.VirtAddr) int64 {
	dir, full, err := k.resolvePath(p, dirfd, pathVA)
	if err != 0 {
		return -1
	}
	target, ok := dir.Find(parentOf(full))
	if !ok {
		return -1
	}
	_, cerr := target.CreateInode(baseOf(full), fs.TypeDirectory)
	return errOf(cerr)
}

func (k *Kernel) sysUnlinkat(p *proc.Process, dirfd int64, pathVA mem.VirtAddr) int64 {
	dir, full, err := k.resolvePath(p, dirfd, pathVA)
	if err != 0 {
		return -1
	}
	target, ok := dir.Find(parentOf(full))
	if !ok {
		return -1
	}
	return errOf(target.Unlink(baseOf(full)))
}

func (k *Kernel) sysLinkat(p *proc.Process, dirfd int64, oldVA, newVA mem.VirtAddr) int64 {
	dir, oldFull, err := k.resolvePath(p, dirfd, oldVA)
	if err != 0 {
		return -1
	}
	_, newFull, err := k.resolvePath(p, dirfd, newVA)
	if err != 0 {
		return -1
	}
	src, ok := dir.Find(oldFull)
	if !ok {
		return -1
	}
	newParent, ok := dir.Find(parentOf(newFull))
	if !ok {
		return -1
	}
	return errOf(newParent.Link(baseOf(newFull), src))
}

func (k *Kernel) sysChdir(p *proc.Process, pathVA mem.VirtAddr) int64 {
	raw, ok := readUserString(p.MemSet, pathVA, maxPathLen)
	if !ok {
		return -1
	}
	full := p.Cwd.Fullpath(raw)
	target, ok := fs.RootInode(k.EFS).Find(full)
	if !ok || !target.IsDir() {
		return -1
	}
	p.Cwd.Chdir(raw)
	return 0
}

func (k *Kernel) sysOpenat(p *proc.Process, dirfd int64, pathVA mem.VirtAddr, flags OpenFlags) int64 {
	dir, full, err := k.resolvePath(p, dirfd, pathVA)
	if err != 0 {
		return -1
	}
	parent, ok := dir.Find(parentOf(full))
	if !ok {
		return -1
	}
	readable, writable := fd.OpenFlags(flags).ReadWrite()
	osi, oerr := fd.Open(parent, baseOf(full), fd.OpenFlags(flags))
	if oerr != 0 {
		return -1
	}
	perms := 0
	if readable {
		perms |= fd.FD_READ
	}
	if writable {
		perms |= fd.FD_WRITE
	}
	return int64(p.Fds.Install(&fd.Fd_t{File: osi, Perms: perms}))
}

func (k *Kernel) sysClose(p *proc.Process, fdno int) int64 {
	return errOf(p.Fds.Close(fdno))
}

func (k *Kernel) sysPipe(p *proc.Process, fdsVA mem.VirtAddr) int64 {
	r, w := fd.MakePipe()
	rn := p.Fds.Install(r)
	wn := p.Fds.Install(w)
	buf := make([]byte, 8)
	for i, v := range []int{rn, wn} {
		u := uint32(v)
		buf[i*4], buf[i*4+1], buf[i*4+2], buf[i*4+3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	}
	if !writeUser(p.MemSet, fdsVA, buf) {
		return -1
	}
	return 0
}

// sysGetdents packs every entry name of the directory at fd, NUL-terminated
// back to back, into buf, stopping before exceeding n bytes. No directory
// entry layout is specified beyond "entries written" (spec §6), so this
// mirrors the simplest POSIX readdir-over-a-pipe shape rather than
// fabricating a fixed-width dirent struct nothing in the corpus defines.
func (k *Kernel) sysGetdents(p *proc.Process, fdno int, buf mem.VirtAddr, n int) int64 {
	slot, ok := p.Fds.Get(fdno)
	if !ok {
		return -1
	}
	osi, ok := slot.File.(*fd.OSInode)
	if !ok || !osi.Inode().IsDir() {
		return -1
	}
	var packed []byte
	written := 0
	for _, name := range osi.Inode().Ls() {
		entry := append([]byte(name), 0)
		if len(packed)+len(entry) > n {
			break
		}
		packed = append(packed, entry...)
		written++
	}
	if !writeUser(p.MemSet, buf, packed) {
		return -1
	}
	return int64(written)
}

func (k *Kernel) sysRead(p *proc.Process, fdno int, bufVA mem.VirtAddr, n int) int64 {
	slot, ok := p.Fds.Get(fdno)
	if !ok {
		return -1
	}
	tmp := make([]byte, n)
	nr, err := slot.File.Read(tmp)
	if err != 0 && nr == 0 {
		return -1
	}
	if !writeUser(p.MemSet, bufVA, tmp[:nr]) {
		return -1
	}
	return int64(nr)
}

func (k *Kernel) sysWrite(p *proc.Process, fdno int, bufVA mem.VirtAddr, n int) int64 {
	slot, ok := p.Fds.Get(fdno)
	if !ok {
		return -1
	}
	data, ok := readUser(p.MemSet, bufVA, n)
	if !ok {
		return -1
	}
	nw, err := slot.File.Write(data)
	if err != 0 {
		return -1
	}
	return int64(nw)
}

func (k *Kernel) sysFstat(p *proc.Process, fdno int, stVA mem.VirtAddr) int64 {
	slot, ok := p.Fds.Get(fdno)
	if !ok {
		return -1
	}
	var st stat.Stat_t
	if slot.File.Fstat(&st) != 0 {
		return -1
	}
	if !writeUser(p.MemSet, stVA, st.Bytes()) {
		return -1
	}
	return 0
}

func (k *Kernel) sysExit(p *proc.Process, th *proc.Thread, code int) int64 {
	p.Exit(th.Tid, code, k.Init)
	return int64(code)
}

func (k *Kernel) sysSleep(th *proc.Thread, ms int64) int64 {
	if k.Reg != nil {
		expire := time.Now().UnixMilli() + ms
		k.Reg.Timer.Add(th, expire)
	}
	return 0
}

func (k *Kernel) sysYield(th *proc.Thread) int64 {
	if k.Reg != nil {
		k.Reg.Sched.SuspendCurrentAndRunNext(th)
	}
	return 0
}

func (k *Kernel) sysGettimeofday(p *proc.Process, tsVA mem.VirtAddr) int64 {
	now := time.Now()
	buf := make([]byte, 16)
	sec := uint64(now.Unix())
	usec := uint64(now.Nanosecond() / 1000)
	putU64(buf[0:], sec)
	putU64(buf[8:], usec)
	if !writeUser(p.MemSet, tsVA, buf) {
		return -1
	}
	return 0
}

func (k *Kernel) sysFork(p *proc.Process) int64 {
	child, err := p.Fork()
	if err != 0 {
		return -1
	}
	if k.Reg != nil {
		k.Reg.Track(child)
	}
	return int64(child.Pid)
}

func (k *Kernel) sysExecve(p *proc.Process, pathVA, argvVA mem.VirtAddr) int64 {
	path, ok := readUserString(p.MemSet, pathVA, maxPathLen)
	if !ok {
		return -1
	}
	ino, ok := fs.RootInode(k.EFS).Find(p.Cwd.Fullpath(path))
	if !ok {
		return -1
	}
	osi := fd.NewOSInode(true, false, ino)
	elf := osi.ReadAll()

	argv := readArgv(p.MemSet, argvVA)
	if err := p.Exec(elf, argv); err != 0 {
		return -1
	}
	return int64(len(argv))
}

func readArgv(ms *vm.MemorySet, argvVA mem.VirtAddr) []string {
	if argvVA == 0 {
		return nil
	}
	var argv []string
	for i := 0; ; i++ {
		ptrBytes, ok := readUser(ms, argvVA+mem.VirtAddr(8*i), 8)
		if !ok {
			break
		}
		ptr := getU64(ptrBytes)
		if ptr == 0 {
			break
		}
		s, ok := readUserString(ms, mem.VirtAddr(ptr), maxPathLen)
		if !ok {
			break
		}
		argv = append(argv, s)
	}
	return argv
}

func (k *Kernel) sysWaitpid(p *proc.Process, pid int, wstatusVA mem.VirtAddr) int64 {
	childPid, code, ok := p.Wait(pid)
	if !ok {
		return -2 // would block
	}
	if wstatusVA != 0 {
		buf := make([]byte, 4)
		putU32(buf, uint32(code))
		writeUser(p.MemSet, wstatusVA, buf)
	}
	if k.Reg != nil {
		k.Reg.Untrack(childPid)
	}
	return int64(childPid)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
