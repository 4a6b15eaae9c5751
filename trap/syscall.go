// Package trap is the syscall table dispatcher (spec §6): it reads a
// thread's trap-context registers the way the trampoline would have saved
// them (a7=number, a0-a5=args), runs the matching kernel operation, and
// writes the result back into a0, grounded on original_source's
// os/src/syscall/mod.rs dispatch table and sys_* handlers, adapted since
// this hosted simulator has no separate user/kernel address space: "user
// buffer" arguments are MemorySet-backed byte slices reached through
// vm.MemorySet.TranslateBytes instead of a copy_in/copy_out boundary.
package trap

// Syscall numbers (spec §6), identical to the Linux RISC-V numbers the
// table names.
const (
	SysGetcwd       = 17
	SysDup          = 24
	SysMkdirat      = 34
	SysUnlinkat     = 35
	SysLinkat       = 37
	SysChdir        = 49
	SysOpenat       = 56
	SysClose        = 57
	SysPipe         = 59
	SysGetdents     = 61
	SysRead         = 63
	SysWrite        = 64
	SysFstat        = 80
	SysExit         = 93
	SysSleep        = 101
	SysYield        = 124
	SysGettimeofday = 169
	SysGetpid       = 172
	SysMunmap       = 215
	SysFork         = 220
	SysExecve       = 221
	SysMmap         = 222
	SysWaitpid      = 260
)

// AT_FDCWD (spec §6 "dirfd = -100 means current working directory").
var AtFdCwd int64 = -100

// OpenFlags mirrors fd.OpenFlags bit-for-bit (spec §6); kept as a distinct
// type here because the register holding it at the ABI boundary is a bare
// uint64, not yet cast into fd.OpenFlags.
type OpenFlags = uint32

// MMapFlags (spec §6 "MMapFlags: bit 0=FILE, bit 1=FIXED").
type MMapFlags uint32

const (
	MapFile  MMapFlags = 1 << 0
	MapFixed MMapFlags = 1 << 1
)

// Prot bits (spec §6 "prot occupies bits R=1, W=2, X=4").
const (
	ProtR uint64 = 1
	ProtW uint64 = 2
	ProtX uint64 = 4
)
