package proc

import (
	"rvkernel/config"
	"rvkernel/mem"
	"rvkernel/vm"
)

// Status enumerates a thread's scheduling state (spec §3 Thread).
type Status int

const (
	Ready Status = iota
	Running
	Blocked
	Exited
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Thread is a TCB: kernel stack, trap-context page, user stack range, the
// switch-context, status, and exit code (spec §3 Thread (TCB)).
type Thread struct {
	Tid      int
	Process  *Process /// non-owning back-reference (spec §9 back-references)
	Status   Status
	ExitCode int

	KStackBottom, KStackTop mem.VirtAddr
	TrapCxVA                mem.VirtAddr
	UserStackBottom, UserStackTop mem.VirtAddr

	TaskCx TaskContext
}

// KernelStackVA computes thread tid's kernel-stack range inside the global
// kernel address space, one guard page below the previous thread's stack,
// walking down from the trampoline (spec's kernel-stack placement), grounded
// on original_source's kernel_stack_position.
func KernelStackVA(tid int) (bottom, top mem.VirtAddr) {
	stride := uint64(config.KernelStackSize + config.PageSize)
	top = vm.TRAMPOLINE - mem.VirtAddr(uint64(tid)*stride)
	bottom = top - mem.VirtAddr(config.KernelStackSize)
	return
}

// newThread allocates a fresh tid, maps its kernel stack into the global
// kernel address space, and reserves its trap-context page and user-stack
// range inside ms (the owning process's address space). userStackTop is the
// caller-computed top of this thread's user-stack window.
func newThread(ms *vm.MemorySet, userStackTop mem.VirtAddr) *Thread {
	tid := AllocTid()
	kb, kt := KernelStackVA(tid)
	kernelSpace.InsertFramedArea(kb.PageRoundDown(), kt.PageRoundDown(), vm.PermR|vm.PermW)

	trapCxVA := vm.TrapContextVA(tid)
	ms.InsertFramedArea(trapCxVA.PageRoundDown(), trapCxVA.PageRoundDown()+1, vm.PermR|vm.PermW)

	stackBottom := userStackTop - mem.VirtAddr(config.PageSize) // one guard page below
	ms.InsertFramedArea(stackBottom.PageRoundDown()+1, userStackTop.PageRoundDown(), vm.PermR|vm.PermW|vm.PermU)

	return &Thread{
		Tid:             tid,
		Status:          Ready,
		KStackBottom:    kb,
		KStackTop:       kt,
		TrapCxVA:        trapCxVA,
		UserStackBottom: stackBottom,
		UserStackTop:    userStackTop,
		TaskCx:          GotoTrapReturn(0, uint64(kt)),
	}
}

/// TrapContext returns a typed view of this thread's trap-context frame,
/// reinterpreting the owning process's mapped bytes in place.
func (t *Thread) TrapContext() *TrapContext {
	bytes := t.Process.MemSet.FrameBytes(t.TrapCxVA.PageRoundDown())
	return (*TrapContext)(ptrTo(bytes))
}
