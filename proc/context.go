package proc

// TaskContext mirrors the callee-saved registers the kernel-side switch
// saves/restores across a context switch (spec §3 Thread "task_cx"),
// grounded on original_source/os/src/task/context.rs's ra/sp/s0-11 layout.
// This hosted simulator never executes the assembly __switch that would
// consume these fields; they exist so Thread's state is bit-exact with the
// design. They are set once at thread creation (GotoTrapReturn) and the
// scheduler neither reads nor updates them on a switch.
type TaskContext struct {
	Ra uint64
	Sp uint64
	S  [12]uint64
}

/// ZeroTaskContext returns an all-zero context (UnInit thread state).
func ZeroTaskContext() TaskContext { return TaskContext{} }

/// GotoTrapReturn seeds a context whose Ra names the (host-side) entry point
/// that would resume at trap_return after a switch, given a kernel stack top.
func GotoTrapReturn(trapReturnAddr, kstackTop uint64) TaskContext {
	return TaskContext{Ra: trapReturnAddr, Sp: kstackTop}
}

// TrapContext is the per-thread register file saved/restored by the
// trampoline on user entry/exit (spec §4.11 "saves the user's registers
// into the per-thread trap-context page"), grounded on
// original_source/os/src/trap/context.rs's TrapContext, extended with the
// kernel-side fields (kernel_satp/kernel_sp/trap_handler) that a
// multi-address-space kernel's version of that struct carries so
// trap_handler can be reached from an arbitrary user address space.
type TrapContext struct {
	X           [32]uint64 /// general-purpose registers x0..x31
	Sepc        uint64     /// user program counter at trap time
	KernelSatp  uint64     /// kernel page-table token
	KernelSp    uint64     /// kernel stack pointer for this thread
	TrapHandler uint64     /// address of trap_handler
}

/// AppInitContext builds the initial TrapContext for a thread about to enter
/// user mode for the first time (spec §4.10 fork/exec/thread_create).
func AppInitContext(entry, userSp, kernelSatp, kernelSp, trapHandler uint64) TrapContext {
	var cx TrapContext
	cx.Sepc = entry
	cx.X[2] = userSp // sp
	cx.KernelSatp = kernelSatp
	cx.KernelSp = kernelSp
	cx.TrapHandler = trapHandler
	return cx
}

/// SetA0 writes the a0 register (x10), used for syscall return values and
/// fork's "child's trap-context a0 is overwritten with 0" rule.
func (cx *TrapContext) SetA0(v uint64) { cx.X[10] = v }

/// SetArgs writes a0/a1, used by exec to pass argc/argv_base.
func (cx *TrapContext) SetArgs(a0, a1 uint64) { cx.X[10] = a0; cx.X[11] = a1 }
