// Package proc implements Process (PCB) and Thread (TCB) lifecycle (spec
// §3, §4.10), grounded on original_source/os/src/task's RecycleAllocator,
// id.rs's kernel-stack/trap-context placement, and process.rs's fork/exec
// semantics, re-expressed without the asm context switch the teacher's
// environment depends on (this hosted simulator has no real CPU to trap
// from — see SPEC_FULL's "hosted simulator" glossary entry).
package proc

import "sync"

// RecycleAllocator hands out non-negative ids, reusing freed ones before
// bumping a high-water mark (spec §4.6's FrameAllocator applied to pid/tid
// instead of frames), grounded on original_source's RecycleAllocator.
type RecycleAllocator struct {
	mu       sync.Mutex
	current  int
	recycled []int
}

/// Alloc returns a fresh or recycled id.
func (r *RecycleAllocator) Alloc() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.recycled); n > 0 {
		id := r.recycled[n-1]
		r.recycled = r.recycled[:n-1]
		return id
	}
	id := r.current
	r.current++
	return id
}

// Dealloc returns id to the pool. It panics on a double-free or an id that
// was never allocated, matching the teacher's assert!s in id.rs.
func (r *RecycleAllocator) Dealloc(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id >= r.current {
		panic("proc: deallocating an id never allocated")
	}
	for _, v := range r.recycled {
		if v == id {
			panic("proc: double free of id")
		}
	}
	r.recycled = append(r.recycled, id)
}

var (
	pidAllocator RecycleAllocator
	tidAllocator RecycleAllocator
)

/// AllocPid returns a fresh process id.
func AllocPid() int { return pidAllocator.Alloc() }

/// DeallocPid releases a process id for reuse.
func DeallocPid(pid int) { pidAllocator.Dealloc(pid) }

/// AllocTid returns a fresh thread id, process-wide (teacher allocates tids
/// globally too; a per-process pool is not required by spec §3).
func AllocTid() int { return tidAllocator.Alloc() }

/// DeallocTid releases a thread id for reuse.
func DeallocTid(tid int) { tidAllocator.Dealloc(tid) }
