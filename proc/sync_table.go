package proc

import "golang.org/x/sync/semaphore"

// SyncTable is a process's sparse table of synchronization primitives (spec
// §3 Process (PCB) "mutex/semaphore/condvar tables"). The spec places the
// mechanics of mutex/semaphore/condvar operations out of scope (§1); only the
// semaphore table is given a concrete backing here, using
// golang.org/x/sync/semaphore's weighted semaphore instead of a hand-rolled
// counting semaphore. Slot reuse (first nil slot wins, else append) is
// grounded on original_source's sys_semaphore_create.
type SyncTable struct {
	semaphores []*semaphore.Weighted
}

// NewSyncTable returns an empty sync table.
func NewSyncTable() *SyncTable {
	return &SyncTable{}
}

// CreateSemaphore installs a new weighted semaphore with resCount initial
// permits and returns its table id.
func (st *SyncTable) CreateSemaphore(resCount int64) int {
	sem := semaphore.NewWeighted(resCount)
	for i, slot := range st.semaphores {
		if slot == nil {
			st.semaphores[i] = sem
			return i
		}
	}
	st.semaphores = append(st.semaphores, sem)
	return len(st.semaphores) - 1
}

// Semaphore returns the semaphore at id, or nil if id is out of range or the
// slot was freed.
func (st *SyncTable) Semaphore(id int) *semaphore.Weighted {
	if id < 0 || id >= len(st.semaphores) {
		return nil
	}
	return st.semaphores[id]
}

// RemoveSemaphore frees slot id for reuse by a later CreateSemaphore.
func (st *SyncTable) RemoveSemaphore(id int) {
	if id >= 0 && id < len(st.semaphores) {
		st.semaphores[id] = nil
	}
}
