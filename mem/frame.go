package mem

import "sync"

// FrameAllocator is a stack allocator over physical frame numbers in
// [start, end), with a recycled-frame stack (spec §4.6).
//
// Invariants (P2): recycled contains only ids in [start, current); no id is
// ever in recycled twice; every id returned by Alloc is either past current
// or was just popped from recycled.
type FrameAllocator struct {
	mu       sync.Mutex
	start    PhysPageNum
	current  PhysPageNum
	end      PhysPageNum
	recycled []PhysPageNum
	phys     *PhysicalMemory
}

/// NewFrameAllocator builds an allocator over the full range the given
/// arena backs.
func NewFrameAllocator(phys *PhysicalMemory) *FrameAllocator {
	return &FrameAllocator{
		start:   phys.Base(),
		current: phys.Base(),
		end:     phys.End(),
		phys:    phys,
	}
}

// FrameTracker owns exactly one PhysPageNum. Dealloc releases it back to the
// allocator it came from and zeroes its own metadata; it must never be used
// after Dealloc, and must never be copied by value in a way that lets two
// owners call Dealloc on the same frame (callers move it, they don't clone
// it — the Go type system cannot enforce this, so misuse panics at Dealloc
// time via the double-free guard below).
type FrameTracker struct {
	ppn   PhysPageNum
	alloc *FrameAllocator
	freed bool
}

/// PPN reports the physical page number this tracker owns.
func (f *FrameTracker) PPN() PhysPageNum {
	if f.freed {
		panic("mem: use of freed FrameTracker")
	}
	return f.ppn
}

/// Bytes returns the page-sized slice backing this frame.
func (f *FrameTracker) Bytes() []byte {
	return f.alloc.phys.Bytes(f.PPN())
}

/// Dealloc returns the frame to its allocator. Double-dealloc panics: a
/// kernel bug, not a user error (spec §7).
func (f *FrameTracker) Dealloc() {
	if f.freed {
		panic("mem: double free of FrameTracker")
	}
	f.freed = true
	f.alloc.dealloc(f.ppn)
}

/// Alloc pops a zeroed frame, preferring the recycled stack, else bumping
/// current. Returns ok=false when the allocator is exhausted.
func (a *FrameAllocator) Alloc() (*FrameTracker, bool) {
	a.mu.Lock()
	var ppn PhysPageNum
	if n := len(a.recycled); n > 0 {
		ppn = a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
	} else if a.current < a.end {
		ppn = a.current
		a.current++
	} else {
		a.mu.Unlock()
		return nil, false
	}
	a.mu.Unlock()
	a.phys.Zero(ppn)
	return &FrameTracker{ppn: ppn, alloc: a}, true
}

func (a *FrameAllocator) dealloc(ppn PhysPageNum) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ppn >= a.current || ppn < a.start {
		panic("mem: dealloc of frame never allocated")
	}
	for _, r := range a.recycled {
		if r == ppn {
			panic("mem: double free of frame")
		}
	}
	a.recycled = append(a.recycled, ppn)
}

/// Bytes returns the page-sized slice backing ppn, regardless of which
/// owner (a MapArea, a FileMapping, or the page table itself) holds the
/// FrameTracker for it. Used where only a PPN from a translated PTE is at
/// hand, not the FrameTracker.
func (a *FrameAllocator) Bytes(ppn PhysPageNum) []byte {
	return a.phys.Bytes(ppn)
}

/// Stats reports (used, free) frame counts for diagnostics.
func (a *FrameAllocator) Stats() (used, free int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := int(a.end - a.start)
	u := int(a.current-a.start) - len(a.recycled)
	return u, total - u
}
