package mem

import "unsafe"

// PageTable is a three-level SV39 radix tree (spec §4.7). It owns its root
// frame plus every inner-node frame it ever allocates; leaf PTEs are
// non-owning indices into frames owned elsewhere (a MapArea, a FileMapping,
// or the kernel), breaking the PTE-owns-frame cycle the teacher's own
// PageTable owns-inner-frames-only design avoids (spec §9 "Recursive
// ownership").
type PageTable struct {
	root   PhysPageNum
	inner  []*FrameTracker // owned inner + root frames, in allocation order
	alloc  *FrameAllocator
}

func pteNode(phys *PhysicalMemory, ppn PhysPageNum) *[512]PageTableEntry {
	b := phys.Bytes(ppn)
	return (*[512]PageTableEntry)(unsafe.Pointer(&b[0]))
}

/// NewPageTable allocates a fresh root frame and page table over alloc.
func NewPageTable(alloc *FrameAllocator) (*PageTable, bool) {
	root, ok := alloc.Alloc()
	if !ok {
		return nil, false
	}
	return &PageTable{root: root.PPN(), inner: []*FrameTracker{root}, alloc: alloc}, true
}

/// Root returns the page table's root physical page number.
func (pt *PageTable) Root() PhysPageNum { return pt.root }

// walk descends the three SV39 levels for vpn. When create is true, a
// missing non-leaf PTE triggers allocation of an inner frame and a
// V-only PTE pointing at it (spec §4.7). Returns the leaf PTE slot.
func (pt *PageTable) walk(vpn VirtPageNum, create bool) *PageTableEntry {
	idx := vpn.Indices()
	ppn := pt.root
	for level := 0; level < 3; level++ {
		node := pteNode(pt.alloc.phys, ppn)
		pte := &node[idx[level]]
		if level == 2 {
			return pte
		}
		if !pte.Valid() {
			if !create {
				return nil
			}
			frame, ok := pt.alloc.Alloc()
			if !ok {
				return nil
			}
			pt.inner = append(pt.inner, frame)
			*pte = MkPTE(frame.PPN(), PteV)
		}
		ppn = pte.PPN()
	}
	panic("unreachable")
}

/// FindPTE returns the last-level entry for vpn without creating inner
/// nodes. ok is false if a non-leaf node on the path is missing.
func (pt *PageTable) FindPTE(vpn VirtPageNum) (*PageTableEntry, bool) {
	pte := pt.walk(vpn, false)
	return pte, pte != nil
}

/// FindPTECreate is like FindPTE but allocates missing inner frames.
func (pt *PageTable) FindPTECreate(vpn VirtPageNum) (*PageTableEntry, bool) {
	pte := pt.walk(vpn, true)
	return pte, pte != nil
}

/// Map installs a leaf PTE for vpn->ppn with the given leaf flags (which
/// must include at least one of R/W/X so the entry is recognized as a
/// leaf). Asserts the PTE was previously invalid — a kernel bug otherwise.
func (pt *PageTable) Map(vpn VirtPageNum, ppn PhysPageNum, flags PTEFlags) {
	pte, ok := pt.FindPTECreate(vpn)
	if !ok {
		panic("mem: page table out of frames while mapping")
	}
	if pte.Valid() {
		panic("mem: remapping an already-valid vpn")
	}
	*pte = MkPTE(ppn, flags|PteV)
}

/// Unmap clears the leaf PTE for vpn. Asserts it was valid.
func (pt *PageTable) Unmap(vpn VirtPageNum) {
	pte, ok := pt.FindPTE(vpn)
	if !ok || !pte.Valid() {
		panic("mem: unmapping an unmapped vpn")
	}
	*pte = 0
}

/// Translate returns the leaf PTE for vpn (which may be invalid) or ok=false
/// if a non-leaf node on the path is missing entirely.
func (pt *PageTable) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	pte, ok := pt.FindPTE(vpn)
	if !ok {
		return 0, false
	}
	return *pte, true
}

/// TranslateVA combines the translated PPN with the address's page offset.
func (pt *PageTable) TranslateVA(va VirtAddr) (PhysAddr, bool) {
	pte, ok := pt.Translate(va.PageRoundDown())
	if !ok || !pte.Valid() {
		return 0, false
	}
	base := pte.PPN().ToAddr()
	return PhysAddr(uint64(base) | va.Offset()), true
}

/// SatpMode is SV39's MODE field value in the token/satp register.
const SatpMode = 8

/// Token is the value the hosted simulator would write to satp to activate
/// this page table: MODE=8 (SV39) in the high 4 bits, root PPN in the low
/// 44 bits (spec §4.7).
func (pt *PageTable) Token() uint64 {
	return uint64(SatpMode)<<60 | uint64(pt.root)
}

/// Destroy releases every inner/root frame this page table owns. Leaf
/// frames are never touched here — they are owned by whoever mapped them
/// (a MapArea or FileMapping), per spec §9.
func (pt *PageTable) Destroy() {
	for _, f := range pt.inner {
		f.Dealloc()
	}
	pt.inner = nil
}
