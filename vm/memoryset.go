package vm

import (
	"debug/elf"
	"bytes"

	"rvkernel/mem"
)

// TRAMPOLINE is the fixed virtual address, identical in every address
// space, holding the trap entry/exit code (spec §4.8, GLOSSARY). SV39's PTE
// only inspects the low 39 bits of a VA, so this "VMAX − PAGE_SIZE + 1"
// address (the teaching kernel convention of reserving the very top of the
// 64-bit representable address space) lands on the same SV39 page-table
// slot a 39-bit-clamped top address would.
const TRAMPOLINE mem.VirtAddr = ^mem.VirtAddr(0) - mem.VirtAddr(mem.PageSize) + 1

/// TrapContextVA returns the fixed high virtual address of thread tid's
/// trap-context page, one page below the previous thread's, walking down
/// from directly beneath the trampoline.
func TrapContextVA(tid int) mem.VirtAddr {
	return TRAMPOLINE - mem.VirtAddr(uint64(tid+1)*uint64(mem.PageSize))
}

// MemorySet is an address space: a PageTable plus the list of MapAreas that
// own every reachable physical frame of this address space (spec §3). The
// kernel's own MemorySet uses Identical areas for .text/.rodata/.data/.bss
// and the frame-allocator range, and a Linear area per MMIO window; user
// MemorySets use Framed areas almost everywhere.
type MemorySet struct {
	PT    *mem.PageTable
	Areas []*MapArea
	alloc *mem.FrameAllocator
}

func newEmpty(alloc *mem.FrameAllocator) *MemorySet {
	pt, ok := mem.NewPageTable(alloc)
	if !ok {
		panic("vm: out of frames creating address space")
	}
	return &MemorySet{PT: pt, alloc: alloc}
}

// MMIOWindow names a device register range the kernel maps RW into its own
// address space (spec §4.8 "each MMIO window"). In the hosted simulator
// these windows back onto ordinary simulated memory rather than real
// devices, so they are mapped Linear with a zero VPN->PPN offset — kept
// distinct from the Identical kernel text/data areas so a reader can tell
// at a glance which areas exist only because real hardware would put
// registers there.
type MMIOWindow struct {
	Start, End mem.VirtPageNum
}

/// NewKernel builds the kernel's identity-mapped address space: .text (RX),
/// .rodata (R), .data+.bss (RW), [ekernelPPN, endPPN) (RW, for the frame
/// allocator), each MMIO window (RW), and the trampoline page (RX, no U).
func NewKernel(alloc *mem.FrameAllocator, textStart, textEnd, rodataStart, rodataEnd,
	dataStart, dataEnd, ekernel, memoryEnd mem.VirtPageNum, mmioWindows []MMIOWindow,
	trampolinePPN mem.PhysPageNum) *MemorySet {
	ms := newEmpty(alloc)
	identical := func(s, e mem.VirtPageNum, perm MapPermission) {
		if s >= e {
			return
		}
		a := NewMapArea(s, e, Identical, perm, 0)
		if !a.MapAll(ms.PT, alloc) {
			panic("vm: out of frames building kernel space")
		}
		ms.Areas = append(ms.Areas, a)
	}
	identical(textStart, textEnd, PermR|PermX)
	identical(rodataStart, rodataEnd, PermR)
	identical(dataStart, dataEnd, PermR|PermW)
	identical(ekernel, memoryEnd, PermR|PermW)
	for _, w := range mmioWindows {
		if w.Start >= w.End {
			continue
		}
		a := NewMapArea(w.Start, w.End, Linear, PermR|PermW, 0)
		if !a.MapAll(ms.PT, alloc) {
			panic("vm: out of frames mapping mmio window")
		}
		ms.Areas = append(ms.Areas, a)
	}
	ms.mapTrampoline(trampolinePPN)
	return ms
}

func (ms *MemorySet) mapTrampoline(trampolinePPN mem.PhysPageNum) {
	vpn := TRAMPOLINE.PageRoundDown()
	ms.PT.Map(vpn, trampolinePPN, mem.PteR|mem.PteX)
}

/// PushArea installs area into this MemorySet's page table, optionally
/// copying data into the newly mapped frames page-by-page (spec §4.8 push).
func (ms *MemorySet) PushArea(area *MapArea, data []byte) {
	if !area.MapAll(ms.PT, ms.alloc) {
		panic("vm: out of frames pushing map area")
	}
	if data != nil {
		if err := area.CopyData(data); err != 0 {
			panic("vm: CopyData failed")
		}
	}
	ms.Areas = append(ms.Areas, area)
}

/// InsertFramedArea is a convenience wrapper for the common case of adding a
/// zero-filled framed area (used for trap-context pages and user stacks).
func (ms *MemorySet) InsertFramedArea(start, end mem.VirtPageNum, perm MapPermission) *MapArea {
	area := NewMapArea(start, end, Framed, perm, 0)
	ms.PushArea(area, nil)
	return area
}

/// RemoveArea unmaps and frees every frame an area owns and drops it from
/// the area list (spec §4.3's recycle_data_pages equivalent).
func (ms *MemorySet) RemoveArea(area *MapArea) {
	area.UnmapAll(ms.PT)
	for i, a := range ms.Areas {
		if a == area {
			ms.Areas = append(ms.Areas[:i], ms.Areas[i+1:]...)
			return
		}
	}
}

/// AreaFor returns the MapArea containing vpn, if any.
func (ms *MemorySet) AreaFor(vpn mem.VirtPageNum) (*MapArea, bool) {
	for _, a := range ms.Areas {
		if a.Contains(vpn) {
			return a, true
		}
	}
	return nil, false
}

/// Activate returns the token that would be written to satp to switch the
/// CPU's address-translation register to this address space (spec §4.8).
func (ms *MemorySet) Activate() uint64 { return ms.PT.Token() }

/// FromElf parses an ELF image, maps every PT_LOAD segment as a framed,
/// user-accessible area with permissions derived from p_flags, copies file
/// bytes in, and maps a guard page plus a user stack immediately above the
/// highest loaded segment (spec §4.8). Returns the MemorySet, the user
/// stack's base address, and the entry point.
func FromElf(alloc *mem.FrameAllocator, trampolinePPN mem.PhysPageNum, elfBytes []byte, userStackSize int) (*MemorySet, mem.VirtAddr, uint64) {
	f, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		panic("vm: invalid elf: " + err.Error())
	}
	ms := newEmpty(alloc)
	ms.mapTrampoline(trampolinePPN)

	var maxEnd mem.VirtPageNum
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		start := mem.VirtAddr(ph.Vaddr).PageRoundDown()
		end := mem.VirtAddr(ph.Vaddr + ph.Memsz).PageRoundUp()
		perm := PermU
		if ph.Flags&elf.PF_R != 0 {
			perm |= PermR
		}
		if ph.Flags&elf.PF_W != 0 {
			perm |= PermW
		}
		if ph.Flags&elf.PF_X != 0 {
			perm |= PermX
		}
		area := NewMapArea(start, end, Framed, perm, 0)
		data := make([]byte, ph.Filesz)
		sr := ph.Open()
		if _, err := sr.Read(data); err != nil && ph.Filesz > 0 {
			panic("vm: reading PT_LOAD segment: " + err.Error())
		}
		// segments may not start page-aligned; CopyData writes from the
		// area's first page, so pad the copy with the leading in-page offset.
		pad := int(mem.VirtAddr(ph.Vaddr).Offset())
		padded := make([]byte, pad+len(data))
		copy(padded[pad:], data)
		ms.PushArea(area, padded)
		if end > maxEnd {
			maxEnd = end
		}
	}

	guard := maxEnd
	ustackBottom := guard.Add(1)
	ustackTop := ustackBottom.Add(userStackSize / mem.PageSize)
	ms.InsertFramedArea(ustackBottom, ustackTop, PermR|PermW|PermU)

	return ms, ustackBottom.ToAddr(), f.Entry
}

/// CloneUser deep-copies every MapArea of parent into a fresh MemorySet with
/// independently owned frames (spec §4.8 from_existed_user, used by fork).
/// Post-condition: no page is shared between parent and child.
func CloneUser(parent *MemorySet, trampolinePPN mem.PhysPageNum) *MemorySet {
	ms := newEmpty(parent.alloc)
	ms.mapTrampoline(trampolinePPN)
	for _, a := range parent.Areas {
		na := a.Clone(ms.alloc) // copies page contents into freshly owned frames
		if !na.MapAll(ms.PT, ms.alloc) {
			panic("vm: out of frames cloning address space")
		}
		ms.Areas = append(ms.Areas, na)
	}
	return ms
}

/// FrameBytes returns the backing bytes of the framed page at vpn, e.g. so
/// the trap dispatcher can read/write a thread's trap-context page.
func (ms *MemorySet) FrameBytes(vpn mem.VirtPageNum) []byte {
	area, ok := ms.AreaFor(vpn)
	if !ok {
		panic("vm: FrameBytes of unmapped vpn")
	}
	f, ok := area.FrameFor(vpn)
	if !ok {
		panic("vm: FrameBytes of non-framed vpn")
	}
	return f.Bytes()
}

// TranslateBytes returns the backing bytes of whatever frame vpn's leaf PTE
// currently points at, whether that frame is owned by a MapArea or by a
// FileMapping's own page table (spec §4.9 mmap — file-backed pages are
// installed into pt but never registered as a MapArea). Callers that already
// know vpn belongs to a plain MapArea should prefer FrameBytes, which also
// catches the "area exists but frame missing" programmer error; this method
// is for the trap dispatcher's generic "read/write user memory at VA" path,
// which doesn't know or care which owner is behind the PTE.
func (ms *MemorySet) TranslateBytes(vpn mem.VirtPageNum) ([]byte, bool) {
	pte, ok := ms.PT.Translate(vpn)
	if !ok || !pte.Valid() {
		return nil, false
	}
	return ms.alloc.Bytes(pte.PPN()), true
}

/// Destroy releases every area's frames and the page table's own inner
/// frames (used at process exit).
func (ms *MemorySet) Destroy() {
	for _, a := range ms.Areas {
		a.UnmapAll(ms.PT)
	}
	ms.Areas = nil
	ms.PT.Destroy()
}
