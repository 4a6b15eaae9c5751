// Package vm implements address spaces: MapArea/MapType/MemorySet and
// demand-paged FileMapping, grounded on the teacher's vm/as.go (Vm_t,
// Page_insert/Page_remove, Sys_pgfault) but generalized from biscuit's
// x86-64/COW/refcounted design down to this spec's SV39, single-owner,
// fork-duplicates-pages model (COW and SMP are explicit Non-goals here).
package vm

import (
	"rvkernel/defs"
	"rvkernel/mem"
)

/// MapPermission is the R/W/X/U subset of mem.PTEFlags a MapArea grants.
type MapPermission mem.PTEFlags

const (
	PermR MapPermission = MapPermission(mem.PteR)
	PermW MapPermission = MapPermission(mem.PteW)
	PermX MapPermission = MapPermission(mem.PteX)
	PermU MapPermission = MapPermission(mem.PteU)
)

/// MapType is the closed sum of ways a MapArea can back its pages (spec §3,
/// §9 "Variant handling of map types" — a closed sum in place of virtual
/// dispatch).
type MapType int

const (
	Identical MapType = iota /// PPN == VPN (kernel direct map)
	Framed                   /// owns a FrameTracker per VPN
	Linear                   /// PPN offset from VPN by a fixed signed delta (MMIO)
)

// MapArea is a closed-open VPN range [Start, End) sharing one MapType and
// MapPermission. For Framed areas it owns a VPN->FrameTracker mapping; all
// reachable frames of a MapArea belong to it alone (spec §3).
type MapArea struct {
	Start, End mem.VirtPageNum
	Type       MapType
	Perm       MapPermission
	LinearOff  int64 // only meaningful when Type == Linear

	frames map[mem.VirtPageNum]*mem.FrameTracker // only when Type == Framed
}

/// NewMapArea builds a MapArea over the page range [start, end).
func NewMapArea(start, end mem.VirtPageNum, t MapType, perm MapPermission, linearOff int64) *MapArea {
	if end < start {
		panic("vm: empty or inverted map area")
	}
	a := &MapArea{Start: start, End: end, Type: t, Perm: perm, LinearOff: linearOff}
	if t == Framed {
		a.frames = make(map[mem.VirtPageNum]*mem.FrameTracker)
	}
	return a
}

/// Len reports the number of pages spanned by the area.
func (a *MapArea) Len() int { return int(a.End.Sub(a.Start)) }

/// Contains reports whether vpn lies within [Start, End).
func (a *MapArea) Contains(vpn mem.VirtPageNum) bool {
	return vpn >= a.Start && vpn < a.End
}

func (a *MapArea) leafFlags() mem.PTEFlags {
	return mem.PTEFlags(a.Perm) | mem.PteV
}

// ppnFor resolves the physical page backing vpn for Identical/Linear areas,
// allocating (and recording ownership of) a fresh frame for Framed areas.
func (a *MapArea) ppnFor(alloc *mem.FrameAllocator, vpn mem.VirtPageNum) (mem.PhysPageNum, bool) {
	switch a.Type {
	case Identical:
		return mem.PhysPageNum(vpn), true
	case Linear:
		return mem.PhysPageNum(int64(vpn) + a.LinearOff), true
	case Framed:
		if f, ok := a.frames[vpn]; ok {
			return f.PPN(), true
		}
		f, ok := alloc.Alloc()
		if !ok {
			return 0, false
		}
		a.frames[vpn] = f
		return f.PPN(), true
	default:
		panic("vm: unknown map type")
	}
}

/// MapOne installs vpn's leaf PTE in pt, allocating a frame for Framed areas.
func (a *MapArea) MapOne(pt *mem.PageTable, alloc *mem.FrameAllocator, vpn mem.VirtPageNum) bool {
	ppn, ok := a.ppnFor(alloc, vpn)
	if !ok {
		return false
	}
	pt.Map(vpn, ppn, a.leafFlags())
	return true
}

/// MapAll installs every VPN in the area.
func (a *MapArea) MapAll(pt *mem.PageTable, alloc *mem.FrameAllocator) bool {
	for vpn := a.Start; vpn < a.End; vpn++ {
		if !a.MapOne(pt, alloc, vpn) {
			return false
		}
	}
	return true
}

/// UnmapOne removes vpn's leaf PTE and, for Framed areas, releases the
/// frame it owned.
func (a *MapArea) UnmapOne(pt *mem.PageTable, vpn mem.VirtPageNum) {
	if a.Type == Framed {
		if f, ok := a.frames[vpn]; ok {
			f.Dealloc()
			delete(a.frames, vpn)
		}
	}
	pt.Unmap(vpn)
}

/// UnmapAll removes every VPN in the area from pt and releases owned frames.
func (a *MapArea) UnmapAll(pt *mem.PageTable) {
	for vpn := a.Start; vpn < a.End; vpn++ {
		a.UnmapOne(pt, vpn)
	}
}

/// CopyData copies data into the area page-by-page, starting at Start,
/// after the area has already been mapped (used when loading ELF segments,
/// spec §4.8 push(area, data?)).
func (a *MapArea) CopyData(data []byte) defs.Err_t {
	if a.Type != Framed {
		panic("vm: CopyData on a non-framed area")
	}
	vpn := a.Start
	off := 0
	for off < len(data) {
		f, ok := a.frames[vpn]
		if !ok {
			panic("vm: CopyData before area was mapped")
		}
		n := len(data) - off
		if n > mem.PageSize {
			n = mem.PageSize
		}
		copy(f.Bytes()[:n], data[off:off+n])
		off += n
		vpn++
	}
	return 0
}

/// Clone deep-copies this area's page contents into a fresh MapArea with
/// independently owned frames (used by MemorySet clone / fork, spec §4.8
/// from_existed_user: "no page is shared").
func (a *MapArea) Clone(alloc *mem.FrameAllocator) *MapArea {
	na := NewMapArea(a.Start, a.End, a.Type, a.Perm, a.LinearOff)
	if a.Type != Framed {
		return na
	}
	for vpn, f := range a.frames {
		nf, ok := alloc.Alloc()
		if !ok {
			panic("vm: out of frames while cloning address space")
		}
		copy(nf.Bytes(), f.Bytes())
		na.frames[vpn] = nf
	}
	return na
}

/// FrameFor returns the frame a Framed area owns for vpn, if any.
func (a *MapArea) FrameFor(vpn mem.VirtPageNum) (*mem.FrameTracker, bool) {
	f, ok := a.frames[vpn]
	return f, ok
}
