package vm

import (
	"rvkernel/defs"
	"rvkernel/mem"
)

// FileBackend is the subset of fs.Inode's behavior FileMapping needs. It is
// expressed as an interface here (rather than importing package fs) so vm
// stays a leaf of fs — fs.Inode satisfies this interface structurally,
// mirroring the teacher's capability-interface style (spec §9 "Polymorphism
// over files").
type FileBackend interface {
	ReadAt(offset int, buf []byte) (int, defs.Err_t)
	WriteAt(offset int, buf []byte) (int, defs.Err_t)
	Size() int
}

/// MapRange describes one mmap call folded into a FileMapping (spec §4.9).
type MapRange struct {
	StartVA      mem.VirtAddr
	EndVA        mem.VirtAddr
	OffsetInFile int
}

type filePage struct {
	vpn   mem.VirtPageNum
	frame *mem.FrameTracker
}

// FileMapping aggregates every mmap of the same file (by inode id) within
// one process. It pages file contents into frames it owns and writes every
// still-mapped page back on sync/munmap/exit; it keeps no per-page dirty
// state (spec §4.9).
type FileMapping struct {
	InodeID uint64
	file    FileBackend
	ranges  []MapRange
	pages   map[int]*filePage // offset_in_file -> (vpn, frame)
}

/// NewFileMapping creates an (initially empty) aggregator for one inode.
func NewFileMapping(inodeID uint64, file FileBackend) *FileMapping {
	return &FileMapping{InodeID: inodeID, file: file, pages: make(map[int]*filePage)}
}

/// AddRange records one more mmap call against the same inode.
func (fm *FileMapping) AddRange(r MapRange) { fm.ranges = append(fm.ranges, r) }

/// RemoveRange drops a previously added range (munmap). It does not touch
/// pages — callers sync and unmap those separately so partial ranges that
/// still share a page with another range stay resident.
func (fm *FileMapping) RemoveRange(r MapRange) {
	for i, rr := range fm.ranges {
		if rr == r {
			fm.ranges = append(fm.ranges[:i], fm.ranges[i+1:]...)
			return
		}
	}
}

func (fm *FileMapping) rangeFor(va mem.VirtAddr) (*MapRange, bool) {
	for i := range fm.ranges {
		r := &fm.ranges[i]
		if va >= r.StartVA && va < r.EndVA {
			return r, true
		}
	}
	return nil, false
}

// Map resolves a page fault inside one of this mapping's reserved ranges.
// It returns the physical page now backing faultVA, whether that page was
// already resident (alreadyShared), and an error if the range vanished or a
// fresh page could not be read/allocated (spec §4.9 Map).
func (fm *FileMapping) Map(alloc *mem.FrameAllocator, faultVA mem.VirtAddr) (mem.PhysPageNum, bool, defs.Err_t) {
	r, ok := fm.rangeFor(faultVA)
	if !ok {
		return 0, false, -defs.EFAULT
	}
	vpn := faultVA.PageRoundDown()
	pageStart := vpn.ToAddr()
	offset := r.OffsetInFile + int(pageStart-r.StartVA.PageRoundDown().ToAddr())

	if p, ok := fm.pages[offset]; ok {
		return p.frame.PPN(), true, 0
	}
	f, ok := alloc.Alloc()
	if !ok {
		return 0, false, -defs.ENOMEM
	}
	n, err := fm.file.ReadAt(offset, f.Bytes()[:mem.PageSize])
	if err != 0 && n == 0 {
		f.Dealloc()
		return 0, false, err
	}
	fm.pages[offset] = &filePage{vpn: vpn, frame: f}
	return f.PPN(), false, 0
}

// Sync writes back every resident page whose offset lies inside the file's
// current size (spec §4.9 sync). This hosted simulator never sets a
// hardware dirty bit on a write (there is no real MMU trapping stores), so
// every still-mapped page is written back unconditionally rather than
// gated on pt's D bit; for a page actually clean since its last sync this
// is a redundant but harmless rewrite of identical bytes.
func (fm *FileMapping) Sync(pt *mem.PageTable) defs.Err_t {
	size := fm.file.Size()
	for offset, p := range fm.pages {
		pte, ok := pt.Translate(p.vpn)
		if !ok || !pte.Valid() {
			continue
		}
		if offset >= size {
			continue
		}
		n := size - offset
		if n > mem.PageSize {
			n = mem.PageSize
		}
		if _, err := fm.file.WriteAt(offset, p.frame.Bytes()[:n]); err != 0 {
			return err
		}
	}
	return 0
}

/// Empty reports whether this mapping no longer aggregates any range, so the
/// owning process can drop it entirely.
func (fm *FileMapping) Empty() bool { return len(fm.ranges) == 0 }

// CopyToUser duplicates every resident frame of this mapping into childPT,
// with no copy-on-write (fork duplicates pages per spec §4.10), returning an
// independent FileMapping over the same ranges and inode.
func (fm *FileMapping) CopyToUser(childPT *mem.PageTable, alloc *mem.FrameAllocator, perm MapPermission) *FileMapping {
	child := NewFileMapping(fm.InodeID, fm.file)
	child.ranges = append(child.ranges, fm.ranges...)
	for offset, p := range fm.pages {
		nf, ok := alloc.Alloc()
		if !ok {
			panic("vm: out of frames copying file mapping to child")
		}
		copy(nf.Bytes(), p.frame.Bytes())
		childPT.Map(p.vpn, nf.PPN(), mem.PTEFlags(perm)|mem.PteV)
		child.pages[offset] = &filePage{vpn: p.vpn, frame: nf}
	}
	return child
}

/// Unmap drops every resident page whose VPN falls in [start,end) (used
/// when munmap removes the last range referencing those pages) and removes
/// its PTE from pt.
func (fm *FileMapping) Unmap(pt *mem.PageTable, start, end mem.VirtPageNum) {
	for offset, p := range fm.pages {
		if p.vpn >= start && p.vpn < end {
			if pte, ok := pt.Translate(p.vpn); ok && pte.Valid() {
				pt.Unmap(p.vpn)
			}
			p.frame.Dealloc()
			delete(fm.pages, offset)
		}
	}
}
