package trap

import (
	"rvkernel/fd"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/vm"
)

// sysMmap implements the mmap policy of spec §6/§4.9: MAP_FIXED requires a
// 4 KiB-aligned, non-overlapping start; prot must be nonzero and fit in its
// three low bits; MAP_FILE requires a regular-file fd whose permissions
// cover prot and whose size covers [offset, offset+len). Anonymous ranges
// become a zero-filled MapArea; file ranges become (or extend) a
// vm.FileMapping, eagerly populated in place of a real page-fault path
// (spec §4.9 "handle_page_fault" — there is no trap loop here to re-drive a
// lazy fault from).
func (k *Kernel) sysMmap(p *proc.Process, start mem.VirtAddr, length int, prot uint64, flags MMapFlags, fdno, offset int) int64 {
	if length <= 0 || prot == 0 || prot&^(ProtR|ProtW|ProtX) != 0 {
		return -1
	}
	if uint64(start)+uint64(length) < uint64(start) {
		return -1
	}

	var reqStart mem.VirtAddr
	if flags&MapFixed != 0 {
		if start == 0 || !start.Aligned() {
			return -1
		}
		reqStart = start
	} else {
		reqStart = p.ReserveMmapVA(length)
	}
	startVPN := reqStart.PageRoundDown()
	endVPN := (reqStart + mem.VirtAddr(length)).PageRoundUp()
	end := endVPN.ToAddr()
	if p.Overlaps(reqStart, end) {
		return -1
	}

	perm := vm.PermU
	if prot&ProtR != 0 {
		perm |= vm.PermR
	}
	if prot&ProtW != 0 {
		perm |= vm.PermW
	}
	if prot&ProtX != 0 {
		perm |= vm.PermX
	}

	if flags&MapFile != 0 {
		slot, ok := p.Fds.Get(fdno)
		if !ok {
			return -1
		}
		osi, ok := slot.File.(*fd.OSInode)
		if !ok || osi.Inode().IsDir() {
			return -1
		}
		if prot&ProtR != 0 && slot.Perms&fd.FD_READ == 0 {
			return -1
		}
		if prot&ProtW != 0 && slot.Perms&fd.FD_WRITE == 0 {
			return -1
		}
		ino := osi.Inode()
		if offset < 0 || offset+length > ino.Size() {
			return -1
		}

		inodeID := uint64(ino.InodeID)
		fm, ok := p.Mappings[inodeID]
		if !ok {
			fm = vm.NewFileMapping(inodeID, ino)
			p.Mappings[inodeID] = fm
		}
		fm.AddRange(vm.MapRange{StartVA: reqStart, EndVA: end, OffsetInFile: offset})

		alloc := proc.Allocator()
		for vpn := startVPN; vpn < endVPN; vpn++ {
			ppn, _, err := fm.Map(alloc, vpn.ToAddr())
			if err != 0 {
				return -1
			}
			p.MemSet.PT.Map(vpn, ppn, mem.PTEFlags(perm)|mem.PteV)
		}
		p.AddReservation(reqStart, end, true, inodeID, offset)
		return int64(reqStart)
	}

	p.MemSet.InsertFramedArea(startVPN, endVPN, perm)
	p.AddReservation(reqStart, end, false, 0, 0)
	return int64(reqStart)
}

// sysMunmap requires start/len to match an existing reservation's exact
// page-rounded window (spec §6 "munmap(start, len)"; scenario 5's
// `munmap(A+1, 4095)` rejection is exactly this rule). File-backed
// reservations sync dirty pages back before releasing their frames.
func (k *Kernel) sysMunmap(p *proc.Process, start mem.VirtAddr, length int) int64 {
	if !start.Aligned() || length <= 0 {
		return -1
	}
	endVPN := (start + mem.VirtAddr(length)).PageRoundUp()
	end := endVPN.ToAddr()

	r, ok := p.FindReservation(start, end)
	if !ok {
		return -1
	}

	if r.File {
		fm := p.Mappings[r.InodeID]
		fm.Sync(p.MemSet.PT)
		fm.Unmap(p.MemSet.PT, start.PageRoundDown(), endVPN)
		fm.RemoveRange(vm.MapRange{StartVA: r.Start, EndVA: r.End, OffsetInFile: r.Offset})
		if fm.Empty() {
			delete(p.Mappings, r.InodeID)
		}
		return 0
	}

	if area, ok := p.MemSet.AreaFor(start.PageRoundDown()); ok {
		p.MemSet.RemoveArea(area)
	}
	return 0
}
