package mem

// PTEFlags mirrors the low 8 bits of an SV39 page table entry (spec §3):
// V, R, W, X, U, G, A, D.
type PTEFlags uint8

const (
	PteV PTEFlags = 1 << 0 /// valid
	PteR PTEFlags = 1 << 1 /// readable
	PteW PTEFlags = 1 << 2 /// writable
	PteX PTEFlags = 1 << 3 /// executable
	PteU PTEFlags = 1 << 4 /// user-accessible
	PteG PTEFlags = 1 << 5 /// global
	PteA PTEFlags = 1 << 6 /// accessed
	PteD PTEFlags = 1 << 7 /// dirty
)

/// PageTableEntry is a 64-bit SV39 PTE: [flags(8) | rsw(2) | ppn(44) | reserved(10)].
type PageTableEntry uint64

const pteRsvdShift = 10

/// MkPTE builds a PTE pointing at ppn with the given flags.
func MkPTE(ppn PhysPageNum, flags PTEFlags) PageTableEntry {
	return PageTableEntry(uint64(ppn)<<pteRsvdShift | uint64(flags))
}

/// PPN extracts the physical page number this entry names.
func (e PageTableEntry) PPN() PhysPageNum {
	return PhysPageNum((uint64(e) >> pteRsvdShift) & ((1 << PpnWidth) - 1))
}

/// Flags extracts the flag byte of this entry.
func (e PageTableEntry) Flags() PTEFlags { return PTEFlags(e) }

/// Valid reports whether the V bit is set.
func (e PageTableEntry) Valid() bool { return e.Flags()&PteV != 0 }

/// Readable reports whether the R bit is set.
func (e PageTableEntry) Readable() bool { return e.Flags()&PteR != 0 }

/// Writable reports whether the W bit is set.
func (e PageTableEntry) Writable() bool { return e.Flags()&PteW != 0 }

/// Executable reports whether the X bit is set.
func (e PageTableEntry) Executable() bool { return e.Flags()&PteX != 0 }

/// IsLeaf reports whether any of R/W/X is set — a PTE is a leaf iff so
/// (spec §3).
func (e PageTableEntry) IsLeaf() bool {
	return e.Flags()&(PteR|PteW|PteX) != 0
}
