package mem

import "testing"

func TestPageTableMapTranslate(t *testing.T) {
	phys := NewPhysicalMemory(0, 64)
	alloc := NewFrameAllocator(phys)
	pt, ok := NewPageTable(alloc)
	if !ok {
		t.Fatal("NewPageTable failed")
	}
	data, _ := alloc.Alloc()
	vpn := VirtPageNum(0x12345)
	pt.Map(vpn, data.PPN(), PteR|PteW|PteU)

	pte, ok := pt.Translate(vpn)
	if !ok || !pte.Valid() {
		t.Fatal("expected valid translation")
	}
	if pte.PPN() != data.PPN() {
		t.Fatalf("ppn mismatch: got %v want %v", pte.PPN(), data.PPN())
	}
	if !pte.IsLeaf() {
		t.Fatal("expected leaf PTE (R/W set)")
	}

	va := vpn.ToAddr() + 0x42
	pa, ok := pt.TranslateVA(va)
	if !ok {
		t.Fatal("TranslateVA failed")
	}
	if PhysAddr(pa)&PhysAddr(PageOffMask) != 0x42 {
		t.Fatal("offset not preserved")
	}
}

func TestPageTableUnmap(t *testing.T) {
	phys := NewPhysicalMemory(0, 64)
	alloc := NewFrameAllocator(phys)
	pt, _ := NewPageTable(alloc)
	data, _ := alloc.Alloc()
	vpn := VirtPageNum(7)
	pt.Map(vpn, data.PPN(), PteR)
	pt.Unmap(vpn)
	pte, ok := pt.Translate(vpn)
	if !ok {
		t.Fatal("expected non-leaf path to still exist")
	}
	if pte.Valid() {
		t.Fatal("expected invalid PTE after unmap")
	}
}

func TestPageTableRemapPanics(t *testing.T) {
	phys := NewPhysicalMemory(0, 64)
	alloc := NewFrameAllocator(phys)
	pt, _ := NewPageTable(alloc)
	data, _ := alloc.Alloc()
	pt.Map(1, data.PPN(), PteR)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic remapping a valid vpn")
		}
	}()
	pt.Map(1, data.PPN(), PteR)
}

func TestPageTableToken(t *testing.T) {
	phys := NewPhysicalMemory(0, 4)
	alloc := NewFrameAllocator(phys)
	pt, _ := NewPageTable(alloc)
	tok := pt.Token()
	if tok>>60 != SatpMode {
		t.Fatal("expected MODE=8 in token")
	}
	if PhysPageNum(tok&((1<<44)-1)) != pt.Root() {
		t.Fatal("expected root ppn in token")
	}
}
