package vm

import (
	"bytes"
	"testing"

	"rvkernel/defs"
	"rvkernel/mem"
)

// fakeFile is a minimal in-memory FileBackend double for exercising
// FileMapping without a real fs.Inode.
type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(off int, buf []byte) (int, defs.Err_t) {
	if off >= len(f.data) {
		return 0, 0
	}
	n := copy(buf, f.data[off:])
	return n, 0
}

func (f *fakeFile) WriteAt(off int, buf []byte) (int, defs.Err_t) {
	need := off + len(buf)
	if need > len(f.data) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], buf)
	return len(buf), 0
}

func (f *fakeFile) Size() int { return len(f.data) }

func TestFileMappingMapReadsFileContents(t *testing.T) {
	alloc := mem.NewFrameAllocator(mem.NewPhysicalMemory(0, 16))
	content := bytes.Repeat([]byte{0x42}, mem.PageSize)
	f := &fakeFile{data: content}
	fm := NewFileMapping(1, f)
	fm.AddRange(MapRange{StartVA: 0x2000, EndVA: 0x3000, OffsetInFile: 0})

	ppn, shared, err := fm.Map(alloc, 0x2010)
	if err != 0 {
		t.Fatalf("Map failed: %v", err)
	}
	if shared {
		t.Fatal("first fault should not be already-resident")
	}
	bytesAt := fm.pages[0].frame.Bytes()
	if !bytes.Equal(bytesAt, content) {
		t.Fatal("expected page filled from file contents")
	}

	ppn2, shared2, err2 := fm.Map(alloc, 0x2800)
	if err2 != 0 || !shared2 || ppn2 != ppn {
		t.Fatal("second fault in same page should reuse the resident frame")
	}
}

func TestFileMappingSyncWritesDirtyPages(t *testing.T) {
	alloc := mem.NewFrameAllocator(mem.NewPhysicalMemory(0, 16))
	pt, _ := mem.NewPageTable(alloc)
	f := &fakeFile{data: make([]byte, mem.PageSize)}
	fm := NewFileMapping(1, f)
	fm.AddRange(MapRange{StartVA: 0, EndVA: mem.VirtAddr(mem.PageSize), OffsetInFile: 0})

	ppn, _, _ := fm.Map(alloc, 0)
	pt.Map(0, ppn, mem.PteR|mem.PteW|mem.PteU)

	page := fm.pages[0]
	page.frame.Bytes()[0] = 0x99
	pte, _ := pt.Translate(0)
	*dirtyPTE(pt, 0) = pte | mem.PageTableEntry(mem.PteD)

	if err := fm.Sync(pt); err != 0 {
		t.Fatalf("Sync failed: %v", err)
	}
	if f.data[0] != 0x99 {
		t.Fatal("expected dirty page written back to file")
	}
}

// dirtyPTE exposes the leaf PTE slot for tests to set the D bit directly,
// since nothing in this hosted simulator's instruction path sets it itself.
func dirtyPTE(pt *mem.PageTable, vpn mem.VirtPageNum) *mem.PageTableEntry {
	pte, _ := pt.FindPTE(vpn)
	return pte
}

func TestFileMappingCopyToUserIsIndependent(t *testing.T) {
	parentAlloc := mem.NewFrameAllocator(mem.NewPhysicalMemory(0, 16))
	childAlloc := mem.NewFrameAllocator(mem.NewPhysicalMemory(16, 16))
	childPT, _ := mem.NewPageTable(childAlloc)

	f := &fakeFile{data: bytes.Repeat([]byte{7}, mem.PageSize)}
	fm := NewFileMapping(1, f)
	fm.AddRange(MapRange{StartVA: 0, EndVA: mem.VirtAddr(mem.PageSize), OffsetInFile: 0})
	fm.Map(parentAlloc, 0)

	child := fm.CopyToUser(childPT, childAlloc, PermR|PermW|PermU)
	child.pages[0].frame.Bytes()[0] = 0xEE
	if fm.pages[0].frame.Bytes()[0] == 0xEE {
		t.Fatal("parent and child file mappings must not share frames")
	}
	pte, ok := childPT.Translate(0)
	if !ok || !pte.Valid() {
		t.Fatal("expected child page table to have the copied page mapped")
	}
}
