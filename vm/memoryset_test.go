package vm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"rvkernel/mem"
)

func testAlloc(npages int) *mem.FrameAllocator {
	return mem.NewFrameAllocator(mem.NewPhysicalMemory(0, npages))
}

func TestNewKernelMapsEverySegment(t *testing.T) {
	alloc := testAlloc(64)
	trampoline, _ := alloc.Alloc()
	ms := NewKernel(alloc,
		0, 4, // .text
		4, 6, // .rodata
		6, 8, // .data+.bss
		8, 20, // [ekernel, MEMORY_END)
		[]MMIOWindow{{Start: 20, End: 22}},
		trampoline.PPN())

	for vpn := mem.VirtPageNum(0); vpn < 20; vpn++ {
		pte, ok := ms.PT.Translate(vpn)
		if !ok || !pte.Valid() {
			t.Fatalf("vpn %d: expected valid identical mapping", vpn)
		}
		if pte.PPN() != mem.PhysPageNum(vpn) {
			t.Fatalf("vpn %d: expected identical ppn, got %v", vpn, pte.PPN())
		}
	}
	pte, ok := ms.PT.Translate(20)
	if !ok || !pte.Valid() || !pte.Writable() {
		t.Fatal("expected mmio window mapped RW")
	}

	trampVPN := TRAMPOLINE.PageRoundDown()
	tpte, ok := ms.PT.Translate(trampVPN)
	if !ok || !tpte.Valid() || !tpte.Executable() {
		t.Fatal("expected trampoline mapped executable")
	}
	if tpte.PPN() != trampoline.PPN() {
		t.Fatal("trampoline ppn mismatch")
	}
}

// buildMinimalELF hand-assembles the smallest ELF64 little-endian image
// debug/elf.NewFile will accept: a header, one PT_LOAD program header, and
// that segment's raw bytes.
func buildMinimalELF(entry, vaddr uint64, data []byte, flags uint32) []byte {
	const ehsize, phentsize = 64, 56
	var buf bytes.Buffer

	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 2 // ELFCLASS64
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident)

	le := binary.LittleEndian
	hdr := make([]byte, ehsize-16)
	le.PutUint16(hdr[0:], 2)   // e_type = ET_EXEC
	le.PutUint16(hdr[2:], 243) // e_machine = EM_RISCV
	le.PutUint32(hdr[4:], 1)   // e_version
	le.PutUint64(hdr[8:], entry)
	le.PutUint64(hdr[16:], ehsize) // e_phoff
	le.PutUint64(hdr[24:], 0)      // e_shoff
	le.PutUint32(hdr[32:], 0)      // e_flags
	le.PutUint16(hdr[36:], ehsize)
	le.PutUint16(hdr[38:], phentsize)
	le.PutUint16(hdr[40:], 1) // e_phnum
	le.PutUint16(hdr[42:], 0) // e_shentsize
	le.PutUint16(hdr[44:], 0) // e_shnum
	le.PutUint16(hdr[46:], 0) // e_shstrndx
	buf.Write(hdr)

	phOff := uint64(ehsize + phentsize)
	ph := make([]byte, phentsize)
	le.PutUint32(ph[0:], 1) // p_type = PT_LOAD
	le.PutUint32(ph[4:], flags)
	le.PutUint64(ph[8:], phOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(data)))
	le.PutUint64(ph[40:], uint64(len(data)))
	le.PutUint64(ph[48:], 0x1000)
	buf.Write(ph)

	buf.Write(data)
	return buf.Bytes()
}

func TestFromElfLoadsAndMapsStack(t *testing.T) {
	alloc := testAlloc(128)
	trampoline, _ := alloc.Alloc()
	code := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	image := buildMinimalELF(0x1000, 0x1000, code, 5) // PF_R|PF_X

	ms, ustackBase, entry := FromElf(alloc, trampoline.PPN(), image, 2*mem.PageSize)
	if entry != 0x1000 {
		t.Fatalf("entry mismatch: got %#x", entry)
	}

	vpn := mem.VirtAddr(0x1000).PageRoundDown()
	area, ok := ms.AreaFor(vpn)
	if !ok {
		t.Fatal("expected loaded segment mapped")
	}
	got := ms.FrameBytes(vpn)[:len(code)]
	if !bytes.Equal(got, code) {
		t.Fatalf("segment bytes mismatch: got %v want %v", got, code)
	}
	if area.Perm&PermU == 0 {
		t.Fatal("expected user-accessible segment")
	}

	stackVPN := ustackBase.PageRoundDown()
	if _, ok := ms.AreaFor(stackVPN); !ok {
		t.Fatal("expected user stack area mapped")
	}
	if _, ok := ms.AreaFor(stackVPN - 1); ok {
		t.Fatal("expected guard page below user stack to be unmapped")
	}
}

func TestCloneUserIsIndependent(t *testing.T) {
	alloc := testAlloc(64)
	trampoline, _ := alloc.Alloc()
	parent := newEmpty(alloc)
	parent.mapTrampoline(trampoline.PPN())
	area := parent.InsertFramedArea(10, 11, PermR|PermW|PermU)
	parent.FrameBytes(10)[0] = 0xAB
	_ = area

	child := CloneUser(parent, trampoline.PPN())
	if child.FrameBytes(10)[0] != 0xAB {
		t.Fatal("expected child to inherit parent's page contents")
	}

	child.FrameBytes(10)[0] = 0xCD
	if parent.FrameBytes(10)[0] != 0xAB {
		t.Fatal("parent must not observe child's write (no sharing)")
	}

	parentArea, _ := parent.AreaFor(10)
	childArea, _ := child.AreaFor(10)
	pf, _ := parentArea.FrameFor(10)
	cf, _ := childArea.FrameFor(10)
	if pf.PPN() == cf.PPN() {
		t.Fatal("parent and child must own distinct frames")
	}
}
