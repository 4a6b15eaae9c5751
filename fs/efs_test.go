package fs

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestFSRoundTrip(t *testing.T) {
	dev := NewMemDevice(4096)
	efs := Create(dev, 4096, 1)
	root := RootInode(efs)

	fileA, err := root.CreateInode("filea", TypeFile)
	if err != 0 {
		t.Fatalf("create filea: %v", err)
	}
	content := []byte("Hello, world!")
	n, err := fileA.WriteAt(0, content)
	if err != 0 || n != len(content) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}

	buf := make([]byte, 233)
	rd, err := fileA.ReadAt(0, buf)
	if err != 0 {
		t.Fatalf("read: %v", err)
	}
	if rd != len(content) {
		t.Fatalf("expected read length %d, got %d", len(content), rd)
	}
	if !bytes.Equal(buf[:rd], content) {
		t.Fatalf("content mismatch: got %q want %q", buf[:rd], content)
	}
}

func TestFSLargeFileOverIndirect2(t *testing.T) {
	dev := NewMemDevice(4096)
	efs := Create(dev, 4096, 1)
	root := RootInode(efs)

	big, err := root.CreateInode("big", TypeFile)
	if err != 0 {
		t.Fatalf("create big: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 2000*512)
	for i := range data {
		data[i] = byte('0' + rng.Intn(10))
	}
	n, err := big.WriteAt(0, data)
	if err != 0 || n != len(data) {
		t.Fatalf("write big: n=%d err=%v", n, err)
	}

	out := make([]byte, 0, len(data))
	buf := make([]byte, 127)
	off := 0
	for {
		rd, _ := big.ReadAt(off, buf)
		if rd == 0 {
			break
		}
		out = append(out, buf[:rd]...)
		off += rd
	}
	if !bytes.Equal(out, data) {
		t.Fatal("large file round trip mismatch")
	}
	if big.usedDataBlocks() != TotalBlocks(len(data)) {
		t.Fatalf("expected %d used blocks, got %d", TotalBlocks(len(data)), big.usedDataBlocks())
	}
}

// usedDataBlocks counts this inode's data blocks via its own size, for
// test assertions against total_blocks (P4).
func (ino *Inode) usedDataBlocks() int {
	return TotalBlocks(ino.Size())
}

func TestDirectoryTree(t *testing.T) {
	dev := NewMemDevice(8192)
	efs := Create(dev, 8192, 1)
	root := RootInode(efs)

	d1, err := root.CreateInode("d1", TypeDirectory)
	if err != 0 {
		t.Fatalf("mkdir d1: %v", err)
	}
	f3, err := d1.CreateInode("f3", TypeFile)
	if err != 0 {
		t.Fatalf("create f3: %v", err)
	}
	f3.WriteAt(0, []byte("3333333"))

	d2, err := d1.CreateInode("d2", TypeDirectory)
	if err != 0 {
		t.Fatalf("mkdir d2: %v", err)
	}
	f4, err := d2.CreateInode("f4", TypeFile)
	if err != 0 {
		t.Fatalf("create f4: %v", err)
	}
	f4.WriteAt(0, []byte("4444444444444444444"))

	got, ok := root.Find("/d1/d2/f4")
	if !ok {
		t.Fatal("expected to find /d1/d2/f4")
	}
	buf := make([]byte, 64)
	n, _ := got.ReadAt(0, buf)
	if string(buf[:n]) != "4444444444444444444" {
		t.Fatalf("f4 content mismatch: %q", buf[:n])
	}

	got2, ok := root.Find("/d1/f3")
	if !ok {
		t.Fatal("expected to find /d1/f3")
	}
	n2, _ := got2.ReadAt(0, buf)
	if string(buf[:n2]) != "3333333" {
		t.Fatalf("f3 content mismatch: %q", buf[:n2])
	}

	if _, ok := root.Find("/d1/f3/whatever"); ok {
		t.Fatal("expected find through a regular file to fail")
	}
}

func TestHardLink(t *testing.T) {
	dev := NewMemDevice(4096)
	efs := Create(dev, 4096, 1)
	root := RootInode(efs)

	a, err := root.CreateInode("a", TypeFile)
	if err != 0 {
		t.Fatalf("create a: %v", err)
	}
	a.WriteAt(0, []byte("X"))

	freeBefore := efs.FreeDataBits()

	if err := root.Link("b", a); err != 0 {
		t.Fatalf("link: %v", err)
	}
	b, ok := root.Find("b")
	if !ok {
		t.Fatal("expected to find b")
	}
	buf := make([]byte, 8)
	n, _ := b.ReadAt(0, buf)
	if string(buf[:n]) != "X" {
		t.Fatalf("b content mismatch: %q", buf[:n])
	}

	if err := root.Unlink("a"); err != 0 {
		t.Fatalf("unlink a: %v", err)
	}
	b2, ok := root.Find("b")
	if !ok {
		t.Fatal("expected b to survive unlinking a")
	}
	n2, _ := b2.ReadAt(0, buf)
	if string(buf[:n2]) != "X" {
		t.Fatalf("b content mismatch after unlinking a: %q", buf[:n2])
	}

	cost := TotalBlocks(1)
	if err := root.Unlink("b"); err != 0 {
		t.Fatalf("unlink b: %v", err)
	}
	freeAfter := efs.FreeDataBits()
	if freeAfter-freeBefore != cost {
		t.Fatalf("expected free bits to rise by %d, got %d", cost, freeAfter-freeBefore)
	}
}

func TestBitmapAllocDeallocRoundTrip(t *testing.T) {
	dev := NewMemDevice(8)
	cache := NewBlockCache(dev)
	bm := NewBitmap(0, 2)
	bit, ok := bm.Alloc(cache)
	if !ok || bit != 0 {
		t.Fatalf("expected first alloc to return bit 0, got %d", bit)
	}
	bit2, _ := bm.Alloc(cache)
	if bit2 != 1 {
		t.Fatalf("expected second alloc to return bit 1, got %d", bit2)
	}
	bm.Dealloc(cache, bit)
	bit3, _ := bm.Alloc(cache)
	if bit3 != 0 {
		t.Fatalf("expected freed bit 0 to be reused, got %d", bit3)
	}
}

func TestBitmapDoubleFreePanics(t *testing.T) {
	dev := NewMemDevice(4)
	cache := NewBlockCache(dev)
	bm := NewBitmap(0, 1)
	bit, _ := bm.Alloc(cache)
	bm.Dealloc(cache, bit)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double dealloc")
		}
	}()
	bm.Dealloc(cache, bit)
}
