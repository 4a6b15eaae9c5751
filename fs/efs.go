package fs

import (
	"rvkernel/defs"
)

// EasyFileSystem is the facade over one formatted image: it owns the block
// cache and the two bitmaps, and hands out inode/data block ids (spec
// §4.3), grounded on ufs/ufs.go's Ufs_t facade.
type EasyFileSystem struct {
	Cache *BlockCache

	inodeBitmap *Bitmap
	dataBitmap  *Bitmap

	inodeAreaStart int
	dataAreaStart  int
	totalBlocks    int
}

// layout computes the SB|IB|IA|DB|DA region boundaries for a given
// total_blocks/inode_bitmap_blocks pair, solving for the data bitmap size
// so it covers as many data blocks as possible without slack (spec §4.3:
// "x ≥ data_total / 4097" — one bitmap block addresses 4096 data bits plus
// itself consumes one of those blocks, so x = ceil(data_total / 4097)).
func layout(totalBlocks, inodeBitmapBlocks int) (inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks int) {
	inodeBitmapCap := inodeBitmapBlocks * bitsPerBlock
	inodeAreaBlocks = ceilDiv(inodeBitmapCap, InodesPerBlock)
	usedBlocks := 1 + inodeBitmapBlocks + inodeAreaBlocks
	dataTotal := totalBlocks - usedBlocks
	dataBitmapBlocks = ceilDiv(dataTotal, bitsPerBlock+1)
	dataAreaBlocks = totalBlocks - usedBlocks - dataBitmapBlocks
	return
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Create formats a fresh image: zeroes every block, writes the super block,
// and allocates inode #0 as the root directory (spec §4.3 create).
func Create(dev BlockDevice, totalBlocks, inodeBitmapBlocks int) *EasyFileSystem {
	inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks := layout(totalBlocks, inodeBitmapBlocks)

	cache := NewBlockCache(dev)
	zero := make([]byte, BlockSize)
	for i := 0; i < totalBlocks; i++ {
		dev.WriteBlock(i, zero)
	}

	inodeAreaStart := 1 + inodeBitmapBlocks
	dataAreaStart := inodeAreaStart + inodeAreaBlocks + dataBitmapBlocks

	efs := &EasyFileSystem{
		Cache:          cache,
		inodeBitmap:    NewBitmap(1, inodeBitmapBlocks),
		dataBitmap:     NewBitmap(inodeAreaStart+inodeAreaBlocks, dataBitmapBlocks),
		inodeAreaStart: inodeAreaStart,
		dataAreaStart:  dataAreaStart,
		totalBlocks:    totalBlocks,
	}

	Modify(cache, 0, 0, func(sb *SuperBlock) {
		*sb = SuperBlock{
			Magic:             EfsMagic,
			TotalBlocks:       uint32(totalBlocks),
			InodeBitmapBlocks: uint32(inodeBitmapBlocks),
			InodeAreaBlocks:   uint32(inodeAreaBlocks),
			DataBitmapBlocks:  uint32(dataBitmapBlocks),
			DataAreaBlocks:    uint32(dataAreaBlocks),
		}
	})

	root, ok := efs.AllocInode()
	if !ok || root != 0 {
		panic("fs: root inode must be id 0")
	}
	blk, off := efs.inodePos(root)
	Modify(cache, blk, off, func(di *DiskInode) {
		di.SetType(TypeDirectory)
		di.SetNlink(1)
	})

	rootHandle := &Inode{InodeID: root, Block: blk, Offset: off, efs: efs}
	rootHandle.appendEntry(NewDirEntry(".", uint32(root)))
	rootHandle.appendEntry(NewDirEntry("..", uint32(root)))

	cache.SyncAll()
	return efs
}

// Open reconstructs the in-memory layout of a previously formatted image by
// reading and validating its super block (spec §4.3 open).
func Open(dev BlockDevice) *EasyFileSystem {
	cache := NewBlockCache(dev)
	var sb SuperBlock
	Read(cache, 0, 0, func(s *SuperBlock) { sb = *s })
	if !sb.Valid() {
		panic("fs: bad superblock magic")
	}
	inodeAreaBlocks, _, _ := layout(int(sb.TotalBlocks), int(sb.InodeBitmapBlocks))
	inodeAreaStart := 1 + int(sb.InodeBitmapBlocks)
	dataAreaStart := inodeAreaStart + inodeAreaBlocks + int(sb.DataBitmapBlocks)
	return &EasyFileSystem{
		Cache:          cache,
		inodeBitmap:    NewBitmap(1, int(sb.InodeBitmapBlocks)),
		dataBitmap:     NewBitmap(inodeAreaStart+inodeAreaBlocks, int(sb.DataBitmapBlocks)),
		inodeAreaStart: inodeAreaStart,
		dataAreaStart:  dataAreaStart,
		totalBlocks:    int(sb.TotalBlocks),
	}
}

func (efs *EasyFileSystem) inodePos(inodeID int) (block, offset int) {
	block = efs.inodeAreaStart + inodeID/InodesPerBlock
	offset = (inodeID % InodesPerBlock) * DiskInodeSize
	return
}

/// AllocInode returns a fresh inode id (spec §4.3 alloc_inode).
func (efs *EasyFileSystem) AllocInode() (int, bool) {
	return efs.inodeBitmap.Alloc(efs.Cache)
}

/// AllocData returns an absolute block id inside the data area (spec §4.3
/// alloc_data).
func (efs *EasyFileSystem) AllocData() (int, bool) {
	bit, ok := efs.dataBitmap.Alloc(efs.Cache)
	if !ok {
		return 0, false
	}
	return efs.dataAreaStart + bit, true
}

// DeallocData zeroes the block's cached copy and clears its bit (spec
// §4.3 dealloc_data).
func (efs *EasyFileSystem) DeallocData(blockID int) {
	var zero [BlockSize]byte
	Modify(efs.Cache, blockID, 0, func(b *[BlockSize]byte) { *b = zero })
	efs.dataBitmap.Dealloc(efs.Cache, blockID-efs.dataAreaStart)
}

/// FreeDataBits reports the number of free bits remaining in the data
/// bitmap, used by tests checking P7's "rise in bitmap free bits".
func (efs *EasyFileSystem) FreeDataBits() int {
	max := efs.dataBitmap.Maximum()
	used := 0
	for i := 0; i < max; i++ {
		// scanning bit-by-bit is test-only tooling, not hot-path code.
		blk := i / bitsPerBlock
		within := i % bitsPerBlock
		word := within / 64
		bit := within % 64
		Read(efs.Cache, efs.dataBitmap.startBlockID+blk, 0, func(b *bitmapBlock) {
			if b[word]&(1<<uint(bit)) != 0 {
				used++
			}
		})
	}
	return max - used
}

/// RootInodeID is the fixed id of the root directory (spec §4.3: "always
/// inode #0").
const RootInodeID = 0

/// ErrNoSpace is returned by allocation paths this file lets callers map to
/// -defs.ENOSPC.
var ErrNoSpace = defs.ENOSPC
