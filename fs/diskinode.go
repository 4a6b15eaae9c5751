package fs

// Indirect1Block is the 128-entry array of block ids one indirect1 block
// holds (BlockSize/4 == 128 u32 slots, spec §4.4).
type Indirect1Block [indirect1Cap]uint32

// Indirect2Block has the same shape as Indirect1Block but each entry names
// a child indirect1 block rather than a data block.
type Indirect2Block [indirect1Cap]uint32

// GetBlockID resolves inner (a 0-based block index within the file) to an
// absolute data block id, following direct/indirect1/indirect2 per spec
// §4.4 get_block_id.
func GetBlockID(efs *EasyFileSystem, di *DiskInode, inner int) int {
	switch {
	case inner < directBound:
		return int(di.Direct[inner])
	case inner < indirect1Bound:
		idx := inner - directBound
		var id uint32
		Read(efs.Cache, int(di.Indirect1), 0, func(blk *Indirect1Block) { id = blk[idx] })
		return int(id)
	default:
		rest := inner - indirect1Bound
		i2 := rest / indirect1Cap
		i1 := rest % indirect1Cap
		var childID uint32
		Read(efs.Cache, int(di.Indirect2), 0, func(blk *Indirect2Block) { childID = blk[i2] })
		var id uint32
		Read(efs.Cache, int(childID), 0, func(blk *Indirect1Block) { id = blk[i1] })
		return int(id)
	}
}

// TotalBlocks computes the number of blocks (data plus indirect metadata)
// a file of size bytes occupies (spec §4.4 total_blocks).
func TotalBlocks(size int) int {
	dataBlocks := ceilDiv(size, BlockSize)
	total := dataBlocks
	if dataBlocks > directBound {
		total++ // the indirect1 block itself
	}
	if dataBlocks > indirect1Bound {
		extra := dataBlocks - indirect1Bound
		total += 1 + ceilDiv(extra, indirect1Cap) // indirect2 block + its children
	}
	return total
}

// IncreaseSize grows the inode at (block, offset) from its current size to
// newSize, consuming ids from newBlocks in the order spec §4.4 mandates:
// direct first, then the indirect1 block itself, then its data blocks, then
// the indirect2 block, then its indirect1 children interleaved with their
// data blocks. Callers compute newBlocks' length via TotalBlocks(newSize) -
// TotalBlocks(oldSize) and allocate that many ids up front.
func IncreaseSize(efs *EasyFileSystem, block, offset, newSize int, newBlocks []int) {
	Modify(efs.Cache, block, offset, func(di *DiskInode) {
		idx := 0
		next := func() int { v := newBlocks[idx]; idx++; return v }

		oldBlocks := ceilDiv(int(di.Size), BlockSize)
		newBlockCount := ceilDiv(newSize, BlockSize)

		for cur := oldBlocks; cur < newBlockCount; cur++ {
			if cur < directBound {
				di.Direct[cur] = uint32(next())
				continue
			}
			if di.Indirect1 == 0 {
				di.Indirect1 = uint32(next())
			}
			if cur < indirect1Bound {
				within := cur - directBound
				id := next()
				Modify(efs.Cache, int(di.Indirect1), 0, func(blk *Indirect1Block) {
					blk[within] = uint32(id)
				})
				continue
			}
			if di.Indirect2 == 0 {
				di.Indirect2 = uint32(next())
			}
			rest := cur - indirect1Bound
			i2 := rest / indirect1Cap
			i1 := rest % indirect1Cap
			if i1 == 0 {
				childID := next()
				Modify(efs.Cache, int(di.Indirect2), 0, func(blk *Indirect2Block) {
					blk[i2] = uint32(childID)
				})
			}
			var childID uint32
			Read(efs.Cache, int(di.Indirect2), 0, func(blk *Indirect2Block) { childID = blk[i2] })
			dataID := next()
			Modify(efs.Cache, int(childID), 0, func(blk *Indirect1Block) {
				blk[i1] = uint32(dataID)
			})
		}
		di.Size = uint32(newSize)
	})
}

// ClearSize releases every block id this inode owns (data plus indirect
// metadata), in the same traversal order IncreaseSize consumes them, and
// zeroes the inode's size/index fields. The caller frees the returned ids'
// bits (spec §4.4 clear_size).
func ClearSize(efs *EasyFileSystem, block, offset int) []int {
	var ids []int
	Modify(efs.Cache, block, offset, func(di *DiskInode) {
		blocks := ceilDiv(int(di.Size), BlockSize)

		directN := blocks
		if directN > directBound {
			directN = directBound
		}
		for i := 0; i < directN; i++ {
			ids = append(ids, int(di.Direct[i]))
			di.Direct[i] = 0
		}

		if blocks > directBound {
			ids = append(ids, int(di.Indirect1))
			within := blocks - directBound
			if within > indirect1Cap {
				within = indirect1Cap
			}
			Modify(efs.Cache, int(di.Indirect1), 0, func(blk *Indirect1Block) {
				for i := 0; i < within; i++ {
					ids = append(ids, int(blk[i]))
				}
			})
			di.Indirect1 = 0
		}

		if blocks > indirect1Bound {
			ids = append(ids, int(di.Indirect2))
			remaining := blocks - indirect1Bound
			numChildren := ceilDiv(remaining, indirect1Cap)
			Modify(efs.Cache, int(di.Indirect2), 0, func(blk *Indirect2Block) {
				for c := 0; c < numChildren; c++ {
					childID := blk[c]
					ids = append(ids, int(childID))
					cnt := remaining - c*indirect1Cap
					if cnt > indirect1Cap {
						cnt = indirect1Cap
					}
					Modify(efs.Cache, int(childID), 0, func(cb *Indirect1Block) {
						for i := 0; i < cnt; i++ {
							ids = append(ids, int(cb[i]))
						}
					})
				}
			})
			di.Indirect2 = 0
		}

		di.Size = 0
	})
	return ids
}

// ReadAtInode reads into buf from fileOffset, clamped to the inode's
// current size, via GetBlockID + BlockCache (spec §4.4 read_at).
func ReadAtInode(efs *EasyFileSystem, block, offset, fileOffset int, buf []byte) int {
	var di DiskInode
	Read(efs.Cache, block, offset, func(d *DiskInode) { di = *d })
	size := int(di.Size)
	if fileOffset >= size {
		return 0
	}
	end := fileOffset + len(buf)
	if end > size {
		end = size
	}
	pos := fileOffset
	for pos < end {
		inner := pos / BlockSize
		dataBlockID := GetBlockID(efs, &di, inner)
		inBlockOff := pos % BlockSize
		n := BlockSize - inBlockOff
		if pos+n > end {
			n = end - pos
		}
		dst := buf[pos-fileOffset : pos-fileOffset+n]
		Read(efs.Cache, dataBlockID, 0, func(b *[BlockSize]byte) {
			copy(dst, b[inBlockOff:inBlockOff+n])
		})
		pos += n
	}
	return end - fileOffset
}

// WriteAtInode writes buf at fileOffset; the caller must have already grown
// the inode's size via IncreaseSize so fileOffset+len(buf) <= size (spec
// §4.4 write_at).
func WriteAtInode(efs *EasyFileSystem, block, offset, fileOffset int, buf []byte) int {
	var di DiskInode
	Read(efs.Cache, block, offset, func(d *DiskInode) { di = *d })
	if fileOffset+len(buf) > int(di.Size) {
		panic("fs: write_at beyond inode size")
	}
	end := fileOffset + len(buf)
	pos := fileOffset
	for pos < end {
		inner := pos / BlockSize
		dataBlockID := GetBlockID(efs, &di, inner)
		inBlockOff := pos % BlockSize
		n := BlockSize - inBlockOff
		if pos+n > end {
			n = end - pos
		}
		src := buf[pos-fileOffset : pos-fileOffset+n]
		Modify(efs.Cache, dataBlockID, 0, func(b *[BlockSize]byte) {
			copy(b[inBlockOff:inBlockOff+n], src)
		})
		pos += n
	}
	return end - fileOffset
}
