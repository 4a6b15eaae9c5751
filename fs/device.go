// Package fs implements the on-disk "easy" file system: a bounded write-back
// block cache, bitmap allocators, a two-level-indirect DiskInode layout, and
// directories with hard links, grounded on the teacher's fs/blk.go and
// ufs/ufs.go (spec §2-§4, §6).
package fs

import "rvkernel/config"

// BlockSize is the fixed size, in bytes, of one on-disk block (spec §3, §6).
const BlockSize = config.BlockSize

// BlockDevice is the external collaborator this package never implements
// itself: synchronous, fixed-size-block read/write by integer index (spec
// §2 item 1), grounded on the teacher's fs.Disk_i.
type BlockDevice interface {
	ReadBlock(id int, buf []byte)
	WriteBlock(id int, buf []byte)
}
