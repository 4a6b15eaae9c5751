package fs

import (
	"strings"

	"rvkernel/defs"
)

// Inode is a VFS handle: logical identity is InodeID, (Block, Offset) is a
// cached physical location (spec §3 "Inode handle (VFS)"), grounded on
// ufs/ufs.go's path-taking facade methods but expressed as methods on this
// handle type instead of a top-level filesystem facade.
type Inode struct {
	InodeID int
	Block   int
	Offset  int
	efs     *EasyFileSystem
}

/// RootInode returns a handle to the filesystem's root directory (inode #0).
func RootInode(efs *EasyFileSystem) *Inode {
	return inodeHandle(efs, RootInodeID)
}

func inodeHandle(efs *EasyFileSystem, id int) *Inode {
	block, offset := efs.inodePos(id)
	return &Inode{InodeID: id, Block: block, Offset: offset, efs: efs}
}

func (ino *Inode) readDisk(f func(*DiskInode)) { Read(ino.efs.Cache, ino.Block, ino.Offset, f) }
func (ino *Inode) modifyDisk(f func(*DiskInode)) {
	Modify(ino.efs.Cache, ino.Block, ino.Offset, f)
}

/// IsDir reports whether this handle names a directory.
func (ino *Inode) IsDir() bool {
	var d bool
	ino.readDisk(func(di *DiskInode) { d = di.IsDir() })
	return d
}

/// Size returns the inode's current byte size.
func (ino *Inode) Size() int {
	var s int
	ino.readDisk(func(di *DiskInode) { s = int(di.Size) })
	return s
}

/// Nlink returns the inode's current hard-link count.
func (ino *Inode) Nlink() uint32 {
	var n uint32
	ino.readDisk(func(di *DiskInode) { n = di.Nlink() })
	return n
}

func splitPath(path string) []string {
	var parts []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return parts
}

// dirEntries returns every non-empty DirEntry currently stored in ino
// (spec §4.5's linear directory scan unit).
func (ino *Inode) dirEntries() []DirEntry {
	size := ino.Size()
	n := size / DirEntrySize
	entries := make([]DirEntry, n)
	buf := make([]byte, size)
	ino.readAtRaw(0, buf)
	for i := 0; i < n; i++ {
		entries[i] = decodeDirEntry(buf[i*DirEntrySize : (i+1)*DirEntrySize])
	}
	return entries
}

func decodeDirEntry(b []byte) DirEntry {
	var de DirEntry
	copy(de.Name[:], b[:DirEntNameLen])
	de.InodeNum = uint32(b[28]) | uint32(b[29])<<8 | uint32(b[30])<<16 | uint32(b[31])<<24
	return de
}

func encodeDirEntry(de DirEntry) []byte {
	b := make([]byte, DirEntrySize)
	copy(b[:DirEntNameLen], de.Name[:])
	b[28] = byte(de.InodeNum)
	b[29] = byte(de.InodeNum >> 8)
	b[30] = byte(de.InodeNum >> 16)
	b[31] = byte(de.InodeNum >> 24)
	return b
}

// Ls lists the names of every entry ino currently holds. Per this spec's
// resolution of the corpus's open question, calling Ls on a regular file
// (rather than a directory) returns an empty list instead of garbage parsed
// from file content.
func (ino *Inode) Ls() []string {
	if !ino.IsDir() {
		return nil
	}
	entries := ino.dirEntries()
	names := make([]string, 0, len(entries))
	for _, de := range entries {
		names = append(names, de.NameString())
	}
	return names
}

func (ino *Inode) findEntry(name string) (DirEntry, int, bool) {
	for i, de := range ino.dirEntries() {
		if de.NameString() == name {
			return de, i, true
		}
	}
	return DirEntry{}, 0, false
}

// Find resolves path (possibly multi-component, leading/doubled slashes
// normalized by splitPath) against ino, walking directory entries linearly
// at each step (spec §4.5 find).
func (ino *Inode) Find(path string) (*Inode, bool) {
	cur := ino
	for _, comp := range splitPath(path) {
		if !cur.IsDir() {
			return nil, false
		}
		de, _, ok := cur.findEntry(comp)
		if !ok {
			return nil, false
		}
		cur = inodeHandle(ino.efs, int(de.InodeNum))
	}
	return cur, true
}

func (ino *Inode) readAtRaw(offset int, buf []byte) int {
	return ReadAtInode(ino.efs, ino.Block, ino.Offset, offset, buf)
}

/// ReadAt reads up to len(buf) bytes starting at offset, clamped to size.
func (ino *Inode) ReadAt(offset int, buf []byte) (int, defs.Err_t) {
	return ino.readAtRaw(offset, buf), 0
}

// growTo extends ino's size to at least newSize by allocating the needed
// data/indirect blocks through efs and calling IncreaseSize (spec §4.4/4.5).
func (ino *Inode) growTo(newSize int) defs.Err_t {
	oldSize := ino.Size()
	if newSize <= oldSize {
		return 0
	}
	if newSize > MaxFileSize {
		return -defs.ENOSPC
	}
	need := TotalBlocks(newSize) - TotalBlocks(oldSize)
	ids := make([]int, 0, need)
	for i := 0; i < need; i++ {
		id, ok := ino.efs.AllocData()
		if !ok {
			for _, alloc := range ids {
				ino.efs.DeallocData(alloc)
			}
			return -defs.ENOSPC
		}
		ids = append(ids, id)
	}
	IncreaseSize(ino.efs, ino.Block, ino.Offset, newSize, ids)
	return 0
}

// WriteAt extends ino's size first if needed, then delegates to the
// disk-inode writer, then flushes the block cache (spec §4.5 write_at).
func (ino *Inode) WriteAt(offset int, buf []byte) (int, defs.Err_t) {
	if err := ino.growTo(offset + len(buf)); err != 0 {
		return 0, err
	}
	n := WriteAtInode(ino.efs, ino.Block, ino.Offset, offset, buf)
	ino.efs.Cache.SyncAll()
	return n, 0
}

/// Clear frees all data blocks owned by ino and resets its size to zero
/// (spec §4.5 clear()).
func (ino *Inode) Clear() {
	ids := ClearSize(ino.efs, ino.Block, ino.Offset)
	for _, id := range ids {
		ino.efs.DeallocData(id)
	}
}

func (ino *Inode) appendEntry(de DirEntry) {
	offset := ino.Size()
	ino.WriteAt(offset, encodeDirEntry(de))
}

// CreateInode allocates a fresh inode named name inside ino (which must be
// a directory), seeding `.`/`..` if typ is a directory (spec §4.5
// create_inode). Fails with EEXIST if name is already present.
func (ino *Inode) CreateInode(name string, typ InodeType) (*Inode, defs.Err_t) {
	if !ino.IsDir() {
		return nil, -defs.ENOTDIR
	}
	if _, _, ok := ino.findEntry(name); ok {
		return nil, -defs.EEXIST
	}
	id, ok := ino.efs.AllocInode()
	if !ok {
		return nil, -defs.ENOSPC
	}
	child := inodeHandle(ino.efs, id)
	child.modifyDisk(func(di *DiskInode) {
		*di = DiskInode{}
		di.SetType(typ)
		di.SetNlink(1)
	})
	ino.appendEntry(NewDirEntry(name, uint32(id)))
	if typ == TypeDirectory {
		child.appendEntry(NewDirEntry(".", uint32(id)))
		child.appendEntry(NewDirEntry("..", uint32(ino.InodeID)))
	}
	ino.efs.Cache.SyncAll()
	return child, 0
}

// Link adds a directory entry in ino pointing at src's inode id and
// increments src's nlink (spec §4.5 link). Fails with EEXIST if name
// exists already.
func (ino *Inode) Link(name string, src *Inode) defs.Err_t {
	if !ino.IsDir() {
		return -defs.ENOTDIR
	}
	if _, _, ok := ino.findEntry(name); ok {
		return -defs.EEXIST
	}
	ino.appendEntry(NewDirEntry(name, uint32(src.InodeID)))
	src.modifyDisk(func(di *DiskInode) { di.SetNlink(di.Nlink() + 1) })
	ino.efs.Cache.SyncAll()
	return 0
}

// Unlink removes name's entry from ino by swapping it with the last entry
// and shrinking size by one DirEntry (no compaction, per spec §4.5's
// explicit mandate). Decrements the target's nlink, freeing its data and
// metadata blocks if it drops to zero and the target is a regular file.
// Unlinking a directory is not supported.
func (ino *Inode) Unlink(name string) defs.Err_t {
	if !ino.IsDir() {
		return -defs.ENOTDIR
	}
	entries := ino.dirEntries()
	idx := -1
	for i, de := range entries {
		if de.NameString() == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return -defs.ENOENT
	}
	target := inodeHandle(ino.efs, int(entries[idx].InodeNum))
	if target.IsDir() {
		return -defs.EPERM
	}

	last := len(entries) - 1
	if idx != last {
		buf := encodeDirEntry(entries[last])
		WriteAtInode(ino.efs, ino.Block, ino.Offset, idx*DirEntrySize, buf)
	}
	newSize := last * DirEntrySize
	ino.modifyDisk(func(di *DiskInode) { di.Size = uint32(newSize) })

	var nlink uint32
	target.modifyDisk(func(di *DiskInode) {
		di.SetNlink(di.Nlink() - 1)
		nlink = di.Nlink()
	})
	if nlink == 0 {
		target.Clear()
		ino.efs.inodeBitmap.Dealloc(ino.efs.Cache, target.InodeID)
	}
	ino.efs.Cache.SyncAll()
	return 0
}
