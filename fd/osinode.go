package fd

import (
	"sync"

	"rvkernel/defs"
	"rvkernel/fs"
	"rvkernel/stat"
)

// OSInode adapts a fs.Inode into a File, owning its own read/write cursor
// (spec §4.10 "cloning OSInode handles with fresh cursors"), grounded on
// original_source/os/src/fs/inode.rs's OSInode.
type OSInode struct {
	readable, writable bool
	mu                 sync.Mutex
	offset             int
	ino                *fs.Inode
}

/// NewOSInode wraps ino with the given access mode and a fresh cursor at 0.
func NewOSInode(readable, writable bool, ino *fs.Inode) *OSInode {
	return &OSInode{readable: readable, writable: writable, ino: ino}
}

func (o *OSInode) Readable() bool { return o.readable }
func (o *OSInode) Writable() bool { return o.writable }

func (o *OSInode) Read(buf []byte) (int, defs.Err_t) {
	if !o.readable {
		return 0, -defs.EPERM
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.ino.ReadAt(o.offset, buf)
	o.offset += n
	return n, err
}

func (o *OSInode) Write(buf []byte) (int, defs.Err_t) {
	if !o.writable {
		return 0, -defs.EPERM
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.ino.WriteAt(o.offset, buf)
	o.offset += n
	return n, err
}

func (o *OSInode) Close() defs.Err_t { return 0 }

/// Inode returns the underlying VFS handle, for dirfd-relative path lookups
/// (openat/mkdirat/unlinkat/linkat, spec §6) that must resolve against a
/// directory fd instead of the process's cwd.
func (o *OSInode) Inode() *fs.Inode { return o.ino }

func (o *OSInode) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wino(uint64(o.ino.InodeID))
	st.Wnlink(o.ino.Nlink())
	st.Wsize(uint64(o.ino.Size()))
	if o.ino.IsDir() {
		st.Wmode(stat.ModeDir)
	} else {
		st.Wmode(stat.ModeFile)
	}
	return 0
}

// Reopen returns a handle over the same inode with a fresh cursor at 0,
// matching fork's "cloning OSInode handles with fresh cursors" (spec §4.10)
// rather than sharing this handle's current offset.
func (o *OSInode) Reopen() (File, defs.Err_t) {
	return NewOSInode(o.readable, o.writable, o.ino), 0
}

// ReadAll drains the inode from the current cursor to EOF, grounded on
// original_source's OSInode::read_all (used by execve to load a whole ELF
// image without a caller-managed loop).
func (o *OSInode) ReadAll() []byte {
	var out []byte
	buf := make([]byte, 512)
	for {
		n, _ := o.Read(buf)
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out
}
