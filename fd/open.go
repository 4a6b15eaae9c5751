package fd

import (
	"rvkernel/defs"
	"rvkernel/fs"
)

// OpenFlags mirrors the openat flag bits spec §6 defines: bit 0=WR, bit
// 1=RW, bit 9=CREATE, bit 10=TRUNC, grounded on original_source's
// bitflags! OpenFlags (os/src/fs/inode.rs).
type OpenFlags uint32

const (
	O_WRONLY OpenFlags = 1 << 0
	O_RDWR   OpenFlags = 1 << 1
	O_CREATE OpenFlags = 1 << 9
	O_TRUNC  OpenFlags = 1 << 10
)

// ReadWrite reports the (readable, writable) pair this flag set grants,
// matching original_source's OpenFlags::read_write (absent bits 0/1 means
// read-only).
func (f OpenFlags) ReadWrite() (readable, writable bool) {
	switch {
	case f&O_WRONLY != 0:
		return false, true
	case f&O_RDWR != 0:
		return true, true
	default:
		return true, false
	}
}

// Open resolves name against dir (already cwd-or-root-resolved by the
// caller) and returns an OSInode honoring flags, grounded on
// original_source's open_file: CREATE makes (or truncates) the target,
// TRUNC without CREATE only truncates an existing one.
func Open(dir *fs.Inode, name string, flags OpenFlags) (*OSInode, defs.Err_t) {
	readable, writable := flags.ReadWrite()
	if flags&O_CREATE != 0 {
		if ino, ok := dir.Find(name); ok {
			ino.Clear()
			return NewOSInode(readable, writable, ino), 0
		}
		ino, err := dir.CreateInode(name, fs.TypeFile)
		if err != 0 {
			return nil, err
		}
		return NewOSInode(readable, writable, ino), 0
	}
	ino, ok := dir.Find(name)
	if !ok {
		return nil, -defs.ENOENT
	}
	if flags&O_TRUNC != 0 {
		ino.Clear()
	}
	return NewOSInode(readable, writable, ino), 0
}
