// Package stat mirrors the fixed-layout Stat_t the fstat syscall copies into
// user memory (spec §6), grounded on the teacher's stat.Stat_t
// accessor-struct style but re-laid-out bit-exact per this spec.
package stat

import "unsafe"

// Mode bits (spec §6): the only two kinds this kernel names.
const (
	ModeDir  uint32 = 0o40000
	ModeFile uint32 = 0o100000
)

// Stat_t is laid out exactly as spec §6 states: dev, ino: u64, mode, nlink:
// u32, size: u64, pad[6]: u64. Field order must not change; Bytes reinterprets
// the struct in place for copy-out to user memory.
type Stat_t struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Nlink uint32
	Size  uint64
	_pad  [6]uint64
}

/// Wdev stores the device id.
func (st *Stat_t) Wdev(v uint64) { st.Dev = v }

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint64) { st.Ino = v }

/// Wmode stores the file mode.
func (st *Stat_t) Wmode(v uint32) { st.Mode = v }

/// Wnlink stores the hard-link count.
func (st *Stat_t) Wnlink(v uint32) { st.Nlink = v }

/// Wsize stores the file size.
func (st *Stat_t) Wsize(v uint64) { st.Size = v }

/// IsDir reports whether Mode names a directory.
func (st *Stat_t) IsDir() bool { return st.Mode == ModeDir }

// Bytes exposes the raw little-endian bytes of the structure, for the
// fstat syscall to copy into the caller's buffer.
func (st *Stat_t) Bytes() []byte {
	const sz = unsafe.Sizeof(Stat_t{})
	return (*[sz]byte)(unsafe.Pointer(st))[:]
}
