// Package fd is the File capability and fd table a Process owns (spec §3,
// §4 "(NEW) the File capability and fd table"), grounded on the teacher's
// fd/fd.go (Fd_t, Cwd_t, Copyfd) with fdops.Fdops_i's Userbuf-indirected
// methods collapsed to plain []byte, matching this project's fs.Inode and
// pipe.Pipe signatures directly (the hosted simulator has no user/kernel
// address-space split to justify the indirection).
package fd

import (
	"path"
	"sync"

	"rvkernel/defs"
	"rvkernel/stat"
)

// File descriptor permission bits held in Fd_t.Perms. sysOpenat derives
// them from OpenFlags.ReadWrite; their values are not the OpenFlags bits.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// File is the capability every fd table slot holds: something readable,
// writable, closeable, statable, and re-openable for fork (spec §4.10
// "cloning OSInode handles with fresh cursors, sharing stdio").
type File interface {
	Readable() bool
	Writable() bool
	Read(buf []byte) (int, defs.Err_t)
	Write(buf []byte) (int, defs.Err_t)
	Close() defs.Err_t
	Fstat(st *stat.Stat_t) defs.Err_t
	Reopen() (File, defs.Err_t)
}

/// Fd_t represents one open file descriptor slot.
type Fd_t struct {
	File  File /// descriptor operations
	Perms int  /// permission bits
}

/// Copyfd duplicates an open file descriptor by reopening its File, grounded
/// on the teacher's Copyfd (fd/fd.go).
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nf, err := fd.File.Reopen()
	if err != 0 {
		return nil, err
	}
	return &Fd_t{File: nf, Perms: fd.Perms}, 0
}

/// ClosePanic closes the descriptor and panics on failure, for callers that
/// have already proven the descriptor is valid.
func ClosePanic(f *Fd_t) {
	if f.File.Close() != 0 {
		panic("fd: must succeed")
	}
}

// Table is a Process's fd table: an ordered, sparse slice indexed by fd
// number (spec §3 "fd_table (ordered, sparse, index = fd)").
type Table struct {
	mu  sync.Mutex
	fds []*Fd_t
}

/// NewTable returns an empty fd table.
func NewTable() *Table { return &Table{} }

// Install reserves the lowest free fd number for f and returns it, growing
// the table if no hole is free.
func (t *Table) Install(f *Fd_t) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, slot := range t.fds {
		if slot == nil {
			t.fds[i] = f
			return i
		}
	}
	t.fds = append(t.fds, f)
	return len(t.fds) - 1
}

/// InstallAt installs f at a specific fd number, growing the table and
/// leaving holes before it if necessary (used to seed stdin/stdout/stderr).
func (t *Table) InstallAt(n int, f *Fd_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.fds) <= n {
		t.fds = append(t.fds, nil)
	}
	t.fds[n] = f
}

/// Get returns the descriptor at fd, or (nil, false) if it's closed/unused.
func (t *Table) Get(fdno int) (*Fd_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdno < 0 || fdno >= len(t.fds) || t.fds[fdno] == nil {
		return nil, false
	}
	return t.fds[fdno], true
}

/// Close removes and closes the descriptor at fd.
func (t *Table) Close(fdno int) defs.Err_t {
	t.mu.Lock()
	slot, ok := t.get(fdno)
	if ok {
		t.fds[fdno] = nil
	}
	t.mu.Unlock()
	if !ok {
		return -defs.EMFILE
	}
	return slot.File.Close()
}

func (t *Table) get(fdno int) (*Fd_t, bool) {
	if fdno < 0 || fdno >= len(t.fds) || t.fds[fdno] == nil {
		return nil, false
	}
	return t.fds[fdno], true
}

// Clone duplicates every open slot via Copyfd, for fork (spec §4.10).
func (t *Table) Clone() (*Table, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := &Table{fds: make([]*Fd_t, len(t.fds))}
	for i, slot := range t.fds {
		if slot == nil {
			continue
		}
		nf, err := Copyfd(slot)
		if err != 0 {
			return nil, err
		}
		nt.fds[i] = nf
	}
	return nt, 0
}

/// CloseAll closes every open descriptor (process exit, spec §4.10).
func (t *Table) CloseAll() {
	t.mu.Lock()
	fds := t.fds
	t.fds = nil
	t.mu.Unlock()
	for _, slot := range fds {
		if slot != nil {
			slot.File.Close()
		}
	}
}

// Cwd_t tracks a process's current working directory, grounded on the
// teacher's fd.Cwd_t (which serializes chdir via an embedded sync.Mutex).
type Cwd_t struct {
	mu   sync.Mutex
	Path string
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd() *Cwd_t { return &Cwd_t{Path: "/"} }

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p string) string {
	if path.IsAbs(p) {
		return p
	}
	cwd.mu.Lock()
	base := cwd.Path
	cwd.mu.Unlock()
	return path.Join(base, p)
}

/// Chdir replaces the stored path, canonicalized.
func (cwd *Cwd_t) Chdir(p string) {
	full := path.Clean(cwd.Fullpath(p))
	cwd.mu.Lock()
	defer cwd.mu.Unlock()
	cwd.Path = full
}

/// Snapshot returns the current path string (for getcwd).
func (cwd *Cwd_t) Snapshot() string {
	cwd.mu.Lock()
	defer cwd.mu.Unlock()
	return cwd.Path
}

/// Clone returns an independent copy sharing the same path (fork, spec
/// §4.10 "and cwd").
func (cwd *Cwd_t) Clone() *Cwd_t {
	return &Cwd_t{Path: cwd.Snapshot()}
}
