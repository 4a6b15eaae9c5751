package fd

import (
	"rvkernel/defs"
	"rvkernel/pipe"
	"rvkernel/stat"
)

// PipeFile adapts a pipe.Pipe end into a File (spec §6 pipe syscall 59).
type PipeFile struct {
	p *pipe.Pipe
}

/// MakePipe returns the (read, write) Fd_t pair for a fresh pipe, ready for
/// installation into a process's fd table.
func MakePipe() (*Fd_t, *Fd_t) {
	r, w := pipe.MakePipe()
	rf := &Fd_t{File: &PipeFile{p: r}, Perms: FD_READ}
	wf := &Fd_t{File: &PipeFile{p: w}, Perms: FD_WRITE}
	return rf, wf
}

func (p *PipeFile) Readable() bool { return p.p.Readable() }
func (p *PipeFile) Writable() bool { return p.p.Writable() }

func (p *PipeFile) Read(buf []byte) (int, defs.Err_t) { return p.p.Read(buf), 0 }

func (p *PipeFile) Write(buf []byte) (int, defs.Err_t) { return p.p.Write(buf), 0 }

func (p *PipeFile) Close() defs.Err_t {
	p.p.Close()
	return 0
}

func (p *PipeFile) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.ModeFile)
	return 0
}

// Reopen shares the underlying pipe end rather than duplicating its buffer,
// matching fork's "sharing stdio"-style semantics extended to pipe ends: a
// forked reader and its parent drain the same ring buffer. Registers the
// duplicate as an independent open write descriptor (pipe.Pipe.AddWriter)
// so closing one of the two fds doesn't broadcast EOF while the other is
// still live.
func (p *PipeFile) Reopen() (File, defs.Err_t) {
	p.p.AddWriter()
	return p, 0
}
