package fd

import (
	"bufio"
	"os"

	"rvkernel/defs"
	"rvkernel/stat"
)

// Stdin and Stdout adapt the host process's standard streams into File,
// grounded on original_source/os/src/fs/stdio.rs (read is one byte at a
// time from the UART there; here it's the host's stdin).
type Stdin struct{ r *bufio.Reader }
type Stdout struct{}

/// NewStdin wraps os.Stdin.
func NewStdin() *Stdin { return &Stdin{r: bufio.NewReader(os.Stdin)} }

func (s *Stdin) Readable() bool { return true }
func (s *Stdin) Writable() bool { return false }

func (s *Stdin) Read(buf []byte) (int, defs.Err_t) {
	n, err := s.r.Read(buf)
	if err != nil && n == 0 {
		return 0, 0
	}
	return n, 0
}

func (s *Stdin) Write([]byte) (int, defs.Err_t) { panic("fd: cannot write to stdin") }
func (s *Stdin) Close() defs.Err_t              { return 0 }
func (s *Stdin) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.ModeFile)
	return 0
}
func (s *Stdin) Reopen() (File, defs.Err_t) { return s, 0 }

func (s *Stdout) Readable() bool               { return false }
func (s *Stdout) Writable() bool               { return true }
func (s *Stdout) Read([]byte) (int, defs.Err_t) { panic("fd: cannot read from stdout") }
func (s *Stdout) Write(buf []byte) (int, defs.Err_t) {
	n, _ := os.Stdout.Write(buf)
	return n, 0
}
func (s *Stdout) Close() defs.Err_t { return 0 }
func (s *Stdout) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.ModeFile)
	return 0
}
func (s *Stdout) Reopen() (File, defs.Err_t) { return s, 0 }
