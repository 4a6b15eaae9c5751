// Package config gathers the kernel-wide constants that the teacher scatters
// across top-level const blocks (mem.PGSHIFT, fs.BSIZE) into one place, the
// way original_source/os/src/config.rs does for rCore.
package config

import (
	"os"
	"strconv"
)

const (
	/// PageShift is the base-2 exponent of the page size (SV39: 4 KiB pages).
	PageShift uint = 12
	/// PageSize is the size of a single page in bytes.
	PageSize int = 1 << PageShift

	/// BlockSize is the size of a single on-disk block in bytes.
	BlockSize int = 512

	/// TicksPerSec is the scheduler's timer-interrupt rate.
	TicksPerSec uint64 = 100

	/// KernelStackSize is the size, in bytes, of one thread's kernel stack.
	KernelStackSize int = 2 * PageSize

	/// UserStackSize is the size, in bytes, of one thread's user stack.
	UserStackSize int = 2 * PageSize

	/// TrapContextSize is the size of one thread's trap-context page.
	TrapContextSize int = PageSize

	/// DefaultFrames is the default frame-pool size used by the hosted
	/// simulator when no explicit size is configured.
	DefaultFrames int = 1 << 16

	/// MmapBase is the first virtual address handed out by the per-process
	/// mmap VA allocator (spec §4.9).
	MmapBase int = 0x10000000
)

/// Env overlays a few knobs from the environment for the test/demo harness;
/// it never affects on-disk format constants, only runtime sizing.
type Env struct {
	Frames int
}

/// Load reads RVKERNEL_FRAMES (if set) and falls back to DefaultFrames.
func Load() Env {
	e := Env{Frames: DefaultFrames}
	if v := os.Getenv("RVKERNEL_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			e.Frames = n
		}
	}
	return e
}
