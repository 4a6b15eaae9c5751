package proc

import "unsafe"

// ptrTo reinterprets the first bytes of buf as a *TrapContext, mirroring the
// typed BlockCache accessors in package fs (Read/Modify) but for a page of
// simulated physical memory instead of a cached disk block.
func ptrTo(buf []byte) *TrapContext {
	return (*TrapContext)(unsafe.Pointer(&buf[0]))
}
