package trap

import (
	"rvkernel/mem"
	"rvkernel/vm"
)

// readUser copies n bytes starting at va out of ms, spanning page
// boundaries via vm.MemorySet.TranslateBytes (works for both MapArea- and
// FileMapping-backed pages, spec §4.9). Returns fewer than n bytes, ok=false
// if any page in the range is unmapped.
func readUser(ms *vm.MemorySet, va mem.VirtAddr, n int) ([]byte, bool) {
	out := make([]byte, n)
	pos := 0
	for pos < n {
		cur := va + mem.VirtAddr(pos)
		vpn := cur.PageRoundDown()
		inPage := int(cur.Offset())
		frame, ok := ms.TranslateBytes(vpn)
		if !ok {
			return nil, false
		}
		k := mem.PageSize - inPage
		if k > n-pos {
			k = n - pos
		}
		copy(out[pos:pos+k], frame[inPage:inPage+k])
		pos += k
	}
	return out, true
}

// writeUser copies data into ms starting at va, spanning page boundaries
// (the mmap/exec-time counterpart of readUser).
func writeUser(ms *vm.MemorySet, va mem.VirtAddr, data []byte) bool {
	pos := 0
	for pos < len(data) {
		cur := va + mem.VirtAddr(pos)
		vpn := cur.PageRoundDown()
		inPage := int(cur.Offset())
		frame, ok := ms.TranslateBytes(vpn)
		if !ok {
			return false
		}
		k := mem.PageSize - inPage
		if k > len(data)-pos {
			k = len(data) - pos
		}
		copy(frame[inPage:inPage+k], data[pos:pos+k])
		pos += k
	}
	return true
}

// readUserString reads a NUL-terminated string starting at va, one page at
// a time, failing if no NUL turns up within maxLen bytes (spec §7 "bad
// argument ... missing NUL").
func readUserString(ms *vm.MemorySet, va mem.VirtAddr, maxLen int) (string, bool) {
	var out []byte
	for len(out) < maxLen {
		cur := va + mem.VirtAddr(len(out))
		vpn := cur.PageRoundDown()
		inPage := int(cur.Offset())
		frame, ok := ms.TranslateBytes(vpn)
		if !ok {
			return "", false
		}
		for _, b := range frame[inPage:] {
			if b == 0 {
				return string(out), true
			}
			out = append(out, b)
			if len(out) >= maxLen {
				return "", false
			}
		}
	}
	return "", false
}
