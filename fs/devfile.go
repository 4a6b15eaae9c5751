package fs

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a BlockDevice backed by a real file, mmap'd in full so reads
// and writes touch the page cache directly rather than going through
// per-block Seek+Read/Write syscalls — the disk becomes a second directly
// addressable byte region, mirroring the way mem.PhysicalMemory exposes
// simulated RAM (grounded on ufs/driver.go's ahci_disk_t, upgraded to
// golang.org/x/sys/unix.Mmap the way the teacher's Physmem exposes memory
// through Dmap).
type FileDevice struct {
	f       *os.File
	data    []byte
	nblocks int
}

/// OpenFileDevice mmaps an existing image file of exactly nblocks*BlockSize
/// bytes for read/write access.
func OpenFileDevice(path string, nblocks int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	size := nblocks * BlockSize
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, data: data, nblocks: nblocks}, nil
}

/// CreateFileDevice creates (truncating if present) a new image file of
/// nblocks*BlockSize bytes, zero-filled, and mmaps it.
func CreateFileDevice(path string, nblocks int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(nblocks) * int64(BlockSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, data: data, nblocks: nblocks}, nil
}

func (d *FileDevice) bounds(id int) []byte {
	if id < 0 || id >= d.nblocks {
		panic("fs: block id out of range")
	}
	off := id * BlockSize
	return d.data[off : off+BlockSize]
}

func (d *FileDevice) ReadBlock(id int, buf []byte) { copy(buf, d.bounds(id)) }

func (d *FileDevice) WriteBlock(id int, buf []byte) { copy(d.bounds(id), buf) }

/// Sync flushes the mmap'd pages back to the file (msync).
func (d *FileDevice) Sync() error { return unix.Msync(d.data, unix.MS_SYNC) }

/// Close unmaps the image and closes the backing file.
func (d *FileDevice) Close() error {
	if err := unix.Munmap(d.data); err != nil {
		return err
	}
	return d.f.Close()
}
