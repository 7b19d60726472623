//go:build linux

package ring

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapBacking double-maps an anonymous memfd: capacity bytes of
// storage appear twice, back to back, in one contiguous address
// range, so a view of up to capacity bytes starting anywhere in
// [0, capacity) is always a single contiguous slice even when it
// straddles the physical wrap point. Grounded on the same
// MAP_FIXED-over-PROT_NONE-reservation trick used by disk-backed ring
// buffers in the wider Go ecosystem; here the backing is an anonymous
// memfd rather than a path-addressable file, so no filesystem name is
// ever visible.
type mmapBacking struct {
	base []byte // length 2*capacity, aliased: base[k] == base[k+capacity]
	fd   int
}

func newBacking(capacity int) (backing, error) {
	fd, err := unix.MemfdCreate("stationrec-ring", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	// The memfd has no path from the moment of creation (MemfdCreate
	// never links one into any directory), satisfying "must not
	// acquire any file-system name visible after initialization".

	if err := unix.Ftruncate(fd, int64(capacity)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	// Reserve a 2*capacity address range so the two fixed mappings
	// below are guaranteed adjacent and not split by an unrelated
	// mapping racing in between.
	reservation, err := unix.Mmap(-1, 0, 2*capacity, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reserve address space: %w", err)
	}

	if err := mmapFixed(reservation, fd, 0, capacity); err != nil {
		unix.Munmap(reservation)
		unix.Close(fd)
		return nil, fmt.Errorf("map first copy: %w", err)
	}
	if err := mmapFixed(reservation[capacity:], fd, 0, capacity); err != nil {
		unix.Munmap(reservation)
		unix.Close(fd)
		return nil, fmt.Errorf("map mirror copy: %w", err)
	}

	return &mmapBacking{base: reservation, fd: fd}, nil
}

// mmapFixed maps fd's first length bytes over dst's address range in
// place, using MAP_FIXED so the kernel replaces the PROT_NONE
// reservation rather than picking a new address.
func mmapFixed(dst []byte, fd int, offset int64, length int) error {
	if len(dst) == 0 {
		return fmt.Errorf("mmapFixed: empty destination range")
	}
	addr := uintptr(unsafe.Pointer(&dst[0]))
	_, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED),
		uintptr(fd),
		uintptr(offset),
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func (b *mmapBacking) writeView(rear, n, capacity int) []byte {
	return b.base[rear : rear+n : rear+n]
}

func (b *mmapBacking) commitWrite(rear, n, capacity int, view []byte) {
	// Already live in the mapping; nothing to copy.
}

func (b *mmapBacking) readView(front, fill, capacity int) []byte {
	return b.base[front : front+fill : front+fill]
}

func (b *mmapBacking) close() error {
	capacity := len(b.base) / 2
	err := unix.Munmap(b.base[:capacity])
	if err2 := unix.Munmap(b.base[capacity:]); err == nil {
		err = err2
	}
	if err2 := unix.Close(b.fd); err == nil {
		err = err2
	}
	return err
}
