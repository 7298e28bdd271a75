// Package region backs an allocator span with real memory.
//
// A Region is an anonymous, zero-filled mapping. Addresses handed out by an
// allocator initialized over Region.Span() translate to byte slices through
// Bytes, with every access bounds-checked against the mapping.
package region

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/joshuapare/bootalloc/alloc"
	"github.com/joshuapare/bootalloc/internal/buf"
	"github.com/joshuapare/bootalloc/internal/format"
	"github.com/joshuapare/bootalloc/internal/mmfile"
)

var (
	// ErrClosed indicates the region was already unmapped.
	ErrClosed = errors.New("region: closed")

	// ErrOutOfRange indicates an access outside the mapped span.
	ErrOutOfRange = errors.New("region: address out of range")
)

// Region is a mapped span of memory.
type Region struct {
	data    []byte
	base    alloc.Addr
	cleanup func() error
}

// Map reserves size bytes of zero-filled memory.
func Map(size uintptr) (*Region, error) {
	if size == 0 || size > uintptr(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("region: invalid size %#x", size)
	}
	data, cleanup, err := mmfile.MapAnon(int(size))
	if err != nil {
		return nil, err
	}
	return &Region{
		data:    data,
		base:    alloc.Addr(uintptr(unsafe.Pointer(&data[0]))),
		cleanup: cleanup,
	}, nil
}

// NewEarly maps size bytes and returns an EarlyAllocator initialized over them.
// Closing the region invalidates every address the allocator hands out.
func NewEarly(pageSize, size uintptr, opts *alloc.Options) (*alloc.EarlyAllocator, *Region, error) {
	ea, err := alloc.NewEarly(pageSize, opts)
	if err != nil {
		return nil, nil, err
	}
	r, err := Map(size)
	if err != nil {
		return nil, nil, err
	}
	if err := ea.Init(r.Base(), r.Size()); err != nil {
		_ = r.Close()
		return nil, nil, err
	}
	return ea, r, nil
}

// Base returns the address of the first mapped byte.
func (r *Region) Base() alloc.Addr {
	return r.base
}

// Size returns the mapping length in bytes.
func (r *Region) Size() uintptr {
	return uintptr(len(r.data))
}

// Span returns the mapped address range.
func (r *Region) Span() alloc.Span {
	return alloc.Span{Start: r.base, Size: r.Size()}
}

// Bytes returns the n bytes at addr. The slice aliases the mapping.
func (r *Region) Bytes(addr alloc.Addr, n uintptr) ([]byte, error) {
	if r.data == nil {
		return nil, ErrClosed
	}
	off, err := buf.CheckRange(uintptr(r.base), r.Size(), uintptr(addr), n)
	if err != nil {
		return nil, fmt.Errorf("%w: %s+%#x: %v", ErrOutOfRange, addr, n, err)
	}
	return r.data[off : off+n : off+n], nil
}

// ReadU64 reads a little-endian word at addr.
func (r *Region) ReadU64(addr alloc.Addr) (uint64, error) {
	b, err := r.Bytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return buf.U64LE(b), nil
}

// WriteU64 writes a little-endian word at addr.
func (r *Region) WriteU64(addr alloc.Addr, v uint64) error {
	b, err := r.Bytes(addr, 8)
	if err != nil {
		return err
	}
	buf.PutU64LE(b, v)
	return nil
}

// Discard returns the whole OS pages inside s to the system. Partial pages at
// either edge are left untouched. Discarded memory reads back as zero on Linux.
func (r *Region) Discard(s alloc.Span) error {
	if s.IsEmpty() {
		return nil
	}
	if _, err := r.Bytes(s.Start, s.Size); err != nil {
		return err
	}
	osPage := uintptr(os.Getpagesize())
	lo, ok := format.AlignUp(uintptr(s.Start), osPage)
	hi := format.AlignDown(uintptr(s.End()), osPage)
	if !ok || hi <= lo {
		return nil
	}
	b, err := r.Bytes(alloc.Addr(lo), hi-lo)
	if err != nil {
		return err
	}
	return mmfile.Discard(b)
}

// Close unmaps the region. Calling Close more than once is a no-op.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := r.cleanup()
	r.data = nil
	return err
}
