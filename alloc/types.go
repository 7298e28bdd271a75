package alloc

import (
	"fmt"

	"github.com/joshuapare/bootalloc/internal/buf"
	"github.com/joshuapare/bootalloc/internal/format"
)

// Addr is an address inside a managed span.
type Addr uintptr

// String renders the address in hex.
func (a Addr) String() string {
	return fmt.Sprintf("%#x", uintptr(a))
}

// MarshalText renders the address in hex for JSON and structured logs.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Layout describes a byte allocation request.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// NewLayout returns a validated Layout. Size must be non-zero and Align a power of two.
func NewLayout(size, align uintptr) (Layout, error) {
	l := Layout{Size: size, Align: align}
	if err := l.validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

func (l Layout) validate() error {
	if l.Size == 0 {
		return fmt.Errorf("%w: zero size", ErrInvalidParam)
	}
	if !format.IsPowerOfTwo(l.Align) {
		return fmt.Errorf("%w: align %#x is not a power of two", ErrInvalidParam, l.Align)
	}
	return nil
}

// Span is a half-open address range [Start, Start+Size).
type Span struct {
	Start Addr
	Size  uintptr
}

// End returns the exclusive upper bound of the span.
func (s Span) End() Addr {
	return s.Start + Addr(s.Size)
}

// IsEmpty reports whether the span covers no bytes.
func (s Span) IsEmpty() bool {
	return s.Size == 0
}

// Contains reports whether addr lies within the span.
func (s Span) Contains(addr Addr) bool {
	return addr >= s.Start && addr < s.End()
}

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	if s.IsEmpty() || o.IsEmpty() {
		return false
	}
	return s.Start < o.End() && o.Start < s.End()
}

func (s Span) String() string {
	return fmt.Sprintf("[%s, %s)", s.Start, s.End())
}

// spanOf builds a span, rejecting empty or wrapping ranges.
func spanOf(start Addr, size uintptr) (Span, error) {
	if size == 0 {
		return Span{}, fmt.Errorf("%w: zero size at %s", ErrInvalidMemoryRegion, start)
	}
	if _, ok := buf.AddOverflowSafe(uintptr(start), size); !ok {
		return Span{}, fmt.Errorf("%w: %s + %#x wraps the address space", ErrInvalidMemoryRegion, start, size)
	}
	return Span{Start: start, Size: size}, nil
}

// Stats is a point-in-time view of an allocator's accounting.
type Stats struct {
	Start       Addr
	End         Addr
	BytePos     Addr
	PagePos     Addr
	PageSize    uintptr
	Outstanding int

	TotalBytes     uintptr
	UsedBytes      uintptr
	AvailableBytes uintptr

	TotalPages     int
	UsedPages      int
	AvailablePages int
}

// Utilization is the fraction of the span consumed by either region.
func (s Stats) Utilization() float64 {
	span := uintptr(s.End - s.Start)
	if span == 0 {
		return 0
	}
	used := s.UsedBytes + uintptr(s.UsedPages)*s.PageSize
	return float64(used) / float64(span)
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"span %s-%s, bytes %s used / %s free (%s live), pages %s used / %s free, %.1f%% utilized",
		s.Start, s.End,
		format.FormatBytes(uint64(s.UsedBytes)),
		format.FormatBytes(uint64(s.AvailableBytes)),
		format.FormatCount(uint64(s.Outstanding)),
		format.FormatCount(uint64(s.UsedPages)),
		format.FormatCount(uint64(s.AvailablePages)),
		s.Utilization()*100,
	)
}

// Handoff describes the regions transferred to the permanent allocators.
type Handoff struct {
	// Bytes holds the live byte allocations (empty when none are outstanding).
	Bytes Span
	// Free is the unused gap between the two regions.
	Free Span
	// Pages holds every page handed out so far.
	Pages Span
}
