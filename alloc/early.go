package alloc

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/bootalloc/internal/buf"
	"github.com/joshuapare/bootalloc/internal/format"
)

// DefaultPageSize is the page granularity used when Options leave it unset.
const DefaultPageSize = 0x1000

// Options configures an EarlyAllocator.
type Options struct {
	// Logger receives call tracing at Debug and failures at Warn.
	// Nil discards all output.
	Logger *slog.Logger
}

// EarlyAllocator is a double-ended bump allocator used before the permanent
// byte and page allocators are ready. Bytes grow forward from start, pages
// grow backward from end:
//
//	[ bytes-used | avail-area | pages-used ]
//	|            | -->    <-- |            |
//	start      bytePos     pagePos        end
//
// Byte memory is reclaimed all at once when the outstanding allocation count
// drops to zero. Pages are never reclaimed; they are handed off intact.
//
// Key characteristics:
//   - O(1) for every operation: pure cursor arithmetic, no free lists
//   - No metadata stored inside the managed span
//   - Not safe for concurrent use; the owner serializes access
//
// The zero value is ready for Init with DefaultPageSize and no logging.
type EarlyAllocator struct {
	start Addr
	end   Addr

	// bytePos is the next free byte. Resets to start when count reaches zero.
	bytePos Addr

	// pagePos is the lowest allocated page. Only ever moves down.
	pagePos Addr

	pageSize uintptr

	// count is the number of outstanding byte allocations.
	count int

	initialized bool
	log         *slog.Logger
}

// NewEarly creates an uninitialized EarlyAllocator with the given page size.
// A zero pageSize selects DefaultPageSize.
//
// Parameters:
//   - pageSize: page granularity; must be a power of two
//   - opts: optional configuration (nil uses defaults)
func NewEarly(pageSize uintptr, opts *Options) (*EarlyAllocator, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if !format.IsPowerOfTwo(pageSize) {
		return nil, fmt.Errorf("%w: page size %#x is not a power of two", ErrInvalidParam, pageSize)
	}

	logger := discardLogger
	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	}

	return &EarlyAllocator{
		pageSize: pageSize,
		log:      logger.With("component", "early_alloc"),
	}, nil
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init binds the allocator to [start, start+size).
func (ea *EarlyAllocator) Init(start Addr, size uintptr) error {
	if ea.log == nil {
		ea.log = discardLogger
	}
	ea.pageSize = ea.PageSize()
	if ea.initialized {
		ea.log.Warn("init rejected", "start", start, "size", size, "err", ErrDoubleInit)
		return fmt.Errorf("init(%s, %#x): %w (span %s)", start, size, ErrDoubleInit, ea.span())
	}
	s, err := spanOf(start, size)
	if err != nil {
		ea.log.Warn("init rejected", "start", start, "size", size, "err", err)
		return fmt.Errorf("init(%s, %#x): %w", start, size, err)
	}

	ea.start = s.Start
	ea.end = s.End()
	ea.bytePos = ea.start
	ea.pagePos = ea.end
	ea.count = 0
	ea.initialized = true

	ea.log.Info("init", "start", ea.start, "end", ea.end, "page_size", ea.pageSize)
	return nil
}

// AddMemory merges an adjacent span into the managed range.
//
// A span ending at start extends the byte side and is accepted only while no
// byte allocation is outstanding. A span beginning at end extends the page
// side and is accepted only while no page has been allocated. Anything else
// is rejected with ErrInvalidMemoryRegion.
func (ea *EarlyAllocator) AddMemory(start Addr, size uintptr) error {
	if !ea.initialized {
		return fmt.Errorf("add_memory(%s, %#x): %w", start, size, ErrNotInitialized)
	}
	s, err := spanOf(start, size)
	if err != nil {
		ea.log.Warn("add_memory rejected", "start", start, "size", size, "err", err)
		return fmt.Errorf("add_memory(%s, %#x): %w", start, size, err)
	}
	if s.Overlaps(ea.span()) {
		ea.log.Warn("add_memory rejected", "start", start, "size", size, "reason", "overlap")
		return fmt.Errorf("add_memory(%s, %#x): %w: overlaps %s", start, size, ErrInvalidMemoryRegion, ea.span())
	}

	switch {
	case s.Start == ea.end && ea.pagePos == ea.end:
		ea.end = s.End()
		ea.pagePos = ea.end
	case s.End() == ea.start && ea.count == 0:
		ea.start = s.Start
		ea.bytePos = ea.start
	default:
		ea.log.Warn("add_memory rejected", "start", start, "size", size, "reason", "not mergeable")
		return fmt.Errorf("add_memory(%s, %#x): %w: not adjacent to a free boundary of %s",
			start, size, ErrInvalidMemoryRegion, ea.span())
	}

	ea.log.Info("add_memory", "start", start, "size", size, "span_start", ea.start, "span_end", ea.end)
	return nil
}

// Alloc bumps the byte cursor. It never reuses freed holes.
func (ea *EarlyAllocator) Alloc(layout Layout) (Addr, error) {
	if !ea.initialized {
		return 0, fmt.Errorf("alloc(size=%#x, align=%#x): %w", layout.Size, layout.Align, ErrNotInitialized)
	}
	if err := layout.validate(); err != nil {
		return 0, fmt.Errorf("alloc(size=%#x, align=%#x): %w", layout.Size, layout.Align, err)
	}

	rounded, ok := format.AlignUp(uintptr(ea.bytePos), layout.Align)
	var next uintptr
	if ok {
		next, ok = buf.AddOverflowSafe(rounded, layout.Size)
	}
	if !ok || next > uintptr(ea.pagePos) {
		ea.log.Warn("alloc failed", "size", layout.Size, "align", layout.Align,
			"byte_pos", ea.bytePos, "page_pos", ea.pagePos)
		return 0, fmt.Errorf("alloc(size=%#x, align=%#x): %w", layout.Size, layout.Align, ErrOutOfMemory)
	}

	ea.bytePos = Addr(next)
	ea.count++

	ea.log.Debug("alloc", "size", layout.Size, "align", layout.Align, "addr", Addr(rounded), "outstanding", ea.count)
	return Addr(rounded), nil
}

// Dealloc releases one byte allocation. When the last outstanding allocation
// is released the whole byte region is reclaimed.
//
// A pointer outside the live byte range belongs to an already reclaimed
// generation and is ignored.
func (ea *EarlyAllocator) Dealloc(ptr Addr, layout Layout) error {
	if !ea.initialized {
		return fmt.Errorf("dealloc(%s, size=%#x): %w", ptr, layout.Size, ErrNotInitialized)
	}
	if ea.count == 0 {
		ea.log.Warn("dealloc rejected", "ptr", ptr, "size", layout.Size, "err", ErrUnbalancedDealloc)
		return fmt.Errorf("dealloc(%s, size=%#x): %w", ptr, layout.Size, ErrUnbalancedDealloc)
	}
	if ptr < ea.start || ptr >= ea.bytePos {
		ea.log.Debug("dealloc of retired pointer ignored", "ptr", ptr, "size", layout.Size)
		return nil
	}

	ea.count--
	if ea.count == 0 {
		ea.bytePos = ea.start
		ea.log.Debug("byte region reclaimed", "start", ea.start)
	}

	ea.log.Debug("dealloc", "ptr", ptr, "size", layout.Size, "outstanding", ea.count)
	return nil
}

// TotalBytes is the byte region's ceiling: everything below the page region.
func (ea *EarlyAllocator) TotalBytes() uintptr {
	return uintptr(ea.pagePos - ea.start)
}

// UsedBytes counts bytes consumed by the byte region, alignment padding included.
func (ea *EarlyAllocator) UsedBytes() uintptr {
	return uintptr(ea.bytePos - ea.start)
}

// AvailableBytes is the gap between the two regions.
func (ea *EarlyAllocator) AvailableBytes() uintptr {
	return uintptr(ea.pagePos - ea.bytePos)
}

// PageSize returns the page granularity fixed at construction.
func (ea *EarlyAllocator) PageSize() uintptr {
	if ea.pageSize == 0 {
		return DefaultPageSize
	}
	return ea.pageSize
}

// AllocPages moves the page cursor down by numPages and aligns the result
// down to max(alignPow2, PageSize).
func (ea *EarlyAllocator) AllocPages(numPages int, alignPow2 uintptr) (Addr, error) {
	if !ea.initialized {
		return 0, fmt.Errorf("alloc_pages(%d, align=%#x): %w", numPages, alignPow2, ErrNotInitialized)
	}
	if numPages <= 0 {
		return 0, fmt.Errorf("alloc_pages(%d, align=%#x): %w: page count must be positive",
			numPages, alignPow2, ErrInvalidParam)
	}
	if !format.IsPowerOfTwo(alignPow2) {
		return 0, fmt.Errorf("alloc_pages(%d, align=%#x): %w: align is not a power of two",
			numPages, alignPow2, ErrInvalidParam)
	}

	align := max(alignPow2, ea.pageSize)
	size, ok := buf.MulOverflowSafe(uintptr(numPages), ea.pageSize)
	var candidate uintptr
	if ok {
		candidate, ok = buf.SubUnderflowSafe(uintptr(ea.pagePos), size)
	}
	if ok {
		candidate = format.AlignDown(candidate, align)
	}
	if !ok || candidate < uintptr(ea.bytePos) {
		ea.log.Warn("alloc_pages failed", "pages", numPages, "align", alignPow2,
			"byte_pos", ea.bytePos, "page_pos", ea.pagePos)
		return 0, fmt.Errorf("alloc_pages(%d, align=%#x): %w", numPages, alignPow2, ErrOutOfMemory)
	}

	ea.pagePos = Addr(candidate)

	ea.log.Debug("alloc_pages", "pages", numPages, "align", alignPow2, "addr", ea.pagePos)
	return ea.pagePos, nil
}

// DeallocPages is a no-op: pages handed out here are never reclaimed.
func (ea *EarlyAllocator) DeallocPages(start Addr, numPages int) {
	if ea.log == nil {
		return
	}
	ea.log.Debug("dealloc_pages ignored", "start", start, "pages", numPages)
}

// TotalPages is the number of pages allocated plus the number that still fit.
func (ea *EarlyAllocator) TotalPages() int {
	return ea.UsedPages() + ea.AvailablePages()
}

// UsedPages counts pages from the page cursor to the end of the span.
func (ea *EarlyAllocator) UsedPages() int {
	return int(uintptr(ea.end-ea.pagePos) / ea.PageSize())
}

// AvailablePages counts whole, page-aligned pages left in the gap.
func (ea *EarlyAllocator) AvailablePages() int {
	ps := ea.PageSize()
	lo, ok := format.AlignUp(uintptr(ea.bytePos), ps)
	hi := format.AlignDown(uintptr(ea.pagePos), ps)
	if !ok || hi <= lo {
		return 0
	}
	return int((hi - lo) / ps)
}

// Outstanding returns the number of live byte allocations.
func (ea *EarlyAllocator) Outstanding() int {
	return ea.count
}

// Initialized reports whether Init has bound a span.
func (ea *EarlyAllocator) Initialized() bool {
	return ea.initialized
}

// Stats returns a snapshot of the allocator's accounting.
func (ea *EarlyAllocator) Stats() Stats {
	return Stats{
		Start:          ea.start,
		End:            ea.end,
		BytePos:        ea.bytePos,
		PagePos:        ea.pagePos,
		PageSize:       ea.PageSize(),
		Outstanding:    ea.count,
		TotalBytes:     ea.TotalBytes(),
		UsedBytes:      ea.UsedBytes(),
		AvailableBytes: ea.AvailableBytes(),
		TotalPages:     ea.TotalPages(),
		UsedPages:      ea.UsedPages(),
		AvailablePages: ea.AvailablePages(),
	}
}

// Handoff reports the regions the permanent allocators take over. The
// allocator itself is left unchanged; the owner abandons it afterwards.
func (ea *EarlyAllocator) Handoff() (Handoff, error) {
	if !ea.initialized {
		return Handoff{}, fmt.Errorf("handoff: %w", ErrNotInitialized)
	}
	h := Handoff{
		Bytes: Span{Start: ea.start, Size: uintptr(ea.bytePos - ea.start)},
		Free:  Span{Start: ea.bytePos, Size: uintptr(ea.pagePos - ea.bytePos)},
		Pages: Span{Start: ea.pagePos, Size: uintptr(ea.end - ea.pagePos)},
	}
	ea.log.Info("handoff", "free", h.Free.String(), "pages", h.Pages.String(), "outstanding", ea.count)
	return h, nil
}

// Check verifies the allocator's invariants.
func (ea *EarlyAllocator) Check() error {
	if !ea.initialized {
		return nil
	}
	switch {
	case !(ea.start <= ea.bytePos && ea.bytePos <= ea.pagePos && ea.pagePos <= ea.end):
		return fmt.Errorf("cursor order violated: start=%s byte=%s page=%s end=%s",
			ea.start, ea.bytePos, ea.pagePos, ea.end)
	case ea.count < 0:
		return fmt.Errorf("negative outstanding count %d", ea.count)
	case ea.count == 0 && ea.bytePos != ea.start:
		return fmt.Errorf("byte cursor %s not reset with no outstanding allocations", ea.bytePos)
	case ea.pagePos != ea.end && !format.IsAligned(uintptr(ea.pagePos), ea.pageSize):
		return fmt.Errorf("page cursor %s not aligned to %#x", ea.pagePos, ea.pageSize)
	}
	return nil
}

func (ea *EarlyAllocator) span() Span {
	return Span{Start: ea.start, Size: uintptr(ea.end - ea.start)}
}

// Compile-time interface check
var _ Allocator = (*EarlyAllocator)(nil)
