package alloc

// BaseAllocator binds an allocator to memory.
type BaseAllocator interface {
	// Init binds the managed span [start, start+size). It must be called
	// exactly once, before any allocation.
	Init(start Addr, size uintptr) error

	// AddMemory registers an additional span. The span must not overlap
	// memory the allocator already manages.
	AddMemory(start Addr, size uintptr) error
}

// ByteAllocator hands out byte-granular memory.
type ByteAllocator interface {
	BaseAllocator

	// Alloc returns the address of size bytes aligned to layout.Align.
	Alloc(layout Layout) (Addr, error)

	// Dealloc releases memory returned by Alloc. Implementations may
	// reclaim lazily; ptr and layout must match the original request.
	Dealloc(ptr Addr, layout Layout) error

	TotalBytes() uintptr
	UsedBytes() uintptr
	AvailableBytes() uintptr
}

// PageAllocator hands out page-granular memory.
type PageAllocator interface {
	BaseAllocator

	// PageSize is the fixed granularity of page allocations.
	PageSize() uintptr

	// AllocPages returns the start of numPages contiguous pages aligned to
	// alignPow2 (and always to PageSize).
	AllocPages(numPages int, alignPow2 uintptr) (Addr, error)

	// DeallocPages releases pages returned by AllocPages. Implementations
	// that never reclaim pages accept the call as a no-op.
	DeallocPages(start Addr, numPages int)

	TotalPages() int
	UsedPages() int
	AvailablePages() int
}

// Allocator is the full capability set expected by boot-time memory code.
//
// Implementations:
//   - EarlyAllocator: double-ended bump allocator used before the permanent
//     byte and page allocators exist
type Allocator interface {
	ByteAllocator
	PageAllocator
}
