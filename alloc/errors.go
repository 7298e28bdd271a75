package alloc

import "errors"

var (
	// ErrOutOfMemory indicates the byte and page regions would collide.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrInvalidMemoryRegion indicates a zero-size, wrapping, overlapping or unmergeable span.
	ErrInvalidMemoryRegion = errors.New("alloc: invalid memory region")

	// ErrDoubleInit indicates Init was called on an allocator that already owns a span.
	ErrDoubleInit = errors.New("alloc: already initialized")

	// ErrNotInitialized indicates an operation ran before Init bound a span.
	ErrNotInitialized = errors.New("alloc: not initialized")

	// ErrInvalidParam indicates a zero size, zero page count or non power-of-two alignment.
	ErrInvalidParam = errors.New("alloc: invalid parameter")

	// ErrUnbalancedDealloc indicates a byte deallocation with no allocation outstanding.
	ErrUnbalancedDealloc = errors.New("alloc: dealloc without outstanding allocation")
)
