// Package alloc provides the early-boot memory allocator and the capability
// interfaces shared with the permanent allocators that replace it.
//
// # Overview
//
// During boot, before a general-purpose byte allocator or page allocator
// exists, memory still has to be handed out: small, short-lived structures
// on one side and page frames that live for the rest of execution on the
// other. EarlyAllocator serves both from one fixed span by growing two
// regions toward each other.
//
// # Allocator Interfaces
//
// Three capability sets let allocator-consuming code stay agnostic of the
// implementation:
//
//   - BaseAllocator: Init(start, size) and AddMemory(start, size)
//   - ByteAllocator: Alloc(layout), Dealloc(ptr, layout) and byte accounting
//   - PageAllocator: AllocPages(n, align), DeallocPages(start, n) and page accounting
//
// Allocator combines all three.
//
// # Usage Example
//
//	ea, err := alloc.NewEarly(0x1000, nil)
//	if err != nil {
//	    return err
//	}
//	if err := ea.Init(0x1000, 0x3000); err != nil {
//	    return err
//	}
//
//	p, err := ea.Alloc(alloc.Layout{Size: 64, Align: 8})   // 0x1000
//	pg, err := ea.AllocPages(1, 0x1000)                    // 0x3000
//
//	// Later, release the byte allocation; the byte region resets to start
//	// once nothing is outstanding.
//	err = ea.Dealloc(p, alloc.Layout{Size: 64, Align: 8})
//
// # Reclamation
//
// Byte allocations are counted, not tracked. Dealloc decrements the count
// and, when it reaches zero, rewinds the byte cursor to the start of the
// span. A single long-lived byte allocation therefore pins the entire byte
// region. Pages are never reclaimed; DeallocPages is accepted and ignored.
//
// # Errors
//
// Failures wrap one of the package sentinels and carry the failing request's
// parameters:
//
//	_, err := ea.AllocPages(2, 0x1000)
//	errors.Is(err, alloc.ErrOutOfMemory) // true
//	err.Error() // "alloc_pages(2, align=0x1000): alloc: out of memory"
//
// ErrOutOfMemory (regions would collide) is distinct from ErrNotInitialized
// (no span bound yet).
//
// # Handoff
//
// Handoff reports the free gap and the page region so the permanent
// allocators can adopt them. The EarlyAllocator is then abandoned.
//
// # Thread Safety
//
// Allocator instances are not thread-safe. The owner must hold a lock around
// every call if more than one core runs before handoff.
//
// # Related Packages
//
//   - github.com/joshuapare/bootalloc/region: real backing memory for a span
//   - github.com/joshuapare/bootalloc/trace: scripted allocation scenarios
package alloc
