// Package trace replays scripted boot-time allocation sequences.
//
// A scenario is a YAML document naming the managed span and an ordered list
// of allocator calls, each optionally carrying the result it must produce:
//
//	name: early heap and one page table
//	page_size: 0x1000
//	start: 0x1000
//	size: 0x3000
//	steps:
//	  - id: heap
//	    alloc: {size: 64, align: 8}
//	    expect: {addr: 0x1000}
//	  - alloc_pages: {pages: 1, align: 0x1000}
//	    expect: {addr: 0x3000}
//	  - alloc_pages: {pages: 2, align: 0x1000}
//	    expect: {error: out_of_memory}
//	  - dealloc: {ref: heap}
//
// Replay drives any alloc.Allocator through the steps. ReplayBacked runs the
// same steps against real memory and verifies that no allocation was
// overwritten by a later one.
package trace

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/bootalloc/internal/buf"
	"github.com/joshuapare/bootalloc/internal/format"
)

// Scenario is a scripted allocation sequence.
type Scenario struct {
	Name     string `yaml:"name,omitempty"`
	PageSize uint64 `yaml:"page_size,omitempty"`
	Start    uint64 `yaml:"start"`
	Size     uint64 `yaml:"size"`
	Steps    []Step `yaml:"steps"`
}

// Step is one allocator call. Exactly one operation field is set.
type Step struct {
	// ID names the step so later dealloc steps can refer to its result.
	ID string `yaml:"id,omitempty"`

	Init         *SpanOp         `yaml:"init,omitempty"`
	AddMemory    *SpanOp         `yaml:"add_memory,omitempty"`
	Alloc        *AllocOp        `yaml:"alloc,omitempty"`
	Dealloc      *DeallocOp      `yaml:"dealloc,omitempty"`
	AllocPages   *AllocPagesOp   `yaml:"alloc_pages,omitempty"`
	DeallocPages *DeallocPagesOp `yaml:"dealloc_pages,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// SpanOp is the argument of init and add_memory.
type SpanOp struct {
	Start uint64 `yaml:"start"`
	Size  uint64 `yaml:"size"`
}

// AllocOp requests Size bytes aligned to Align.
type AllocOp struct {
	Size  uint64 `yaml:"size"`
	Align uint64 `yaml:"align"`
}

// DeallocOp releases a byte allocation, either by Ref or by explicit address and layout.
type DeallocOp struct {
	Ref   string `yaml:"ref,omitempty"`
	Addr  uint64 `yaml:"addr,omitempty"`
	Size  uint64 `yaml:"size,omitempty"`
	Align uint64 `yaml:"align,omitempty"`
}

// AllocPagesOp requests Pages contiguous pages aligned to Align.
type AllocPagesOp struct {
	Pages int    `yaml:"pages"`
	Align uint64 `yaml:"align"`
}

// DeallocPagesOp releases pages, either by Ref or by explicit address and count.
type DeallocPagesOp struct {
	Ref   string `yaml:"ref,omitempty"`
	Addr  uint64 `yaml:"addr,omitempty"`
	Pages int    `yaml:"pages,omitempty"`
}

// Expect is the required outcome of a step. An empty Expect requires success.
type Expect struct {
	Addr  *uint64 `yaml:"addr,omitempty"`
	Error string  `yaml:"error,omitempty"`
}

// Op returns the operation name of the step.
func (s *Step) Op() string {
	switch {
	case s.Init != nil:
		return "init"
	case s.AddMemory != nil:
		return "add_memory"
	case s.Alloc != nil:
		return "alloc"
	case s.Dealloc != nil:
		return "dealloc"
	case s.AllocPages != nil:
		return "alloc_pages"
	case s.DeallocPages != nil:
		return "dealloc_pages"
	}
	return ""
}

func (s *Step) opCount() int {
	n := 0
	for _, set := range []bool{
		s.Init != nil, s.AddMemory != nil, s.Alloc != nil,
		s.Dealloc != nil, s.AllocPages != nil, s.DeallocPages != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Load decodes a scenario and validates it. Unknown fields are rejected.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads and validates the scenario at path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Validate checks the scenario's structure. Allocator-level validity (sizes,
// alignments, overlaps) is left to the allocator so scenarios can exercise
// its error paths.
func (sc *Scenario) Validate() error {
	if sc.PageSize != 0 && !format.IsPowerOfTwo(uintptr(sc.PageSize)) {
		return fmt.Errorf("%w: page_size %#x is not a power of two", ErrInvalidScenario, sc.PageSize)
	}
	if sc.Size == 0 {
		return fmt.Errorf("%w: size must be non-zero", ErrInvalidScenario)
	}
	if _, ok := buf.AddOverflowSafe(uintptr(sc.Start), uintptr(sc.Size)); !ok {
		return fmt.Errorf("%w: span %#x+%#x wraps the address space", ErrInvalidScenario, sc.Start, sc.Size)
	}

	kinds := make(map[string]string, len(sc.Steps))
	for i := range sc.Steps {
		st := &sc.Steps[i]
		if n := st.opCount(); n != 1 {
			return fmt.Errorf("%w: step %d has %d operations, want exactly 1", ErrInvalidScenario, i, n)
		}
		if err := st.validateRefs(kinds); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidScenario, i, err)
		}
		if st.Expect != nil {
			if st.Expect.Error != "" && !knownErrorName(st.Expect.Error) {
				return fmt.Errorf("%w: step %d: unknown error name %q", ErrInvalidScenario, i, st.Expect.Error)
			}
			if st.Expect.Error != "" && st.Expect.Addr != nil {
				return fmt.Errorf("%w: step %d: expect has both addr and error", ErrInvalidScenario, i)
			}
		}
		if st.ID != "" {
			if _, dup := kinds[st.ID]; dup {
				return fmt.Errorf("%w: step %d: duplicate id %q", ErrInvalidScenario, i, st.ID)
			}
			kinds[st.ID] = st.Op()
		}
	}
	return nil
}

func (s *Step) validateRefs(kinds map[string]string) error {
	check := func(ref, want string) error {
		if ref == "" {
			return nil
		}
		got, ok := kinds[ref]
		if !ok {
			return fmt.Errorf("ref %q does not name an earlier step", ref)
		}
		if got != want {
			return fmt.Errorf("ref %q names a %s step, want %s", ref, got, want)
		}
		return nil
	}
	switch {
	case s.Dealloc != nil:
		return check(s.Dealloc.Ref, "alloc")
	case s.DeallocPages != nil:
		return check(s.DeallocPages.Ref, "alloc_pages")
	}
	return nil
}

// extent returns the smallest span covering the initial span and every
// add_memory and init step, so backed replays can map all of it.
func (sc *Scenario) extent() (lo, hi uint64) {
	lo, hi = sc.Start, sc.Start+sc.Size
	for i := range sc.Steps {
		var op *SpanOp
		switch {
		case sc.Steps[i].AddMemory != nil:
			op = sc.Steps[i].AddMemory
		case sc.Steps[i].Init != nil:
			op = sc.Steps[i].Init
		default:
			continue
		}
		end, ok := buf.AddOverflowSafe(uintptr(op.Start), uintptr(op.Size))
		if !ok || op.Size == 0 {
			continue
		}
		lo = min(lo, op.Start)
		hi = max(hi, uint64(end))
	}
	return lo, hi
}
