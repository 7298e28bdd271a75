package trace

import (
	"errors"

	"github.com/joshuapare/bootalloc/alloc"
)

var (
	// ErrInvalidScenario indicates a malformed scenario file.
	ErrInvalidScenario = errors.New("trace: invalid scenario")

	// ErrExpectation indicates at least one step's result differed from its expectation.
	ErrExpectation = errors.New("trace: expectation not met")

	// ErrCorruption indicates memory stamped into an allocation was overwritten.
	ErrCorruption = errors.New("trace: allocation overwritten")
)

// errorKinds maps scenario error names to allocator sentinels.
var errorKinds = []struct {
	name string
	err  error
}{
	{"out_of_memory", alloc.ErrOutOfMemory},
	{"invalid_memory_region", alloc.ErrInvalidMemoryRegion},
	{"double_init", alloc.ErrDoubleInit},
	{"not_initialized", alloc.ErrNotInitialized},
	{"invalid_param", alloc.ErrInvalidParam},
	{"unbalanced_dealloc", alloc.ErrUnbalancedDealloc},
}

// ErrorName returns the scenario name of err's allocator sentinel, "" for nil
// and "other" for errors outside the allocator taxonomy.
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}

func knownErrorName(name string) bool {
	for _, k := range errorKinds {
		if k.name == name {
			return true
		}
	}
	return false
}
