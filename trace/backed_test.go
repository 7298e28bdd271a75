package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/bootalloc/alloc"
)

// scriptedAllocator keeps the EarlyAllocator's accounting but hands out
// fixed scenario addresses, standing in for a buggy allocator.
type scriptedAllocator struct {
	*alloc.EarlyAllocator
	rp    *replayer
	bytes []uint64
	pages []uint64
}

func (s *scriptedAllocator) Alloc(l alloc.Layout) (alloc.Addr, error) {
	if _, err := s.EarlyAllocator.Alloc(l); err != nil {
		return 0, err
	}
	next := s.bytes[0]
	s.bytes = s.bytes[1:]
	return s.rp.real(next), nil
}

func (s *scriptedAllocator) AllocPages(n int, align uintptr) (alloc.Addr, error) {
	if _, err := s.EarlyAllocator.AllocPages(n, align); err != nil {
		return 0, err
	}
	next := s.pages[0]
	s.pages = s.pages[1:]
	return s.rp.real(next), nil
}

func newScriptedReplay(t *testing.T, sc *Scenario, bytes, pages []uint64) *replayer {
	t.Helper()
	rp, err := newBackedReplayer(sc, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rp.mem.Close() })

	ea, ok := rp.a.(*alloc.EarlyAllocator)
	require.True(t, ok)
	rp.a = &scriptedAllocator{EarlyAllocator: ea, rp: rp, bytes: bytes, pages: pages}
	return rp
}

func twoStepScenario(second Step) *Scenario {
	return &Scenario{
		PageSize: 0x1000,
		Start:    0x1000,
		Size:     0x3000,
		Steps: []Step{
			{Alloc: &AllocOp{Size: 16, Align: 8}},
			second,
		},
	}
}

func TestReplayBacked_SameAddressTwice(t *testing.T) {
	sc := twoStepScenario(Step{Alloc: &AllocOp{Size: 16, Align: 8}})
	rp := newScriptedReplay(t, sc, []uint64{0x1000, 0x1000}, nil)

	rep, err := rp.run(sc)
	require.ErrorIs(t, err, ErrCorruption)
	require.NotNil(t, rep)
	assert.Equal(t, []string{
		"bytes at 0x1000 (step 1) overlaps live bytes at 0x1000 (step 0)",
	}, rep.Corruptions)
	assert.Zero(t, rep.Mismatches)
}

func TestReplayBacked_PartialOverlap(t *testing.T) {
	sc := twoStepScenario(Step{Alloc: &AllocOp{Size: 16, Align: 4}})
	rp := newScriptedReplay(t, sc, []uint64{0x1000, 0x1004}, nil)

	rep, err := rp.run(sc)
	require.ErrorIs(t, err, ErrCorruption)
	assert.Equal(t, []string{
		"bytes at 0x1000 (step 0): got 0xfe94e82e7f4a6c15 want 0x2e3027547f4a6c15",
		"bytes at 0x1004 (step 1) overlaps live bytes at 0x1000 (step 0)",
	}, rep.Corruptions)
	assert.EqualError(t, err, "trace: allocation overwritten: 2 allocation(s)")
}

func TestReplayBacked_PageOverLiveBytes(t *testing.T) {
	sc := twoStepScenario(Step{AllocPages: &AllocPagesOp{Pages: 1, Align: 0x1000}})
	rp := newScriptedReplay(t, sc, []uint64{0x1000}, []uint64{0x1000})

	rep, err := rp.run(sc)
	require.ErrorIs(t, err, ErrCorruption)
	require.Len(t, rep.Corruptions, 2)
	assert.Equal(t, "bytes at 0x1000 (step 0): got 0x8c69ad9ffe94e82a want 0x2e3027547f4a6c15", rep.Corruptions[0])
	assert.Equal(t, "page at 0x1000 (step 1) overlaps live bytes at 0x1000 (step 0)", rep.Corruptions[1])
}

func TestReplayBacked_ReuseAfterReclaimIsClean(t *testing.T) {
	sc, err := Load(strings.NewReader(`
page_size: 0x1000
start: 0x1000
size: 0x3000
steps:
  - id: first
    alloc: {size: 32, align: 8}
    expect: {addr: 0x1000}
  - dealloc: {ref: first}
  - id: second
    alloc: {size: 32, align: 8}
    expect: {addr: 0x1000}
  - alloc_pages: {pages: 1, align: 0x1000}
    expect: {addr: 0x3000}
`))
	require.NoError(t, err)

	rep, err := ReplayBacked(sc, nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Corruptions)
	assert.Zero(t, rep.Mismatches)
}
