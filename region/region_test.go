package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/bootalloc/alloc"
)

func TestRegion_MapAndAccess(t *testing.T) {
	r, err := Map(0x4000)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uintptr(0x4000), r.Size())
	assert.Equal(t, r.Base(), r.Span().Start)
	assert.Equal(t, r.Base()+0x4000, r.Span().End())

	require.NoError(t, r.WriteU64(r.Base()+0x10, 0xfeedfacecafebeef))
	v, err := r.ReadU64(r.Base() + 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xfeedfacecafebeef), v)

	b, err := r.Bytes(r.Base()+0x10, 8)
	require.NoError(t, err)
	assert.Equal(t, byte(0xef), b[0], "little-endian low byte first")
	assert.Equal(t, 8, cap(b), "returned slice must not expose neighbouring memory")
}

func TestRegion_BoundsChecked(t *testing.T) {
	r, err := Map(0x1000)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Bytes(r.Base()-1, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.Bytes(r.Base()+0xff9, 8)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.Bytes(r.Base()+0xff8, 8)
	require.NoError(t, err)
	require.ErrorIs(t, r.WriteU64(r.Base()+0x1000, 1), ErrOutOfRange)
}

func TestRegion_InvalidSize(t *testing.T) {
	_, err := Map(0)
	require.Error(t, err)
}

func TestRegion_Close(t *testing.T) {
	r, err := Map(0x1000)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second Close is a no-op")
	_, err = r.Bytes(r.Base(), 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestRegion_DiscardValidatesSpan(t *testing.T) {
	r, err := Map(0x4000)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Discard(alloc.Span{}))
	require.NoError(t, r.Discard(alloc.Span{Start: r.Base() + 1, Size: 0x10}), "no whole page inside")
	require.NoError(t, r.Discard(r.Span()))
	require.ErrorIs(t, r.Discard(alloc.Span{Start: r.Base(), Size: 0x5000}), ErrOutOfRange)
}

// TestRegion_BackedAllocations stamps every allocation with its own address and
// checks that no later allocation overwrote an earlier one.
func TestRegion_BackedAllocations(t *testing.T) {
	ea, r, err := NewEarly(0x1000, 0x10000, nil)
	require.NoError(t, err)
	defer r.Close()

	st := ea.Stats()
	assert.Equal(t, r.Base(), st.Start)
	assert.Equal(t, r.Span().End(), st.End)

	var stamped []alloc.Addr
	for i := range 16 {
		p, err := ea.Alloc(alloc.Layout{Size: 64, Align: 8})
		require.NoError(t, err)
		require.NoError(t, r.WriteU64(p, uint64(p)))
		stamped = append(stamped, p)

		if i%4 == 0 {
			pg, err := ea.AllocPages(1, 0x1000)
			require.NoError(t, err)
			page, err := r.Bytes(pg, 0x1000)
			require.NoError(t, err)
			for j := range page {
				page[j] = 0xa5
			}
		}
	}

	for _, p := range stamped {
		v, err := r.ReadU64(p)
		require.NoError(t, err)
		assert.Equal(t, uint64(p), v, "allocation at %s was overwritten", p)
	}
}

func TestRegion_NewEarlyRejectsBadPageSize(t *testing.T) {
	_, _, err := NewEarly(0x1001, 0x1000, nil)
	require.ErrorIs(t, err, alloc.ErrInvalidParam)
}
