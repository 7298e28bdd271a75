package alloc

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPageSize = 0x1000

// newTestEarly returns an allocator initialized over [start, start+size)
// with the test page size.
func newTestEarly(t testing.TB, start Addr, size uintptr) *EarlyAllocator {
	t.Helper()
	ea, err := NewEarly(testPageSize, nil)
	require.NoError(t, err)
	require.NoError(t, ea.Init(start, size))
	return ea
}

// newLoggedEarly is newTestEarly with a Debug-level text logger writing to the returned buffer.
func newLoggedEarly(t testing.TB, start Addr, size uintptr) (*EarlyAllocator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ea, err := NewEarly(testPageSize, &Options{Logger: logger})
	require.NoError(t, err)
	require.NoError(t, ea.Init(start, size))
	return ea, &out
}

// requireInvariants fails the test if any allocator invariant is broken.
func requireInvariants(t testing.TB, ea *EarlyAllocator) {
	t.Helper()
	require.NoError(t, ea.Check())
	st := ea.Stats()
	require.LessOrEqual(t, st.Start, st.BytePos, "start <= bytePos")
	require.LessOrEqual(t, st.BytePos, st.PagePos, "bytePos <= pagePos")
	require.LessOrEqual(t, st.PagePos, st.End, "pagePos <= end")
}

func layout(size, align uintptr) Layout {
	return Layout{Size: size, Align: align}
}
