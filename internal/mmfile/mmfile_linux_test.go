package mmfile

import (
	"testing"
)

// MADV_DONTNEED zero-fills private anonymous pages only on Linux.
func TestMapAnonLinuxDiscard(t *testing.T) {
	data, cleanup, err := MapAnon(0x2000)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}
	defer cleanup()

	data[0x1000] = 0x42
	if err := Discard(data); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if data[0x1000] != 0 {
		t.Fatalf("discarded page should read back as zero, got 0x%x", data[0x1000])
	}
}
