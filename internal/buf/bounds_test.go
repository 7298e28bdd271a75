package buf

import (
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(MaxAddr, 1); ok {
		t.Fatalf("expected overflow when adding to MaxAddr")
	}
	if sum, ok := AddOverflowSafe(MaxAddr, 0); !ok || sum != MaxAddr {
		t.Fatalf("AddOverflowSafe(MaxAddr,0)=%d,%v want MaxAddr,true", sum, ok)
	}
}

func TestSubUnderflowSafe(t *testing.T) {
	if diff, ok := SubUnderflowSafe(0x3000, 0x1000); !ok || diff != 0x2000 {
		t.Fatalf("SubUnderflowSafe=%#x,%v want 0x2000,true", diff, ok)
	}
	if _, ok := SubUnderflowSafe(0x1000, 0x1001); ok {
		t.Fatalf("expected underflow")
	}
}

func TestMulOverflowSafe(t *testing.T) {
	if p, ok := MulOverflowSafe(3, 0x1000); !ok || p != 0x3000 {
		t.Fatalf("MulOverflowSafe(3,0x1000)=%#x,%v", p, ok)
	}
	if p, ok := MulOverflowSafe(0, MaxAddr); !ok || p != 0 {
		t.Fatalf("MulOverflowSafe(0,MaxAddr)=%#x,%v", p, ok)
	}
	if _, ok := MulOverflowSafe(MaxAddr/2+1, 2); ok {
		t.Fatalf("expected overflow")
	}
}

func TestCheckRange(t *testing.T) {
	tests := []struct {
		name    string
		addr, n uintptr
		wantOff uintptr
		wantErr bool
	}{
		{"start", 0x1000, 0x10, 0, false},
		{"middle", 0x1800, 0x100, 0x800, false},
		{"exact end", 0x1f00, 0x100, 0xf00, false},
		{"below base", 0xfff, 1, 0, true},
		{"past end", 0x1f00, 0x101, 0, true},
		{"overflow", MaxAddr, 2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, err := CheckRange(0x1000, 0x1000, tt.addr, tt.n)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got offset %#x", off)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if off != tt.wantOff {
				t.Fatalf("offset=%#x want %#x", off, tt.wantOff)
			}
		})
	}
}
