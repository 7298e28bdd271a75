package main

import (
	"errors"
	"testing"

	"github.com/joshuapare/bootalloc/alloc"
)

func TestLayoutCommand(t *testing.T) {
	resetFlags()
	layoutStart = 0x1000
	layoutSize = 0x3000

	output, err := captureOutput(t, runLayout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertContains(t, output, []string{
		"Span: [0x1000, 0x4000)",
		"Byte capacity: 0x3000",
		"Page capacity: 3",
	})
}

func TestLayoutCommand_JSON(t *testing.T) {
	resetFlags()
	jsonOut = true
	layoutSize = 0x4000

	output, err := captureOutput(t, runLayout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertJSON(t, output)
	assertContains(t, output, []string{`"Start": "0x1000"`, `"TotalPages": 4`})
}

func TestLayoutCommand_InvalidInput(t *testing.T) {
	resetFlags()
	layoutSize = 0
	if _, err := captureOutput(t, runLayout); !errors.Is(err, alloc.ErrInvalidMemoryRegion) {
		t.Fatalf("expected ErrInvalidMemoryRegion, got %v", err)
	}

	resetFlags()
	layoutPageSize = 0x1800
	if _, err := captureOutput(t, runLayout); !errors.Is(err, alloc.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
}
