package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshuapare/bootalloc/trace"
)

func TestReplayCommand(t *testing.T) {
	tests := []struct {
		name        string
		scenario    string
		backed      bool
		json        bool
		wantErr     error
		wantContain []string
	}{
		{
			name:     "mixed boot text",
			scenario: "mixed_boot.yaml",
			wantContain: []string{
				"Scenario: early heap with one page table (simulated)",
				"alloc [heap]",
				"-> 0x1040",
				"!! out_of_memory",
				"Free gap:   [0x1008, 0x3000)",
				"Pages:      [0x3000, 0x4000) (4.0 KiB)",
			},
		},
		{
			name:        "mixed boot backed",
			scenario:    "mixed_boot.yaml",
			backed:      true,
			wantContain: []string{"(backed)", "-> 0x3000"},
		},
		{
			name:        "json output",
			scenario:    "page_exhaustion.yaml",
			json:        true,
			wantContain: []string{`"error_kind": "out_of_memory"`, `"used_pages": 2`},
		},
		{
			name:        "mismatch reported",
			scenario:    "wrong_expectation.yaml",
			wantErr:     trace.ErrExpectation,
			wantContain: []string{"MISMATCH: expected addr 0x2000, got 0x1000", "2 step(s) did not match"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			replayBacked = tt.backed
			jsonOut = tt.json

			output, err := captureOutput(t, func() error {
				return runReplay([]string{testScenarioPath(t, tt.scenario)})
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.json {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.wantContain)
		})
	}
}

func TestReplayCommand_InvalidScenario(t *testing.T) {
	resetFlags()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("start: 0\nsize: 0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := captureOutput(t, func() error {
		return runReplay([]string{path})
	})
	if !errors.Is(err, trace.ErrInvalidScenario) {
		t.Fatalf("expected ErrInvalidScenario, got %v", err)
	}
}

func TestReplayCommand_Quiet(t *testing.T) {
	resetFlags()
	quiet = true

	output, err := captureOutput(t, func() error {
		return runReplay([]string{testScenarioPath(t, "mixed_boot.yaml")})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "" {
		t.Errorf("quiet mode should print nothing, got: %s", output)
	}
}

func TestPrintReport_Corruptions(t *testing.T) {
	resetFlags()
	rep := &trace.Report{
		Name:   "overlap",
		Backed: true,
		Corruptions: []string{
			"bytes at 0x1000 (step 1) overlaps live bytes at 0x1000 (step 0)",
		},
	}

	output, _ := captureOutput(t, func() error {
		printReport(rep)
		return nil
	})
	assertContains(t, output, []string{
		"Scenario: overlap (backed)",
		"CORRUPTED: bytes at 0x1000 (step 1) overlaps live bytes at 0x1000 (step 0)",
	})
}
