// Package format holds the alignment arithmetic shared by the allocator and
// the human-readable size and count formatting used in reports and logs.
package format
