//go:build !unix

// Package mmfile provides platform-specific helpers for anonymous memory mappings.
package mmfile

import "fmt"

// MapAnon allocates size zeroed bytes from the Go heap when mmap is not available.
func MapAnon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmfile: invalid mapping size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}

// Discard zeroes data; heap memory cannot be returned to the system piecemeal.
func Discard(data []byte) error {
	clear(data)
	return nil
}
