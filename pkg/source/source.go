// Package source provides the read-only byte regions that the aggregator
// partitions and scans.
//
// A region is obtained once, shared by every worker without
// synchronization, and released with Close only after all workers have
// returned. Nothing may write to a region.
package source

import (
	"errors"
)

// ErrOpen is wrapped by every failure to produce a region.
var ErrOpen = errors.New("open byte source")

// ByteSource is an immutable byte region.
type ByteSource interface {
	// Bytes returns the whole region. The slice stays valid until Close.
	Bytes() []byte
	// Len returns len(Bytes()).
	Len() int
	// Close releases the region. It must not be called while any reader
	// still holds the slice.
	Close() error
}

// Buffer is a ByteSource backed by heap memory.
type Buffer struct {
	data    []byte
	release func()
}

// FromBytes wraps data as a ByteSource. The caller must not modify data
// afterwards.
func FromBytes(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the buffered region.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the region size.
func (b *Buffer) Len() int { return len(b.data) }

// Close drops the buffer and returns any memory it reserved.
func (b *Buffer) Close() error {
	b.data = nil
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return nil
}
