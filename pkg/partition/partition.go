// Package partition splits a read-only byte region into line-aligned chunks
// that can be scanned independently by parallel workers.
package partition

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMinChunkBytes is the smallest nominal chunk width (1 MiB). It keeps
// small files from being split into many tiny chunks.
const DefaultMinChunkBytes = 1 << 20

// ErrInvalidInput indicates a degenerate partition request.
var ErrInvalidInput = errors.New("invalid partition input")

// Chunk is a contiguous byte range [Start, End) of the region.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the chunk width in bytes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// HeaderEnd returns the offset just past the first newline in data.
// If data contains no newline the whole region is header and len(data)
// is returned.
func HeaderEnd(data []byte) int {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return len(data)
	}
	return i + 1
}

// Split divides [headerEnd, len(data)) into at most workers chunks.
//
// The nominal width is max((len(data)-headerEnd)/workers, minChunkBytes).
// Each nominal end is moved forward to just after the next newline at or
// after it; when no newline remains the chunk runs to len(data). The chunk
// at index workers-1 always absorbs the remainder. Split returns fewer
// chunks than workers rather than empty ones, and an empty slice when the
// region holds only a header.
func Split(data []byte, headerEnd, workers, minChunkBytes int) ([]Chunk, error) {
	length := len(data)
	if length == 0 {
		return nil, fmt.Errorf("%w: empty region", ErrInvalidInput)
	}
	if headerEnd < 0 || headerEnd > length {
		return nil, fmt.Errorf("%w: header end %d outside [0, %d]", ErrInvalidInput, headerEnd, length)
	}
	if workers < 1 {
		return nil, fmt.Errorf("%w: worker count %d", ErrInvalidInput, workers)
	}

	body := length - headerEnd
	if body == 0 {
		return []Chunk{}, nil
	}

	width := body / workers
	if width < minChunkBytes {
		width = minChunkBytes
	}
	if width < 1 {
		width = 1
	}

	chunks := make([]Chunk, 0, workers)
	start := headerEnd
	for start < length {
		end := length
		if len(chunks) < workers-1 && start+width < length {
			end = alignEnd(data, start+width)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
		start = end
	}
	return chunks, nil
}

// alignEnd returns the offset just after the first newline at or after pos,
// or len(data) if there is none.
func alignEnd(data []byte, pos int) int {
	i := bytes.IndexByte(data[pos:], '\n')
	if i < 0 {
		return len(data)
	}
	return pos + i + 1
}
