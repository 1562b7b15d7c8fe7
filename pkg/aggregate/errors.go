package aggregate

import (
	"errors"
	"fmt"

	"github.com/eunmann/txagg/pkg/partition"
)

var (
	// ErrInvalidInput is returned for a region that cannot be partitioned,
	// such as a zero-length file. No worker has started when it is returned.
	ErrInvalidInput = partition.ErrInvalidInput

	// ErrIO is returned when the byte source cannot be opened, mapped or
	// downloaded.
	ErrIO = errors.New("byte source unavailable")

	// ErrWorkerFailure is matched by every *WorkerError.
	ErrWorkerFailure = errors.New("worker failure")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

// WorkerError reports an unexpected failure while processing one chunk,
// including a recovered panic. It fails the whole run.
type WorkerError struct {
	Chunk partition.Chunk
	Err   error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("chunk %d [%d, %d): %v", e.Chunk.Index, e.Chunk.Start, e.Chunk.End, e.Err)
}

// Unwrap exposes both ErrWorkerFailure and the underlying cause.
func (e *WorkerError) Unwrap() []error {
	return []error{ErrWorkerFailure, e.Err}
}
