package aggregate

import (
	"fmt"

	"github.com/eunmann/txagg/pkg/accum"
	"github.com/eunmann/txagg/pkg/partition"
	"github.com/eunmann/txagg/pkg/report"
)

// DefaultWorkers is the default size of the worker pool.
const DefaultWorkers = 6

// Config controls a run.
type Config struct {
	// Workers is both the pool size and the maximum number of chunks.
	Workers int

	// TopK is how many keys the report ranks.
	TopK int

	// MinChunkBytes is the smallest nominal chunk width. Inputs smaller
	// than Workers*MinChunkBytes use fewer chunks.
	MinChunkBytes int

	// InitialKeyCapacity presizes each worker's local map and the shared
	// map.
	InitialKeyCapacity int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:            DefaultWorkers,
		TopK:               report.DefaultTopK,
		MinChunkBytes:      partition.DefaultMinChunkBytes,
		InitialKeyCapacity: accum.DefaultInitialCapacity,
	}
}

// Validate rejects settings a run cannot use.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top-k must be >= 1, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.MinChunkBytes < 1 {
		return fmt.Errorf("%w: min chunk bytes must be >= 1, got %d", ErrInvalidConfig, c.MinChunkBytes)
	}
	if c.InitialKeyCapacity < 0 {
		return fmt.Errorf("%w: initial key capacity must be >= 0, got %d", ErrInvalidConfig, c.InitialKeyCapacity)
	}
	return nil
}
