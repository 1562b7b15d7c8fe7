package aggregate

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/eunmann/txagg/internal/logctx"
	"github.com/eunmann/txagg/pkg/accum"
	"github.com/eunmann/txagg/pkg/logging"
	"github.com/eunmann/txagg/pkg/partition"
	"github.com/eunmann/txagg/pkg/scan"
)

// cancelCheckMask sets how often a worker polls for cancellation: every
// 64Ki lines.
const cancelCheckMask = 1<<16 - 1

// chunkStats is what a worker reports back besides its merged map.
type chunkStats struct {
	Total   accum.Sum
	Valid   int64
	Invalid int64
}

// runChunk scans data[c.Start:c.End] into a private map and merges it into
// shared exactly once. The shared lock is only taken for the merge.
func (a *Aggregator) runChunk(ctx context.Context, data []byte, c partition.Chunk, shared *accum.Shared, progress *logging.ProgressTracker) (st chunkStats, err error) {
	log := logctx.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panicked")
			err = &WorkerError{Chunk: c, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if a.chunkStart != nil {
		a.chunkStart(c)
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}

	start := time.Now()
	local := accum.NewLocal(a.cfg.InitialKeyCapacity)
	sc := scan.New(data[c.Start:c.End])
	for lines := 1; sc.Scan(); lines++ {
		if rec, ok := sc.Record(); ok {
			local.Add(rec.Key, rec.Value)
		}
		if lines&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
	}

	shared.Merge(local)

	st = chunkStats{
		Total:   *local.Total(),
		Valid:   sc.Valid(),
		Invalid: sc.Malformed(),
	}
	elapsed := time.Since(start)
	progress.RecordCompletion(elapsed, int64(c.Len()))
	logging.ChunkComplete(log, phaseAggregate, elapsed).
		Progress(progress).
		Bytes("bytes", int64(c.Len())).
		Count("valid_records", st.Valid).
		Count("invalid_records", st.Invalid).
		Int("distinct_keys", local.Len()).
		LogDebug("chunk merged")
	return st, nil
}
