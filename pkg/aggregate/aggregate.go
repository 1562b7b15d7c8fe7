// Package aggregate runs the parallel per-key aggregation over a byte
// region: split it into line-aligned chunks, scan each chunk in a bounded
// worker pool, merge the per-worker maps and rank the result.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/txagg/internal/logctx"
	"github.com/eunmann/txagg/pkg/accum"
	"github.com/eunmann/txagg/pkg/logging"
	"github.com/eunmann/txagg/pkg/partition"
	"github.com/eunmann/txagg/pkg/report"
	"github.com/eunmann/txagg/pkg/source"
	"golang.org/x/sync/errgroup"
)

const phaseAggregate = "aggregate"

// Result is the outcome of a successful run.
type Result struct {
	Report *report.Report

	// Totals holds the final (sum, count) of every key seen.
	Totals map[int64]accum.Totals

	Chunks  int
	Bytes   int64
	Elapsed time.Duration
}

// Aggregator runs aggregations with a fixed configuration. It holds no
// per-run state and may be reused.
type Aggregator struct {
	cfg Config
	// chunkStart, when set, runs at the start of every chunk.
	chunkStart func(partition.Chunk)
}

// New validates cfg and returns an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg}, nil
}

// Config returns the aggregator's configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// RunURI opens uri, runs the aggregation and closes the source once every
// worker has returned. Open failures wrap ErrIO.
func (a *Aggregator) RunURI(ctx context.Context, uri string, opts source.Options) (*Result, error) {
	ctx = logctx.WithStr(ctx, "input", uri)

	src, err := source.Open(ctx, uri, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	res, runErr := a.Run(ctx, src)
	if err := src.Close(); err != nil && runErr == nil {
		return nil, fmt.Errorf("%w: close %s: %w", ErrIO, uri, err)
	}
	return res, runErr
}

// Run aggregates the region held by src. The first line is a header and
// is skipped. src is not closed.
//
// The result does not depend on Workers or MinChunkBytes: sums are exact
// until the final rounding, so any chunking yields bit-identical totals.
// If any worker fails, or ctx is canceled, no result is returned.
func (a *Aggregator) Run(ctx context.Context, src source.ByteSource) (*Result, error) {
	start := time.Now()
	log := logctx.FromContext(ctx).With().Str("phase", phaseAggregate).Logger()
	ctx = logctx.WithLogger(ctx, log)

	data := src.Bytes()
	headerEnd := partition.HeaderEnd(data)
	chunks, err := partition.Split(data, headerEnd, a.cfg.Workers, a.cfg.MinChunkBytes)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("bytes", len(data)).
		Int("chunks", len(chunks)).
		Int("workers", a.cfg.Workers).
		Msg("aggregation started")

	shared := accum.NewShared(a.cfg.InitialKeyCapacity)
	stats := make([]chunkStats, len(chunks))
	progress := logging.NewProgressTracker(phaseAggregate, int64(len(chunks)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, c := range chunks {
		g.Go(func() error {
			chunkCtx := logctx.WithInt(gctx, "chunk_index", c.Index)
			st, err := a.runChunk(chunkCtx, data, c, shared, progress)
			if err != nil {
				return err
			}
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	var total accum.Sum
	var valid, invalid int64
	for i := range stats {
		total.Merge(&stats[i].Total)
		valid += stats[i].Valid
		invalid += stats[i].Invalid
	}

	totals := shared.Totals()
	rep := report.Build(totals, a.cfg.TopK, report.Summary{
		ValidRecords:   valid,
		InvalidRecords: invalid,
		TotalSum:       total.Float64(),
	})

	elapsed := time.Since(start)
	logging.PhaseComplete(log, phaseAggregate, elapsed).
		Int("chunks", len(chunks)).
		Int("merges", shared.Merges()).
		Count("valid_records", valid).
		Count("invalid_records", invalid).
		Count("distinct_keys", int64(len(totals))).
		Bytes("bytes", int64(len(data))).
		Throughput(int64(len(data))).
		Log("aggregation complete")

	return &Result{
		Report:  rep,
		Totals:  totals,
		Chunks:  len(chunks),
		Bytes:   int64(len(data)),
		Elapsed: elapsed,
	}, nil
}
