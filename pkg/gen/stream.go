package gen

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Emitter receives streamed transactions one line at a time.
type Emitter interface {
	Emit(ctx context.Context, line []byte) error
}

// WriterEmitter writes each line to W.
type WriterEmitter struct {
	W io.Writer
}

// Emit implements Emitter.
func (e WriterEmitter) Emit(_ context.Context, line []byte) error {
	_, err := e.W.Write(line)
	return err
}

// Stream feeds g's transactions to e, pausing delay between lines, until
// ctx is done or e fails. It returns the number of lines delivered. A
// canceled context ends the stream without error.
func Stream(ctx context.Context, g *Generator, e Emitter, delay time.Duration) (int64, error) {
	var ticker *time.Ticker
	if delay > 0 {
		ticker = time.NewTicker(delay)
		defer ticker.Stop()
	}

	var sent int64
	var line []byte
	for {
		if ctx.Err() != nil {
			return sent, nil
		}
		line = g.Next().AppendCSV(line[:0])
		if err := e.Emit(ctx, line); err != nil {
			return sent, fmt.Errorf("emit line %d: %w", sent+1, err)
		}
		sent++

		if ticker == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}
	}
}
