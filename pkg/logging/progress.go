package logging

import (
	"sync"
	"time"

	"github.com/eunmann/txagg/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ProgressTracker counts finished work items (chunks) and estimates the
// time remaining. It is safe for concurrent use.
type ProgressTracker struct {
	phase     string
	total     int64
	startTime time.Time

	mu        sync.Mutex
	completed int64
	bytes     int64
	recent    []time.Duration
}

const recentWindow = 8

// NewProgressTracker starts tracking total items.
func NewProgressTracker(phase string, total int64) *ProgressTracker {
	return &ProgressTracker{
		phase:     phase,
		total:     total,
		startTime: time.Now(),
		recent:    make([]time.Duration, 0, recentWindow),
	}
}

// RecordCompletion records one finished item that took d and covered n
// bytes.
func (pt *ProgressTracker) RecordCompletion(d time.Duration, n int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.completed++
	pt.bytes += n
	if len(pt.recent) == recentWindow {
		copy(pt.recent, pt.recent[1:])
		pt.recent = pt.recent[:recentWindow-1]
	}
	pt.recent = append(pt.recent, d)
}

// Progress returns the completed and total item counts.
func (pt *ProgressTracker) Progress() (completed, total int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.completed, pt.total
}

// Bytes returns the bytes covered by completed items.
func (pt *ProgressTracker) Bytes() int64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.bytes
}

// ProgressPct returns completion in percent. An empty tracker is 100% done.
func (pt *ProgressTracker) ProgressPct() float64 {
	completed, total := pt.Progress()
	if total == 0 {
		return 100
	}
	return float64(completed) * 100 / float64(total)
}

// ETA estimates the remaining time from the mean of recent item
// durations. Items run in parallel, so this is an upper bound.
func (pt *ProgressTracker) ETA() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	remaining := pt.total - pt.completed
	if pt.completed == 0 || remaining <= 0 || len(pt.recent) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range pt.recent {
		sum += d
	}
	return sum / time.Duration(len(pt.recent)) * time.Duration(remaining)
}

// Elapsed returns the time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// Remaining returns how many items have not completed.
func (pt *ProgressTracker) Remaining() int64 {
	completed, total := pt.Progress()
	return total - completed
}

// CompletionEvent builds a structured "something finished" log line with
// consistent event, phase and duration fields. Fields are emitted in the
// order they were added.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  []field
}

type field struct {
	key string
	val any
}

// NewCompletionEvent starts an event.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{log: log, event: event, phase: phase, elapsed: elapsed}
}

func (ce *CompletionEvent) add(key string, val any) *CompletionEvent {
	ce.fields = append(ce.fields, field{key, val})
	return ce
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent { return ce.add(key, val) }

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent { return ce.add(key, val) }

// Int64 adds an int64 field.
func (ce *CompletionEvent) Int64(key string, val int64) *CompletionEvent { return ce.add(key, val) }

// Float64 adds a float64 field.
func (ce *CompletionEvent) Float64(key string, val float64) *CompletionEvent {
	return ce.add(key, val)
}

// Bytes adds a byte count, plus a "_h" companion in pretty mode.
func (ce *CompletionEvent) Bytes(key string, n int64) *CompletionEvent {
	ce.add(key, n)
	if IsPrettyMode() {
		ce.add(key+"_h", humanfmt.Bytes(n))
	}
	return ce
}

// Count adds a count, plus a "_h" companion in pretty mode.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.add(key, n)
	if IsPrettyMode() {
		ce.add(key+"_h", humanfmt.Count(n))
	}
	return ce
}

// Progress adds done/total/progress_pct from a tracker and, while work
// remains, its ETA.
func (ce *CompletionEvent) Progress(pt *ProgressTracker) *CompletionEvent {
	done, total := pt.Progress()
	ce.add("done", done).add("total", total)
	if total > 0 {
		ce.add("progress_pct", pt.ProgressPct())
	}
	if eta := pt.ETA(); eta > 0 {
		ce.add("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			ce.add("eta_h", humanfmt.Duration(eta))
		}
	}
	return ce
}

// Throughput adds the byte rate over the event's elapsed time.
func (ce *CompletionEvent) Throughput(n int64) *CompletionEvent {
	if ce.elapsed <= 0 {
		return ce
	}
	ce.add("throughput_bps", float64(n)/ce.elapsed.Seconds())
	if IsPrettyMode() {
		ce.add("throughput_h", humanfmt.Throughput(n, ce.elapsed))
	}
	return ce
}

// Log emits the event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	if e == nil {
		return
	}
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for _, f := range ce.fields {
		e = e.Interface(f.key, f.val)
	}
	e.Msg(msg)
}

// PhaseComplete starts a "phase_completed" event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// ChunkComplete starts a "chunk_completed" event.
func ChunkComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "chunk_completed", phase, elapsed)
}

// FileCreated starts a "file_created" event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}
