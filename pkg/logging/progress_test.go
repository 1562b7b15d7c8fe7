package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProgressTracker_BasicOperations(t *testing.T) {
	pt := NewProgressTracker("aggregate", 10)

	pt.RecordCompletion(100*time.Millisecond, 1000)
	pt.RecordCompletion(150*time.Millisecond, 500)

	completed, total := pt.Progress()
	if completed != 2 || total != 10 {
		t.Errorf("Progress = (%d, %d), want (2, 10)", completed, total)
	}
	if pct := pt.ProgressPct(); pct != 20 {
		t.Errorf("ProgressPct = %.1f, want 20", pct)
	}
	if pt.Remaining() != 8 {
		t.Errorf("Remaining = %d, want 8", pt.Remaining())
	}
	if pt.Bytes() != 1500 {
		t.Errorf("Bytes = %d, want 1500", pt.Bytes())
	}
}

func TestProgressTracker_ETA(t *testing.T) {
	pt := NewProgressTracker("aggregate", 10)
	if pt.ETA() != 0 {
		t.Error("ETA before any completion should be 0")
	}

	pt.RecordCompletion(100*time.Millisecond, 0)
	pt.RecordCompletion(100*time.Millisecond, 0)

	if eta := pt.ETA(); eta != 800*time.Millisecond {
		t.Errorf("ETA = %v, want 800ms", eta)
	}
}

func TestProgressTracker_WindowKeepsRecent(t *testing.T) {
	pt := NewProgressTracker("aggregate", 100)
	for i := 0; i < recentWindow; i++ {
		pt.RecordCompletion(time.Second, 0)
	}
	for i := 0; i < recentWindow; i++ {
		pt.RecordCompletion(10*time.Millisecond, 0)
	}

	want := 10 * time.Millisecond * time.Duration(100-2*recentWindow)
	if eta := pt.ETA(); eta != want {
		t.Errorf("ETA = %v, want %v from the recent window only", eta, want)
	}
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	pt := NewProgressTracker("aggregate", 0)
	if pct := pt.ProgressPct(); pct != 100 {
		t.Errorf("ProgressPct = %.1f, want 100", pct)
	}
	if eta := pt.ETA(); eta != 0 {
		t.Errorf("ETA = %v, want 0", eta)
	}
}

func TestProgressTracker_Concurrent(t *testing.T) {
	pt := NewProgressTracker("aggregate", 64)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pt.RecordCompletion(time.Millisecond, 10)
		}()
	}
	wg.Wait()

	if pt.Remaining() != 0 || pt.Bytes() != 640 {
		t.Errorf("Remaining=%d Bytes=%d, want 0/640", pt.Remaining(), pt.Bytes())
	}
}

func TestCompletionEvent_BasicFields(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "test_event", "test_phase", 500*time.Millisecond).
		Str("key", "value").
		Int("count", 42).
		Int64("big_count", 1000000).
		Float64("ratio", 0.5).
		Log("test message")

	out := buf.String()
	for _, want := range []string{
		`"event":"test_event"`,
		`"phase":"test_phase"`,
		`"duration_ms":500`,
		`"key":"value"`,
		`"count":42`,
		`"big_count":1000000`,
		`"ratio":0.5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
	if strings.Contains(out, "duration_h") {
		t.Errorf("duration_h should only appear in pretty mode: %s", out)
	}
	if strings.Index(out, `"key"`) > strings.Index(out, `"count"`) {
		t.Errorf("fields out of insertion order: %s", out)
	}
}

func TestCompletionEvent_BytesAndCounts(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "test_event", "test_phase", time.Second).
		Bytes("size", 1073741824).
		Count("rows", 1500000).
		Log("test message")

	out := buf.String()
	for _, want := range []string{
		`"size":1073741824`,
		`"rows":1500000`,
		`"size_h":"1.00 GiB"`,
		`"rows_h":"1.50M"`,
		`"duration_h":"1.00s"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestCompletionEvent_Progress(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	pt := NewProgressTracker("aggregate", 4)
	pt.RecordCompletion(time.Second, 0)
	pt.RecordCompletion(time.Second, 0)

	NewCompletionEvent(zerolog.New(&buf), "test_event", "aggregate", time.Second).
		Progress(pt).
		Log("test message")

	out := buf.String()
	for _, want := range []string{
		`"done":2`,
		`"total":4`,
		`"progress_pct":50`,
		`"eta_ms":2000`,
		`"eta_h":"2.00s"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestCompletionEvent_Throughput(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "test_event", "test_phase", time.Second).
		Throughput(104857600).
		Log("test message")

	out := buf.String()
	if !strings.Contains(out, `"throughput_bps":104857600`) {
		t.Errorf("expected throughput_bps field, got: %s", out)
	}
	if !strings.Contains(out, `"throughput_h":"100.00 MiB/s"`) {
		t.Errorf("expected throughput_h field, got: %s", out)
	}
}

func TestCompletionEvent_ZeroElapsedSkipsThroughput(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "e", "p", 0).Throughput(100).Log("m")
	if strings.Contains(buf.String(), "throughput") {
		t.Errorf("unexpected throughput for zero elapsed: %s", buf.String())
	}
}

func TestHelperEvents(t *testing.T) {
	SetPrettyMode(false)

	tests := []struct {
		name  string
		build func(zerolog.Logger) *CompletionEvent
		event string
	}{
		{"phase", func(l zerolog.Logger) *CompletionEvent { return PhaseComplete(l, "aggregate", time.Second) }, "phase_completed"},
		{"chunk", func(l zerolog.Logger) *CompletionEvent { return ChunkComplete(l, "aggregate", time.Millisecond) }, "chunk_completed"},
		{"file", func(l zerolog.Logger) *CompletionEvent { return FileCreated(l, "generate", time.Millisecond) }, "file_created"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.build(zerolog.New(&buf)).Log("done")
			if !strings.Contains(buf.String(), `"event":"`+tt.event+`"`) {
				t.Errorf("expected %s event, got: %s", tt.event, buf.String())
			}
		})
	}
}

func TestCompletionEvent_LogDebug(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	oldLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(oldLevel)

	NewCompletionEvent(zerolog.New(&buf).Level(zerolog.DebugLevel), "e", "p", time.Second).LogDebug("debug message")
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Errorf("expected debug level, got: %s", buf.String())
	}

	buf.Reset()
	NewCompletionEvent(zerolog.New(&buf).Level(zerolog.InfoLevel), "e", "p", time.Second).LogDebug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug event leaked at info level: %s", buf.String())
	}
}
