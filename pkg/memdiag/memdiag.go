// Package memdiag logs heap usage while a run is in progress.
//
// Enable periodic logging with TXAGG_MEM_DEBUG=1 (or run --mem-debug).
// Set TXAGG_PPROF_ADDR (e.g. localhost:6060) to serve net/http/pprof.
package memdiag

import (
	"errors"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/eunmann/txagg/pkg/humanfmt"
	"github.com/eunmann/txagg/pkg/logging"
	"github.com/rs/zerolog"
)

const (
	EnvDebug = "TXAGG_MEM_DEBUG"
	EnvPprof = "TXAGG_PPROF_ADDR"
)

// Config holds configuration for memory diagnostics.
type Config struct {
	Enabled bool

	// PprofAddr, when set, starts a pprof server on that address.
	PprofAddr string

	LogInterval time.Duration
}

// DefaultConfig reads the configuration from the environment.
func DefaultConfig() Config {
	return Config{
		Enabled:     os.Getenv(EnvDebug) == "1",
		PprofAddr:   os.Getenv(EnvPprof),
		LogInterval: 5 * time.Second,
	}
}

// Stats is the subset of runtime.MemStats worth logging.
type Stats struct {
	HeapAlloc     uint64
	HeapSys       uint64
	HeapInuse     uint64
	StackInuse    uint64
	Sys           uint64
	NumGC         uint32
	GCCPUFraction float64
}

// Read samples the runtime.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:     m.HeapAlloc,
		HeapSys:       m.HeapSys,
		HeapInuse:     m.HeapInuse,
		StackInuse:    m.StackInuse,
		Sys:           m.Sys,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

// Tracker logs memory usage on an interval and remembers the peak heap.
type Tracker struct {
	config  Config
	log     zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	server  *http.Server

	mu       sync.Mutex
	phase    string
	peakHeap uint64
}

// NewTracker creates a tracker that logs through logging.L().
func NewTracker(config Config) *Tracker {
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}
	return &Tracker{
		config: config,
		log:    *logging.L(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		phase:  "init",
	}
}

// Start begins periodic logging if enabled. It is a no-op on a second call.
func (t *Tracker) Start() {
	if !t.config.Enabled || !t.started.CompareAndSwap(false, true) {
		return
	}
	t.log.Info().Dur("interval", t.config.LogInterval).Msg("memory diagnostics enabled")

	if t.config.PprofAddr != "" {
		t.server = &http.Server{Addr: t.config.PprofAddr, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			t.log.Info().Str("addr", t.config.PprofAddr).Msg("starting pprof server")
			if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go t.logLoop()
}

// Stop ends periodic logging and shuts down the pprof server.
func (t *Tracker) Stop() {
	if !t.started.Load() {
		return
	}
	close(t.stopCh)
	<-t.doneCh
	if t.server != nil {
		t.server.Close()
	}
}

// SetPhase tags subsequent log lines with phase.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.LogNow("phase_change")
}

// observe samples the runtime and updates the peak.
func (t *Tracker) observe() (Stats, string, uint64) {
	stats := Read()
	t.mu.Lock()
	defer t.mu.Unlock()
	if stats.HeapAlloc > t.peakHeap {
		t.peakHeap = stats.HeapAlloc
	}
	return stats, t.phase, t.peakHeap
}

// LogNow logs current memory stats immediately.
func (t *Tracker) LogNow(reason string) {
	if !t.config.Enabled {
		return
	}
	stats, phase, peak := t.observe()
	t.log.Debug().
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", humanfmt.Bytes(int64(stats.HeapAlloc))).
		Str("heap_inuse", humanfmt.Bytes(int64(stats.HeapInuse))).
		Str("stack_inuse", humanfmt.Bytes(int64(stats.StackInuse))).
		Str("sys_total", humanfmt.Bytes(int64(stats.Sys))).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Uint32("num_gc", stats.NumGC).
		Float64("gc_cpu_pct", stats.GCCPUFraction*100).
		Msg("memory stats")
}

// LogWithBudget logs the heap next to the peak bytes reserved from a
// memory budget, and warns when the heap is far larger than what was
// reserved.
func (t *Tracker) LogWithBudget(reason string, budgetPeak, budgetTotal uint64) {
	if !t.config.Enabled {
		return
	}
	stats, phase, peak := t.observe()

	var ratio float64
	if budgetPeak > 0 {
		ratio = float64(stats.HeapAlloc) / float64(budgetPeak)
	}

	t.log.Debug().
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", humanfmt.Bytes(int64(stats.HeapAlloc))).
		Str("budget_peak", humanfmt.Bytes(int64(budgetPeak))).
		Str("budget_total", humanfmt.Bytes(int64(budgetTotal))).
		Float64("heap_vs_budget_ratio", ratio).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Msg("memory stats with budget")

	if ratio > 2.0 && budgetPeak > 100*humanfmt.MiB {
		t.log.Warn().
			Str("heap_alloc", humanfmt.Bytes(int64(stats.HeapAlloc))).
			Str("budget_peak", humanfmt.Bytes(int64(budgetPeak))).
			Float64("ratio", ratio).
			Msg("heap usage significantly exceeds budget reservations")
	}
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) logLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
