// Package membudget tracks how much memory a run may pin for in-memory
// byte sources.
//
// Memory-mapped files do not count against the budget; the kernel pages
// them in and out. Decompressed inputs live on the Go heap for the whole
// run, so their size is reserved up front and released on Close.
package membudget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/eunmann/txagg/pkg/humanfmt"
	"github.com/eunmann/txagg/pkg/sysmem"
)

// DefaultBudgetBytes is used when system RAM cannot be detected.
const DefaultBudgetBytes uint64 = 4 * humanfmt.GiB

// EnvVar overrides the automatic budget when no flag is given.
const EnvVar = "TXAGG_MEM_BUDGET"

// ErrExceeded is returned when a reservation does not fit.
var ErrExceeded = errors.New("memory budget exceeded")

// BudgetSource records where the budget value came from.
type BudgetSource string

const (
	BudgetSourceAuto50Pct BudgetSource = "auto-50pct"
	BudgetSourceDefault   BudgetSource = "default"
	BudgetSourceCLI       BudgetSource = "cli"
	BudgetSourceEnv       BudgetSource = "env"
)

// Budget is a byte counter with a hard ceiling. It is safe for concurrent
// use.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	peak   atomic.Uint64
	source BudgetSource
}

// Config holds configuration for creating a Budget.
type Config struct {
	TotalBytes uint64
	Source     BudgetSource
}

// New creates a Budget.
func New(cfg Config) *Budget {
	return &Budget{total: cfg.TotalBytes, source: cfg.Source}
}

// NewFromSystemRAM creates a Budget of half the detected RAM, or
// DefaultBudgetBytes when detection is unreliable.
func NewFromSystemRAM() *Budget {
	mem := sysmem.Total()
	if !mem.Reliable {
		return New(Config{TotalBytes: DefaultBudgetBytes, Source: BudgetSourceDefault})
	}
	return New(Config{TotalBytes: mem.TotalBytes / 2, Source: BudgetSourceAuto50Pct})
}

// Total returns the ceiling in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// InUse returns the currently reserved bytes.
func (b *Budget) InUse() uint64 {
	return b.inUse.Load()
}

// Peak returns the highest InUse seen. It survives Release, so it can be
// read after every reservation has been returned.
func (b *Budget) Peak() uint64 {
	return b.peak.Load()
}

// Available returns Total minus InUse.
func (b *Budget) Available() uint64 {
	inUse := b.inUse.Load()
	if inUse >= b.total {
		return 0
	}
	return b.total - inUse
}

// Source returns how the budget was determined.
func (b *Budget) Source() BudgetSource {
	return b.source
}

// TryReserve reserves n bytes if they fit and reports whether it did.
func (b *Budget) TryReserve(n uint64) bool {
	for {
		cur := b.inUse.Load()
		next := cur + n
		if next < cur || next > b.total {
			return false
		}
		if b.inUse.CompareAndSwap(cur, next) {
			b.raisePeak(next)
			return true
		}
	}
}

func (b *Budget) raisePeak(v uint64) {
	for {
		cur := b.peak.Load()
		if v <= cur || b.peak.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Reserve is TryReserve with an error naming the shortfall.
func (b *Budget) Reserve(n uint64) error {
	if b.TryReserve(n) {
		return nil
	}
	return fmt.Errorf("%w: need %s, %s of %s available",
		ErrExceeded, humanfmt.Bytes(int64(n)), humanfmt.Bytes(int64(b.Available())), humanfmt.Bytes(int64(b.total)))
}

// Release returns n bytes. Releasing more than is reserved clamps to zero.
func (b *Budget) Release(n uint64) {
	for {
		cur := b.inUse.Load()
		next := uint64(0)
		if n < cur {
			next = cur - n
		}
		if b.inUse.CompareAndSwap(cur, next) {
			return
		}
	}
}

// ParseHumanSize parses sizes such as "512MiB", "4GB" or "1024".
// Supported suffixes: B, K/KiB, KB, M/MiB, MB, G/GiB, GB, T/TiB, TB.
func ParseHumanSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := len(s)
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' {
			numEnd = i
			break
		}
	}

	num, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number: %q", s[:numEnd])
	}

	var mult float64
	switch s[numEnd:] {
	case "", "B":
		mult = 1
	case "KB":
		mult = 1e3
	case "KiB", "K":
		mult = humanfmt.KiB
	case "MB":
		mult = 1e6
	case "MiB", "M":
		mult = humanfmt.MiB
	case "GB":
		mult = 1e9
	case "GiB", "G":
		mult = humanfmt.GiB
	case "TB":
		mult = 1e12
	case "TiB", "T":
		mult = humanfmt.TiB
	default:
		return 0, fmt.Errorf("unknown size suffix: %q", s[numEnd:])
	}

	return uint64(num * mult), nil
}
