// Package sysmem detects total physical memory, which sizes the default
// memory budget for in-memory byte sources.
package sysmem

import (
	"bytes"
	"strconv"
)

// DefaultMemoryBytes is reported when detection fails or the platform is
// unsupported.
const DefaultMemoryBytes uint64 = 4 << 30

// Result is a detected memory size.
type Result struct {
	TotalBytes uint64
	// Reliable is false when TotalBytes is DefaultMemoryBytes rather than a
	// value read from the OS.
	Reliable bool
}

// Total returns the memory available to this process: physical RAM, or a
// smaller container limit where one applies.
func Total() Result {
	n, ok := totalSystemMemory()
	if !ok || n == 0 {
		return Result{TotalBytes: DefaultMemoryBytes}
	}
	return Result{TotalBytes: n, Reliable: true}
}

// parseCgroupLimit reads a cgroup memory limit file. "max" (v2) and
// absurdly large values (v1 reports no limit as ~2^63) mean unlimited.
func parseCgroupLimit(data []byte) (uint64, bool) {
	s := string(bytes.TrimSpace(data))
	if s == "" || s == "max" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 || n >= 1<<62 {
		return 0, false
	}
	return n, true
}
