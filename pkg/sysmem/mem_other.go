//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package sysmem

// totalSystemMemory has no detection on this platform; Total falls back
// to DefaultMemoryBytes.
func totalSystemMemory() (uint64, bool) {
	return 0, false
}
